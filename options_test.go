package toxpeer

import (
	"testing"
	"time"

	"github.com/opd-ai/toxpeer/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()
	require.NoError(t, o.Validate())

	assert.Equal(t, 20*time.Millisecond, o.IterationInterval)
	assert.Equal(t, 5*time.Millisecond, o.PollWait)
	assert.Equal(t, limits.MaxChunkPayload, o.ChunkSize)
	assert.Equal(t, 4, o.Window)
	assert.Equal(t, 30*time.Second, o.StallTimeout)
	assert.Equal(t, 10*time.Second, o.PeerTimeout)
	assert.Equal(t, time.Millisecond, o.PumpInterval)
	assert.Equal(t, 3, o.RetryAttempts)
	assert.Equal(t, 5*time.Millisecond, o.RetryDelay)
	assert.Equal(t, 960, o.CallSettings.FrameSize())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero interval", func(o *Options) { o.IterationInterval = 0 }},
		{"negative poll wait", func(o *Options) { o.PollWait = -time.Millisecond }},
		{"no attempts", func(o *Options) { o.RetryAttempts = 0 }},
		{"negative retry delay", func(o *Options) { o.RetryDelay = -1 }},
		{"oversized chunk", func(o *Options) { o.ChunkSize = limits.MaxChunkPayload + 1 }},
		{"zero window", func(o *Options) { o.Window = 0 }},
		{"negative stall timeout", func(o *Options) { o.StallTimeout = -time.Second }},
		{"zero pump interval", func(o *Options) { o.PumpInterval = 0 }},
		{"bad sample rate", func(o *Options) { o.CallSettings.SampleRate = 44100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			assert.ErrorIs(t, o.Validate(), ErrInvalidOptions)
		})
	}
}

func TestOptionsFeedEngines(t *testing.T) {
	o := NewOptions()
	o.ChunkSize = 512
	o.RetryAttempts = 5

	fc := o.fileConfig()
	assert.Equal(t, 512, fc.ChunkSize)
	assert.Equal(t, 5, fc.Retry.Attempts)

	cc := o.callConfig()
	assert.Equal(t, o.PeerTimeout, cc.PeerTimeout)
	assert.Equal(t, o.CallSettings, cc.Settings)
}
