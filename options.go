package toxpeer

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/toxpeer/av"
	"github.com/opd-ai/toxpeer/file"
	"github.com/opd-ai/toxpeer/limits"
	"github.com/opd-ai/toxpeer/retry"
)

// Options contains the configuration of a Node.
type Options struct {
	// IterationInterval is the pause between two ticks in Run.
	IterationInterval time.Duration
	// PollWait bounds how long one tick waits for inbound events.
	PollWait time.Duration

	// ChunkSize is the largest file chunk requested at once.
	ChunkSize int
	// Window is the number of chunk requests outstanding per transfer.
	Window int
	// StallTimeout cancels transfers without activity. Zero disables it.
	StallTimeout time.Duration

	// RingTimeout is the default time an invite rings before it times out.
	RingTimeout time.Duration
	// PeerTimeout ends active calls without inbound traffic.
	PeerTimeout time.Duration
	// PumpInterval is the pause between two captured media frames.
	PumpInterval time.Duration

	// RetryAttempts and RetryDelay bound the retries of control messages.
	RetryAttempts int
	RetryDelay    time.Duration

	// CallSettings are proposed for outgoing calls.
	CallSettings av.Settings
	// Devices opens media devices for calls. Calls cannot be answered
	// without it.
	Devices av.DeviceProvider
	// AudioDecoder converts inbound audio payloads. Nil means raw PCM.
	AudioDecoder av.AudioDecoder
	// AudioEncoder converts captured audio before sending. Nil sends raw PCM.
	AudioEncoder av.AudioEncoder
}

// NewOptions returns the default node options.
func NewOptions() *Options {
	return &Options{
		IterationInterval: 20 * time.Millisecond,
		PollWait:          5 * time.Millisecond,
		ChunkSize:         limits.MaxChunkPayload,
		Window:            file.DefaultWindow,
		StallTimeout:      file.DefaultStallTimeout,
		RingTimeout:       av.DefaultRingTimeout,
		PeerTimeout:       av.DefaultPeerTimeout,
		PumpInterval:      av.DefaultPumpInterval,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Millisecond,
		CallSettings:      av.DefaultSettings(),
	}
}

// Validate rejects options the node cannot run with.
func (o *Options) Validate() error {
	if o.IterationInterval <= 0 {
		return fmt.Errorf("%w: iteration interval must be positive", ErrInvalidOptions)
	}
	if o.PollWait < 0 {
		return fmt.Errorf("%w: poll wait must not be negative", ErrInvalidOptions)
	}
	if o.RetryAttempts < 1 {
		return fmt.Errorf("%w: at least one send attempt is required", ErrInvalidOptions)
	}
	if o.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must not be negative", ErrInvalidOptions)
	}
	if err := o.fileConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if err := o.callConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

func (o *Options) retryPolicy() retry.Policy {
	return retry.Policy{
		Attempts: o.RetryAttempts,
		Delay:    o.RetryDelay,
		Sleeper:  retry.DefaultSleeper{},
	}
}

func (o *Options) fileConfig() file.Config {
	return file.Config{
		ChunkSize:    o.ChunkSize,
		Window:       o.Window,
		StallTimeout: o.StallTimeout,
		Retry:        o.retryPolicy(),
	}
}

func (o *Options) callConfig() av.Config {
	return av.Config{
		RingTimeout:  o.RingTimeout,
		PeerTimeout:  o.PeerTimeout,
		PumpInterval: o.PumpInterval,
		Retry:        o.retryPolicy(),
		Settings:     o.CallSettings,
		Devices:      o.Devices,
		Decoder:      o.AudioDecoder,
		Encoder:      o.AudioEncoder,
	}
}

// Node errors.
var (
	// ErrInvalidOptions indicates options that fail validation.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrTickInProgress indicates Iterate was called while a tick was running.
	ErrTickInProgress = errors.New("tick already in progress")

	// ErrKilled indicates the node has been shut down.
	ErrKilled = errors.New("node killed")
)
