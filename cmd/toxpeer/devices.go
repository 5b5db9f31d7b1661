package main

import (
	"sync/atomic"

	"github.com/opd-ai/toxpeer/av"
	"github.com/opd-ai/toxpeer/av/audio"
	"github.com/opd-ai/toxpeer/av/video"
)

// syntheticDevices captures a test tone and color bars and counts what it
// plays back. The binary has no access to real capture hardware.
type syntheticDevices struct {
	played    atomic.Uint64
	displayed atomic.Uint64
	peak      atomic.Int64
}

type toneDevice struct {
	owner *syntheticDevices
	tone  *audio.Tone
}

func (d *syntheticDevices) OpenAudio(s av.Settings) (av.AudioDevice, error) {
	return &toneDevice{owner: d, tone: audio.NewTone(440, int(s.SampleRate), int(s.Channels))}, nil
}

func (t *toneDevice) Capture(pcm []byte) error {
	t.tone.Fill(pcm)
	return nil
}

func (t *toneDevice) Playback(pcm []byte) error {
	t.owner.played.Add(1)
	peak := int64(audio.Peak(pcm))
	for {
		cur := t.owner.peak.Load()
		if peak <= cur || t.owner.peak.CompareAndSwap(cur, peak) {
			return nil
		}
	}
}

func (t *toneDevice) Close() error { return nil }

type barsDevice struct {
	owner         *syntheticDevices
	width, height uint16
	seq           int
}

func (d *syntheticDevices) OpenVideo(s av.Settings) (av.VideoDevice, error) {
	w, h := s.VideoSize()
	return &barsDevice{owner: d, width: w, height: h}, nil
}

func (b *barsDevice) Capture() (*video.Frame, error) {
	b.seq++
	return video.Pattern(b.width, b.height, b.seq), nil
}

func (b *barsDevice) Display(*video.Frame) error {
	b.owner.displayed.Add(1)
	return nil
}

func (b *barsDevice) Close() error { return nil }

// cannedOpus replays one SILK wideband frame for every captured frame. The
// binary has no Opus encoder; the packet exercises the receiving decoder.
type cannedOpus struct{}

var silkFrame = []byte{0x48, 0x0B, 0xE4, 0xC1, 0x36, 0xEC, 0xC5, 0x80}

func (cannedOpus) Encode([]byte, int, int) ([]byte, error) {
	return silkFrame, nil
}
