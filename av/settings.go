package av

import (
	"fmt"

	"github.com/opd-ai/toxpeer/channel"
)

// Default media parameters.
const (
	DefaultSampleRate      = 48000
	DefaultFrameDurationMs = 20
	DefaultChannels        = 1
	DefaultAudioBitRate    = 48
	DefaultVideoBitRate    = 5000
	DefaultVideoWidth      = 640
	DefaultVideoHeight     = 480
)

var (
	validSampleRates     = map[uint32]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}
	validFrameDurationMs = map[uint16]bool{5: true, 10: true, 20: true, 40: true, 60: true}
)

// Settings holds the media parameters of a call. Bit rates are in kbit/s.
// A zero MaxWidth or MaxHeight means the capture geometry is unknown.
type Settings struct {
	CallType        CallType
	AudioBitRate    uint32
	SampleRate      uint32
	FrameDurationMs uint16
	Channels        uint8
	VideoBitRate    uint32
	MaxWidth        uint16
	MaxHeight       uint16
}

// DefaultSettings returns audio-only settings at 48 kHz, 20 ms, mono.
func DefaultSettings() Settings {
	return Settings{
		CallType:        CallTypeAudio,
		AudioBitRate:    DefaultAudioBitRate,
		SampleRate:      DefaultSampleRate,
		FrameDurationMs: DefaultFrameDurationMs,
		Channels:        DefaultChannels,
		VideoBitRate:    DefaultVideoBitRate,
	}
}

// FrameSize returns the number of samples per channel in one audio frame.
func (s Settings) FrameSize() int {
	return int(s.SampleRate) * int(s.FrameDurationMs) / 1000
}

// VideoSize returns the negotiated video geometry, falling back to the
// default resolution when it is unknown.
func (s Settings) VideoSize() (uint16, uint16) {
	if s.MaxWidth == 0 || s.MaxHeight == 0 {
		return DefaultVideoWidth, DefaultVideoHeight
	}
	return s.MaxWidth, s.MaxHeight
}

func (s Settings) validAudio() bool {
	return validSampleRates[s.SampleRate] &&
		validFrameDurationMs[s.FrameDurationMs] &&
		(s.Channels == 1 || s.Channels == 2)
}

// Validate checks the settings for values the engine cannot run with.
func (s Settings) Validate() error {
	if !s.CallType.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCallType, s.CallType)
	}
	if !s.validAudio() {
		return fmt.Errorf("%w: %d Hz, %d ms, %d channels", ErrInvalidSettings, s.SampleRate, s.FrameDurationMs, s.Channels)
	}
	return nil
}

// Negotiate derives the settings a callee uses for a proposed call. The
// proposed audio parameters are kept when valid and replaced by the defaults
// otherwise. Video geometry is the smaller of both sides where known. The
// call type is never upgraded beyond what either side offers.
func Negotiate(local, proposed Settings) Settings {
	out := proposed

	if !proposed.validAudio() {
		d := DefaultSettings()
		out.SampleRate = d.SampleRate
		out.FrameDurationMs = d.FrameDurationMs
		out.Channels = d.Channels
	}
	if out.AudioBitRate == 0 {
		out.AudioBitRate = local.AudioBitRate
	}

	out.CallType = minCallType(local.CallType, proposed.CallType)
	out.MaxWidth = minKnown(local.MaxWidth, proposed.MaxWidth)
	out.MaxHeight = minKnown(local.MaxHeight, proposed.MaxHeight)
	out.VideoBitRate = uint32(minKnown(uint64(local.VideoBitRate), uint64(proposed.VideoBitRate)))

	if !out.CallType.HasVideo() {
		out.VideoBitRate = 0
	}
	return out
}

func minCallType(a, b CallType) CallType {
	switch {
	case !a.Valid():
		return b
	case !b.Valid():
		return a
	case a < b:
		return a
	}
	return b
}

// minKnown returns the smaller non-zero value, or zero when both are unknown.
func minKnown[T uint16 | uint64](a, b T) T {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	}
	return b
}

func (s Settings) params() channel.MediaParams {
	return channel.MediaParams{
		CallType:        uint8(s.CallType),
		AudioBitRate:    s.AudioBitRate,
		SampleRate:      s.SampleRate,
		FrameDurationMs: s.FrameDurationMs,
		Channels:        s.Channels,
		VideoBitRate:    s.VideoBitRate,
		MaxWidth:        s.MaxWidth,
		MaxHeight:       s.MaxHeight,
	}
}

func settingsFromParams(p channel.MediaParams) Settings {
	return Settings{
		CallType:        CallType(p.CallType),
		AudioBitRate:    p.AudioBitRate,
		SampleRate:      p.SampleRate,
		FrameDurationMs: p.FrameDurationMs,
		Channels:        p.Channels,
		VideoBitRate:    p.VideoBitRate,
		MaxWidth:        p.MaxWidth,
		MaxHeight:       p.MaxHeight,
	}
}
