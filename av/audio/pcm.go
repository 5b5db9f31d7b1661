package audio

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the size of one interleaved PCM sample.
const BytesPerSample = 2

// FrameBytes returns the size in bytes of one PCM frame.
func FrameBytes(sampleCount, channels int) int {
	return sampleCount * channels * BytesPerSample
}

// Samples converts little-endian PCM bytes to samples.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Peak returns the largest absolute sample value in pcm.
func Peak(pcm []byte) int {
	peak := 0
	for _, s := range Samples(pcm) {
		v := int(s)
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	return peak
}

// Tone generates a sine wave as a synthetic capture source.
type Tone struct {
	Frequency  float64
	SampleRate int
	Channels   int
	Amplitude  float64

	phase float64
}

// NewTone creates a tone at half amplitude.
func NewTone(frequency float64, sampleRate, channels int) *Tone {
	return &Tone{
		Frequency:  frequency,
		SampleRate: sampleRate,
		Channels:   channels,
		Amplitude:  0.5,
	}
}

// Fill writes len(buf)/(2*Channels) frames of the tone into buf and keeps
// the phase continuous across calls.
func (t *Tone) Fill(buf []byte) {
	channels := t.Channels
	if channels < 1 {
		channels = 1
	}
	step := 2 * math.Pi * t.Frequency / float64(t.SampleRate)
	frames := len(buf) / (BytesPerSample * channels)
	for i := 0; i < frames; i++ {
		s := int16(t.Amplitude * math.MaxInt16 * math.Sin(t.phase))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(buf[(i*channels+c)*BytesPerSample:], uint16(s))
		}
		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
}
