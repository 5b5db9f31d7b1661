package audio

import (
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// ErrEmptyPacket indicates an audio frame without payload.
var ErrEmptyPacket = errors.New("empty audio packet")

// opusFrameBytes is the S16LE output pion/opus writes for every packet: one
// 20ms mono frame at 48kHz.
const opusFrameBytes = 960 * 2

// OpusDecoder decodes Opus packets to interleaved PCM.
//
// It is used from the tick goroutine only and is not safe for concurrent use.
type OpusDecoder struct {
	decoder *opus.Decoder
}

// NewOpusDecoder creates a decoder backed by pion/opus.
func NewOpusDecoder() *OpusDecoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewOpusDecoder",
	}).Info("Creating new Opus decoder")

	decoder := opus.NewDecoder()
	return &OpusDecoder{decoder: &decoder}
}

// Decode decodes one packet carrying sampleCount samples per channel.
// The result holds exactly sampleCount*channels samples.
func (d *OpusDecoder) Decode(packet []byte, sampleCount, channels int) ([]byte, error) {
	if len(packet) == 0 {
		return nil, ErrEmptyPacket
	}
	if sampleCount <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid frame shape %d samples x %d channels", sampleCount, channels)
	}

	size := FrameBytes(sampleCount, channels)
	buf := make([]byte, max(size, opusFrameBytes))
	bandwidth, isStereo, err := d.decoder.Decode(packet, buf)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}
	out := buf[:size]

	logrus.WithFields(logrus.Fields{
		"function":  "OpusDecoder.Decode",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
		"size":      len(out),
	}).Debug("Decoded Opus packet")

	return out, nil
}
