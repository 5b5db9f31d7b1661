package av

import "github.com/opd-ai/toxpeer/av/video"

// AudioDevice captures and plays PCM audio in signed 16-bit little-endian
// interleaved layout. Capture and Playback may be called concurrently.
type AudioDevice interface {
	// Capture fills pcm with exactly one frame of audio.
	Capture(pcm []byte) error
	// Playback plays one frame received from the peer.
	Playback(pcm []byte) error
	Close() error
}

// VideoDevice captures and displays packed RGB888 frames. Capture and
// Display may be called concurrently.
type VideoDevice interface {
	// Capture returns the next frame. The frame is only read until the next
	// call to Capture.
	Capture() (*video.Frame, error)
	// Display shows a frame received from the peer. The frame's buffer is
	// reused after Display returns.
	Display(f *video.Frame) error
	Close() error
}

// DeviceProvider opens the devices for a call with the negotiated settings.
type DeviceProvider interface {
	OpenAudio(s Settings) (AudioDevice, error)
	OpenVideo(s Settings) (VideoDevice, error)
}

// AudioDecoder converts an inbound audio payload to PCM.
// *audio.OpusDecoder satisfies it.
type AudioDecoder interface {
	Decode(packet []byte, sampleCount, channels int) ([]byte, error)
}

// AudioEncoder turns one captured PCM frame into the payload sent to the
// peer. The returned slice may be reused by the next call.
type AudioEncoder interface {
	Encode(pcm []byte, sampleCount, channels int) ([]byte, error)
}
