package video

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame indicates a frame whose payload does not match its geometry.
var ErrMalformedFrame = errors.New("malformed video frame")

// Frame is a packed RGB888 image.
type Frame struct {
	Width  uint16
	Height uint16
	RGB    []byte
}

// RGBSize returns the length of a packed RGB888 frame.
func RGBSize(width, height int) int {
	return width * height * 3
}

// I420Size returns the length of a planar I420 frame.
func I420Size(width, height int) int {
	return width*height + 2*((width/2)*(height/2))
}

// ValidateI420 checks the geometry and payload length of an I420 frame.
func ValidateI420(width, height int, data []byte) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid geometry %dx%d", ErrMalformedFrame, width, height)
	}
	if want := I420Size(width, height); len(data) != want {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d", ErrMalformedFrame, width, height, want, len(data))
	}
	return nil
}

// Validate checks the frame's payload against its geometry.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	if f.Width == 0 || f.Height == 0 {
		return fmt.Errorf("%w: invalid geometry %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	if want := RGBSize(int(f.Width), int(f.Height)); len(f.RGB) != want {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d", ErrMalformedFrame, f.Width, f.Height, want, len(f.RGB))
	}
	return nil
}

// Pattern fills a frame with vertical color bars shifted by seq, for use as a
// synthetic capture source.
func Pattern(width, height uint16, seq int) *Frame {
	bars := [...][3]byte{
		{235, 235, 235}, {235, 235, 16}, {16, 235, 235}, {16, 235, 16},
		{235, 16, 235}, {235, 16, 16}, {16, 16, 235}, {16, 16, 16},
	}
	w, h := int(width), int(height)
	f := &Frame{Width: width, Height: height, RGB: make([]byte, RGBSize(w, h))}
	barWidth := w / len(bars)
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := bars[((x+seq)/barWidth)%len(bars)]
			copy(f.RGB[(y*w+x)*3:], c[:])
		}
	}
	return f
}
