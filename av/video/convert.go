package video

import "fmt"

func clamp(v int) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return byte(v)
}

// chromaIndex maps a luma coordinate to its chroma sample, clamped to the
// subsampled plane for odd dimensions.
func chromaIndex(p, planeSize int) int {
	c := p / 2
	if c >= planeSize {
		c = planeSize - 1
	}
	return c
}

// I420ToRGB converts an I420 payload to packed RGB888. dst is reused when it
// has enough capacity.
func I420ToRGB(width, height int, src, dst []byte) ([]byte, error) {
	if err := ValidateI420(width, height, src); err != nil {
		return nil, err
	}

	size := RGBSize(width, height)
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]

	cw, ch := width/2, height/2
	yPlane := src[:width*height]
	uPlane := src[width*height : width*height+cw*ch]
	vPlane := src[width*height+cw*ch:]

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u, v := 128, 128
			if cw > 0 && ch > 0 {
				ci := chromaIndex(y, ch)*cw + chromaIndex(x, cw)
				u, v = int(uPlane[ci]), int(vPlane[ci])
			}

			r := (351 * (v - 128)) / 256
			g := -(179*(v-128))/256 - (86*(u-128))/256
			b := (444 * (u - 128)) / 256

			luma := int(yPlane[y*width+x])
			o := (y*width + x) * 3
			dst[o] = clamp(luma + r)
			dst[o+1] = clamp(luma + g)
			dst[o+2] = clamp(luma + b)
		}
	}
	return dst, nil
}

// RGBToI420 converts a packed RGB888 frame to an I420 payload. Chroma is
// sampled from the top-left pixel of each 2x2 block. dst is reused when it
// has enough capacity.
func RGBToI420(f *Frame, dst []byte) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	width, height := int(f.Width), int(f.Height)
	size := I420Size(width, height)
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]

	cw, ch := width/2, height/2
	yPlane := dst[:width*height]
	uPlane := dst[width*height : width*height+cw*ch]
	vPlane := dst[width*height+cw*ch:]

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := (y*width + x) * 3
			r, g, b := int(f.RGB[o]), int(f.RGB[o+1]), int(f.RGB[o+2])
			yPlane[y*width+x] = clamp(((66*r + 129*g + 25*b) >> 8) + 16)

			if x%2 == 0 && y%2 == 0 && x/2 < cw && y/2 < ch {
				ci := (y/2)*cw + x/2
				uPlane[ci] = clamp(((-38*r - 74*g + 112*b) >> 8) + 128)
				vPlane[ci] = clamp(((112*r - 94*g - 18*b) >> 8) + 128)
			}
		}
	}
	return dst, nil
}

// String describes the frame geometry.
func (f *Frame) String() string {
	if f == nil {
		return "<nil frame>"
	}
	return fmt.Sprintf("%dx%d rgb (%d bytes)", f.Width, f.Height, len(f.RGB))
}
