package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizes(t *testing.T) {
	assert.Equal(t, 640*480*3, RGBSize(640, 480))
	assert.Equal(t, 640*480+2*(320*240), I420Size(640, 480))
	assert.Equal(t, 3*3+2*(1*1), I420Size(3, 3))
}

func TestValidateI420(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		length int
		ok     bool
	}{
		{"exact", 4, 2, 4*2 + 2*2, true},
		{"short", 4, 2, 4*2 + 2*2 - 1, false},
		{"long", 4, 2, 4*2 + 2*2 + 1, false},
		{"zero width", 0, 2, 0, false},
		{"odd", 3, 3, 11, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateI420(tt.w, tt.h, make([]byte, tt.length))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformedFrame)
			}
		})
	}
}

func TestI420ToRGBProducesPackedFrame(t *testing.T) {
	w, h := 6, 4
	src := make([]byte, I420Size(w, h))
	for i := 0; i < w*h; i++ {
		src[i] = 128
	}
	for i := w * h; i < len(src); i++ {
		src[i] = 128
	}

	rgb, err := I420ToRGB(w, h, src, nil)
	require.NoError(t, err)
	require.Len(t, rgb, w*h*3)
	for _, b := range rgb {
		assert.Equal(t, byte(128), b)
	}

	_, err = I420ToRGB(w, h, src[:len(src)-1], nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestRoundTripKeepsColorsClose(t *testing.T) {
	f := Pattern(16, 8, 0)
	require.NoError(t, f.Validate())

	i420, err := RGBToI420(f, nil)
	require.NoError(t, err)
	require.Len(t, i420, I420Size(16, 8))

	rgb, err := I420ToRGB(16, 8, i420, make([]byte, 0, RGBSize(16, 8)))
	require.NoError(t, err)
	require.Len(t, rgb, len(f.RGB))

	for i := range rgb {
		diff := int(rgb[i]) - int(f.RGB[i])
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, 40, "channel %d", i)
	}
}

func TestRGBToI420RejectsShortFrames(t *testing.T) {
	_, err := RGBToI420(&Frame{Width: 2, Height: 2, RGB: make([]byte, 5)}, nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = RGBToI420(nil, nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestOddGeometry(t *testing.T) {
	f := Pattern(3, 1, 1)
	i420, err := RGBToI420(f, nil)
	require.NoError(t, err)
	assert.Len(t, i420, 3)

	rgb, err := I420ToRGB(3, 1, i420, nil)
	require.NoError(t, err)
	assert.Len(t, rgb, 9)
}
