// Package video converts frames between the packed RGB888 layout used by
// capture and display devices and the planar I420 layout carried on the wire.
//
// An I420 frame of width w and height h holds a full resolution Y plane
// followed by U and V planes subsampled by two in both directions:
//
//	[Y: w*h][U: (w/2)*(h/2)][V: (w/2)*(h/2)]
//
// Any other payload length is rejected with ErrMalformedFrame before the
// frame is converted. Conversions use the integer BT.601 approximations
// that other Tox clients use, so frames round-trip with small rounding
// differences only.
package video
