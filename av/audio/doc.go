// Package audio provides the PCM helpers and the optional inbound decoder used
// by the call engine.
//
// Audio travels between devices as interleaved signed 16-bit little-endian
// PCM. OpusDecoder turns received Opus packets into that layout using the
// pure Go pion/opus decoder; Tone produces a synthetic capture signal.
package audio
