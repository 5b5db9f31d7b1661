package channel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/opd-ai/toxpeer/limits"
)

const mediaParamsSize = 20

// Encode serializes msg into a single frame.
//
// Wire format:
//
//	[KIND(1)][FIELDS...]
//
// Integers are big endian, names carry a uint16 length prefix and payloads a
// uint32 length prefix.
func Encode(msg Message) ([]byte, error) {
	var w writer

	switch m := msg.(type) {
	case ConnectionStatus:
		w.u8(uint8(KindConnectionStatus))
		w.bool(m.Connected)
	case FileRequest:
		if len(m.Name) > math.MaxUint16 {
			return nil, limits.ErrFileNameTooLong
		}
		w.u8(uint8(KindFileRequest))
		w.u32(m.Number)
		w.u32(m.FileKind)
		w.u64(m.Size)
		w.buf = append(w.buf, m.FileID[:]...)
		w.u16(uint16(len(m.Name)))
		w.buf = append(w.buf, m.Name...)
	case FileControl:
		w.u8(uint8(KindFileControl))
		w.u32(m.Number)
		w.bool(m.FromSender)
		w.u8(m.Control)
	case FileSeek:
		w.u8(uint8(KindFileSeek))
		w.u32(m.Number)
		w.u64(m.Position)
	case FileChunk:
		w.u8(uint8(KindFileChunk))
		w.u32(m.Number)
		w.u64(m.Position)
		w.bool(m.EOS)
		w.payload(m.Data)
	case CallInvite:
		w.u8(uint8(KindCallInvite))
		w.u32(m.CallID)
		w.params(m.Params)
		w.u32(m.RingSeconds)
	case CallAnswer:
		w.u8(uint8(KindCallAnswer))
		w.u32(m.CallID)
		w.params(m.Params)
	case CallControl:
		w.u8(uint8(KindCallControl))
		w.u32(m.CallID)
		w.u8(m.Control)
	case CallBitrate:
		w.u8(uint8(KindCallBitrate))
		w.u32(m.CallID)
		w.u32(m.AudioBitRate)
		w.u32(m.VideoBitRate)
	case AudioFrame:
		w.u8(uint8(KindAudioFrame))
		w.u32(m.CallID)
		w.u16(m.SampleCount)
		w.u8(m.Channels)
		w.u32(m.SampleRate)
		w.payload(m.Data)
	case VideoFrame:
		w.u8(uint8(KindVideoFrame))
		w.u32(m.CallID)
		w.u16(m.Width)
		w.u16(m.Height)
		w.payload(m.Data)
	case PeerTimeout:
		w.u8(uint8(KindPeerTimeout))
		w.u32(m.CallID)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}

	if err := limits.ValidateMessageSize(w.buf, limits.MaxMessageSize); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// Decode parses a frame produced by Encode. Payload slices are copied, so
// the caller may reuse data afterwards.
func Decode(data []byte) (Message, error) {
	if err := limits.ValidateMessageSize(data, limits.MaxMessageSize); err != nil {
		return nil, err
	}

	r := reader{buf: data}
	kind := Kind(r.u8())

	var msg Message
	switch kind {
	case KindConnectionStatus:
		msg = ConnectionStatus{Connected: r.bool()}
	case KindFileRequest:
		m := FileRequest{
			Number:   r.u32(),
			FileKind: r.u32(),
			Size:     r.u64(),
		}
		copy(m.FileID[:], r.bytes(len(m.FileID)))
		m.Name = string(r.bytes(int(r.u16())))
		msg = m
	case KindFileControl:
		msg = FileControl{Number: r.u32(), FromSender: r.bool(), Control: r.u8()}
	case KindFileSeek:
		msg = FileSeek{Number: r.u32(), Position: r.u64()}
	case KindFileChunk:
		msg = FileChunk{Number: r.u32(), Position: r.u64(), EOS: r.bool(), Data: r.payload()}
	case KindCallInvite:
		msg = CallInvite{CallID: r.u32(), Params: r.params(), RingSeconds: r.u32()}
	case KindCallAnswer:
		msg = CallAnswer{CallID: r.u32(), Params: r.params()}
	case KindCallControl:
		msg = CallControl{CallID: r.u32(), Control: r.u8()}
	case KindCallBitrate:
		msg = CallBitrate{CallID: r.u32(), AudioBitRate: r.u32(), VideoBitRate: r.u32()}
	case KindAudioFrame:
		msg = AudioFrame{
			CallID:      r.u32(),
			SampleCount: r.u16(),
			Channels:    r.u8(),
			SampleRate:  r.u32(),
			Data:        r.payload(),
		}
	case KindVideoFrame:
		msg = VideoFrame{CallID: r.u32(), Width: r.u16(), Height: r.u16(), Data: r.payload()}
	case KindPeerTimeout:
		msg = PeerTimeout{CallID: r.u32()}
	default:
		if r.short {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}

	if r.short {
		return nil, fmt.Errorf("%w: %s", ErrTruncated, kind)
	}
	if r.off != len(r.buf) {
		return nil, fmt.Errorf("%w: %s has %d extra bytes", ErrTrailingData, kind, len(r.buf)-r.off)
	}
	return msg, nil
}

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) payload(p []byte) {
	w.u32(uint32(len(p)))
	w.buf = append(w.buf, p...)
}

func (w *writer) params(p MediaParams) {
	w.u8(p.CallType)
	w.u32(p.AudioBitRate)
	w.u32(p.SampleRate)
	w.u16(p.FrameDurationMs)
	w.u8(p.Channels)
	w.u32(p.VideoBitRate)
	w.u16(p.MaxWidth)
	w.u16(p.MaxHeight)
}

// reader consumes a frame field by field. Once a read runs past the end it
// sets short and every later read returns zero values.
type reader struct {
	buf   []byte
	off   int
	short bool
}

func (r *reader) bytes(n int) []byte {
	if r.short || n < 0 || len(r.buf)-r.off < n {
		r.short = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) payload() []byte {
	n := r.u32()
	if n == 0 || r.short {
		return nil
	}
	if uint64(n) > uint64(len(r.buf)-r.off) {
		r.short = true
		return nil
	}
	b := r.bytes(int(n))
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) params() MediaParams {
	if len(r.buf)-r.off < mediaParamsSize {
		r.short = true
		return MediaParams{}
	}
	return MediaParams{
		CallType:        r.u8(),
		AudioBitRate:    r.u32(),
		SampleRate:      r.u32(),
		FrameDurationMs: r.u16(),
		Channels:        r.u8(),
		VideoBitRate:    r.u32(),
		MaxWidth:        r.u16(),
		MaxHeight:       r.u16(),
	}
}
