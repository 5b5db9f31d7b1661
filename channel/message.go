package channel

import "fmt"

// Kind identifies the type of a Message on the wire.
type Kind uint8

const (
	// KindConnectionStatus reports that a peer came online or went away.
	KindConnectionStatus Kind = iota + 1
	// KindFileRequest announces a file the sender wants to transfer.
	KindFileRequest
	// KindFileControl carries resume, pause and cancel signals for a transfer.
	KindFileControl
	// KindFileSeek carries the receiver's resume offset.
	KindFileSeek
	// KindFileChunk carries file content or the end-of-stream marker.
	KindFileChunk
	// KindCallInvite starts ringing on the callee.
	KindCallInvite
	// KindCallAnswer accepts an invite.
	KindCallAnswer
	// KindCallControl carries ringing, reject, cancel and end signals.
	KindCallControl
	// KindCallBitrate changes the bit rates of an active call.
	KindCallBitrate
	// KindAudioFrame carries one encoded audio frame.
	KindAudioFrame
	// KindVideoFrame carries one I420 video frame.
	KindVideoFrame
	// KindPeerTimeout reports that the transport lost track of a call peer.
	KindPeerTimeout
)

var kindNames = map[Kind]string{
	KindConnectionStatus: "connection_status",
	KindFileRequest:      "file_request",
	KindFileControl:      "file_control",
	KindFileSeek:         "file_seek",
	KindFileChunk:        "file_chunk",
	KindCallInvite:       "call_invite",
	KindCallAnswer:       "call_answer",
	KindCallControl:      "call_control",
	KindCallBitrate:      "call_bitrate",
	KindAudioFrame:       "audio_frame",
	KindVideoFrame:       "video_frame",
	KindPeerTimeout:      "peer_timeout",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is implemented by every type that can travel over a Channel.
type Message interface {
	Kind() Kind
}

// ConnectionStatus is produced by the channel itself when a peer's link goes
// up or down. It is never sent by the engines.
type ConnectionStatus struct {
	Connected bool
}

// FileRequest announces an outgoing transfer.
type FileRequest struct {
	Number   uint32
	FileKind uint32
	Size     uint64
	FileID   [32]byte
	Name     string
}

// FileControl changes the state of a transfer. FromSender is true when the
// signal was produced by the side that sends the file content, which tells
// the receiving engine whether Number refers to one of its incoming or
// outgoing transfers.
type FileControl struct {
	Number     uint32
	FromSender bool
	Control    uint8
}

// FileSeek sets the position the receiver wants the transfer to start from.
type FileSeek struct {
	Number   uint32
	Position uint64
}

// FileChunk carries the bytes of a transfer starting at Position. A chunk
// with EOS set and no Data marks the end of the stream.
type FileChunk struct {
	Number   uint32
	Position uint64
	Data     []byte
	EOS      bool
}

// MediaParams describes the media parameters proposed or accepted for a call.
type MediaParams struct {
	CallType        uint8
	AudioBitRate    uint32
	SampleRate      uint32
	FrameDurationMs uint16
	Channels        uint8
	VideoBitRate    uint32
	MaxWidth        uint16
	MaxHeight       uint16
}

// CallInvite asks the peer to start a call.
type CallInvite struct {
	CallID      uint32
	Params      MediaParams
	RingSeconds uint32
}

// CallAnswer accepts an invite with the callee's final parameters.
type CallAnswer struct {
	CallID uint32
	Params MediaParams
}

// CallControl carries a call signal such as ringing or end.
type CallControl struct {
	CallID  uint32
	Control uint8
}

// CallBitrate changes the bit rates of an active call.
type CallBitrate struct {
	CallID       uint32
	AudioBitRate uint32
	VideoBitRate uint32
}

// AudioFrame carries one encoded audio frame.
type AudioFrame struct {
	CallID      uint32
	SampleCount uint16
	Channels    uint8
	SampleRate  uint32
	Data        []byte
}

// VideoFrame carries one frame in planar I420 layout.
type VideoFrame struct {
	CallID uint32
	Width  uint16
	Height uint16
	Data   []byte
}

// PeerTimeout reports that the transport stopped hearing from a call peer.
type PeerTimeout struct {
	CallID uint32
}

func (ConnectionStatus) Kind() Kind { return KindConnectionStatus }
func (FileRequest) Kind() Kind      { return KindFileRequest }
func (FileControl) Kind() Kind      { return KindFileControl }
func (FileSeek) Kind() Kind         { return KindFileSeek }
func (FileChunk) Kind() Kind        { return KindFileChunk }
func (CallInvite) Kind() Kind       { return KindCallInvite }
func (CallAnswer) Kind() Kind       { return KindCallAnswer }
func (CallControl) Kind() Kind      { return KindCallControl }
func (CallBitrate) Kind() Kind      { return KindCallBitrate }
func (AudioFrame) Kind() Kind       { return KindAudioFrame }
func (VideoFrame) Kind() Kind       { return KindVideoFrame }
func (PeerTimeout) Kind() Kind      { return KindPeerTimeout }
