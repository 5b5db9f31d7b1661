package file

import "fmt"

// EventKind identifies an event reported by the Manager.
type EventKind uint8

const (
	// EventRecv reports a new incoming transfer in StateAnnounced. The
	// handler may Seek and must eventually resume or cancel it.
	EventRecv EventKind = iota
	// EventRecvControl reports a control signal received from the peer.
	EventRecvControl
	// EventChunkRequest asks the application for Length bytes at Position of
	// an outgoing file. Length zero is the end-of-data probe and must not be
	// answered.
	EventChunkRequest
	// EventRecvChunk delivers Data at Position of an incoming file. Nil Data
	// marks the end of the stream.
	EventRecvChunk
	// EventDone reports the terminal outcome of a transfer exactly once. Err
	// is nil when the transfer finished.
	EventDone
)

var eventNames = [...]string{"recv", "recv_control", "chunk_request", "recv_chunk", "done"}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event carries the details of a file transfer event. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind EventKind
	Key  Key

	// EventRecv
	FileKind uint32
	FileID   [32]byte
	FileName string
	FileSize uint64

	// EventRecvControl
	Control Control

	// EventChunkRequest and EventRecvChunk
	Position uint64
	Length   int
	Data     []byte

	// EventDone
	Err error
}

// Handler receives file transfer events.
type Handler func(Event)
