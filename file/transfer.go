package file

import (
	"fmt"
	"time"

	"github.com/opd-ai/toxpeer/channel"
	"github.com/opd-ai/toxpeer/limits"
)

// Direction indicates whether a transfer is incoming or outgoing.
type Direction uint8

const (
	// DirectionIncoming represents a file being received.
	DirectionIncoming Direction = iota
	// DirectionOutgoing represents a file being sent.
	DirectionOutgoing
)

func (d Direction) String() string {
	if d == DirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// State represents the current state of a file transfer.
type State uint8

const (
	// StateAnnounced is entered when a request is sent or received.
	StateAnnounced State = iota
	// StateResuming is entered by the receiver after it picks a start offset.
	StateResuming
	// StateActive indicates chunks are flowing.
	StateActive
	// StatePaused indicates either side paused an active transfer.
	StatePaused
	// StateFinished indicates every byte arrived and the stream ended.
	StateFinished
	// StateCanceled indicates the transfer was canceled or failed.
	StateCanceled
)

var stateNames = [...]string{"announced", "resuming", "active", "paused", "finished", "canceled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateCanceled
}

// Control is a transfer control signal.
type Control uint8

const (
	// ControlResume starts or resumes a transfer.
	ControlResume Control = iota
	// ControlPause pauses an active transfer.
	ControlPause
	// ControlCancel cancels a transfer. The receiver also sends it after end
	// of stream to release the sender.
	ControlCancel
)

var controlNames = [...]string{"resume", "pause", "cancel"}

func (c Control) String() string {
	if int(c) < len(controlNames) {
		return controlNames[c]
	}
	return fmt.Sprintf("control(%d)", uint8(c))
}

// File kinds carried in a request. The engine does not interpret them.
const (
	KindData   uint32 = 0
	KindAvatar uint32 = 1
)

// incomingShift separates incoming transfer handles from outgoing ones. An
// incoming transfer announced with wire number n is addressed locally as
// (n+1) << incomingShift.
const incomingShift = 16

func incomingNumber(wire uint32) uint32 { return (wire + 1) << incomingShift }

func wireNumber(number uint32) uint32 {
	if number >= 1<<incomingShift {
		return number>>incomingShift - 1
	}
	return number
}

// DirectionOf reports the direction a local transfer number belongs to.
func DirectionOf(number uint32) Direction {
	if number >= 1<<incomingShift {
		return DirectionIncoming
	}
	return DirectionOutgoing
}

// Key identifies a live transfer. Number is the local handle returned by
// SendFile or carried in EventRecv.
type Key struct {
	Peer   channel.PeerID
	Number uint32
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

type chunkRequest struct {
	position uint64
	length   int
}

// Transfer is the state of one file transfer session. Values returned by the
// Manager are snapshots and are not updated afterwards.
type Transfer struct {
	Peer      channel.PeerID
	Number    uint32
	Direction Direction
	Kind      uint32
	FileID    [32]byte
	FileName  string
	FileSize  uint64
	State     State

	// Offset is the resume position chosen by the receiver.
	Offset uint64
	// Position is the end of the highest chunk seen or sent.
	Position uint64
	// Received counts unique bytes received.
	Received uint64
	// Sent counts bytes sent.
	Sent uint64

	StartTime    time.Time
	LastActivity time.Time

	speed       float64
	seen        *coverage
	outstanding []chunkRequest
	inflight    int
	next        uint64
	probed      bool
	eosSent     bool
	done        bool
}

func newTransfer(peer channel.PeerID, number uint32, dir Direction, kind uint32, size uint64, id [32]byte, name string, now time.Time) *Transfer {
	t := &Transfer{
		Peer:         peer,
		Number:       number,
		Direction:    dir,
		Kind:         kind,
		FileID:       id,
		FileName:     name,
		FileSize:     size,
		State:        StateAnnounced,
		StartTime:    now,
		LastActivity: now,
	}
	if dir == DirectionIncoming {
		t.seen = &coverage{}
	}
	return t
}

func (t *Transfer) key() Key {
	return Key{Peer: t.Peer, Number: t.Number}
}

// Progress returns the completed fraction of the bytes expected after Offset,
// between 0 and 1.
func (t Transfer) Progress() float64 {
	if t.FileSize <= t.Offset {
		if t.State == StateFinished {
			return 1
		}
		return 0
	}
	done := t.Sent
	if t.Direction == DirectionIncoming {
		done = t.Received
	}
	return float64(done) / float64(t.FileSize-t.Offset)
}

// Speed returns the smoothed transfer rate in bytes per second.
func (t Transfer) Speed() float64 {
	return t.speed
}

func (t *Transfer) snapshot() Transfer {
	s := *t
	s.seen = nil
	s.outstanding = nil
	return s
}

// remaining is the number of bytes from next to the end of the file.
func (t *Transfer) remaining() uint64 {
	if t.next >= t.FileSize {
		return 0
	}
	return t.FileSize - t.next
}

// nextRequest reserves the next chunk request, clamped to the remaining bytes.
func (t *Transfer) nextRequest(chunkSize int) (chunkRequest, bool) {
	left := t.remaining()
	if left == 0 {
		return chunkRequest{}, false
	}
	length := uint64(chunkSize)
	if left < length {
		length = left
	}
	req := chunkRequest{position: t.next, length: int(length)}
	t.next += length
	t.outstanding = append(t.outstanding, req)
	return req, true
}

func (t *Transfer) isOutstanding(position uint64) bool {
	for _, r := range t.outstanding {
		if r.position == position {
			return true
		}
	}
	return false
}

// match finds the outstanding request at position and checks the payload
// length against it.
func (t *Transfer) match(position uint64, length int) (int, error) {
	for i, r := range t.outstanding {
		if r.position != position {
			continue
		}
		if r.length != length {
			return -1, fmt.Errorf("%w: want %d bytes at %d, got %d", ErrInvalidLength, r.length, position, length)
		}
		return i, nil
	}
	return -1, fmt.Errorf("%w: no request outstanding at %d", ErrInvalidPosition, position)
}

func (t *Transfer) dropRequest(i int) {
	t.outstanding = append(t.outstanding[:i], t.outstanding[i+1:]...)
}

// accept records a received chunk and reports whether it covered any byte
// not received before. Received only grows by newly covered bytes.
func (t *Transfer) accept(position uint64, data []byte) (bool, error) {
	end := position + uint64(len(data))
	if position < t.Offset || end > t.FileSize || end < position {
		return false, fmt.Errorf("%w: chunk [%d,%d) outside [%d,%d)", ErrInvalidPosition, position, end, t.Offset, t.FileSize)
	}
	if err := limits.ValidateChunk(data); err != nil {
		return false, err
	}
	if end > t.Position {
		t.Position = end
	}
	fresh := t.seen.add(position, end)
	t.Received += fresh
	return fresh > 0, nil
}

func (t *Transfer) touch(now time.Time, n int) {
	if n > 0 {
		if elapsed := now.Sub(t.LastActivity).Seconds(); elapsed > 0 {
			instant := float64(n) / elapsed
			if t.speed == 0 {
				t.speed = instant
			} else {
				t.speed = 0.7*t.speed + 0.3*instant
			}
		}
	}
	t.LastActivity = now
}
