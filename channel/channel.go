package channel

import (
	"errors"
	"time"

	"github.com/opd-ai/toxpeer/limits"
	"github.com/opd-ai/toxpeer/retry"
)

// PeerID identifies a friend with an established channel.
type PeerID uint32

// Event is one inbound message together with the peer it came from.
type Event struct {
	Peer    PeerID
	Message Message
}

// Channel is a per-peer ordered, reliable, sized-message transport.
//
// Send must be safe for concurrent use because media pumps send from their
// own goroutines. Poll is only called from the tick goroutine.
type Channel interface {
	// Send queues msg for delivery to peer.
	Send(peer PeerID, msg Message) error
	// Poll returns the events received since the last call, blocking for at
	// most wait when none are pending.
	Poll(wait time.Duration) ([]Event, error)
	// Close releases the channel. Pending events are discarded.
	Close() error
}

var (
	// ErrBusy indicates the channel cannot accept a message right now.
	// It is transient and may be retried.
	ErrBusy = retry.Transient(errors.New("channel busy"))

	// ErrPeerOffline indicates there is no established channel to the peer.
	ErrPeerOffline = errors.New("peer offline")

	// ErrMessageTooLarge indicates an encoded message exceeds the channel limit.
	ErrMessageTooLarge = limits.ErrMessageTooLarge

	// ErrClosed indicates the channel has been closed.
	ErrClosed = errors.New("channel closed")
)

// Codec errors.
var (
	// ErrUnknownKind indicates a frame starts with an unknown message kind.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrTruncated indicates a frame ended before all fields were read.
	ErrTruncated = errors.New("truncated message")

	// ErrTrailingData indicates a frame carries bytes after its last field.
	ErrTrailingData = errors.New("trailing data after message")
)
