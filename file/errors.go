package file

import (
	"errors"

	"github.com/opd-ai/toxpeer/limits"
)

// Sentinel errors for file transfer operations.
// These errors enable reliable error classification using errors.Is().

// Send errors.
var (
	// ErrPeerNotConnected indicates the peer has no established channel.
	ErrPeerNotConnected = errors.New("peer not connected")

	// ErrFileNameTooLong indicates that a file name exceeds the maximum allowed length.
	ErrFileNameTooLong = limits.ErrFileNameTooLong

	// ErrTooManyTransfers indicates every transfer number for the peer is in use.
	ErrTooManyTransfers = errors.New("too many transfers for peer")
)

// Session lookup and state errors.
var (
	// ErrTransferNotFound indicates no live transfer has the given number.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrDuplicateTransfer indicates a peer announced a number that is already live.
	ErrDuplicateTransfer = errors.New("duplicate transfer number")

	// ErrInvalidState indicates the operation is not allowed in the transfer's state.
	ErrInvalidState = errors.New("invalid transfer state")

	// ErrWrongDirection indicates the operation only applies to the other direction.
	ErrWrongDirection = errors.New("operation not valid for transfer direction")
)

// Chunk errors.
var (
	// ErrSeekOutOfRange indicates a seek past the end of the file.
	ErrSeekOutOfRange = errors.New("seek position out of range")

	// ErrInvalidPosition indicates a chunk does not match any expected position.
	ErrInvalidPosition = errors.New("invalid chunk position")

	// ErrInvalidLength indicates a chunk does not have the requested length.
	ErrInvalidLength = errors.New("invalid chunk length")

	// ErrChunkTooLarge indicates that a chunk exceeds the maximum allowed size.
	ErrChunkTooLarge = limits.ErrChunkTooLarge
)

// Terminal outcomes reported through EventDone.
var (
	// ErrCanceled indicates the transfer was canceled by either side.
	ErrCanceled = errors.New("transfer canceled")

	// ErrIntegrity indicates the receiver did not get every byte before end of stream.
	ErrIntegrity = errors.New("transfer integrity check failed")

	// ErrPeerDisconnected indicates the peer's channel closed mid-transfer.
	ErrPeerDisconnected = errors.New("peer disconnected")

	// ErrTransferStalled indicates that a transfer has not received data within the timeout period.
	ErrTransferStalled = errors.New("transfer stalled: no data received within timeout period")
)
