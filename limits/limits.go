// Package limits provides centralized size limits for the toxpeer engines.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxFileNameLength is the maximum allowed file name length in bytes.
	// The value (255) matches typical filesystem limits and fits in a uint16.
	MaxFileNameLength = 255

	// MaxChunkPayload is the largest chunk of file data sent in one message.
	// This matches the Tox MAX_FILE_DATA_SIZE so chunk positions stay
	// compatible with other clients.
	MaxChunkPayload = 1371

	// MaxMessageSize is the absolute maximum for any encoded channel message.
	// This prevents memory exhaustion (1MB limit) and bounds raw video frames.
	MaxMessageSize = 1024 * 1024

	// MaxTransfersPerPeer is the number of transfer numbers available per peer
	// and direction.
	MaxTransfersPerPeer = 256
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrFileNameTooLong indicates a file name exceeds MaxFileNameLength
	ErrFileNameTooLong = errors.New("file name too long")

	// ErrChunkTooLarge indicates a chunk exceeds MaxChunkPayload
	ErrChunkTooLarge = errors.New("chunk size exceeds maximum allowed")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateFileName checks a transfer file name against MaxFileNameLength.
// Empty names are allowed; Tox streams and avatars are often unnamed.
func ValidateFileName(name string) error {
	if len(name) > MaxFileNameLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrFileNameTooLong, len(name), MaxFileNameLength)
	}
	return nil
}

// ValidateChunk checks a chunk payload against MaxChunkPayload.
func ValidateChunk(data []byte) error {
	if len(data) > MaxChunkPayload {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrChunkTooLarge, len(data), MaxChunkPayload)
	}
	return nil
}
