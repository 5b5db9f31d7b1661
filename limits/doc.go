// Package limits provides centralized size constants and validation functions
// shared by the file transfer and call engines. Every value received from a
// peer is checked against these limits before it is allowed to shape session
// state.
//
// # Size Hierarchy
//
//   - MaxFileNameLength (255 bytes): longest file name accepted in a transfer
//     announcement. Fits the uint16 length prefix used on the wire.
//
//   - MaxChunkPayload (1371 bytes): the largest file chunk carried by one
//     channel message. This matches the Tox file data limit so chunk requests
//     line up with what a Tox-compatible peer expects.
//
//   - MaxMessageSize (1MB): the absolute maximum for any encoded channel
//     message. Raw video frames are the largest messages the core produces.
//
//   - MaxTransfersPerPeer (256): transfer numbers available per peer and
//     direction.
//
// # Validation Functions
//
//	if err := limits.ValidateFileName(name); err != nil {
//	    // errors.Is(err, limits.ErrFileNameTooLong)
//	}
//
//	if err := limits.ValidateMessageSize(frame, limits.MaxMessageSize); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
package limits
