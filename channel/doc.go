// Package channel defines the boundary between the session engines and the
// transport that carries their messages to a friend.
//
// The engines never route, encrypt or retransmit anything themselves. They
// hand typed messages to a Channel and drain inbound Events from it once per
// tick. Two implementations ship with the package:
//
//   - Network and Endpoint, an in-memory loopback used by tests and examples.
//     Messages are encoded and decoded on the way through so that both sides
//     exercise the wire codec.
//   - WSChannel, a channel to a single remote peer carried as binary frames
//     over a gorilla/websocket connection.
//
// # Wire format
//
// Every message is encoded as a one byte kind followed by its fields in
// network byte order. File names are prefixed with a uint16 length and
// payloads with a uint32 length. Encoded messages never exceed
// limits.MaxMessageSize.
//
// # Errors
//
// Send reports ErrBusy when the channel cannot accept the message right now.
// ErrBusy is marked with retry.Transient, so callers that use retry.Do will
// retry it while ErrPeerOffline and ErrMessageTooLarge are returned at once.
package channel
