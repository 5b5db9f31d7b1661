// Package file implements the resumable, chunked file transfer engine of a
// toxpeer node.
//
// # Overview
//
// A Manager runs every transfer of a node over one channel.Channel. Each
// transfer is identified by the peer and a small transfer number. Outgoing
// transfers use the numbers 0 to limits.MaxTransfersPerPeer-1 that also
// travel on the wire. Incoming transfers are addressed locally as
// (n+1)<<16, where n is the number chosen by the sender, so a single number
// always names one transfer and one direction.
//
// # Protocol
//
// The sender announces a file with SendFile. The receiver learns about it
// through EventRecv and may pick a start offset with Seek before it resumes
// the transfer:
//
//	files.On(file.EventRecv, func(ev file.Event) {
//	    _ = files.Seek(ev.Key.Peer, ev.Key.Number, alreadyHave)
//	    _ = files.Control(ev.Key.Peer, ev.Key.Number, file.ControlResume)
//	})
//
// Once resumed, the sender's Tick emits EventChunkRequest for each chunk the
// window allows. The application answers with SendChunk using exactly the
// requested position and length:
//
//	files.On(file.EventChunkRequest, func(ev file.Event) {
//	    if ev.Length == 0 {
//	        return // end-of-data probe
//	    }
//	    buf := make([]byte, ev.Length)
//	    _, _ = src.ReadAt(buf, int64(ev.Position))
//	    _ = files.SendChunk(ev.Key.Peer, ev.Key.Number, ev.Position, buf)
//	})
//
// When every byte has been sent the engine emits one zero-length probe and
// sends the end-of-stream marker. The receiver delivers it as EventRecvChunk
// with nil Data, checks that every byte after the offset arrived and answers
// with a cancel control. That cancel is the closing handshake: the sender
// reports it as a successful EventDone.
//
// # Transfer States
//
//	StateAnnounced -> StateResuming -> StateActive <-> StatePaused
//	                                       |
//	                          StateFinished | StateCanceled
//
// StateResuming is only used by receivers that called Seek. Every transfer
// reports EventDone exactly once and is released right after that event, so
// later operations on its number fail with ErrTransferNotFound.
//
// # Failures
//
// Peer-triggered protocol violations are returned from HandleEvent and
// logged; they never affect other transfers. Losing the peer connection ends
// its transfers with ErrPeerDisconnected, inactivity ends them with
// ErrTransferStalled, and a byte count mismatch at end of stream ends the
// transfer with ErrIntegrity.
//
// Building with -tags toxdebug turns internal invariant violations into
// panics.
package file
