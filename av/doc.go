// Package av implements call sessions between peers: signaling over a
// channel.Channel and the media pumps that move audio and video frames while
// a call is active.
//
// # Signaling
//
// A caller invites a peer with Call. The callee's Manager negotiates the
// proposed settings, answers with a ringing signal and reports EventInvite.
// The application then calls Answer, Reject or lets the invite time out.
//
//	calls := av.NewManager(ch, cfg)
//	calls.On(av.EventInvite, func(ev av.Event) {
//	    _ = calls.Answer(ev.Peer, ev.ProposedType)
//	})
//	calls.On(av.EventStart, func(ev av.Event) {
//	    log.Printf("call %d with %d started", ev.CallID, ev.Peer)
//	})
//
// Every session ends with exactly one terminal event: EventEnd, EventCancel,
// EventReject, EventRequestTimeout or EventPeerTimeout. Resources are
// released the same way for all of them and the peer returns to idle.
//
// # Media
//
// When a call becomes active the Manager opens an AudioDevice, plus a
// VideoDevice for video calls, from the configured DeviceProvider and starts
// one pump goroutine per medium. A pump captures a frame, sends it and
// sleeps PumpInterval until the call ends. Media frames are never retried; a
// busy channel drops them.
//
// Inbound audio is decoded by the optional AudioDecoder (see
// audio.OpusDecoder) and inbound video is converted from I420 to RGB before
// EventAudioData and EventVideoData are raised.
//
// # Timeouts
//
// Tick must be called periodically. It ends unanswered calls past their ring
// deadline and active calls that have not heard from the peer within
// PeerTimeout.
package av
