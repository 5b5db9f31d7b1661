// Package toxpeer implements the messaging core of a peer-to-peer node:
// resumable file transfers and audio/video call sessions running over a
// single peer channel.
//
// # Getting Started
//
// Create a node on a channel and drive it with Run, or call Iterate from
// your own loop:
//
//	ch, err := channel.DialWS(ctx, "ws://peer.example:8080/peer", 2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	node, err := toxpeer.New(ch, toxpeer.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Kill()
//
//	node.Files().On(file.EventRecv, func(ev file.Event) {
//	    _ = node.Files().Control(ev.Key.Peer, ev.Key.Number, file.ControlResume)
//	})
//
//	if err := node.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
//
// # Core Types
//
//   - [Node]: owns the channel and both engines and runs the tick
//   - [Options]: tuning of the tick, the transfer engine and the call engine
//
// # Tick
//
// Each tick polls the channel for up to PollWait, routes every inbound event
// to the engine owning its kind, then ticks the file engine (stall detection
// and chunk requests) and the call engine (ring and peer timeouts). Event
// handlers run on the goroutine calling Iterate and may call back into the
// engines. Media pumps run on their own goroutines while calls are active.
//
// # Sub-Packages
//
//   - channel: the peer channel abstraction, its wire codec and the loopback
//     and websocket implementations
//   - file: the chunked, resumable file transfer engine
//   - av: call signaling and media pumps, with av/audio and av/video helpers
//   - dispatch: per-kind handler tables used by both engines
//   - retry: the bounded retry policy for control messages
//   - limits: shared size limits
package toxpeer
