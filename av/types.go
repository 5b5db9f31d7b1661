package av

import (
	"fmt"
	"time"
)

// CallType selects the media of a call.
type CallType uint8

const (
	// CallTypeAudio is an audio-only call.
	CallTypeAudio CallType = iota + 1
	// CallTypeVideo is an audio and video call.
	CallTypeVideo
)

func (t CallType) String() string {
	switch t {
	case CallTypeAudio:
		return "audio"
	case CallTypeVideo:
		return "video"
	}
	return fmt.Sprintf("call_type(%d)", uint8(t))
}

// Valid reports whether t is a known call type.
func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// HasVideo reports whether the call carries video.
func (t CallType) HasVideo() bool {
	return t == CallTypeVideo
}

// State is the signaling state of a call session.
type State uint8

const (
	// StateIdle means no session exists with the peer.
	StateIdle State = iota
	// StateInviting means the local side sent an invite.
	StateInviting
	// StateInvited means the peer's invite is ringing locally.
	StateInvited
	// StateStarting means both sides answered and media is being set up.
	StateStarting
	// StateActive means media pumps are running.
	StateActive
	// StateEnding means the call is being torn down.
	StateEnding
)

var stateNames = [...]string{"idle", "inviting", "invited", "starting", "active", "ending"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Role tells which side placed the call.
type Role uint8

const (
	// RoleCaller placed the call.
	RoleCaller Role = iota
	// RoleCallee received the invite.
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCallee {
		return "callee"
	}
	return "caller"
}

// Call control signals carried in channel.CallControl.
const (
	signalRinging uint8 = iota
	signalReject
	signalCancel
	signalEnd
)

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
