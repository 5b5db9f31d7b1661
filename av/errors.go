package av

import (
	"errors"

	"github.com/opd-ai/toxpeer/av/video"
)

// Sentinel errors for av package operations.
// These errors enable reliable error classification using errors.Is().

// Call initiation errors.
var (
	// ErrPeerNotConnected indicates the peer is not online.
	ErrPeerNotConnected = errors.New("peer not connected")

	// ErrCallAlreadyActive indicates a call already exists with this peer.
	ErrCallAlreadyActive = errors.New("call already active with this peer")

	// ErrInvalidCallType indicates a call type other than audio or video.
	ErrInvalidCallType = errors.New("invalid call type")

	// ErrInvalidSettings indicates media parameters the engine cannot use.
	ErrInvalidSettings = errors.New("invalid call settings")
)

// Answer errors.
var (
	// ErrNoIncomingCall indicates no pending call from this peer.
	ErrNoIncomingCall = errors.New("no incoming call from this peer")

	// ErrDeviceUnavailable indicates a capture or playback device could not be opened.
	ErrDeviceUnavailable = errors.New("media device unavailable")
)

// Call control errors.
var (
	// ErrNoActiveCall indicates no call exists with this peer.
	ErrNoActiveCall = errors.New("no active call with this peer")

	// ErrInvalidTransition indicates an invalid state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownCall indicates a message for a call ID that does not match the session.
	ErrUnknownCall = errors.New("unknown call id")
)

// Media errors.
var (
	// ErrMalformedFrame indicates a video frame whose payload does not match its geometry.
	ErrMalformedFrame = video.ErrMalformedFrame

	// ErrMalformedAudio indicates an audio frame that does not decode to its
	// announced sample count.
	ErrMalformedAudio = errors.New("malformed audio frame")
)
