package av

import (
	"fmt"

	"github.com/opd-ai/toxpeer/av/video"
	"github.com/opd-ai/toxpeer/channel"
)

// EventKind identifies an event reported by the Manager.
type EventKind uint8

const (
	// EventInvite reports an incoming call. The handler answers, rejects or
	// lets it time out.
	EventInvite EventKind = iota
	// EventRinging reports that the callee is ringing.
	EventRinging
	// EventStart reports that media is flowing.
	EventStart
	// EventReject ends a call the callee rejected.
	EventReject
	// EventCancel ends a call canceled before it started.
	EventCancel
	// EventEnd ends an active call.
	EventEnd
	// EventRequestTimeout ends a call that was not answered in time.
	EventRequestTimeout
	// EventPeerTimeout ends a call whose peer went silent or offline.
	EventPeerTimeout
	// EventMediaChange reports new bit rates requested by the peer.
	EventMediaChange
	// EventAudioData delivers one frame of decoded PCM.
	EventAudioData
	// EventVideoData delivers one frame converted to RGB.
	EventVideoData
)

var eventNames = [...]string{
	"invite", "ringing", "start", "reject", "cancel", "end",
	"request_timeout", "peer_timeout", "media_change", "audio_data", "video_data",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Terminal reports whether the event ends the call session.
func (k EventKind) Terminal() bool {
	switch k {
	case EventReject, EventCancel, EventEnd, EventRequestTimeout, EventPeerTimeout:
		return true
	}
	return false
}

// Event carries the details of a call event. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind   EventKind
	Peer   channel.PeerID
	CallID uint32

	// EventInvite
	ProposedType CallType

	// EventInvite and EventStart
	Settings Settings

	// EventMediaChange
	AudioBitRate uint32
	VideoBitRate uint32

	// EventAudioData. PCM is only valid until the handler returns.
	PCM         []byte
	SampleCount int
	Channels    int
	SampleRate  int

	// EventVideoData. Frame is a copy the handler may keep.
	Frame *video.Frame
}

// Handler receives call events.
type Handler func(Event)
