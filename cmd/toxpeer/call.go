package main

import (
	"time"

	"github.com/opd-ai/toxpeer"
	"github.com/opd-ai/toxpeer/av"
	"github.com/opd-ai/toxpeer/channel"
	"github.com/sirupsen/logrus"
)

// callDriver answers invites when asked to and hangs up placed calls after
// the configured duration.
type callDriver struct {
	node     *toxpeer.Node
	answer   bool
	video    bool
	duration time.Duration
	ended    chan av.EventKind
}

func newCallDriver(node *toxpeer.Node, cfg Config) *callDriver {
	d := &callDriver{
		node:     node,
		answer:   cfg.Answer,
		video:    cfg.CallVideo,
		duration: cfg.CallDuration,
		ended:    make(chan av.EventKind, 1),
	}

	calls := node.Calls()
	calls.On(av.EventInvite, d.onInvite)
	calls.On(av.EventStart, d.onStart)
	for _, k := range []av.EventKind{av.EventReject, av.EventCancel, av.EventEnd, av.EventRequestTimeout, av.EventPeerTimeout} {
		calls.On(k, d.onEnd)
	}
	return d
}

func (d *callDriver) place(peer channel.PeerID) error {
	callType := av.CallTypeAudio
	if d.video {
		callType = av.CallTypeVideo
	}
	_, err := d.node.Calls().Call(peer, callType, 0)
	return err
}

func (d *callDriver) onInvite(ev av.Event) {
	if !d.answer {
		logrus.WithFields(logrus.Fields{
			"function": "onInvite",
			"peer_id":  ev.Peer,
		}).Info("Rejecting call")
		_ = d.node.Calls().Reject(ev.Peer)
		return
	}
	if err := d.node.Calls().Answer(ev.Peer, ev.ProposedType); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onInvite",
			"peer_id":  ev.Peer,
			"error":    err.Error(),
		}).Error("Failed to answer call")
	}
}

func (d *callDriver) onStart(ev av.Event) {
	info, err := d.node.Calls().Info(ev.Peer)
	if err != nil || info.Role != av.RoleCaller {
		return
	}
	peer := ev.Peer
	time.AfterFunc(d.duration, func() {
		_ = d.node.Calls().Hangup(peer)
	})
}

func (d *callDriver) onEnd(ev av.Event) {
	logrus.WithFields(logrus.Fields{
		"function": "onEnd",
		"peer_id":  ev.Peer,
		"outcome":  ev.Kind.String(),
	}).Info("Call ended")

	select {
	case d.ended <- ev.Kind:
	default:
	}
}
