package toxpeer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/toxpeer/av"
	"github.com/opd-ai/toxpeer/channel"
	"github.com/opd-ai/toxpeer/file"
	"github.com/sirupsen/logrus"
)

// TimeProvider abstracts time operations for deterministic testing. It is
// shared by both engines of a node.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// Node drives the file transfer engine and the call engine over one channel.
type Node struct {
	ch    channel.Channel
	opts  *Options
	files *file.Manager
	calls *av.Manager

	tick     sync.Mutex
	killed   atomic.Bool
	killOnce sync.Once
}

// New creates a node on ch. Nil options select NewOptions.
func New(ch channel.Channel, opts *Options) (*Node, error) {
	if ch == nil {
		return nil, fmt.Errorf("%w: nil channel", ErrInvalidOptions)
	}
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"error":    err.Error(),
		}).Error("Rejected node options")
		return nil, err
	}

	n := &Node{
		ch:    ch,
		opts:  opts,
		files: file.NewManager(ch, opts.fileConfig()),
		calls: av.NewManager(ch, opts.callConfig()),
	}

	logrus.WithFields(logrus.Fields{
		"function":           "New",
		"iteration_interval": opts.IterationInterval,
		"poll_wait":          opts.PollWait,
	}).Info("Node created")

	return n, nil
}

// Files returns the file transfer engine.
func (n *Node) Files() *file.Manager {
	return n.files
}

// Calls returns the call engine.
func (n *Node) Calls() *av.Manager {
	return n.calls
}

// IterationInterval returns the pause Run makes between ticks.
func (n *Node) IterationInterval() time.Duration {
	return n.opts.IterationInterval
}

// SetTimeProvider sets a custom time provider on both engines.
func (n *Node) SetTimeProvider(tp TimeProvider) {
	n.files.SetTimeProvider(tp)
	n.calls.SetTimeProvider(tp)
}

// Iterate runs one tick: it polls the channel, hands every event to the
// engine owning it and then ticks the file engine and the call engine. A
// tick is never re-entered; a concurrent call returns ErrTickInProgress.
func (n *Node) Iterate() error {
	if n.killed.Load() {
		return ErrKilled
	}
	if !n.tick.TryLock() {
		return ErrTickInProgress
	}
	defer n.tick.Unlock()

	events, err := n.ch.Poll(n.opts.PollWait)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Iterate",
			"error":    err.Error(),
		}).Error("Failed to poll channel")
		return fmt.Errorf("poll: %w", err)
	}

	for _, ev := range events {
		n.dispatch(ev)
	}

	n.files.Tick()
	n.calls.Tick()
	return nil
}

// dispatch routes an inbound event. Engines log the messages they reject,
// so errors do not abort the tick.
func (n *Node) dispatch(ev channel.Event) {
	switch ev.Message.Kind() {
	case channel.KindConnectionStatus:
		_ = n.files.HandleEvent(ev)
		_ = n.calls.HandleEvent(ev)
	case channel.KindFileRequest, channel.KindFileControl, channel.KindFileSeek, channel.KindFileChunk:
		_ = n.files.HandleEvent(ev)
	case channel.KindCallInvite, channel.KindCallAnswer, channel.KindCallControl, channel.KindCallBitrate,
		channel.KindAudioFrame, channel.KindVideoFrame, channel.KindPeerTimeout:
		_ = n.calls.HandleEvent(ev)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"peer_id":  ev.Peer,
			"kind":     ev.Message.Kind().String(),
		}).Warn("Dropping event without an owning engine")
	}
}

// Run ticks the node every IterationInterval until ctx is canceled or the
// node is killed.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.IterationInterval)
	defer ticker.Stop()

	for {
		if err := n.Iterate(); err != nil && !errors.Is(err, ErrTickInProgress) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Kill stops every call, cancels every transfer and closes the channel.
// Further ticks return ErrKilled. Kill may be called from an event handler.
func (n *Node) Kill() {
	n.killOnce.Do(func() {
		n.killed.Store(true)

		n.calls.StopAll()
		n.files.CancelAll()
		if err := n.ch.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Kill",
				"error":    err.Error(),
			}).Error("Failed to close channel")
		}

		logrus.WithField("function", "Kill").Info("Node killed")
	})
}
