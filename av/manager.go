package av

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/toxpeer/av/audio"
	"github.com/opd-ai/toxpeer/av/video"
	"github.com/opd-ai/toxpeer/channel"
	"github.com/opd-ai/toxpeer/dispatch"
	"github.com/opd-ai/toxpeer/retry"
	"github.com/sirupsen/logrus"
)

// Default timing of the call engine.
const (
	DefaultRingTimeout  = 30 * time.Second
	DefaultPeerTimeout  = 10 * time.Second
	DefaultPumpInterval = time.Millisecond
)

// Config tunes the call engine.
type Config struct {
	// RingTimeout is used when Call is given no ring timeout.
	RingTimeout time.Duration
	// PeerTimeout ends active calls without inbound traffic. Zero disables it.
	PeerTimeout time.Duration
	// PumpInterval is the pause between two captured frames.
	PumpInterval time.Duration
	// Retry applies to signaling messages. Media frames are never retried.
	Retry retry.Policy
	// Settings are proposed for outgoing calls and bound incoming proposals.
	Settings Settings
	// Devices opens capture and playback devices when media starts.
	Devices DeviceProvider
	// Decoder converts inbound audio payloads to PCM. Nil means payloads
	// are raw PCM.
	Decoder AudioDecoder
	// Encoder converts captured PCM before it is sent. Nil sends raw PCM.
	Encoder AudioEncoder
}

// DefaultConfig returns the engine defaults without devices.
func DefaultConfig() Config {
	return Config{
		RingTimeout:  DefaultRingTimeout,
		PeerTimeout:  DefaultPeerTimeout,
		PumpInterval: DefaultPumpInterval,
		Retry:        retry.DefaultPolicy(),
		Settings:     DefaultSettings(),
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.RingTimeout <= 0 {
		return fmt.Errorf("ring timeout must be positive, got %v", c.RingTimeout)
	}
	if c.PeerTimeout < 0 {
		return fmt.Errorf("peer timeout must not be negative, got %v", c.PeerTimeout)
	}
	if c.PumpInterval <= 0 {
		return fmt.Errorf("pump interval must be positive, got %v", c.PumpInterval)
	}
	return c.Settings.Validate()
}

// Manager runs the call sessions of a node over one channel. There is at
// most one session per peer.
//
// Operations may be called from any goroutine, including from inside event
// handlers. Events are emitted after the manager lock is released.
type Manager struct {
	ch       channel.Channel
	cfg      Config
	handlers *dispatch.Table[EventKind, channel.PeerID, Event]

	mu           sync.Mutex
	calls        map[channel.PeerID]*Call
	connected    map[channel.PeerID]bool
	nextCallID   uint32
	timeProvider TimeProvider
}

type queued struct {
	h  dispatch.Handler[Event]
	ev Event
}

// batch collects events raised under the lock. Handlers are resolved when
// the event is queued so a released session keeps its scoped handlers for
// its final event.
type batch struct {
	events []queued
	sends  []outbound
}

// outbound is a best-effort message sent once the lock is released.
type outbound struct {
	peer channel.PeerID
	msg  channel.Message
}

func (b *batch) post(peer channel.PeerID, msg channel.Message) {
	b.sends = append(b.sends, outbound{peer: peer, msg: msg})
}

// postSignal queues a call control signal for c.
func (b *batch) postSignal(c *Call, sig uint8) {
	b.post(c.Peer, channel.CallControl{CallID: c.ID, Control: sig})
}

func (m *Manager) queue(b *batch, ev Event) {
	b.events = append(b.events, queued{h: m.handlers.Lookup(ev.Peer, ev.Kind), ev: ev})
}

// flush sends queued messages, then runs queued handlers. Callers do not
// hold m.mu.
func (m *Manager) flush(b *batch) {
	for _, out := range b.sends {
		if err := m.send(out.peer, out.msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "flush",
				"peer_id":  out.peer,
				"kind":     out.msg.Kind().String(),
				"error":    err.Error(),
			}).Warn("Failed to send call message")
		}
	}
	for _, q := range b.events {
		if q.h != nil {
			q.h(q.ev)
		}
	}
}

// NewManager creates a call engine sending through ch.
func NewManager(ch channel.Channel, cfg Config) *Manager {
	logrus.WithFields(logrus.Fields{
		"function":      "NewManager",
		"ring_timeout":  cfg.RingTimeout,
		"peer_timeout":  cfg.PeerTimeout,
		"pump_interval": cfg.PumpInterval,
	}).Info("Creating new call manager")

	return &Manager{
		ch:           ch,
		cfg:          cfg,
		handlers:     dispatch.New[EventKind, channel.PeerID, Event](),
		calls:        make(map[channel.PeerID]*Call),
		connected:    make(map[channel.PeerID]bool),
		nextCallID:   1,
		timeProvider: DefaultTimeProvider{},
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (m *Manager) SetTimeProvider(tp TimeProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeProvider = tp
}

// On registers the handler for kind on every call.
func (m *Manager) On(kind EventKind, h Handler) {
	m.handlers.On(kind, dispatch.Handler[Event](h))
}

// OnCall registers a handler for kind on calls with peer only. It is
// dropped when the current session with peer ends.
func (m *Manager) OnCall(peer channel.PeerID, kind EventKind, h Handler) {
	m.handlers.OnScope(peer, kind, dispatch.Handler[Event](h))
}

func (m *Manager) send(peer channel.PeerID, msg channel.Message) error {
	return retry.Do(context.Background(), m.cfg.Retry, func() error {
		return m.ch.Send(peer, msg)
	})
}

// sendUnlocked sends msg with m.mu released so retry back-off never blocks
// other calls. The caller must hold m.mu and revalidate its session
// afterwards.
func (m *Manager) sendUnlocked(peer channel.PeerID, msg channel.Message) error {
	m.mu.Unlock()
	defer m.mu.Lock()
	return m.send(peer, msg)
}

// current reports whether c is still the session with its peer.
func (m *Manager) current(c *Call) bool {
	cur, ok := m.calls[c.Peer]
	return ok && cur == c
}

// end stops media, removes the session and queues the terminal event.
// Callers hold m.mu.
func (m *Manager) end(b *batch, c *Call, kind EventKind) {
	c.State = StateEnding
	m.stopMedia(c)
	delete(m.calls, c.Peer)

	logrus.WithFields(logrus.Fields{
		"function":   "end",
		"peer_id":    c.Peer,
		"call_id":    c.ID,
		"role":       c.Role.String(),
		"outcome":    kind.String(),
		"audio_sent": c.audioSent.Load(),
		"video_sent": c.videoSent.Load(),
	}).Info("Call ended")

	m.queue(b, Event{Kind: kind, Peer: c.Peer, CallID: c.ID})
	m.handlers.DropScope(c.Peer)
}

// lookup returns the session with peer. Callers hold m.mu.
func (m *Manager) lookup(peer channel.PeerID) (*Call, error) {
	c, ok := m.calls[peer]
	if !ok {
		return nil, fmt.Errorf("%w: peer %d", ErrNoActiveCall, peer)
	}
	return c, nil
}

// Info returns a snapshot of the call with peer.
func (m *Manager) Info(peer channel.PeerID) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(peer)
	if err != nil {
		return Info{}, err
	}
	return c.info(), nil
}

// Calls returns snapshots of every call, ordered by peer.
func (m *Manager) Calls() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer < out[j].Peer })
	return out
}

// Call invites peer to a call of the given type. A zero ringTimeout uses the
// configured default. The call times out unless answered before then.
func (m *Manager) Call(peer channel.PeerID, callType CallType, ringTimeout time.Duration) (uint32, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "Call",
		"peer_id":   peer,
		"call_type": callType.String(),
	}).Info("Placing call")

	if !callType.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidCallType, callType)
	}
	if ringTimeout <= 0 {
		ringTimeout = m.cfg.RingTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.calls[peer]; busy {
		return 0, fmt.Errorf("%w: peer %d", ErrCallAlreadyActive, peer)
	}
	if !m.connected[peer] {
		return 0, ErrPeerNotConnected
	}

	s := m.cfg.Settings
	s.CallType = callType
	if !callType.HasVideo() {
		s.VideoBitRate = 0
	}
	if err := s.Validate(); err != nil {
		return 0, err
	}

	id := m.nextCallID
	m.nextCallID++

	invite := channel.CallInvite{
		CallID:      id,
		Params:      s.params(),
		RingSeconds: uint32((ringTimeout + time.Second - 1) / time.Second),
	}
	now := m.timeProvider.Now()
	c := &Call{
		Peer:         peer,
		ID:           id,
		State:        StateInviting,
		Role:         RoleCaller,
		Settings:     s,
		ProposedType: callType,
		Deadline:     now.Add(ringTimeout),
		LastSeen:     now,
	}
	// The session holds the peer while the invite is on its way.
	m.calls[peer] = c
	if err := m.sendUnlocked(peer, invite); err != nil {
		if m.current(c) {
			delete(m.calls, peer)
		}
		return 0, fmt.Errorf("send invite: %w", err)
	}
	return id, nil
}

// Answer accepts the pending invite from peer. Answering with video on an
// audio invite, or with audio on a video invite, yields an audio call.
func (m *Manager) Answer(peer channel.PeerID, callType CallType) error {
	if !callType.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCallType, callType)
	}

	var b batch
	err := m.answer(&b, peer, callType)
	m.flush(&b)
	return err
}

func (m *Manager) answer(b *batch, peer channel.PeerID, callType CallType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[peer]
	if !ok || c.State != StateInvited {
		return fmt.Errorf("%w: peer %d", ErrNoIncomingCall, peer)
	}

	offered := c.Settings
	c.Settings.CallType = minCallType(callType, c.Settings.CallType)
	if !c.Settings.CallType.HasVideo() {
		c.Settings.VideoBitRate = 0
	}
	if err := c.openDevices(m.cfg.Devices); err != nil {
		c.Settings = offered
		return err
	}

	// Starting keeps a second Answer out while the answer is on its way.
	c.State = StateStarting
	err := m.sendUnlocked(peer, channel.CallAnswer{CallID: c.ID, Params: c.Settings.params()})
	if !m.current(c) || c.State != StateStarting {
		m.stopMedia(c)
		if err != nil {
			return fmt.Errorf("send answer: %w", err)
		}
		return fmt.Errorf("%w: peer %d", ErrNoIncomingCall, peer)
	}
	if err != nil {
		m.closeDevices(c)
		c.State = StateInvited
		c.Settings = offered
		return fmt.Errorf("send answer: %w", err)
	}

	m.activate(b, c)
	return nil
}

// activate moves a call through starting to active and starts media.
// Callers hold m.mu and have opened the devices.
func (m *Manager) activate(b *batch, c *Call) {
	c.State = StateStarting
	m.startMedia(c)

	now := m.timeProvider.Now()
	c.State = StateActive
	c.StartTime = now
	c.LastSeen = now

	logrus.WithFields(logrus.Fields{
		"function":  "activate",
		"peer_id":   c.Peer,
		"call_id":   c.ID,
		"role":      c.Role.String(),
		"call_type": c.Settings.CallType.String(),
	}).Info("Call started")

	m.queue(b, Event{Kind: EventStart, Peer: c.Peer, CallID: c.ID, Settings: c.Settings})
}

// Reject declines the pending invite from peer.
func (m *Manager) Reject(peer channel.PeerID) error {
	return m.terminate(peer, func(c *Call) (uint8, EventKind, error) {
		if c.State != StateInvited {
			return 0, 0, fmt.Errorf("%w: peer %d", ErrNoIncomingCall, peer)
		}
		return signalReject, EventReject, nil
	})
}

// Cancel withdraws a call before it started, on either side.
func (m *Manager) Cancel(peer channel.PeerID) error {
	return m.terminate(peer, func(c *Call) (uint8, EventKind, error) {
		if c.State != StateInviting && c.State != StateInvited {
			return 0, 0, fmt.Errorf("%w: cannot cancel in state %s", ErrInvalidTransition, c.State)
		}
		return signalCancel, EventCancel, nil
	})
}

// Hangup ends an active call.
func (m *Manager) Hangup(peer channel.PeerID) error {
	return m.terminate(peer, func(c *Call) (uint8, EventKind, error) {
		if c.State != StateActive {
			return 0, 0, fmt.Errorf("%w: cannot hang up in state %s", ErrInvalidTransition, c.State)
		}
		return signalEnd, EventEnd, nil
	})
}

// terminate ends the call with peer after check approves, telling the peer
// with the returned signal. Failing to reach the peer does not keep the
// call alive.
func (m *Manager) terminate(peer channel.PeerID, check func(*Call) (uint8, EventKind, error)) error {
	var b batch
	defer m.flush(&b)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(peer)
	if err != nil {
		return err
	}
	sig, kind, err := check(c)
	if err != nil {
		return err
	}
	b.postSignal(c, sig)
	m.end(&b, c, kind)
	return nil
}

// StopCall ends the call with peer locally without telling the peer, which
// notices through its own peer timeout.
func (m *Manager) StopCall(peer channel.PeerID) error {
	var b batch
	defer m.flush(&b)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(peer)
	if err != nil {
		return err
	}
	m.end(&b, c, EventEnd)
	return nil
}

// StopAll ends every call locally.
func (m *Manager) StopAll() {
	var b batch
	defer m.flush(&b)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.sorted() {
		m.end(&b, c, EventEnd)
	}
}

// ChangeBitrate asks the peer to use new bit rates on an active call.
func (m *Manager) ChangeBitrate(peer channel.PeerID, audioBitRate, videoBitRate uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.lookup(peer)
	if err != nil {
		return err
	}
	if c.State != StateActive {
		return fmt.Errorf("%w: cannot change bit rate in state %s", ErrInvalidTransition, c.State)
	}
	if videoBitRate != 0 && !c.Settings.CallType.HasVideo() {
		return fmt.Errorf("%w: video bit rate on an audio call", ErrInvalidSettings)
	}

	msg := channel.CallBitrate{CallID: c.ID, AudioBitRate: audioBitRate, VideoBitRate: videoBitRate}
	if err := m.sendUnlocked(peer, msg); err != nil {
		return fmt.Errorf("send bit rate: %w", err)
	}
	if !m.current(c) || c.State != StateActive {
		return fmt.Errorf("%w: call ended while changing bit rate", ErrNoActiveCall)
	}
	c.Settings.AudioBitRate = audioBitRate
	c.Settings.VideoBitRate = videoBitRate

	logrus.WithFields(logrus.Fields{
		"function":       "ChangeBitrate",
		"peer_id":        peer,
		"audio_bit_rate": audioBitRate,
		"video_bit_rate": videoBitRate,
	}).Info("Call bit rate changed")
	return nil
}

// sorted returns the sessions ordered by peer. Callers hold m.mu.
func (m *Manager) sorted() []*Call {
	calls := make([]*Call, 0, len(m.calls))
	for _, c := range m.calls {
		calls = append(calls, c)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Peer < calls[j].Peer })
	return calls
}

// Tick ends unanswered calls past their deadline and active calls whose
// peer went silent.
func (m *Manager) Tick() {
	var b batch
	defer m.flush(&b)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.timeProvider.Now()
	for _, c := range m.sorted() {
		switch c.State {
		case StateInviting, StateInvited:
			if now.Before(c.Deadline) {
				continue
			}
			logrus.WithFields(logrus.Fields{
				"function": "Tick",
				"peer_id":  c.Peer,
				"call_id":  c.ID,
				"role":     c.Role.String(),
			}).Warn("Call request timed out")

			if c.Role == RoleCaller {
				b.postSignal(c, signalCancel)
			}
			m.end(&b, c, EventRequestTimeout)
		case StateActive:
			if m.cfg.PeerTimeout <= 0 || m.timeProvider.Since(c.LastSeen) < m.cfg.PeerTimeout {
				continue
			}
			logrus.WithFields(logrus.Fields{
				"function":     "Tick",
				"peer_id":      c.Peer,
				"call_id":      c.ID,
				"peer_timeout": m.cfg.PeerTimeout,
			}).Warn("Call peer timed out: no traffic within timeout period")

			m.end(&b, c, EventPeerTimeout)
		}
	}
}

// HandleEvent applies one inbound channel event. Messages that do not belong
// to calls are ignored.
func (m *Manager) HandleEvent(ev channel.Event) error {
	var b batch
	var err error

	switch msg := ev.Message.(type) {
	case channel.ConnectionStatus:
		m.handleConnection(&b, ev.Peer, msg.Connected)
	case channel.CallInvite:
		err = m.handleInvite(&b, ev.Peer, msg)
	case channel.CallAnswer:
		err = m.handleAnswer(&b, ev.Peer, msg)
	case channel.CallControl:
		err = m.handleControl(&b, ev.Peer, msg)
	case channel.CallBitrate:
		err = m.handleBitrate(&b, ev.Peer, msg)
	case channel.PeerTimeout:
		err = m.handlePeerTimeout(&b, ev.Peer, msg)
	case channel.AudioFrame:
		err = m.handleAudio(&b, ev.Peer, msg)
	case channel.VideoFrame:
		err = m.handleVideo(&b, ev.Peer, msg)
	default:
		return nil
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleEvent",
			"peer_id":  ev.Peer,
			"kind":     ev.Message.Kind().String(),
			"error":    err.Error(),
		}).Warn("Rejected call message")
	}

	m.flush(&b)
	return err
}

func (m *Manager) handleConnection(b *batch, peer channel.PeerID, up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if up {
		m.connected[peer] = true
		return
	}
	delete(m.connected, peer)
	if c, ok := m.calls[peer]; ok {
		logrus.WithFields(logrus.Fields{
			"function": "handleConnection",
			"peer_id":  peer,
			"call_id":  c.ID,
		}).Warn("Peer went offline during call")
		m.end(b, c, EventPeerTimeout)
	}
}

// session returns the call with peer if it carries id. Callers hold m.mu.
func (m *Manager) session(peer channel.PeerID, id uint32) (*Call, error) {
	c, err := m.lookup(peer)
	if err != nil {
		return nil, err
	}
	if c.ID != id {
		return nil, fmt.Errorf("%w: %d, session has %d", ErrUnknownCall, id, c.ID)
	}
	c.LastSeen = m.timeProvider.Now()
	return c, nil
}

func (m *Manager) handleInvite(b *batch, peer channel.PeerID, msg channel.CallInvite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	refuse := func(err error) error {
		b.post(peer, channel.CallControl{CallID: msg.CallID, Control: signalReject})
		return err
	}

	if c, busy := m.calls[peer]; busy {
		if c.Role == RoleCallee && c.ID == msg.CallID {
			return nil
		}
		return refuse(fmt.Errorf("%w: peer %d", ErrCallAlreadyActive, peer))
	}
	proposed := settingsFromParams(msg.Params)
	if !proposed.CallType.Valid() {
		return refuse(fmt.Errorf("%w: %s", ErrInvalidCallType, proposed.CallType))
	}

	// The answer picks the final call type.
	local := m.cfg.Settings
	local.CallType = CallTypeVideo
	s := Negotiate(local, proposed)
	ring := time.Duration(msg.RingSeconds) * time.Second
	if ring <= 0 {
		ring = m.cfg.RingTimeout
	}
	now := m.timeProvider.Now()
	c := &Call{
		Peer:         peer,
		ID:           msg.CallID,
		State:        StateInvited,
		Role:         RoleCallee,
		Settings:     s,
		ProposedType: proposed.CallType,
		Deadline:     now.Add(ring),
		LastSeen:     now,
	}
	m.calls[peer] = c

	b.postSignal(c, signalRinging)

	logrus.WithFields(logrus.Fields{
		"function":  "handleInvite",
		"peer_id":   peer,
		"call_id":   c.ID,
		"call_type": proposed.CallType.String(),
	}).Info("Incoming call")

	m.queue(b, Event{
		Kind:         EventInvite,
		Peer:         peer,
		CallID:       c.ID,
		ProposedType: proposed.CallType,
		Settings:     s,
	})
	return nil
}

func (m *Manager) handleAnswer(b *batch, peer channel.PeerID, msg channel.CallAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.session(peer, msg.CallID)
	if err != nil {
		return err
	}
	if c.State != StateInviting {
		return fmt.Errorf("%w: answer in state %s", ErrInvalidTransition, c.State)
	}

	s := settingsFromParams(msg.Params)
	if !s.CallType.Valid() {
		m.abort(b, c)
		return fmt.Errorf("%w: answered with %s", ErrInvalidCallType, s.CallType)
	}
	s.CallType = minCallType(s.CallType, c.Settings.CallType)
	if err := s.Validate(); err != nil {
		m.abort(b, c)
		return err
	}
	c.Settings = s
	if err := c.openDevices(m.cfg.Devices); err != nil {
		m.abort(b, c)
		return err
	}
	m.activate(b, c)
	return nil
}

// abort cancels a call that cannot start. Callers hold m.mu.
func (m *Manager) abort(b *batch, c *Call) {
	b.postSignal(c, signalCancel)
	m.end(b, c, EventCancel)
}

func (m *Manager) handleControl(b *batch, peer channel.PeerID, msg channel.CallControl) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.session(peer, msg.CallID)
	if err != nil {
		return err
	}
	active := c.State == StateActive

	switch msg.Control {
	case signalRinging:
		if c.State != StateInviting {
			return fmt.Errorf("%w: ringing in state %s", ErrInvalidTransition, c.State)
		}
		m.queue(b, Event{Kind: EventRinging, Peer: peer, CallID: c.ID})
	case signalReject:
		if c.State != StateInviting {
			return fmt.Errorf("%w: reject in state %s", ErrInvalidTransition, c.State)
		}
		m.end(b, c, EventReject)
	case signalCancel, signalEnd:
		if active {
			m.end(b, c, EventEnd)
		} else {
			m.end(b, c, EventCancel)
		}
	default:
		return fmt.Errorf("%w: unknown call control %d", ErrInvalidTransition, msg.Control)
	}
	return nil
}

func (m *Manager) handleBitrate(b *batch, peer channel.PeerID, msg channel.CallBitrate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.session(peer, msg.CallID)
	if err != nil {
		return err
	}
	if c.State != StateActive {
		return fmt.Errorf("%w: bit rate change in state %s", ErrInvalidTransition, c.State)
	}
	c.Settings.AudioBitRate = msg.AudioBitRate
	c.Settings.VideoBitRate = msg.VideoBitRate

	m.queue(b, Event{
		Kind:         EventMediaChange,
		Peer:         peer,
		CallID:       c.ID,
		AudioBitRate: msg.AudioBitRate,
		VideoBitRate: msg.VideoBitRate,
	})
	return nil
}

func (m *Manager) handlePeerTimeout(b *batch, peer channel.PeerID, msg channel.PeerTimeout) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.session(peer, msg.CallID)
	if err != nil {
		return err
	}
	m.end(b, c, EventPeerTimeout)
	return nil
}

func (m *Manager) handleAudio(b *batch, peer channel.PeerID, msg channel.AudioFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.session(peer, msg.CallID)
	if err != nil {
		return err
	}
	if c.State != StateActive {
		return fmt.Errorf("%w: audio frame in state %s", ErrInvalidTransition, c.State)
	}

	samples, channels := int(msg.SampleCount), int(msg.Channels)
	pcm := msg.Data
	if m.cfg.Decoder != nil {
		if pcm, err = m.cfg.Decoder.Decode(msg.Data, samples, channels); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedAudio, err)
		}
	}
	if len(pcm) != audio.FrameBytes(samples, channels) {
		return fmt.Errorf("%w: %d samples x %d channels in %d bytes", ErrMalformedAudio, samples, channels, len(pcm))
	}
	c.audioRecv++

	if c.audioDev != nil {
		if err := c.audioDev.Playback(pcm); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleAudio",
				"peer_id":  peer,
				"error":    err.Error(),
			}).Debug("Audio playback failed")
		}
	}

	m.queue(b, Event{
		Kind:        EventAudioData,
		Peer:        peer,
		CallID:      c.ID,
		PCM:         pcm,
		SampleCount: samples,
		Channels:    channels,
		SampleRate:  int(msg.SampleRate),
	})
	return nil
}

func (m *Manager) handleVideo(b *batch, peer channel.PeerID, msg channel.VideoFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.session(peer, msg.CallID)
	if err != nil {
		return err
	}
	if c.State != StateActive {
		return fmt.Errorf("%w: video frame in state %s", ErrInvalidTransition, c.State)
	}
	if !c.Settings.CallType.HasVideo() {
		return fmt.Errorf("%w: video frame on an audio call", ErrInvalidTransition)
	}

	rgb, err := video.I420ToRGB(int(msg.Width), int(msg.Height), msg.Data, c.rgb.RGB)
	if err != nil {
		return err
	}
	c.rgb = video.Frame{Width: msg.Width, Height: msg.Height, RGB: rgb}
	c.videoRecv++

	if c.videoDev != nil {
		if err := c.videoDev.Display(&c.rgb); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleVideo",
				"peer_id":  peer,
				"error":    err.Error(),
			}).Debug("Video display failed")
		}
	}

	frame := &video.Frame{Width: c.rgb.Width, Height: c.rgb.Height, RGB: bytes.Clone(c.rgb.RGB)}
	m.queue(b, Event{Kind: EventVideoData, Peer: peer, CallID: c.ID, Frame: frame})
	return nil
}
