package file

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/toxpeer/channel"
	"github.com/opd-ai/toxpeer/dispatch"
	"github.com/opd-ai/toxpeer/limits"
	"github.com/opd-ai/toxpeer/retry"
	"github.com/sirupsen/logrus"
)

// DefaultStallTimeout is the default timeout duration for detecting stalled transfers.
// Transfers that see no activity for this duration are canceled.
const DefaultStallTimeout = 30 * time.Second

// DefaultWindow is the default number of chunk requests outstanding per transfer.
const DefaultWindow = 4

// Config tunes the transfer engine.
type Config struct {
	// ChunkSize is the largest chunk requested at once.
	ChunkSize int
	// Window is the number of chunk requests that may be outstanding per transfer.
	Window int
	// StallTimeout cancels active transfers without activity. Zero disables it.
	StallTimeout time.Duration
	// Retry applies to control messages and chunks handed to the channel.
	Retry retry.Policy
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    limits.MaxChunkPayload,
		Window:       DefaultWindow,
		StallTimeout: DefaultStallTimeout,
		Retry:        retry.DefaultPolicy(),
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize > limits.MaxChunkPayload {
		return fmt.Errorf("chunk size %d outside (0, %d]", c.ChunkSize, limits.MaxChunkPayload)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", c.Window)
	}
	if c.StallTimeout < 0 {
		return fmt.Errorf("stall timeout must not be negative, got %v", c.StallTimeout)
	}
	return nil
}

// Manager runs every file transfer of a node over one channel.
//
// Operations may be called from any goroutine, including from inside event
// handlers. Events are emitted after the manager lock is released.
type Manager struct {
	ch       channel.Channel
	cfg      Config
	handlers *dispatch.Table[EventKind, Key, Event]

	mu           sync.Mutex
	transfers    map[Key]*Transfer
	connected    map[channel.PeerID]bool
	timeProvider TimeProvider
}

// batch collects events raised under the lock so they can be emitted after
// it is released.
type batch struct {
	events  []Event
	release []Key
	sends   []outbound
}

// outbound is a best-effort message sent once the lock is released.
type outbound struct {
	peer channel.PeerID
	msg  channel.Message
	// eos is set when msg ends the stream of an outgoing transfer.
	eos *Transfer
}

func (b *batch) add(ev Event) {
	b.events = append(b.events, ev)
}

func (b *batch) post(peer channel.PeerID, msg channel.Message) {
	b.sends = append(b.sends, outbound{peer: peer, msg: msg})
}

// NewManager creates a transfer engine sending through ch.
func NewManager(ch channel.Channel, cfg Config) *Manager {
	logrus.WithFields(logrus.Fields{
		"function":   "NewManager",
		"chunk_size": cfg.ChunkSize,
		"window":     cfg.Window,
	}).Info("Creating new file transfer manager")

	return &Manager{
		ch:           ch,
		cfg:          cfg,
		handlers:     dispatch.New[EventKind, Key, Event](),
		transfers:    make(map[Key]*Transfer),
		connected:    make(map[channel.PeerID]bool),
		timeProvider: DefaultTimeProvider{},
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (m *Manager) SetTimeProvider(tp TimeProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeProvider = tp
}

// On registers the handler for kind on every transfer.
func (m *Manager) On(kind EventKind, h Handler) {
	m.handlers.On(kind, dispatch.Handler[Event](h))
}

// OnTransfer registers a handler for kind on one transfer only. It replaces
// the handler registered with On for that transfer and is dropped when the
// transfer is released.
func (m *Manager) OnTransfer(peer channel.PeerID, number uint32, kind EventKind, h Handler) {
	m.handlers.OnScope(Key{Peer: peer, Number: number}, kind, dispatch.Handler[Event](h))
}

func (m *Manager) send(peer channel.PeerID, msg channel.Message) error {
	return retry.Do(context.Background(), m.cfg.Retry, func() error {
		return m.ch.Send(peer, msg)
	})
}

// sendUnlocked sends msg with m.mu released so retry back-off never blocks
// other transfers. The caller must hold m.mu and revalidate its session
// afterwards.
func (m *Manager) sendUnlocked(peer channel.PeerID, msg channel.Message) error {
	m.mu.Unlock()
	defer m.mu.Lock()
	return m.send(peer, msg)
}

// current reports whether t is still the live session for its key.
func (m *Manager) current(t *Transfer) bool {
	cur, ok := m.transfers[t.key()]
	return ok && cur == t && !t.done
}

func controlMessage(t *Transfer, c Control) channel.FileControl {
	return channel.FileControl{
		Number:     wireNumber(t.Number),
		FromSender: t.Direction == DirectionOutgoing,
		Control:    uint8(c),
	}
}

// finish moves t to its terminal state and queues EventDone. The session is
// released after the event has been emitted.
func (m *Manager) finish(b *batch, t *Transfer, err error) {
	invariant(!t.done, "transfer %d of peer %d finished twice", t.Number, t.Peer)
	if t.done {
		return
	}
	t.done = true
	t.outstanding = nil
	if err == nil {
		t.State = StateFinished
	} else {
		t.State = StateCanceled
	}

	fields := logrus.Fields{
		"function":  "finish",
		"peer_id":   t.Peer,
		"number":    t.Number,
		"direction": t.Direction.String(),
		"state":     t.State.String(),
		"received":  t.Received,
		"sent":      t.Sent,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logrus.WithFields(fields).Info("File transfer ended")

	b.add(Event{Kind: EventDone, Key: t.key(), Err: err})
	b.release = append(b.release, t.key())
}

// flush emits queued events and releases finished sessions. Chunk requests
// for sessions canceled in the meantime are dropped.
func (m *Manager) flush(b *batch) {
	for _, out := range b.sends {
		err := m.send(out.peer, out.msg)
		if out.eos != nil {
			m.eosResult(out.eos, err)
			continue
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "flush",
				"peer_id":  out.peer,
				"kind":     out.msg.Kind().String(),
				"error":    err.Error(),
			}).Warn("Failed to send file transfer message")
		}
	}

	for _, ev := range b.events {
		if ev.Kind == EventChunkRequest && !m.requestLive(ev) {
			continue
		}
		m.handlers.Emit(ev.Key, ev.Kind, ev)
	}

	if len(b.release) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range b.release {
		if t, ok := m.transfers[key]; ok && t.done {
			delete(m.transfers, key)
			m.handlers.DropScope(key)
		}
	}
}

func (m *Manager) requestLive(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[ev.Key]
	if !ok || t.done || t.State != StateActive {
		return false
	}
	if ev.Length == 0 {
		return true
	}
	return t.isOutstanding(ev.Position)
}

func (m *Manager) freeNumber(peer channel.PeerID) (uint32, bool) {
	for n := uint32(0); n < limits.MaxTransfersPerPeer; n++ {
		if _, used := m.transfers[Key{Peer: peer, Number: n}]; !used {
			return n, true
		}
	}
	return 0, false
}

// SendFile announces a file to peer and returns the transfer number. A zero
// fileID is replaced by NewFileID(name, size). No bytes move until the
// receiver resumes the transfer.
func (m *Manager) SendFile(peer channel.PeerID, kind uint32, size uint64, fileID [32]byte, name string) (uint32, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "SendFile",
		"peer_id":   peer,
		"file_name": name,
		"file_size": size,
	}).Info("Initiating outgoing file transfer")

	if err := limits.ValidateFileName(name); err != nil {
		return 0, err
	}
	if fileID == ([32]byte{}) {
		fileID = NewFileID(name, size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected[peer] {
		return 0, ErrPeerNotConnected
	}
	number, ok := m.freeNumber(peer)
	if !ok {
		return 0, ErrTooManyTransfers
	}

	// The session reserves its number while the request is on its way.
	t := newTransfer(peer, number, DirectionOutgoing, kind, size, fileID, name, m.timeProvider.Now())
	m.transfers[t.key()] = t

	req := channel.FileRequest{Number: number, FileKind: kind, Size: size, FileID: fileID, Name: name}
	if err := m.sendUnlocked(peer, req); err != nil {
		if m.current(t) {
			delete(m.transfers, t.key())
		}
		return 0, fmt.Errorf("send file request: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SendFile",
		"peer_id":  peer,
		"number":   number,
	}).Info("File transfer announced")

	return number, nil
}

// lookup returns the session for key. Callers hold m.mu.
func (m *Manager) lookup(peer channel.PeerID, number uint32) (*Transfer, error) {
	t, ok := m.transfers[Key{Peer: peer, Number: number}]
	if !ok {
		return nil, fmt.Errorf("%w: peer %d number %d", ErrTransferNotFound, peer, number)
	}
	return t, nil
}

// FileID returns the identifier of a live transfer.
func (m *Manager) FileID(peer channel.PeerID, number uint32) ([32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.lookup(peer, number)
	if err != nil {
		return [32]byte{}, err
	}
	return t.FileID, nil
}

// Transfer returns a snapshot of one live transfer.
func (m *Manager) Transfer(peer channel.PeerID, number uint32) (Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.lookup(peer, number)
	if err != nil {
		return Transfer{}, err
	}
	return t.snapshot(), nil
}

// Transfers returns snapshots of every live transfer with peer, ordered by number.
func (m *Manager) Transfers(peer channel.PeerID) []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Transfer
	for _, t := range m.transfers {
		if t.Peer == peer {
			out = append(out, t.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Seek sets the position an incoming transfer starts from. It is only valid
// before the transfer is resumed.
func (m *Manager) Seek(peer channel.PeerID, number uint32, offset uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.lookup(peer, number)
	if err != nil {
		return err
	}
	if t.Direction != DirectionIncoming {
		return ErrWrongDirection
	}
	if t.done || (t.State != StateAnnounced && t.State != StateResuming) {
		return fmt.Errorf("%w: cannot seek in state %s", ErrInvalidState, t.State)
	}
	if offset > t.FileSize {
		return fmt.Errorf("%w: %d > %d", ErrSeekOutOfRange, offset, t.FileSize)
	}

	state := t.State
	if err := m.sendUnlocked(peer, channel.FileSeek{Number: wireNumber(number), Position: offset}); err != nil {
		return fmt.Errorf("send seek: %w", err)
	}
	if !m.current(t) || t.State != state {
		return fmt.Errorf("%w: transfer changed during seek", ErrInvalidState)
	}

	t.Offset = offset
	t.Position = offset
	t.State = StateResuming
	t.touch(m.timeProvider.Now(), 0)

	logrus.WithFields(logrus.Fields{
		"function": "Seek",
		"peer_id":  peer,
		"number":   number,
		"offset":   offset,
	}).Info("File transfer seek requested")

	return nil
}

// Control applies a local control signal and tells the peer. Canceling a
// transfer that has already ended but not been released yet is a no-op.
func (m *Manager) Control(peer channel.PeerID, number uint32, c Control) error {
	var b batch
	err := m.control(&b, peer, number, c)
	m.flush(&b)
	return err
}

func (m *Manager) control(b *batch, peer channel.PeerID, number uint32, c Control) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.lookup(peer, number)
	if err != nil {
		return err
	}
	if t.done {
		if c == ControlCancel {
			return nil
		}
		return fmt.Errorf("%w: transfer already %s", ErrInvalidState, t.State)
	}

	var next State
	switch c {
	case ControlResume:
		switch {
		case t.Direction == DirectionIncoming && (t.State == StateAnnounced || t.State == StateResuming):
		case t.State == StatePaused:
		default:
			return fmt.Errorf("%w: cannot resume in state %s", ErrInvalidState, t.State)
		}
		next = StateActive
	case ControlPause:
		if t.State != StateActive {
			return fmt.Errorf("%w: cannot pause in state %s", ErrInvalidState, t.State)
		}
		next = StatePaused
	case ControlCancel:
		b.post(peer, controlMessage(t, ControlCancel))
		m.finish(b, t, ErrCanceled)
		return nil
	default:
		return fmt.Errorf("%w: unknown control %d", ErrInvalidState, c)
	}

	prev := t.State
	if err := m.sendUnlocked(peer, controlMessage(t, c)); err != nil {
		return fmt.Errorf("send %s: %w", c, err)
	}
	if !m.current(t) || t.State != prev {
		return fmt.Errorf("%w: transfer changed during %s", ErrInvalidState, c)
	}
	t.State = next
	t.touch(m.timeProvider.Now(), 0)

	logrus.WithFields(logrus.Fields{
		"function": "Control",
		"peer_id":  peer,
		"number":   number,
		"control":  c.String(),
		"state":    t.State.String(),
	}).Info("File transfer control applied")

	return nil
}

// SendChunk answers an outstanding chunk request of an active outgoing
// transfer. data must have exactly the requested length.
func (m *Manager) SendChunk(peer channel.PeerID, number uint32, position uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.lookup(peer, number)
	if err != nil {
		return err
	}
	if t.Direction != DirectionOutgoing {
		return ErrWrongDirection
	}
	if t.done || t.State != StateActive {
		return fmt.Errorf("%w: cannot send chunk in state %s", ErrInvalidState, t.State)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty chunk", ErrInvalidLength)
	}
	if err := limits.ValidateChunk(data); err != nil {
		return err
	}
	i, err := t.match(position, len(data))
	if err != nil {
		return err
	}

	// The request leaves the window while the chunk is in flight and comes
	// back if the send fails.
	req := t.outstanding[i]
	t.dropRequest(i)
	t.inflight++
	msg := channel.FileChunk{Number: wireNumber(number), Position: position, Data: data}
	err = m.sendUnlocked(peer, msg)
	t.inflight--
	if err != nil {
		if m.current(t) {
			t.outstanding = append(t.outstanding, req)
		}
		return fmt.Errorf("send chunk: %w", err)
	}
	if !m.current(t) {
		return fmt.Errorf("%w: transfer ended while sending", ErrTransferNotFound)
	}

	t.Sent += uint64(len(data))
	if end := position + uint64(len(data)); end > t.Position {
		t.Position = end
	}
	invariant(t.Position <= t.FileSize, "position %d past size %d", t.Position, t.FileSize)
	t.touch(m.timeProvider.Now(), len(data))

	logrus.WithFields(logrus.Fields{
		"function": "SendChunk",
		"peer_id":  peer,
		"number":   number,
		"position": position,
		"length":   len(data),
	}).Debug("Sent file chunk")

	return nil
}

// Tick advances every transfer: it cancels stalled sessions, fills the
// request window of active outgoing transfers and ends their streams once
// all bytes are sent.
func (m *Manager) Tick() {
	var b batch

	m.mu.Lock()
	keys := make([]Key, 0, len(m.transfers))
	for k := range m.transfers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Peer != keys[j].Peer {
			return keys[i].Peer < keys[j].Peer
		}
		return keys[i].Number < keys[j].Number
	})

	for _, k := range keys {
		t := m.transfers[k]
		if t.done {
			continue
		}
		if m.stalled(t) {
			logrus.WithFields(logrus.Fields{
				"function":      "Tick",
				"peer_id":       t.Peer,
				"number":        t.Number,
				"stall_timeout": m.cfg.StallTimeout,
			}).Warn("Transfer stalled: no activity within timeout period")

			b.post(t.Peer, controlMessage(t, ControlCancel))
			m.finish(&b, t, ErrTransferStalled)
			continue
		}
		if t.Direction == DirectionOutgoing && t.State == StateActive {
			m.pump(&b, t)
		}
	}
	m.mu.Unlock()

	m.flush(&b)
}

func (m *Manager) stalled(t *Transfer) bool {
	if m.cfg.StallTimeout == 0 || t.State != StateActive {
		return false
	}
	return m.timeProvider.Since(t.LastActivity) >= m.cfg.StallTimeout
}

// pump queues chunk requests up to the window and sends the end of stream
// once every byte has been answered.
func (m *Manager) pump(b *batch, t *Transfer) {
	if t.eosSent {
		return
	}
	for len(t.outstanding) < m.cfg.Window {
		req, ok := t.nextRequest(m.cfg.ChunkSize)
		if !ok {
			break
		}
		b.add(Event{Kind: EventChunkRequest, Key: t.key(), Position: req.position, Length: req.length})
	}
	if t.remaining() > 0 || len(t.outstanding) > 0 || t.inflight > 0 {
		return
	}

	if t.FileSize > 0 && !t.probed {
		t.probed = true
		b.add(Event{Kind: EventChunkRequest, Key: t.key(), Position: t.FileSize, Length: 0})
	}

	// eosSent is set up front so the next tick does not post it twice. It is
	// cleared again if the send fails.
	t.eosSent = true
	t.Position = t.FileSize
	eos := channel.FileChunk{Number: wireNumber(t.Number), Position: t.FileSize, EOS: true}
	b.sends = append(b.sends, outbound{peer: t.Peer, msg: eos, eos: t})
}

// eosResult records the outcome of an end of stream sent by flush.
func (m *Manager) eosResult(t *Transfer, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "pump",
			"peer_id":  t.Peer,
			"number":   t.Number,
			"error":    err.Error(),
		}).Warn("Failed to send end of stream, will retry next tick")
		if m.current(t) {
			t.eosSent = false
		}
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "pump",
		"peer_id":  t.Peer,
		"number":   t.Number,
		"sent":     t.Sent,
	}).Info("End of stream sent")
}

// CancelAll cancels every live transfer, telling each peer.
func (m *Manager) CancelAll() {
	var b batch

	m.mu.Lock()
	for _, t := range m.transfers {
		if t.done {
			continue
		}
		b.post(t.Peer, controlMessage(t, ControlCancel))
		m.finish(&b, t, ErrCanceled)
	}
	m.mu.Unlock()

	m.flush(&b)
}

// HandleEvent processes one inbound channel event. Events of kinds the file
// engine does not own are ignored. Peer-triggered protocol violations are
// logged and returned without affecting other transfers.
func (m *Manager) HandleEvent(ev channel.Event) error {
	var b batch
	var err error

	switch msg := ev.Message.(type) {
	case channel.ConnectionStatus:
		m.handleConnection(&b, ev.Peer, msg.Connected)
	case channel.FileRequest:
		err = m.handleRequest(&b, ev.Peer, msg)
	case channel.FileControl:
		err = m.handleControl(&b, ev.Peer, msg)
	case channel.FileSeek:
		err = m.handleSeek(ev.Peer, msg)
	case channel.FileChunk:
		err = m.handleChunk(&b, ev.Peer, msg)
	default:
		return nil
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleEvent",
			"peer_id":  ev.Peer,
			"kind":     ev.Message.Kind().String(),
			"error":    err.Error(),
		}).Warn("Rejected file transfer message")
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
	for _, t := range m.transfers {
		if t.Peer == peer && !t.done {
			m.finish(b, t, ErrPeerDisconnected)
		}
	}
}

func (m *Manager) handleRequest(b *batch, peer channel.PeerID, msg channel.FileRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reject := channel.FileControl{Number: msg.Number, FromSender: false, Control: uint8(ControlCancel)}

	if msg.Number >= limits.MaxTransfersPerPeer {
		b.post(peer, reject)
		return fmt.Errorf("%w: number %d", ErrTooManyTransfers, msg.Number)
	}
	key := Key{Peer: peer, Number: incomingNumber(msg.Number)}
	if _, exists := m.transfers[key]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateTransfer, msg.Number)
	}
	if err := limits.ValidateFileName(msg.Name); err != nil {
		b.post(peer, reject)
		return err
	}

	t := newTransfer(peer, key.Number, DirectionIncoming, msg.FileKind, msg.Size, msg.FileID, msg.Name, m.timeProvider.Now())
	m.transfers[key] = t

	logrus.WithFields(logrus.Fields{
		"function":  "handleRequest",
		"peer_id":   peer,
		"number":    key.Number,
		"file_name": msg.Name,
		"file_size": msg.Size,
	}).Info("Incoming file transfer announced")

	b.add(Event{
		Kind:     EventRecv,
		Key:      key,
		FileKind: msg.FileKind,
		FileID:   msg.FileID,
		FileName: msg.Name,
		FileSize: msg.Size,
	})
	return nil
}

func (m *Manager) handleSeek(peer channel.PeerID, msg channel.FileSeek) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[Key{Peer: peer, Number: msg.Number}]
	if !ok || t.done || t.Direction != DirectionOutgoing {
		return fmt.Errorf("%w: seek for %d", ErrTransferNotFound, msg.Number)
	}
	if t.State != StateAnnounced {
		return fmt.Errorf("%w: seek in state %s", ErrInvalidState, t.State)
	}
	if msg.Position > t.FileSize {
		return fmt.Errorf("%w: %d > %d", ErrSeekOutOfRange, msg.Position, t.FileSize)
	}

	t.Offset = msg.Position
	t.Position = msg.Position
	t.next = msg.Position
	t.touch(m.timeProvider.Now(), 0)

	logrus.WithFields(logrus.Fields{
		"function": "handleSeek",
		"peer_id":  peer,
		"number":   t.Number,
		"offset":   msg.Position,
	}).Info("Peer set transfer offset")
	return nil
}

func (m *Manager) handleControl(b *batch, peer channel.PeerID, msg channel.FileControl) error {
	number := msg.Number
	if msg.FromSender {
		number = incomingNumber(msg.Number)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[Key{Peer: peer, Number: number}]
	if !ok || t.done {
		return fmt.Errorf("%w: control for %d", ErrTransferNotFound, number)
	}

	c := Control(msg.Control)
	switch c {
	case ControlResume:
		switch {
		case t.Direction == DirectionOutgoing && t.State == StateAnnounced:
		case t.State == StatePaused:
		default:
			return fmt.Errorf("%w: peer resumed in state %s", ErrInvalidState, t.State)
		}
		t.State = StateActive
	case ControlPause:
		if t.State != StateActive {
			return fmt.Errorf("%w: peer paused in state %s", ErrInvalidState, t.State)
		}
		t.State = StatePaused
	case ControlCancel:
	default:
		return fmt.Errorf("%w: unknown control %d", ErrInvalidState, msg.Control)
	}
	t.touch(m.timeProvider.Now(), 0)

	logrus.WithFields(logrus.Fields{
		"function": "handleControl",
		"peer_id":  peer,
		"number":   number,
		"control":  c.String(),
	}).Info("Received file control")

	b.add(Event{Kind: EventRecvControl, Key: t.key(), Control: c})

	if c == ControlCancel {
		if t.Direction == DirectionOutgoing && t.eosSent {
			m.finish(b, t, nil)
		} else {
			m.finish(b, t, ErrCanceled)
		}
	}
	return nil
}

func (m *Manager) handleChunk(b *batch, peer channel.PeerID, msg channel.FileChunk) error {
	number := incomingNumber(msg.Number)

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transfers[Key{Peer: peer, Number: number}]
	if !ok || t.done {
		return fmt.Errorf("%w: chunk for %d", ErrTransferNotFound, number)
	}
	if t.State != StateActive && t.State != StatePaused {
		return fmt.Errorf("%w: chunk in state %s", ErrInvalidState, t.State)
	}

	if msg.EOS || len(msg.Data) == 0 {
		return m.endOfStream(b, t, msg.Position)
	}

	fresh, err := t.accept(msg.Position, msg.Data)
	if err != nil {
		return err
	}
	t.touch(m.timeProvider.Now(), len(msg.Data))
	invariant(t.Position <= t.FileSize, "position %d past size %d", t.Position, t.FileSize)
	invariant(t.Received == t.seen.covered(), "received %d, covered %d", t.Received, t.seen.covered())

	logrus.WithFields(logrus.Fields{
		"function":  "handleChunk",
		"peer_id":   peer,
		"number":    number,
		"position":  msg.Position,
		"length":    len(msg.Data),
		"duplicate": !fresh,
	}).Debug("Received file chunk")

	b.add(Event{Kind: EventRecvChunk, Key: t.key(), Position: msg.Position, Length: len(msg.Data), Data: msg.Data})
	return nil
}

// endOfStream verifies the received byte count and closes the transfer with
// the cancel handshake.
func (m *Manager) endOfStream(b *batch, t *Transfer, position uint64) error {
	if position != t.FileSize {
		return fmt.Errorf("%w: end of stream at %d, size %d", ErrInvalidPosition, position, t.FileSize)
	}
	t.Position = position
	b.add(Event{Kind: EventRecvChunk, Key: t.key(), Position: position})

	b.post(t.Peer, controlMessage(t, ControlCancel))

	expected := t.FileSize - t.Offset
	if t.Received != expected {
		m.finish(b, t, fmt.Errorf("%w: received %d of %d bytes", ErrIntegrity, t.Received, expected))
		return nil
	}
	m.finish(b, t, nil)
	return nil
}

// IsTerminalError reports whether err is one of the outcomes EventDone carries.
func IsTerminalError(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrPeerDisconnected) ||
		errors.Is(err, ErrTransferStalled)
}
