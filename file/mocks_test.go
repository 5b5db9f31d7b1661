package file

import (
	"sync"
	"time"

	"github.com/opd-ai/toxpeer/channel"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	return m.currentTime
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.currentTime.Sub(t)
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.currentTime = m.currentTime.Add(d)
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{
		currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type sentMessage struct {
	peer channel.PeerID
	msg  channel.Message
}

// mockChannel records every message sent and can be told to fail.
type mockChannel struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
	busy    int
}

func newMockChannel() *mockChannel {
	return &mockChannel{}
}

func (m *mockChannel) Send(peer channel.PeerID, msg channel.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy > 0 {
		m.busy--
		return channel.ErrBusy
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{peer: peer, msg: msg})
	return nil
}

func (m *mockChannel) Poll(time.Duration) ([]channel.Event, error) {
	return nil, nil
}

func (m *mockChannel) Close() error {
	return nil
}

func (m *mockChannel) messages() []channel.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]channel.Message, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.msg
	}
	return out
}

func (m *mockChannel) last() channel.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1].msg
}

func (m *mockChannel) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// recorder collects events emitted by a Manager.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handler(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) of(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) watch(m *Manager) {
	for _, k := range []EventKind{EventRecv, EventRecvControl, EventChunkRequest, EventRecvChunk, EventDone} {
		m.On(k, r.handler)
	}
}
