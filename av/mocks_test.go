package av

import (
	"errors"
	"sync"
	"time"

	"github.com/opd-ai/toxpeer/av/video"
	"github.com/opd-ai/toxpeer/channel"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	mu          sync.Mutex
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{
		currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// mockChannel records every message sent. Media payloads are copied since
// the pumps reuse their buffers.
type mockChannel struct {
	mu      sync.Mutex
	sent    []channel.Message
	sendErr error
	busy    bool
}

func newMockChannel() *mockChannel {
	return &mockChannel{}
}

func (m *mockChannel) Send(peer channel.PeerID, msg channel.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return channel.ErrBusy
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	switch f := msg.(type) {
	case channel.AudioFrame:
		f.Data = append([]byte(nil), f.Data...)
		msg = f
	case channel.VideoFrame:
		f.Data = append([]byte(nil), f.Data...)
		msg = f
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockChannel) Poll(time.Duration) ([]channel.Event, error) {
	return nil, nil
}

func (m *mockChannel) Close() error {
	return nil
}

func (m *mockChannel) setBusy(busy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = busy
}

func (m *mockChannel) messages() []channel.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]channel.Message(nil), m.sent...)
}

// signals returns the call controls sent, in order.
func (m *mockChannel) signals() []uint8 {
	var out []uint8
	for _, msg := range m.messages() {
		if c, ok := msg.(channel.CallControl); ok {
			out = append(out, c.Control)
		}
	}
	return out
}

func (m *mockChannel) count(kind channel.Kind) int {
	n := 0
	for _, msg := range m.messages() {
		if msg.Kind() == kind {
			n++
		}
	}
	return n
}

func (m *mockChannel) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// mockAudioDevice produces silence and records playback.
type mockAudioDevice struct {
	mu         sync.Mutex
	captures   int
	played     [][]byte
	captureErr error
	closed     bool
}

func (d *mockAudioDevice) Capture(pcm []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.captureErr != nil {
		return d.captureErr
	}
	d.captures++
	for i := range pcm {
		pcm[i] = byte(d.captures)
	}
	return nil
}

func (d *mockAudioDevice) Playback(pcm []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.played = append(d.played, append([]byte(nil), pcm...))
	return nil
}

func (d *mockAudioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *mockAudioDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *mockAudioDevice) playedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.played)
}

// mockVideoDevice captures a test pattern and records displayed frames.
type mockVideoDevice struct {
	mu        sync.Mutex
	width     uint16
	height    uint16
	seq       int
	displayed []video.Frame
	closed    bool
}

func (d *mockVideoDevice) Capture() (*video.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	return video.Pattern(d.width, d.height, d.seq), nil
}

func (d *mockVideoDevice) Display(f *video.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.displayed = append(d.displayed, video.Frame{
		Width:  f.Width,
		Height: f.Height,
		RGB:    append([]byte(nil), f.RGB...),
	})
	return nil
}

func (d *mockVideoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *mockVideoDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *mockVideoDevice) displayedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.displayed)
}

var errNoDevice = errors.New("no device")

// mockProvider hands out mock devices and remembers them.
type mockProvider struct {
	mu       sync.Mutex
	audio    []*mockAudioDevice
	video    []*mockVideoDevice
	audioErr error
	videoErr error
}

func (p *mockProvider) OpenAudio(Settings) (AudioDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.audioErr != nil {
		return nil, p.audioErr
	}
	d := &mockAudioDevice{}
	p.audio = append(p.audio, d)
	return d, nil
}

func (p *mockProvider) OpenVideo(s Settings) (VideoDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.videoErr != nil {
		return nil, p.videoErr
	}
	w, h := s.VideoSize()
	d := &mockVideoDevice{width: w, height: h}
	p.video = append(p.video, d)
	return d, nil
}

func (p *mockProvider) lastAudio() *mockAudioDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.audio) == 0 {
		return nil
	}
	return p.audio[len(p.audio)-1]
}

func (p *mockProvider) lastVideo() *mockVideoDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.video) == 0 {
		return nil
	}
	return p.video[len(p.video)-1]
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

// watch records every signaling event. Media events are left to the tests
// that look at them.
func (r *recorder) watch(m *Manager) {
	for k := EventInvite; k <= EventMediaChange; k++ {
		m.On(k, r.handler)
	}
}
