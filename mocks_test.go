package toxpeer

import (
	"sync"
	"time"

	"github.com/opd-ai/toxpeer/av"
	"github.com/opd-ai/toxpeer/av/audio"
	"github.com/opd-ai/toxpeer/channel"
)

// blockingChannel holds Poll until released so ticks can overlap.
type blockingChannel struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingChannel() *blockingChannel {
	return &blockingChannel{entered: make(chan struct{}), release: make(chan struct{})}
}

func (c *blockingChannel) Send(channel.PeerID, channel.Message) error { return nil }

func (c *blockingChannel) Poll(time.Duration) ([]channel.Event, error) {
	c.once.Do(func() { close(c.entered) })
	<-c.release
	return nil, nil
}

func (c *blockingChannel) Close() error { return nil }

// toneDevices provides a tone source and discards playback.
type toneDevices struct {
	mu     sync.Mutex
	played int
	closed int
}

type toneAudio struct {
	d    *toneDevices
	tone *audio.Tone
}

func (p *toneDevices) OpenAudio(s av.Settings) (av.AudioDevice, error) {
	return &toneAudio{d: p, tone: audio.NewTone(440, int(s.SampleRate), int(s.Channels))}, nil
}

func (p *toneDevices) OpenVideo(av.Settings) (av.VideoDevice, error) {
	return nil, av.ErrDeviceUnavailable
}

func (a *toneAudio) Capture(pcm []byte) error {
	a.tone.Fill(pcm)
	return nil
}

func (a *toneAudio) Playback([]byte) error {
	a.d.mu.Lock()
	defer a.d.mu.Unlock()
	a.d.played++
	return nil
}

func (a *toneAudio) Close() error {
	a.d.mu.Lock()
	defer a.d.mu.Unlock()
	a.d.closed++
	return nil
}

func (p *toneDevices) counts() (played, closed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played, p.closed
}
