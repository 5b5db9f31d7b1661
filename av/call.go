package av

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/toxpeer/av/audio"
	"github.com/opd-ai/toxpeer/av/video"
	"github.com/opd-ai/toxpeer/channel"
	"github.com/sirupsen/logrus"
)

// Call is one call session with a peer. Fields are guarded by the Manager
// lock; the pumps only touch the atomics and what they are handed at start.
type Call struct {
	Peer         channel.PeerID
	ID           uint32
	State        State
	Role         Role
	Settings     Settings
	ProposedType CallType
	Deadline     time.Time
	LastSeen     time.Time
	StartTime    time.Time

	stop         atomic.Bool
	wg           sync.WaitGroup
	mediaStarted bool
	audioDev     AudioDevice
	videoDev     VideoDevice
	audioRunning atomic.Bool
	videoRunning atomic.Bool
	audioSent    atomic.Uint64
	videoSent    atomic.Uint64
	audioRecv    uint64
	videoRecv    uint64

	// rgb holds the last inbound video frame after conversion.
	rgb video.Frame
}

// Info is a snapshot of a call for inspection.
type Info struct {
	Peer         channel.PeerID
	CallID       uint32
	State        State
	Role         Role
	Settings     Settings
	AudioPump    bool
	VideoPump    bool
	AudioSent    uint64
	VideoSent    uint64
	AudioRecv    uint64
	VideoRecv    uint64
	StartTime    time.Time
	LastActivity time.Time
}

func (c *Call) info() Info {
	return Info{
		Peer:         c.Peer,
		CallID:       c.ID,
		State:        c.State,
		Role:         c.Role,
		Settings:     c.Settings,
		AudioPump:    c.audioRunning.Load(),
		VideoPump:    c.videoRunning.Load(),
		AudioSent:    c.audioSent.Load(),
		VideoSent:    c.videoSent.Load(),
		AudioRecv:    c.audioRecv,
		VideoRecv:    c.videoRecv,
		StartTime:    c.StartTime,
		LastActivity: c.LastSeen,
	}
}

// openDevices opens the devices the negotiated settings need. Nothing stays
// open on error.
func (c *Call) openDevices(p DeviceProvider) error {
	if p == nil {
		return fmt.Errorf("%w: no device provider", ErrDeviceUnavailable)
	}
	a, err := p.OpenAudio(c.Settings)
	if err != nil {
		return fmt.Errorf("%w: audio: %v", ErrDeviceUnavailable, err)
	}
	var v VideoDevice
	if c.Settings.CallType.HasVideo() {
		v, err = p.OpenVideo(c.Settings)
		if err != nil {
			_ = a.Close()
			return fmt.Errorf("%w: video: %v", ErrDeviceUnavailable, err)
		}
	}
	c.audioDev = a
	c.videoDev = v
	return nil
}

// startMedia launches the audio pump and, for video calls, the video pump.
// It runs at most once per call.
func (m *Manager) startMedia(c *Call) {
	if c.mediaStarted {
		return
	}
	c.mediaStarted = true
	c.stop.Store(false)

	s := c.Settings
	if c.audioDev != nil {
		c.audioRunning.Store(true)
		c.wg.Add(1)
		go m.audioPump(c, s, c.audioDev)
	}
	if c.videoDev != nil && s.CallType.HasVideo() {
		c.videoRunning.Store(true)
		c.wg.Add(1)
		go m.videoPump(c, c.videoDev)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "startMedia",
		"peer_id":    c.Peer,
		"call_id":    c.ID,
		"call_type":  s.CallType.String(),
		"frame_size": s.FrameSize(),
	}).Info("Media pumps started")
}

// stopMedia stops the pumps, waits for them and closes the devices. It is a
// no-op when media never started and safe to call more than once.
func (m *Manager) stopMedia(c *Call) {
	c.stop.Store(true)
	c.wg.Wait()
	m.closeDevices(c)
}

// closeDevices releases the devices of a call whose pumps are not running.
func (m *Manager) closeDevices(c *Call) {
	var errs []error
	if c.audioDev != nil {
		errs = append(errs, c.audioDev.Close())
		c.audioDev = nil
	}
	if c.videoDev != nil {
		errs = append(errs, c.videoDev.Close())
		c.videoDev = nil
	}
	c.rgb = video.Frame{}

	if err := errors.Join(errs...); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "closeDevices",
			"peer_id":  c.Peer,
			"call_id":  c.ID,
			"error":    err.Error(),
		}).Error("Failed to close media devices")
	}
}

func (m *Manager) pumpSend(c *Call, msg channel.Message) bool {
	err := m.ch.Send(c.Peer, msg)
	if err == nil {
		return true
	}
	entry := logrus.WithFields(logrus.Fields{
		"function": "pumpSend",
		"peer_id":  c.Peer,
		"call_id":  c.ID,
		"kind":     msg.Kind().String(),
		"error":    err.Error(),
	})
	if errors.Is(err, channel.ErrBusy) {
		entry.Debug("Channel busy, dropping media frame")
	} else {
		entry.Warn("Failed to send media frame")
	}
	return false
}

// audioPump captures and sends one audio frame per iteration until the call
// is stopped.
func (m *Manager) audioPump(c *Call, s Settings, dev AudioDevice) {
	defer c.wg.Done()
	defer c.audioRunning.Store(false)

	samples := s.FrameSize()
	pcm := make([]byte, audio.FrameBytes(samples, int(s.Channels)))

	for !c.stop.Load() {
		if err := dev.Capture(pcm); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "audioPump",
				"peer_id":  c.Peer,
				"error":    err.Error(),
			}).Debug("Audio capture failed")
		} else if data, err := m.encode(pcm, samples, int(s.Channels)); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "audioPump",
				"peer_id":  c.Peer,
				"error":    err.Error(),
			}).Debug("Audio encoding failed")
		} else {
			frame := channel.AudioFrame{
				CallID:      c.ID,
				SampleCount: uint16(samples),
				Channels:    s.Channels,
				SampleRate:  s.SampleRate,
				Data:        data,
			}
			if m.pumpSend(c, frame) {
				c.audioSent.Add(1)
			}
		}
		time.Sleep(m.cfg.PumpInterval)
	}
}

func (m *Manager) encode(pcm []byte, samples, channels int) ([]byte, error) {
	if m.cfg.Encoder == nil {
		return pcm, nil
	}
	return m.cfg.Encoder.Encode(pcm, samples, channels)
}

// videoPump captures, converts to I420 and sends one frame per iteration
// until the call is stopped.
func (m *Manager) videoPump(c *Call, dev VideoDevice) {
	defer c.wg.Done()
	defer c.videoRunning.Store(false)

	var buf []byte
	for !c.stop.Load() {
		f, err := dev.Capture()
		if err == nil {
			buf, err = video.RGBToI420(f, buf)
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "videoPump",
				"peer_id":  c.Peer,
				"error":    err.Error(),
			}).Debug("Video capture failed")
		} else {
			frame := channel.VideoFrame{
				CallID: c.ID,
				Width:  f.Width,
				Height: f.Height,
				Data:   buf,
			}
			if m.pumpSend(c, frame) {
				c.videoSent.Add(1)
			}
		}
		time.Sleep(m.cfg.PumpInterval)
	}
}
