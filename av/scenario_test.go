package av

import (
	"testing"
	"time"

	"github.com/opd-ai/toxpeer/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	callerID channel.PeerID = 1
	calleeID channel.PeerID = 2
)

type side struct {
	*Manager
	end      *channel.Endpoint
	rec      *recorder
	provider *mockProvider
}

func (s *side) step() {
	events, _ := s.end.Poll(0)
	for _, ev := range events {
		_ = s.HandleEvent(ev)
	}
	s.Tick()
}

type callPair struct {
	network        *channel.Network
	caller, callee *side
}

func newSide(t *testing.T, n *channel.Network, id channel.PeerID) *side {
	t.Helper()

	ep, err := n.Join(id)
	require.NoError(t, err)

	p := &mockProvider{}
	m := NewManager(ep, testConfig(p))
	t.Cleanup(m.StopAll)

	rec := &recorder{}
	rec.watch(m)
	return &side{Manager: m, end: ep, rec: rec, provider: p}
}

func newCallPair(t *testing.T) *callPair {
	t.Helper()

	n := channel.NewNetwork(0)
	p := &callPair{
		network: n,
		caller:  newSide(t, n, callerID),
		callee:  newSide(t, n, calleeID),
	}
	require.NoError(t, n.Connect(callerID, calleeID))
	p.step()
	return p
}

func (p *callPair) step() {
	p.callee.step()
	p.caller.step()
}

// until steps both sides until cond holds.
func (p *callPair) until(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		p.step()
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func (p *callPair) answerWith(callType CallType) {
	p.callee.On(EventInvite, func(ev Event) {
		p.callee.rec.handler(ev)
		_ = p.callee.Answer(ev.Peer, callType)
	})
}

func TestAudioCallFlow(t *testing.T) {
	p := newCallPair(t)
	p.answerWith(CallTypeAudio)

	audioIn := 0
	p.callee.On(EventAudioData, func(ev Event) {
		assert.Equal(t, 960, ev.SampleCount)
		assert.Len(t, ev.PCM, 1920)
		audioIn++
	})

	_, err := p.caller.Call(calleeID, CallTypeAudio, 0)
	require.NoError(t, err)

	p.until(t, func() bool { return len(p.caller.rec.of(EventStart)) == 1 })
	assert.Equal(t, []EventKind{EventRinging, EventStart}, p.caller.rec.kinds())
	assert.Equal(t, []EventKind{EventInvite, EventStart}, p.callee.rec.kinds())

	p.until(t, func() bool { return audioIn >= 5 })
	assert.Positive(t, p.callee.provider.lastAudio().playedCount())

	require.NoError(t, p.caller.Hangup(calleeID))
	p.until(t, func() bool { return len(p.callee.rec.of(EventEnd)) == 1 })

	assert.True(t, p.caller.provider.lastAudio().isClosed())
	assert.True(t, p.callee.provider.lastAudio().isClosed())
	assert.Empty(t, p.caller.Calls())
	assert.Empty(t, p.callee.Calls())
}

func TestVideoInviteAnsweredAudioOnly(t *testing.T) {
	p := newCallPair(t)
	p.answerWith(CallTypeAudio)

	_, err := p.caller.Call(calleeID, CallTypeVideo, 0)
	require.NoError(t, err)
	p.until(t, func() bool { return len(p.caller.rec.of(EventStart)) == 1 })

	invite := p.callee.rec.of(EventInvite)[0]
	assert.Equal(t, CallTypeVideo, invite.ProposedType)

	for _, tc := range []struct {
		s    *side
		peer channel.PeerID
	}{{p.caller, calleeID}, {p.callee, callerID}} {
		info, err := tc.s.Info(tc.peer)
		require.NoError(t, err)
		assert.Equal(t, CallTypeAudio, info.Settings.CallType)
		assert.False(t, info.VideoPump)
		assert.Empty(t, tc.s.provider.video)
	}
}

func TestVideoCallDeliversFrames(t *testing.T) {
	p := newCallPair(t)
	p.answerWith(CallTypeVideo)

	frames := 0
	p.caller.On(EventVideoData, func(ev Event) {
		assert.Equal(t, uint16(32), ev.Frame.Width)
		assert.Equal(t, uint16(24), ev.Frame.Height)
		assert.Len(t, ev.Frame.RGB, 32*24*3)
		frames++
	})

	_, err := p.caller.Call(calleeID, CallTypeVideo, 0)
	require.NoError(t, err)
	p.until(t, func() bool { return frames >= 3 })
	assert.Positive(t, p.caller.provider.lastVideo().displayedCount())

	require.NoError(t, p.callee.Hangup(callerID))
	p.until(t, func() bool { return len(p.caller.rec.of(EventEnd)) == 1 })
	assert.True(t, p.caller.provider.lastVideo().isClosed())
}

func TestRejectedCall(t *testing.T) {
	p := newCallPair(t)
	p.callee.On(EventInvite, func(ev Event) {
		_ = p.callee.Reject(ev.Peer)
	})

	_, err := p.caller.Call(calleeID, CallTypeAudio, 0)
	require.NoError(t, err)
	p.until(t, func() bool { return len(p.caller.rec.of(EventReject)) == 1 })

	assert.Empty(t, p.caller.provider.audio)
	assert.Empty(t, p.callee.Calls())
}

func TestCallerCancelsWhileRinging(t *testing.T) {
	p := newCallPair(t)

	_, err := p.caller.Call(calleeID, CallTypeAudio, 0)
	require.NoError(t, err)
	p.until(t, func() bool { return len(p.caller.rec.of(EventRinging)) == 1 })

	require.NoError(t, p.caller.Cancel(calleeID))
	p.until(t, func() bool { return len(p.callee.rec.of(EventCancel)) == 1 })

	assert.Equal(t, []EventKind{EventInvite, EventCancel}, p.callee.rec.kinds())
	assert.Equal(t, []EventKind{EventRinging, EventCancel}, p.caller.rec.kinds())
}

func TestDisconnectWhileActive(t *testing.T) {
	p := newCallPair(t)
	p.answerWith(CallTypeAudio)

	_, err := p.caller.Call(calleeID, CallTypeAudio, 0)
	require.NoError(t, err)
	p.until(t, func() bool { return len(p.caller.rec.of(EventStart)) == 1 })

	require.NoError(t, p.network.Disconnect(callerID, calleeID))
	p.until(t, func() bool {
		return len(p.caller.rec.of(EventPeerTimeout)) == 1 && len(p.callee.rec.of(EventPeerTimeout)) == 1
	})
	assert.True(t, p.caller.provider.lastAudio().isClosed())
	assert.True(t, p.callee.provider.lastAudio().isClosed())
}

func TestBitrateChangeReachesPeer(t *testing.T) {
	p := newCallPair(t)
	p.answerWith(CallTypeVideo)

	_, err := p.caller.Call(calleeID, CallTypeVideo, 0)
	require.NoError(t, err)
	p.until(t, func() bool { return len(p.caller.rec.of(EventStart)) == 1 })

	require.NoError(t, p.caller.ChangeBitrate(calleeID, 32, 1200))
	p.until(t, func() bool { return len(p.callee.rec.of(EventMediaChange)) == 1 })

	ev := p.callee.rec.of(EventMediaChange)[0]
	assert.Equal(t, uint32(32), ev.AudioBitRate)
	assert.Equal(t, uint32(1200), ev.VideoBitRate)
}
