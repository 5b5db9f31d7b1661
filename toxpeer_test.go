package toxpeer

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/toxpeer/av"
	"github.com/opd-ai/toxpeer/channel"
	"github.com/opd-ai/toxpeer/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceID channel.PeerID = 1
	bobID   channel.PeerID = 2
)

func testOptions() *Options {
	o := NewOptions()
	o.PollWait = 0
	o.IterationInterval = time.Millisecond
	o.RetryDelay = 0
	return o
}

type nodePair struct {
	network    *channel.Network
	alice, bob *Node
}

func newNodePair(t *testing.T, opts func(*Options)) *nodePair {
	t.Helper()

	n := channel.NewNetwork(0)
	a, err := n.Join(aliceID)
	require.NoError(t, err)
	b, err := n.Join(bobID)
	require.NoError(t, err)

	oa, ob := testOptions(), testOptions()
	if opts != nil {
		opts(oa)
		opts(ob)
	}
	alice, err := New(a, oa)
	require.NoError(t, err)
	bob, err := New(b, ob)
	require.NoError(t, err)
	t.Cleanup(alice.Kill)
	t.Cleanup(bob.Kill)

	require.NoError(t, n.Connect(aliceID, bobID))
	p := &nodePair{network: n, alice: alice, bob: bob}
	p.step()
	return p
}

func (p *nodePair) step() {
	_ = p.bob.Iterate()
	_ = p.alice.Iterate()
}

func (p *nodePair) until(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		p.step()
		return cond()
	}, 5*time.Second, time.Millisecond)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	o := NewOptions()
	o.Window = 0
	_, err = New(newBlockingChannel(), o)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestNewUsesDefaultOptions(t *testing.T) {
	n, err := New(newBlockingChannel(), nil)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, n.IterationInterval())
	assert.NotNil(t, n.Files())
	assert.NotNil(t, n.Calls())
}

func TestIterateIsNotReentrant(t *testing.T) {
	ch := newBlockingChannel()
	n, err := New(ch, testOptions())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, n.Iterate())
	}()

	<-ch.entered
	assert.ErrorIs(t, n.Iterate(), ErrTickInProgress)

	close(ch.release)
	wg.Wait()
	assert.NoError(t, n.Iterate())
}

func TestFileTransferBetweenNodes(t *testing.T) {
	p := newNodePair(t, nil)

	src := make([]byte, 20000)
	rand.New(rand.NewSource(7)).Read(src)

	alice := p.alice.Files()
	alice.On(file.EventChunkRequest, func(ev file.Event) {
		if ev.Length == 0 {
			return
		}
		end := ev.Position + uint64(ev.Length)
		assert.NoError(t, alice.SendChunk(ev.Key.Peer, ev.Key.Number, ev.Position, src[ev.Position:end]))
	})

	bob := p.bob.Files()
	var got bytes.Buffer
	var done []file.Event
	bob.On(file.EventRecv, func(ev file.Event) {
		assert.Equal(t, "notes.bin", ev.FileName)
		assert.NoError(t, bob.Control(ev.Key.Peer, ev.Key.Number, file.ControlResume))
	})
	bob.On(file.EventRecvChunk, func(ev file.Event) {
		got.Write(ev.Data)
	})
	bob.On(file.EventDone, func(ev file.Event) {
		done = append(done, ev)
	})

	_, err := alice.SendFile(bobID, file.KindData, uint64(len(src)), [32]byte{}, "notes.bin")
	require.NoError(t, err)

	p.until(t, func() bool { return len(done) == 1 })
	assert.NoError(t, done[0].Err)
	assert.Equal(t, src, got.Bytes())
}

func TestAudioCallBetweenNodes(t *testing.T) {
	devices := &toneDevices{}
	p := newNodePair(t, func(o *Options) { o.Devices = devices })

	bobCalls := p.bob.Calls()
	bobCalls.On(av.EventInvite, func(ev av.Event) {
		assert.NoError(t, bobCalls.Answer(ev.Peer, ev.ProposedType))
	})

	var started, ended int
	aliceCalls := p.alice.Calls()
	aliceCalls.On(av.EventStart, func(av.Event) { started++ })
	bobCalls.On(av.EventEnd, func(av.Event) { ended++ })

	_, err := aliceCalls.Call(bobID, av.CallTypeAudio, 0)
	require.NoError(t, err)
	p.until(t, func() bool { return started == 1 })

	p.until(t, func() bool {
		played, _ := devices.counts()
		return played >= 10
	})

	require.NoError(t, aliceCalls.Hangup(bobID))
	p.until(t, func() bool { return ended == 1 })

	_, closed := devices.counts()
	assert.Equal(t, 2, closed)
}

func TestKillCancelsTransfersAndNotifiesPeer(t *testing.T) {
	p := newNodePair(t, nil)

	var aliceDone []file.Event
	p.alice.Files().On(file.EventDone, func(ev file.Event) { aliceDone = append(aliceDone, ev) })

	var bobDone []file.Event
	bob := p.bob.Files()
	bob.On(file.EventDone, func(ev file.Event) { bobDone = append(bobDone, ev) })

	_, err := p.alice.Files().SendFile(bobID, file.KindData, 1<<20, [32]byte{}, "big")
	require.NoError(t, err)
	p.step()

	p.alice.Kill()
	require.Len(t, aliceDone, 1)
	assert.ErrorIs(t, aliceDone[0].Err, file.ErrCanceled)
	assert.ErrorIs(t, p.alice.Iterate(), ErrKilled)

	require.Eventually(t, func() bool {
		_ = p.bob.Iterate()
		return len(bobDone) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, file.IsTerminalError(bobDone[0].Err))

	p.alice.Kill()
}

func TestRunStopsOnCancel(t *testing.T) {
	p := newNodePair(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.alice.Run(ctx), context.DeadlineExceeded)
}

func TestRunReturnsWhenKilled(t *testing.T) {
	p := newNodePair(t, nil)

	errc := make(chan error, 1)
	go func() { errc <- p.alice.Run(context.Background()) }()

	time.Sleep(5 * time.Millisecond)
	p.alice.Kill()

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Kill")
	}
}
