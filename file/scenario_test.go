package file

import (
	"math/rand"
	"testing"

	"github.com/opd-ai/toxpeer/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

type loopbackPair struct {
	network          *channel.Network
	senderEnd        *channel.Endpoint
	receiverEnd      *channel.Endpoint
	sender, receiver *Manager
}

const (
	senderID   channel.PeerID = 1
	receiverID channel.PeerID = 2
)

func newLoopbackPair(t *testing.T) *loopbackPair {
	t.Helper()

	n := channel.NewNetwork(0)
	a, err := n.Join(senderID)
	require.NoError(t, err)
	b, err := n.Join(receiverID)
	require.NoError(t, err)
	require.NoError(t, n.Connect(senderID, receiverID))

	p := &loopbackPair{
		network:     n,
		senderEnd:   a,
		receiverEnd: b,
		sender:      NewManager(a, testConfig()),
		receiver:    NewManager(b, testConfig()),
	}
	p.step()
	return p
}

func pumpOnce(m *Manager, ep *channel.Endpoint) {
	events, _ := ep.Poll(0)
	for _, ev := range events {
		_ = m.HandleEvent(ev)
	}
	m.Tick()
}

// step runs one tick on each side.
func (p *loopbackPair) step() {
	pumpOnce(p.receiver, p.receiverEnd)
	pumpOnce(p.sender, p.senderEnd)
}

func TestTransferWithSeekDeliversTail(t *testing.T) {
	const (
		size   = 1048576
		offset = 567
	)
	p := newLoopbackPair(t)

	src := make([]byte, size)
	rand.New(rand.NewSource(42)).Read(src)

	probes := 0
	p.sender.On(EventChunkRequest, func(ev Event) {
		if ev.Length == 0 {
			probes++
			return
		}
		end := ev.Position + uint64(ev.Length)
		require.NoError(t, p.sender.SendChunk(ev.Key.Peer, ev.Key.Number, ev.Position, src[ev.Position:end]))
	})

	p.receiver.On(EventRecv, func(ev Event) {
		assert.Equal(t, "test.bin", ev.FileName)
		require.NoError(t, p.receiver.Seek(ev.Key.Peer, ev.Key.Number, offset))
		require.NoError(t, p.receiver.Control(ev.Key.Peer, ev.Key.Number, ControlResume))
	})

	buf := make([]byte, size-offset)
	var received int
	var sawEOS bool
	p.receiver.On(EventRecvChunk, func(ev Event) {
		if ev.Data == nil {
			sawEOS = true
			return
		}
		copy(buf[ev.Position-offset:], ev.Data)
		received += len(ev.Data)
	})

	var senderDone, receiverDone []error
	p.sender.On(EventDone, func(ev Event) { senderDone = append(senderDone, ev.Err) })
	p.receiver.On(EventDone, func(ev Event) { receiverDone = append(receiverDone, ev.Err) })

	_, err := p.sender.SendFile(receiverID, KindData, size, [32]byte{}, "test.bin")
	require.NoError(t, err)

	for i := 0; i < 5000 && (len(senderDone) == 0 || len(receiverDone) == 0); i++ {
		p.step()
	}

	require.Len(t, receiverDone, 1)
	require.Len(t, senderDone, 1)
	assert.NoError(t, receiverDone[0])
	assert.NoError(t, senderDone[0])
	assert.True(t, sawEOS)
	assert.Equal(t, 1, probes)

	assert.Equal(t, 1048009, received)
	assert.Equal(t, blake2b.Sum256(src[offset:]), blake2b.Sum256(buf))

	assert.Empty(t, p.sender.Transfers(receiverID))
	assert.Empty(t, p.receiver.Transfers(senderID))
}

func TestCancelRightAfterAnnounce(t *testing.T) {
	p := newLoopbackPair(t)

	requests := 0
	p.sender.On(EventChunkRequest, func(Event) { requests++ })

	var senderDone []error
	p.sender.On(EventDone, func(ev Event) { senderDone = append(senderDone, ev.Err) })

	p.receiver.On(EventRecv, func(ev Event) {
		require.NoError(t, p.receiver.Control(ev.Key.Peer, ev.Key.Number, ControlCancel))
	})

	number, err := p.sender.SendFile(receiverID, KindData, 4096, [32]byte{}, "gone.bin")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		p.step()
	}

	require.Len(t, senderDone, 1)
	assert.ErrorIs(t, senderDone[0], ErrCanceled)
	assert.Zero(t, requests)
	assert.ErrorIs(t, p.sender.Control(receiverID, number, ControlResume), ErrTransferNotFound)
}

func TestDisconnectMidTransfer(t *testing.T) {
	p := newLoopbackPair(t)

	p.receiver.On(EventRecv, func(ev Event) {
		require.NoError(t, p.receiver.Control(ev.Key.Peer, ev.Key.Number, ControlResume))
	})
	var senderErr, receiverErr error
	p.sender.On(EventDone, func(ev Event) { senderErr = ev.Err })
	p.receiver.On(EventDone, func(ev Event) { receiverErr = ev.Err })

	_, err := p.sender.SendFile(receiverID, KindData, 1<<20, [32]byte{}, "big.bin")
	require.NoError(t, err)
	p.step()
	p.step()

	require.NoError(t, p.network.Disconnect(senderID, receiverID))
	p.step()

	assert.ErrorIs(t, senderErr, ErrPeerDisconnected)
	assert.ErrorIs(t, receiverErr, ErrPeerDisconnected)
}

func TestNewFileIDIsUnique(t *testing.T) {
	a := NewFileID("same.txt", 10)
	b := NewFileID("same.txt", 10)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, [32]byte{}, a)
}
