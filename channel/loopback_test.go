package channel

import (
	"testing"
	"time"

	"github.com/opd-ai/toxpeer/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLinkedPair(t *testing.T, inbox int) (*Network, *Endpoint, *Endpoint) {
	t.Helper()
	n := NewNetwork(inbox)
	a, err := n.Join(1)
	require.NoError(t, err)
	b, err := n.Join(2)
	require.NoError(t, err)
	require.NoError(t, n.Connect(1, 2))
	return n, a, b
}

func TestLoopbackConnectDeliversStatus(t *testing.T) {
	_, a, b := newLinkedPair(t, 0)

	events, err := a.Poll(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Peer: 2, Message: ConnectionStatus{Connected: true}}, events[0])

	events, err = b.Poll(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, PeerID(1), events[0].Peer)
}

func TestLoopbackSendPreservesOrder(t *testing.T) {
	_, a, b := newLinkedPair(t, 0)
	_, _ = b.Poll(0)

	for i := uint64(0); i < 5; i++ {
		require.NoError(t, a.Send(2, FileSeek{Number: 1, Position: i}))
	}

	events, err := b.Poll(10 * time.Millisecond)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, PeerID(1), ev.Peer)
		assert.Equal(t, FileSeek{Number: 1, Position: uint64(i)}, ev.Message)
	}
}

func TestLoopbackSendToUnlinkedPeer(t *testing.T) {
	n := NewNetwork(0)
	a, err := n.Join(1)
	require.NoError(t, err)
	_, err = n.Join(2)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Send(2, PeerTimeout{}), ErrPeerOffline)
	assert.ErrorIs(t, a.Send(3, PeerTimeout{}), ErrPeerOffline)
}

func TestLoopbackFullInboxIsBusy(t *testing.T) {
	_, a, _ := newLinkedPair(t, 2)

	// The connection status event already occupies one slot.
	require.NoError(t, a.Send(2, PeerTimeout{}))
	err := a.Send(2, PeerTimeout{})
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, retry.IsTransient(err))
}

func TestLoopbackDisconnect(t *testing.T) {
	n, a, b := newLinkedPair(t, 0)
	_, _ = a.Poll(0)
	_, _ = b.Poll(0)

	require.NoError(t, n.Disconnect(1, 2))

	events, err := b.Poll(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ConnectionStatus{Connected: false}, events[0].Message)
	assert.ErrorIs(t, a.Send(2, PeerTimeout{}), ErrPeerOffline)
}

func TestLoopbackCloseNotifiesPeers(t *testing.T) {
	_, a, b := newLinkedPair(t, 0)
	_, _ = b.Poll(0)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	events, err := b.Poll(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Peer: 1, Message: ConnectionStatus{Connected: false}}, events[0])

	_, err = a.Poll(0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Send(2, PeerTimeout{}), ErrClosed)
}

func TestLoopbackPollWaitsForFirstEvent(t *testing.T) {
	_, a, b := newLinkedPair(t, 0)
	_, _ = b.Poll(0)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = a.Send(2, PeerTimeout{CallID: 4})
	}()

	events, err := b.Poll(time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, PeerTimeout{CallID: 4}, events[0].Message)
}

func TestLoopbackJoinTwice(t *testing.T) {
	n := NewNetwork(0)
	_, err := n.Join(1)
	require.NoError(t, err)
	_, err = n.Join(1)
	assert.Error(t, err)
}
