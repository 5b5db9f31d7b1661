package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInboxSize is the number of undelivered messages an endpoint holds
// before Send starts returning ErrBusy.
const DefaultInboxSize = 1024

type link struct {
	a, b PeerID
}

func newLink(a, b PeerID) link {
	if a > b {
		a, b = b, a
	}
	return link{a: a, b: b}
}

// Network is an in-memory loopback transport connecting endpoints inside one
// process. Every message is run through Encode and Decode on its way to the
// receiving endpoint.
type Network struct {
	mu        sync.Mutex
	endpoints map[PeerID]*Endpoint
	links     map[link]bool
	inboxSize int
}

// NewNetwork creates an empty loopback network. An inboxSize of zero selects
// DefaultInboxSize.
func NewNetwork(inboxSize int) *Network {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Network{
		endpoints: make(map[PeerID]*Endpoint),
		links:     make(map[link]bool),
		inboxSize: inboxSize,
	}
}

// Join attaches a new endpoint with the given identity.
func (n *Network) Join(id PeerID) (*Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.endpoints[id]; exists {
		return nil, fmt.Errorf("endpoint %d already joined", id)
	}

	e := &Endpoint{
		id:      id,
		network: n,
		limit:   n.inboxSize,
		notify:  make(chan struct{}, 1),
	}
	n.endpoints[id] = e

	logrus.WithFields(logrus.Fields{
		"function": "Network.Join",
		"peer_id":  id,
	}).Debug("Endpoint joined loopback network")

	return e, nil
}

// Connect establishes a link between a and b. Each side receives a
// ConnectionStatus event naming the other.
func (n *Network) Connect(a, b PeerID) error {
	return n.setLink(a, b, true)
}

// Disconnect tears down the link between a and b. Each side receives a
// ConnectionStatus event naming the other.
func (n *Network) Disconnect(a, b PeerID) error {
	return n.setLink(a, b, false)
}

func (n *Network) setLink(a, b PeerID, up bool) error {
	n.mu.Lock()
	ea, okA := n.endpoints[a]
	eb, okB := n.endpoints[b]
	if !okA || !okB {
		n.mu.Unlock()
		return ErrPeerOffline
	}
	l := newLink(a, b)
	if n.links[l] == up {
		n.mu.Unlock()
		return nil
	}
	if up {
		n.links[l] = true
	} else {
		delete(n.links, l)
	}
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Network.setLink",
		"peer_a":   a,
		"peer_b":   b,
		"up":       up,
	}).Debug("Loopback link changed")

	ea.push(Event{Peer: b, Message: ConnectionStatus{Connected: up}}, true)
	eb.push(Event{Peer: a, Message: ConnectionStatus{Connected: up}}, true)
	return nil
}

func (n *Network) route(from, to PeerID) (*Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.links[newLink(from, to)] {
		return nil, ErrPeerOffline
	}
	e, ok := n.endpoints[to]
	if !ok {
		return nil, ErrPeerOffline
	}
	return e, nil
}

func (n *Network) leave(e *Endpoint) []*Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.endpoints, e.id)
	var peers []*Endpoint
	for l := range n.links {
		if l.a != e.id && l.b != e.id {
			continue
		}
		other := l.a
		if other == e.id {
			other = l.b
		}
		delete(n.links, l)
		if p, ok := n.endpoints[other]; ok {
			peers = append(peers, p)
		}
	}
	return peers
}

// Endpoint is one node's view of a loopback Network. It implements Channel.
type Endpoint struct {
	id      PeerID
	network *Network

	mu     sync.Mutex
	queue  []Event
	limit  int
	closed bool
	notify chan struct{}
}

// ID returns the identity the endpoint joined with.
func (e *Endpoint) ID() PeerID {
	return e.id
}

// Send encodes msg and queues the decoded copy on the peer's endpoint.
func (e *Endpoint) Send(peer PeerID, msg Message) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}
	target, err := e.network.route(e.id, peer)
	if err != nil {
		return err
	}
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	return target.push(Event{Peer: e.id, Message: decoded}, false)
}

// push appends ev to the inbox. Connection events use force so they are never
// lost to a full inbox.
func (e *Endpoint) push(ev Event, force bool) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrPeerOffline
	}
	if !force && len(e.queue) >= e.limit {
		e.mu.Unlock()
		return ErrBusy
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
	return nil
}

// Poll returns every queued event, waiting up to wait for the first one.
func (e *Endpoint) Poll(wait time.Duration) ([]Event, error) {
	events, err := e.drain()
	if err != nil || len(events) > 0 || wait <= 0 {
		return events, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-e.notify:
	case <-timer.C:
	}
	return e.drain()
}

func (e *Endpoint) drain() ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	events := e.queue
	e.queue = nil
	return events, nil
}

// Close detaches the endpoint. Every linked peer observes a disconnect.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.queue = nil
	e.mu.Unlock()

	for _, p := range e.network.leave(e) {
		p.push(Event{Peer: e.id, Message: ConnectionStatus{Connected: false}}, true)
	}
	return nil
}
