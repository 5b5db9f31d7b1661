package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/toxpeer/limits"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsEventBuffer  = 256
)

var wsDialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSChannel is a Channel to exactly one remote peer over a websocket
// connection. Each message travels as one binary frame.
type WSChannel struct {
	conn *websocket.Conn
	peer PeerID

	writeMu sync.Mutex
	events  chan Event
	done    chan struct{}

	closeOnce sync.Once
}

// DialWS connects to a websocket URL and treats the remote end as peer.
func DialWS(ctx context.Context, wsURL string, peer PeerID) (*WSChannel, error) {
	conn, resp, err := wsDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}
	return NewWSChannel(conn, peer), nil
}

// AcceptWS upgrades an HTTP request and treats the client as peer.
func AcceptWS(w http.ResponseWriter, r *http.Request, peer PeerID) (*WSChannel, error) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWSChannel(conn, peer), nil
}

// NewWSChannel wraps an established connection and starts its read loop.
// The first event delivered is a ConnectionStatus reporting the peer online.
func NewWSChannel(conn *websocket.Conn, peer PeerID) *WSChannel {
	conn.SetReadLimit(limits.MaxMessageSize)

	c := &WSChannel{
		conn:   conn,
		peer:   peer,
		events: make(chan Event, wsEventBuffer),
		done:   make(chan struct{}),
	}
	c.events <- Event{Peer: peer, Message: ConnectionStatus{Connected: true}}

	go c.readLoop()

	logrus.WithFields(logrus.Fields{
		"function": "NewWSChannel",
		"peer_id":  peer,
		"remote":   conn.RemoteAddr().String(),
	}).Info("Websocket channel established")

	return c
}

// Peer returns the identity assigned to the remote end.
func (c *WSChannel) Peer() PeerID {
	return c.peer
}

// Send writes msg as a single binary frame.
func (c *WSChannel) Send(peer PeerID, msg Message) error {
	if peer != c.peer {
		return ErrPeerOffline
	}
	select {
	case <-c.done:
		return ErrPeerOffline
	default:
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "WSChannel.Send",
			"peer_id":  c.peer,
			"kind":     msg.Kind().String(),
			"error":    err.Error(),
		}).Warn("Websocket write failed")
		return fmt.Errorf("%w: %v", ErrPeerOffline, err)
	}
	return nil
}

func (c *WSChannel) readLoop() {
	defer func() {
		c.deliver(Event{Peer: c.peer, Message: ConnectionStatus{Connected: false}})
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithFields(logrus.Fields{
					"function": "WSChannel.readLoop",
					"peer_id":  c.peer,
					"error":    err.Error(),
				}).Warn("Websocket read error")
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		msg, err := Decode(data)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "WSChannel.readLoop",
				"peer_id":  c.peer,
				"size":     len(data),
				"error":    err.Error(),
			}).Warn("Dropping undecodable frame")
			continue
		}

		if !c.deliver(Event{Peer: c.peer, Message: msg}) {
			return
		}
	}
}

func (c *WSChannel) deliver(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// Poll returns the frames read since the last call, waiting up to wait for
// the first one.
func (c *WSChannel) Poll(wait time.Duration) ([]Event, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	var events []Event
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case ev := <-c.events:
			events = append(events, ev)
		case <-timer.C:
			return nil, nil
		case <-c.done:
			return nil, ErrClosed
		}
	}

	for {
		select {
		case ev := <-c.events:
			events = append(events, ev)
		default:
			return events, nil
		}
	}
}

// Close sends a close frame and shuts the connection down.
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}
