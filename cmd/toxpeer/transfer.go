package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/opd-ai/toxpeer"
	"github.com/opd-ai/toxpeer/channel"
	"github.com/opd-ai/toxpeer/file"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// fileDigest returns the hex BLAKE2b-256 digest of the file at path.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// outgoing serves chunk requests for one file sent to a peer.
type outgoing struct {
	node   *toxpeer.Node
	peer   channel.PeerID
	number uint32
	f      *os.File
	buf    []byte
	digest string
	done   chan error
}

// sendFile announces the file at path to peer. The returned transfer's done
// channel receives the outcome once.
func sendFile(node *toxpeer.Node, peer channel.PeerID, path string) (*outgoing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	digest, err := fileDigest(path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("digest %s: %w", path, err)
	}

	files := node.Files()
	number, err := files.SendFile(peer, file.KindData, uint64(st.Size()), [32]byte{}, filepath.Base(path))
	if err != nil {
		f.Close()
		return nil, err
	}

	o := &outgoing{
		node:   node,
		peer:   peer,
		number: number,
		f:      f,
		digest: digest,
		done:   make(chan error, 1),
	}
	files.OnTransfer(peer, number, file.EventChunkRequest, o.onChunkRequest)
	files.OnTransfer(peer, number, file.EventDone, o.onDone)

	logrus.WithFields(logrus.Fields{
		"function": "sendFile",
		"peer_id":  peer,
		"number":   number,
		"path":     path,
		"size":     st.Size(),
		"blake2b":  digest,
	}).Info("Offering file")
	return o, nil
}

func (o *outgoing) onChunkRequest(ev file.Event) {
	if ev.Length == 0 {
		return
	}
	if cap(o.buf) < ev.Length {
		o.buf = make([]byte, ev.Length)
	}
	buf := o.buf[:ev.Length]

	n, err := o.f.ReadAt(buf, int64(ev.Position))
	if err != nil && !(err == io.EOF && n == len(buf)) {
		logrus.WithFields(logrus.Fields{
			"function": "onChunkRequest",
			"number":   o.number,
			"position": ev.Position,
			"error":    err.Error(),
		}).Error("Failed to read chunk")
		_ = o.node.Files().Control(o.peer, o.number, file.ControlCancel)
		return
	}
	if err := o.node.Files().SendChunk(o.peer, o.number, ev.Position, buf); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onChunkRequest",
			"number":   o.number,
			"position": ev.Position,
			"error":    err.Error(),
		}).Warn("Failed to send chunk")
	}
}

func (o *outgoing) onDone(ev file.Event) {
	o.f.Close()
	o.done <- ev.Err
}

// receiver accepts every incoming file into a directory.
type receiver struct {
	node *toxpeer.Node
	dir  string

	mu       sync.Mutex
	open     map[file.Key]*os.File
	finished chan string
}

func newReceiver(node *toxpeer.Node, dir string) *receiver {
	r := &receiver{
		node:     node,
		dir:      dir,
		open:     make(map[file.Key]*os.File),
		finished: make(chan string, 16),
	}
	files := node.Files()
	files.On(file.EventRecv, r.onRecv)
	files.On(file.EventRecvChunk, r.onChunk)
	files.On(file.EventDone, r.onDone)
	return r
}

// localName maps a peer-supplied name to a file inside the receive directory.
func localName(name string, number uint32) string {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) || name == "" {
		return fmt.Sprintf("transfer-%d", number)
	}
	return base
}

func (r *receiver) onRecv(ev file.Event) {
	path := filepath.Join(r.dir, localName(ev.FileName, ev.Key.Number))
	f, err := os.Create(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onRecv",
			"path":     path,
			"error":    err.Error(),
		}).Error("Failed to create file")
		_ = r.node.Files().Control(ev.Key.Peer, ev.Key.Number, file.ControlCancel)
		return
	}

	r.mu.Lock()
	r.open[ev.Key] = f
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "onRecv",
		"peer_id":  ev.Key.Peer,
		"number":   ev.Key.Number,
		"path":     path,
		"size":     ev.FileSize,
	}).Info("Accepting file")

	if err := r.node.Files().Control(ev.Key.Peer, ev.Key.Number, file.ControlResume); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onRecv",
			"number":   ev.Key.Number,
			"error":    err.Error(),
		}).Error("Failed to resume transfer")
	}
}

func (r *receiver) onChunk(ev file.Event) {
	if ev.Data == nil {
		return
	}
	r.mu.Lock()
	f := r.open[ev.Key]
	r.mu.Unlock()
	if f == nil {
		return
	}
	if _, err := f.WriteAt(ev.Data, int64(ev.Position)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onChunk",
			"number":   ev.Key.Number,
			"error":    err.Error(),
		}).Error("Failed to write chunk")
		_ = r.node.Files().Control(ev.Key.Peer, ev.Key.Number, file.ControlCancel)
	}
}

func (r *receiver) onDone(ev file.Event) {
	r.mu.Lock()
	f := r.open[ev.Key]
	delete(r.open, ev.Key)
	r.mu.Unlock()
	if f == nil {
		return
	}
	path := f.Name()
	f.Close()

	entry := logrus.WithFields(logrus.Fields{
		"function": "onDone",
		"peer_id":  ev.Key.Peer,
		"number":   ev.Key.Number,
		"path":     path,
	})
	if ev.Err != nil {
		entry.WithField("error", ev.Err.Error()).Warn("File transfer failed")
		return
	}

	digest, err := fileDigest(path)
	if err != nil {
		entry.WithField("error", err.Error()).Error("Failed to hash received file")
		return
	}
	entry.WithField("blake2b", digest).Info("File received")

	select {
	case r.finished <- path:
	default:
	}
}
