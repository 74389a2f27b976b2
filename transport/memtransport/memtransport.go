// Package memtransport is an in-process fake of transport.Transport,
// useful for tests and for the cmd/cdi CLI's --demo mode. It models
// one or more remote nodes as plain byte buffers per memory space and
// answers every request asynchronously from its own goroutine so
// callers can exercise the "returns immediately, completes via
// callback" contract without a real bus.
package memtransport

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
)

// Node is one simulated remote node's memory spaces.
type Node struct {
	mu     sync.Mutex
	spaces map[int][]byte
}

// NewNode constructs an empty simulated node.
func NewNode() *Node {
	return &Node{spaces: make(map[int][]byte)}
}

// SetSpace installs data as the full contents of a memory space,
// replacing anything previously there.
func (n *Node) SetSpace(space int, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	n.spaces[space] = buf
}

func (n *Node) readBytes(space int, offset int64, length int) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	data, ok := n.spaces[space]
	if !ok {
		return nil, false
	}
	lo := int(offset)
	hi := lo + length
	if lo < 0 || hi > len(data) {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, data[lo:hi])
	return out, true
}

func (n *Node) writeBytes(space int, offset int64, data []byte) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf, ok := n.spaces[space]
	if !ok {
		return false
	}
	lo := int(offset)
	hi := lo + len(data)
	if lo < 0 || hi > len(buf) {
		return false
	}
	copy(buf[lo:hi], data)
	return true
}

// Transport is a fake transport.Transport over a fixed set of Nodes.
// Delay, when non-zero, is applied before every response — useful for
// reproducing the staggered-response prefill scenario.
type Transport struct {
	mu    sync.Mutex
	nodes map[transport.NodeID]*Node
	Delay time.Duration

	// FailSpace, when set, makes every read/write against that memory
	// space fail with transport.ErrTimeout — for exercising error
	// propagation.
	FailSpace map[int]bool
}

// New constructs an empty fake transport.
func New() *Transport {
	return &Transport{nodes: make(map[transport.NodeID]*Node)}
}

// AddNode registers n under id.
func (t *Transport) AddNode(id transport.NodeID, n *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[id] = n
}

func (t *Transport) node(id transport.NodeID) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	return n, ok
}

func (t *Transport) sleep() {
	if t.Delay > 0 {
		time.Sleep(t.Delay)
	}
}

func (t *Transport) failing(space int) bool {
	return t.FailSpace != nil && t.FailSpace[space]
}

func (t *Transport) ReadStream(ctx context.Context, node transport.NodeID, space int, done func(io.Reader, error)) {
	go func() {
		t.sleep()
		if t.failing(space) {
			done(nil, transport.ErrTimeout)
			return
		}
		n, ok := t.node(node)
		if !ok {
			done(nil, &transport.Error{Node: node, Space: space, Op: "readStream", Cause: io.ErrUnexpectedEOF})
			return
		}
		n.mu.Lock()
		data := n.spaces[space]
		n.mu.Unlock()
		if i := bytes.IndexByte(data, 0x00); i >= 0 {
			data = data[:i]
		}
		done(bytes.NewReader(data), nil)
	}()
}

func (t *Transport) ReadBytes(ctx context.Context, node transport.NodeID, space int, offset int64, length int, done func([]byte, error)) {
	go func() {
		t.sleep()
		if t.failing(space) {
			done(nil, transport.ErrTimeout)
			return
		}
		n, ok := t.node(node)
		if !ok {
			done(nil, &transport.Error{Node: node, Space: space, Op: "readBytes", Cause: io.ErrUnexpectedEOF})
			return
		}
		data, ok := n.readBytes(space, offset, length)
		if !ok {
			done(nil, &transport.Error{Node: node, Space: space, Op: "readBytes", Cause: io.ErrUnexpectedEOF})
			return
		}
		done(data, nil)
	}()
}

func (t *Transport) WriteBytes(ctx context.Context, node transport.NodeID, space int, offset int64, data []byte, done func(error)) {
	go func() {
		t.sleep()
		if t.failing(space) {
			done(transport.ErrTimeout)
			return
		}
		n, ok := t.node(node)
		if !ok {
			done(&transport.Error{Node: node, Space: space, Op: "writeBytes", Cause: io.ErrUnexpectedEOF})
			return
		}
		if !n.writeBytes(space, offset, data) {
			done(&transport.Error{Node: node, Space: space, Op: "writeBytes", Cause: io.ErrUnexpectedEOF})
			return
		}
		done(nil)
	}()
}
