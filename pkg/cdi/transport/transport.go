// Package transport defines the collaborator boundary between the CDI
// engine and the bus that actually carries memory-configuration
// datagrams to and from a remote node. The engine never frames wire
// protocol itself; it only calls these three operations and waits for
// a callback.
package transport

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// NodeID identifies a node on the bus. OpenLCB node IDs are 48 bits;
// uint64 has room to spare.
type NodeID uint64

// Transport is the asynchronous collaborator contract required by the
// CDI engine. Every method returns immediately; the result is
// delivered to done, possibly from a different goroutine than the
// one that called the method. Implementations must tolerate done
// being invoked after the caller has moved on.
type Transport interface {
	// ReadStream reads a memory space as a character stream, ending at
	// a 0x00 terminator or the space's declared end.
	ReadStream(ctx context.Context, node NodeID, space int, done func(io.Reader, error))

	// ReadBytes reads length bytes starting at offset in space.
	ReadBytes(ctx context.Context, node NodeID, space int, offset int64, length int, done func([]byte, error))

	// WriteBytes writes data starting at offset in space.
	WriteBytes(ctx context.Context, node NodeID, space int, offset int64, data []byte, done func(error))
}

// ErrTimeout is returned by a Transport when a request receives no
// response within the transport's own deadline. The core does not run
// a timer of its own: it only recognizes this sentinel.
var ErrTimeout = errors.New("transport: no response (timeout)")

// Error wraps a failure reported by a Transport implementation,
// carrying enough context (node, space) for the orchestrator's
// Failed message and the cache's WriteError reporting.
type Error struct {
	Node  NodeID
	Space int
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return errors.Wrapf(e.Cause, "transport: %s node=%d space=%d", e.Op, uint64(e.Node), e.Space).Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// IsTimeout reports whether err is, or wraps, ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
