// Package rpctransport is a reference implementation of the cdi
// engine's transport.Transport collaborator, framing memory-read,
// memory-write, and CDI-stream requests as JSON-RPC 2.0 calls over a
// jrpc2 channel, client side, to talk to a bus gateway process.
package rpctransport

import (
	"bytes"
	"context"
	"io"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
)

// Client is a transport.Transport backed by a jrpc2 client talking to
// a bus gateway over a newline-delimited JSON channel.
type Client struct {
	cli *jrpc2.Client
}

// Dial wraps rwc in a line-delimited JSON-RPC channel and returns a
// ready-to-use Client. The caller owns rwc's lifecycle; Close closes
// the underlying client (and, transitively, the channel).
func Dial(rwc io.ReadWriteCloser) *Client {
	ch := channel.Line(rwc, rwc)
	return &Client{cli: jrpc2.NewClient(ch, nil)}
}

// Close shuts down the underlying jrpc2 client.
func (c *Client) Close() error { return c.cli.Close() }

type readStreamParams struct {
	Node  uint64 `json:"node"`
	Space int    `json:"space"`
}

type readBytesParams struct {
	Node   uint64 `json:"node"`
	Space  int    `json:"space"`
	Offset int64  `json:"offset"`
	Length int    `json:"length"`
}

type writeBytesParams struct {
	Node   uint64 `json:"node"`
	Space  int    `json:"space"`
	Offset int64  `json:"offset"`
	Data   []byte `json:"data"`
}

type bytesResult struct {
	Data []byte `json:"data"`
}

// ReadStream issues a "cdi.readStream" call and hands done the
// response body as a byte-backed io.Reader. The call is dispatched
// from a background goroutine so ReadStream itself returns
// immediately, matching the Transport contract's suspension-point
// semantics.
func (c *Client) ReadStream(ctx context.Context, node transport.NodeID, space int, done func(io.Reader, error)) {
	go func() {
		var res bytesResult
		err := c.call(ctx, "cdi.readStream", readStreamParams{Node: uint64(node), Space: space}, &res)
		if err != nil {
			done(nil, &transport.Error{Node: node, Space: space, Op: "readStream", Cause: err})
			return
		}
		done(bytes.NewReader(res.Data), nil)
	}()
}

// ReadBytes issues a "cdi.readBytes" call.
func (c *Client) ReadBytes(ctx context.Context, node transport.NodeID, space int, offset int64, length int, done func([]byte, error)) {
	go func() {
		var res bytesResult
		err := c.call(ctx, "cdi.readBytes", readBytesParams{Node: uint64(node), Space: space, Offset: offset, Length: length}, &res)
		if err != nil {
			done(nil, &transport.Error{Node: node, Space: space, Op: "readBytes", Cause: err})
			return
		}
		done(res.Data, nil)
	}()
}

// WriteBytes issues a "cdi.writeBytes" call and treats any RPC error
// as a transport failure; the caller (Cache.Write) is responsible for
// rollback.
func (c *Client) WriteBytes(ctx context.Context, node transport.NodeID, space int, offset int64, data []byte, done func(error)) {
	go func() {
		err := c.call(ctx, "cdi.writeBytes", writeBytesParams{Node: uint64(node), Space: space, Offset: offset, Data: data}, nil)
		if err != nil {
			done(&transport.Error{Node: node, Space: space, Op: "writeBytes", Cause: err})
			return
		}
		done(nil)
	}()
}

// call performs a synchronous jrpc2 round trip and unmarshals the
// result into out (if non-nil). It is the one place this package
// blocks; every exported method wraps it in its own goroutine so the
// Transport interface's "returns immediately" contract holds from the
// caller's point of view.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	rsp, err := c.cli.Call(ctx, method, params)
	if err != nil {
		if ctx.Err() != nil {
			return transport.ErrTimeout
		}
		return err
	}
	if out == nil {
		return nil
	}
	return rsp.UnmarshalResult(out)
}
