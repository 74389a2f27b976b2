package rpctransport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
)

// newLoopback wires a jrpc2 server implementing the given cdi.* methods
// over an in-process net.Pipe to a Client, the same channel.Line
// framing a real bus gateway connection would use, just pointed at a
// fake gateway.
func newLoopback(t *testing.T, methods handler.Map) (*Client, func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	srv := jrpc2.NewServer(methods, nil)
	srv.Start(channel.Line(serverConn, serverConn))

	cli := Dial(clientConn)
	cleanup := func() {
		_ = cli.Close()
		srv.Stop()
		_ = serverConn.Close()
	}
	return cli, cleanup
}

func TestClientReadBytesRoundTrip(t *testing.T) {
	methods := handler.Map{
		"cdi.readBytes": handler.New(func(ctx context.Context, p readBytesParams) (bytesResult, error) {
			return bytesResult{Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}, nil
		}),
	}
	cli, cleanup := newLoopback(t, methods)
	defer cleanup()

	done := make(chan struct {
		data []byte
		err  error
	}, 1)
	cli.ReadBytes(context.Background(), 1, 1, 0, 4, func(data []byte, err error) {
		done <- struct {
			data []byte
			err  error
		}{data, err}
	})

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, res.data)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadBytes never completed")
	}
}

func TestClientWriteBytesRoundTrip(t *testing.T) {
	var gotParams writeBytesParams
	methods := handler.Map{
		"cdi.writeBytes": handler.New(func(ctx context.Context, p writeBytesParams) (any, error) {
			gotParams = p
			return nil, nil
		}),
	}
	cli, cleanup := newLoopback(t, methods)
	defer cleanup()

	done := make(chan error, 1)
	cli.WriteBytes(context.Background(), 7, 2, 10, []byte{1, 2, 3}, func(err error) { done <- err })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WriteBytes never completed")
	}
	assert.Equal(t, uint64(7), gotParams.Node)
	assert.Equal(t, 2, gotParams.Space)
	assert.EqualValues(t, 10, gotParams.Offset)
	assert.Equal(t, []byte{1, 2, 3}, gotParams.Data)
}

func TestClientReadStreamReturnsReaderOverResponseBody(t *testing.T) {
	methods := handler.Map{
		"cdi.readStream": handler.New(func(ctx context.Context, p readStreamParams) (bytesResult, error) {
			return bytesResult{Data: []byte("<cdi></cdi>")}, nil
		}),
	}
	cli, cleanup := newLoopback(t, methods)
	defer cleanup()

	done := make(chan struct {
		r   io.Reader
		err error
	}, 1)
	cli.ReadStream(context.Background(), 1, 0xEF, func(r io.Reader, err error) {
		done <- struct {
			r   io.Reader
			err error
		}{r, err}
	})

	select {
	case res := <-done:
		require.NoError(t, res.err)
		data, err := io.ReadAll(res.r)
		require.NoError(t, err)
		assert.Equal(t, "<cdi></cdi>", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("ReadStream never completed")
	}
}

func TestClientWrapsRPCErrorAsTransportError(t *testing.T) {
	methods := handler.Map{
		"cdi.readBytes": handler.New(func(ctx context.Context, p readBytesParams) (bytesResult, error) {
			return bytesResult{}, jrpc2.Errorf(1, "no such node")
		}),
	}
	cli, cleanup := newLoopback(t, methods)
	defer cleanup()

	done := make(chan error, 1)
	cli.ReadBytes(context.Background(), 1, 1, 0, 4, func(_ []byte, err error) { done <- err })

	select {
	case err := <-done:
		require.Error(t, err)
		var tErr *transport.Error
		assert.ErrorAs(t, err, &tErr)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadBytes never completed")
	}
}
