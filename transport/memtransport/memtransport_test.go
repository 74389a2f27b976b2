package memtransport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
)

func TestReadWriteRoundTrip(t *testing.T) {
	tp := New()
	node := NewNode()
	node.SetSpace(1, make([]byte, 8))
	tp.AddNode(1, node)

	done := make(chan error, 1)
	tp.WriteBytes(context.Background(), 1, 1, 2, []byte{0xAA, 0xBB}, func(err error) { done <- err })
	require.NoError(t, <-done)

	read := make(chan struct {
		data []byte
		err  error
	}, 1)
	tp.ReadBytes(context.Background(), 1, 1, 2, 2, func(data []byte, err error) {
		read <- struct {
			data []byte
			err  error
		}{data, err}
	})
	res := <-read
	require.NoError(t, res.err)
	assert.Equal(t, []byte{0xAA, 0xBB}, res.data)
}

func TestReadBytesOutOfBoundsFails(t *testing.T) {
	tp := New()
	node := NewNode()
	node.SetSpace(1, make([]byte, 4))
	tp.AddNode(1, node)

	read := make(chan error, 1)
	tp.ReadBytes(context.Background(), 1, 1, 2, 10, func(_ []byte, err error) { read <- err })
	require.Error(t, <-read)
}

func TestReadStreamReturnsFullSpace(t *testing.T) {
	tp := New()
	node := NewNode()
	node.SetSpace(1, []byte("hello"))
	tp.AddNode(1, node)

	done := make(chan struct {
		r   io.Reader
		err error
	}, 1)
	tp.ReadStream(context.Background(), 1, 1, func(r io.Reader, err error) {
		done <- struct {
			r   io.Reader
			err error
		}{r, err}
	})
	res := <-done
	require.NoError(t, res.err)
	data, err := io.ReadAll(res.r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestUnknownNodeFails(t *testing.T) {
	tp := New()
	done := make(chan error, 1)
	tp.WriteBytes(context.Background(), transport.NodeID(99), 1, 0, []byte{1}, func(err error) { done <- err })
	require.Error(t, <-done)
}

func TestFailSpaceForcesTimeout(t *testing.T) {
	tp := New()
	tp.FailSpace = map[int]bool{7: true}
	node := NewNode()
	node.SetSpace(7, make([]byte, 4))
	tp.AddNode(1, node)

	done := make(chan error, 1)
	tp.WriteBytes(context.Background(), 1, 7, 0, []byte{1}, func(err error) { done <- err })
	err := <-done
	require.Error(t, err)
	assert.True(t, transport.IsTimeout(err))
}

func TestDelayStaggersResponses(t *testing.T) {
	tp := New()
	tp.Delay = 30 * time.Millisecond
	node := NewNode()
	node.SetSpace(1, make([]byte, 4))
	tp.AddNode(1, node)

	start := time.Now()
	done := make(chan error, 1)
	tp.WriteBytes(context.Background(), 1, 1, 0, []byte{1}, func(err error) { done <- err })
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
