package cdi

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
	"github.com/openlcb-go/cdicore/transport/memtransport"
)

func TestSourceReaderStripsTrailingPadding(t *testing.T) {
	tp := memtransport.New()
	node := memtransport.NewNode()
	node.SetSpace(DefaultCDISpace, append([]byte("<cdi></cdi>"), 0x00, 0x00, 0x00))
	const id transport.NodeID = 1
	tp.AddNode(id, node)

	sr := NewSourceReader(tp, 0)
	done := make(chan struct {
		r   io.Reader
		err error
	}, 1)
	sr.FetchCDI(context.Background(), id, func(r io.Reader, err error) {
		done <- struct {
			r   io.Reader
			err error
		}{r, err}
	})
	res := <-done
	require.NoError(t, res.err)
	data, err := io.ReadAll(res.r)
	require.NoError(t, err)
	assert.Equal(t, "<cdi></cdi>", string(data))
}

func TestSourceReaderCollapsesConcurrentFetches(t *testing.T) {
	tp := memtransport.New()
	node := memtransport.NewNode()
	node.SetSpace(DefaultCDISpace, append([]byte("<cdi></cdi>"), 0x00))
	const id transport.NodeID = 1
	tp.AddNode(id, node)

	sr := NewSourceReader(tp, 0)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			done := make(chan error, 1)
			sr.FetchCDI(context.Background(), id, func(_ io.Reader, err error) { done <- err })
			assert.NoError(t, <-done)
		}()
	}
	wg.Wait()
}

func TestSourceReaderPropagatesTransportError(t *testing.T) {
	tp := memtransport.New()
	// No node registered for id 2: every call fails.
	sr := NewSourceReader(tp, 0)

	done := make(chan error, 1)
	sr.FetchCDI(context.Background(), transport.NodeID(2), func(_ io.Reader, err error) { done <- err })
	err := <-done
	require.Error(t, err)
}
