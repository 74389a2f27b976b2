package cdi

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
	"github.com/openlcb-go/cdicore/transport/memtransport"
)

// fakeCacheProvider is a minimal CacheProvider for accessor tests: one
// Cache per space, created on first use against a shared transport.
type fakeCacheProvider struct {
	node   transport.NodeID
	tp     transport.Transport
	caches map[int]*Cache
}

func newFakeCacheProvider(node transport.NodeID, tp transport.Transport) *fakeCacheProvider {
	return &fakeCacheProvider{node: node, tp: tp, caches: map[int]*Cache{}}
}

func (f *fakeCacheProvider) Cache(space int) *Cache {
	c, ok := f.caches[space]
	if !ok {
		c = NewCache(f.node, space, f.tp, 0, nil)
		f.caches[space] = c
	}
	return c
}

func fillAndWait(t *testing.T, c *Cache, lo, hi int64) {
	t.Helper()
	c.AddRangeToCache(lo, hi)
	filled := make(chan struct{})
	c.FillCache(context.Background(), func() { close(filled) })
	<-filled
}

func TestIntegerAccessorRoundTrip(t *testing.T) {
	tp := memtransport.New()
	node := memtransport.NewNode()
	node.SetSpace(1, make([]byte, 4))
	tp.AddNode(1, node)

	provider := newFakeCacheProvider(1, tp)
	entry := &IntegerEntry{header: header{space: 1, origin: 0, size: 2, key: "x"}}
	acc := NewIntegerAccessor(entry, provider)

	assert.Equal(t, uint64(0), acc.Get()) // nothing cached yet

	done := make(chan error, 1)
	acc.Set(context.Background(), 0x1234, func(err error) { done <- err })
	require.NoError(t, <-done)

	fillAndWait(t, provider.Cache(1), 0, 2)
	assert.Equal(t, uint64(0x1234), acc.Get())
}

func TestEncodeDecodeUintMasksHighBits(t *testing.T) {
	encoded := encodeUint(0x1FF, 1) // only the low byte fits
	assert.Equal(t, []byte{0xFF}, encoded)
	assert.Equal(t, uint64(0xFF), decodeUint(encoded))

	encoded = encodeUint(0x0102, 2)
	assert.Equal(t, []byte{0x01, 0x02}, encoded)
	assert.Equal(t, uint64(0x0102), decodeUint(encoded))
}

func TestEventAccessor(t *testing.T) {
	tp := memtransport.New()
	node := memtransport.NewNode()
	node.SetSpace(2, make([]byte, 8))
	tp.AddNode(1, node)

	provider := newFakeCacheProvider(1, tp)
	entry := &EventEntry{header: header{space: 2, origin: 0, size: 8, key: "evt"}}
	acc := NewEventAccessor(entry, provider)

	_, ok := acc.Get()
	assert.False(t, ok)

	id := EventID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	done := make(chan error, 1)
	acc.Set(context.Background(), id, func(err error) { done <- err })
	require.NoError(t, <-done)

	fillAndWait(t, provider.Cache(2), 0, 8)

	got, ok := acc.Get()
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestStringAccessorTruncatesAtRuneBoundary(t *testing.T) {
	tp := memtransport.New()
	node := memtransport.NewNode()
	node.SetSpace(3, make([]byte, 5))
	tp.AddNode(1, node)

	provider := newFakeCacheProvider(1, tp)
	// size=5 leaves a 4-byte write budget; "abcé" is 5 bytes ('é' is
	// 2 bytes), so the trailing é cannot fit without being split and
	// must be dropped whole rather than truncated mid-rune.
	entry := &StringEntry{header: header{space: 3, origin: 0, size: 5, key: "label"}}
	acc := NewStringAccessor(entry, provider)

	done := make(chan error, 1)
	acc.Set(context.Background(), "abcé", func(err error) { done <- err })
	require.NoError(t, <-done)

	fillAndWait(t, provider.Cache(3), 0, 5)

	got, ok := acc.Get()
	require.True(t, ok)
	assert.Equal(t, "abc", got)
	assert.True(t, utf8.ValidString(got))
}
