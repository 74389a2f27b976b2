package cdi

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
)

// DefaultMaxChunk is the default transport payload cap a fillCache
// read is split against.
const DefaultMaxChunk = 64

type byteRange struct {
	lo, hi int64 // half-open [lo, hi)
}

func (r byteRange) overlaps(lo, hi int64) bool { return r.lo < hi && lo < r.hi }

type rangeListener struct {
	lo, hi int64
	cb     func()
}

func (l rangeListener) overlaps(lo, hi int64) bool { return l.lo < hi && lo < l.hi }

// Cache is the Memory-Space Cache, component D: one instance per
// (remote node, memory space). It owns an address-keyed sparse byte
// map, the set of ranges registered as "of interest", and the
// listeners attached to those ranges.
//
// The byte map and listener set are guarded by a single mutex per the
// "each cache's byte map and listener set is guarded by its own lock"
// shared-resource policy; listener callbacks are always invoked
// after the lock is released, never under it.
type Cache struct {
	node  transport.NodeID
	space int
	tp    transport.Transport

	maxChunk int
	log      *slog.Logger

	mu        sync.Mutex
	bytes     map[int64]byte
	ranges    []byteRange
	listeners []rangeListener
}

// NewCache constructs a Cache for one (node, space) pair. maxChunk <=
// 0 selects DefaultMaxChunk.
func NewCache(node transport.NodeID, space int, tp transport.Transport, maxChunk int, log *slog.Logger) *Cache {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		node:     node,
		space:    space,
		tp:       tp,
		maxChunk: maxChunk,
		log:      log,
		bytes:    make(map[int64]byte),
	}
}

// AddRangeToCache declares interest in [lo, hi). Idempotent in effect:
// calling it twice with the same bounds records the range twice, but
// FillCache coalesces overlapping ranges, so those bytes are read only
// once per fill. Every registered range is read on each FillCache,
// whether or not its bytes are already cached.
func (c *Cache) AddRangeToCache(lo, hi int64) {
	c.mu.Lock()
	c.ranges = append(c.ranges, byteRange{lo, hi})
	c.mu.Unlock()
}

// AddRangeListener attaches cb to every byte in [lo, hi). cb fires
// exactly once per update event that overlaps the range.
func (c *Cache) AddRangeListener(lo, hi int64, cb func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, rangeListener{lo, hi, cb})
	c.mu.Unlock()
}

// Read returns the cached bytes for [lo, lo+size) if every byte in
// that range has been delivered by a write or a completed remote
// read; otherwise it returns (nil, false) — never a partial slice.
func (c *Cache) Read(lo int64, size int) ([]byte, bool) {
	if size <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		b, ok := c.bytes[lo+int64(i)]
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

// Write writes data into the cache starting at lo and dispatches a
// memory-write request to the remote node. done is invoked once the
// write is acknowledged (success, nil) or fails (*WriteError). The
// local cache is updated immediately but range listeners only fire
// once the remote node has acknowledged the write.
func (c *Cache) Write(ctx context.Context, lo int64, data []byte, done func(error)) {
	hi := lo + int64(len(data))

	c.mu.Lock()
	old := make(map[int64]byte, len(data))
	for i, b := range data {
		addr := lo + int64(i)
		if prev, ok := c.bytes[addr]; ok {
			old[addr] = prev
		}
		c.bytes[addr] = b
	}
	c.mu.Unlock()

	c.tp.WriteBytes(ctx, c.node, c.space, lo, data, func(err error) {
		if err != nil {
			// Roll back to the pre-write values and surface a
			// WriteError without ever notifying listeners of a write
			// that never actually happened on the remote node.
			c.mu.Lock()
			for addr := range old {
				c.bytes[addr] = old[addr]
			}
			for i := range data {
				addr := lo + int64(i)
				if _, had := old[addr]; !had {
					delete(c.bytes, addr)
				}
			}
			c.mu.Unlock()
			if done != nil {
				done(&WriteError{Space: c.space, Origin: lo, Cause: err})
			}
			return
		}
		c.fireListeners(lo, hi)
		if done != nil {
			done(nil)
		}
	})
}

// FillCache asynchronously reads every registered range from the
// remote node, coalescing adjacent/overlapping ranges and chunking
// each coalesced range to maxChunk bytes. complete is invoked exactly
// once, after every chunk of this FillCache epoch has either
// succeeded or failed. A chunk that fails to read leaves its bytes
// absent rather than aborting the whole fill.
func (c *Cache) FillCache(ctx context.Context, complete func()) {
	c.mu.Lock()
	merged := coalesce(c.ranges)
	c.mu.Unlock()

	var chunks []byteRange
	for _, r := range merged {
		chunks = append(chunks, splitChunks(r, c.maxChunk)...)
	}

	if len(chunks) == 0 {
		if complete != nil {
			complete()
		}
		return
	}

	go func() {
		g, gctx := errgroup.WithContext(ctx)
		for _, chunk := range chunks {
			chunk := chunk
			g.Go(func() error {
				resultCh := make(chan struct {
					data []byte
					err  error
				}, 1)
				c.tp.ReadBytes(gctx, c.node, c.space, chunk.lo, int(chunk.hi-chunk.lo), func(data []byte, err error) {
					resultCh <- struct {
						data []byte
						err  error
					}{data, err}
				})
				res := <-resultCh
				if res.err != nil {
					c.log.WarnContext(ctx, "fillCache chunk failed", "space", c.space, "lo", chunk.lo, "hi", chunk.hi, "error", res.err)
					return nil
				}
				c.applyRemoteUpdate(chunk.lo, res.data)
				return nil
			})
		}
		_ = g.Wait()
		if complete != nil {
			complete()
		}
	}()
}

// applyRemoteUpdate overwrites cached bytes with freshly-read remote
// data and fires listeners unconditionally — the cache keeps no
// "dirty" bit.
func (c *Cache) applyRemoteUpdate(lo int64, data []byte) {
	c.mu.Lock()
	for i, b := range data {
		c.bytes[lo+int64(i)] = b
	}
	c.mu.Unlock()
	c.fireListeners(lo, lo+int64(len(data)))
}

// fireListeners invokes, exactly once each, every listener whose
// range overlaps [lo, hi), after releasing the cache lock.
func (c *Cache) fireListeners(lo, hi int64) {
	c.mu.Lock()
	var hit []func()
	for _, l := range c.listeners {
		if l.overlaps(lo, hi) {
			hit = append(hit, l.cb)
		}
	}
	c.mu.Unlock()
	for _, cb := range hit {
		cb()
	}
}

// coalesce merges overlapping or adjacent byte ranges into the
// minimal set of disjoint ranges that cover the same bytes.
func coalesce(ranges []byteRange) []byteRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]byteRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].lo < sorted[j].lo })

	merged := []byteRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.lo <= last.hi {
			if r.hi > last.hi {
				last.hi = r.hi
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// splitChunks breaks r into consecutive sub-ranges no larger than
// maxChunk bytes, respecting the transport's maximum payload.
func splitChunks(r byteRange, maxChunk int) []byteRange {
	var out []byteRange
	for lo := r.lo; lo < r.hi; lo += int64(maxChunk) {
		hi := lo + int64(maxChunk)
		if hi > r.hi {
			hi = r.hi
		}
		out = append(out, byteRange{lo, hi})
	}
	return out
}
