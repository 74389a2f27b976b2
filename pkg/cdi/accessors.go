package cdi

import (
	"bytes"
	"context"
	"unicode/utf8"
)

// CacheProvider looks up the Memory-Space Cache for a given space
// number. Entries never hold a cache pointer directly — accessors take a CacheProvider and resolve the
// cache by Entry.Space() at call time, going through whatever owns
// the caches (normally an Orchestrator).
type CacheProvider interface {
	Cache(space int) *Cache
}

// IntegerAccessor reads and writes an IntegerEntry's bytes as an
// unsigned big-endian integer.
type IntegerAccessor struct {
	entry  *IntegerEntry
	caches CacheProvider
}

func NewIntegerAccessor(e *IntegerEntry, caches CacheProvider) *IntegerAccessor {
	return &IntegerAccessor{entry: e, caches: caches}
}

// Get decodes the entry's bytes MSB-first. If the bytes are not (yet)
// cached, it returns 0 rather than an error.
func (a *IntegerAccessor) Get() uint64 {
	c := a.caches.Cache(a.entry.Space())
	data, ok := c.Read(a.entry.Origin(), int(a.entry.Size()))
	if !ok {
		return 0
	}
	return decodeUint(data)
}

// Set encodes v as size bytes, MSB-first, silently truncating any
// high bits of v that don't fit, and writes them through the cache.
// done, if non-nil, is invoked once the remote write is acknowledged
// or fails — see Cache.Write.
func (a *IntegerAccessor) Set(ctx context.Context, v uint64, done func(error)) {
	c := a.caches.Cache(a.entry.Space())
	c.Write(ctx, a.entry.Origin(), encodeUint(v, int(a.entry.Size())), done)
}

// decodeUint decodes data MSB-first as an unsigned integer. Every
// byte is treated as unsigned: the historical source implementation
// unsigned a negative signed byte with "p += 128", which is wrong for
// every negative int8 (-1 becomes 127 instead of 255); the correct
// operation is a mask (p & 0xff). This implementation
// never goes through a signed byte at all, which is the simplest way
// to avoid the bug entirely.
func decodeUint(data []byte) uint64 {
	var v uint64
	for _, b := range data {
		v = (v << 8) | uint64(b)
	}
	return v
}

// encodeUint writes v into size bytes, MSB-first, truncating high
// bits of v that don't fit in size*8 bits.
func encodeUint(v uint64, size int) []byte {
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(v & 0xff)
		v >>= 8
	}
	return out
}

// EventID is an 8-byte OpenLCB event identifier, carried as an opaque
// byte array (the core never interprets its bits).
type EventID [8]byte

// EventAccessor reads and writes an EventEntry's raw 8 bytes.
type EventAccessor struct {
	entry  *EventEntry
	caches CacheProvider
}

func NewEventAccessor(e *EventEntry, caches CacheProvider) *EventAccessor {
	return &EventAccessor{entry: e, caches: caches}
}

// Get returns the entry's 8 bytes wrapped as an EventID, or false if
// they are not yet cached.
func (a *EventAccessor) Get() (EventID, bool) {
	c := a.caches.Cache(a.entry.Space())
	data, ok := c.Read(a.entry.Origin(), 8)
	if !ok {
		return EventID{}, false
	}
	var id EventID
	copy(id[:], data)
	return id, true
}

// Set writes the raw 8 bytes of e through the cache.
func (a *EventAccessor) Set(ctx context.Context, e EventID, done func(error)) {
	c := a.caches.Cache(a.entry.Space())
	c.Write(ctx, a.entry.Origin(), e[:], done)
}

// StringAccessor reads and writes a StringEntry's fixed-width,
// null-padded buffer.
type StringAccessor struct {
	entry  *StringEntry
	caches CacheProvider
}

func NewStringAccessor(e *StringEntry, caches CacheProvider) *StringAccessor {
	return &StringAccessor{entry: e, caches: caches}
}

// Get reads the buffer, scans for the first 0x00, and decodes the
// prefix before it as UTF-8. Returns false if the buffer is not yet
// fully cached.
func (a *StringAccessor) Get() (string, bool) {
	c := a.caches.Cache(a.entry.Space())
	data, ok := c.Read(a.entry.Origin(), int(a.entry.Size()))
	if !ok {
		return "", false
	}
	if i := bytes.IndexByte(data, 0x00); i >= 0 {
		data = data[:i]
	}
	return string(data), true
}

// Set encodes s as UTF-8, truncates it to fit within size-1 bytes
// (guaranteeing a terminating 0x00 within the buffer), zero-pads the
// remainder, and writes it through the cache. A string that needs
// truncation is trimmed back to the last full rune rather than
// rejected; callers that want to detect this ahead of time can check
// len(s) against the entry's Size()-1 budget themselves.
func (a *StringAccessor) Set(ctx context.Context, s string, done func(error)) {
	size := int(a.entry.Size())
	encoded := []byte(s)

	max := size - 1
	if max < 0 {
		max = 0
	}
	if len(encoded) > max {
		encoded = truncateValidUTF8(encoded, max)
	}

	buf := make([]byte, size)
	copy(buf, encoded)

	c := a.caches.Cache(a.entry.Space())
	c.Write(ctx, a.entry.Origin(), buf, done)
}

// truncateValidUTF8 trims b to at most max bytes without splitting a
// multi-byte rune.
func truncateValidUTF8(b []byte, max int) []byte {
	if max <= 0 {
		return nil
	}
	if len(b) <= max {
		return b
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return b[:cut]
}
