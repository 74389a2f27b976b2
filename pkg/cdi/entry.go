package cdi

import "sync"

// Entry is a node of the resolved tree the Layout Resolver produces.
// Entries are constructed exactly once and never mutated
// structurally; only the per-entry observer list and the bytes
// backing a leaf (via the Memory-Space Cache) change after resolution.
type Entry interface {
	// Space is the memory space number this entry's bytes live in.
	Space() int
	// Origin is the absolute byte offset of this entry's first byte
	// within Space.
	Origin() int64
	// Size is this entry's total byte footprint.
	Size() int64
	// Key is the dotted path identifier joining each ancestor's
	// normalized name; unique across the whole resolved tree.
	Key() string
	// Source is the description item this entry was resolved from,
	// kept for metadata (description, min/max/default, ...).
	Source() Item

	// AddListener registers cb to be invoked whenever this entry's
	// bytes change. Safe for concurrent use.
	AddListener(cb func(Entry))

	// notify invokes every registered listener once. Must not be
	// called while any lock this entry's owner holds is held.
	notify()
}

// header is the shared record every Entry variant embeds, matching
// the "tagged sum with a shared header" design note.
type header struct {
	space  int
	origin int64
	size   int64
	key    string
	source Item

	mu        sync.Mutex
	listeners []func(Entry)
}

func (h *header) Space() int    { return h.space }
func (h *header) Origin() int64 { return h.origin }
func (h *header) Size() int64   { return h.size }
func (h *header) Key() string   { return h.key }
func (h *header) Source() Item  { return h.source }

func (h *header) AddListener(cb func(Entry)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, cb)
	h.mu.Unlock()
}

func (h *header) notifySelf(self Entry) {
	h.mu.Lock()
	cbs := make([]func(Entry), len(h.listeners))
	copy(cbs, h.listeners)
	h.mu.Unlock()
	for _, cb := range cbs {
		cb(self)
	}
}

// SegmentEntry is a resolved Segment: a container bound to its
// source segment's (space, origin), with size spanning from its origin
// to the end of its last child, declared offsets included.
type SegmentEntry struct {
	header
	Children []Entry
}

func (e *SegmentEntry) notify() { e.notifySelf(e) }

// GroupEntry is a resolved Group. If the source group's replication
// is <= 1 its Children are the group's own items, resolved in place.
// If replication > 1 its Children are GroupRep instances and
// Replication/RepeatSize describe the repeat geometry (invariant:
// Size == Replication * RepeatSize).
type GroupEntry struct {
	header
	Children    []Entry
	Replication int
	RepeatSize  int64
}

func (e *GroupEntry) notify() { e.notifySelf(e) }

// GroupRep is one repeat of a replicated group. Index is 1-based for
// display purposes, even though the key embeds a 0-based index.
type GroupRep struct {
	header
	Children []Entry
	Index    int
}

func (e *GroupRep) notify() { e.notifySelf(e) }

// IntegerEntry is a resolved fixed-width unsigned integer leaf.
type IntegerEntry struct {
	header
}

func (e *IntegerEntry) notify() { e.notifySelf(e) }

// EventEntry is a resolved 8-byte event identifier leaf.
type EventEntry struct {
	header
}

func (e *EventEntry) notify() { e.notifySelf(e) }

// StringEntry is a resolved fixed-width null-terminated string leaf.
type StringEntry struct {
	header
}

func (e *StringEntry) notify() { e.notifySelf(e) }

// Root is the top of a resolved tree: an ordered sequence of
// SegmentEntries, one per segment the Parser produced.
type Root struct {
	Segments []*SegmentEntry
}

// ByKey finds an entry anywhere in the tree by its dotted key. It is a
// convenience for accessors and the CLI; the resolver itself never
// needs it.
func (r *Root) ByKey(key string) (Entry, bool) {
	for e := range r.All() {
		if e.Key() == key {
			return e, true
		}
	}
	return nil, false
}
