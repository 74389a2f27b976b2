package cdi

// Item is one node of the description tree handed to the Layout
// Resolver by the Parser collaborator. The Parser is out
// of core; only this shape is contracted.
type Item interface {
	// Name is the item's declared name, used for key construction.
	Name() string
	// Description is free-text documentation carried through as
	// metadata; the core never interprets it.
	Description() string
	// Offset is the item's declared offset in bytes relative to the
	// cursor position of its parent container at the time this item
	// is reached during resolution.
	Offset() int64
}

// Container is an Item that also owns an ordered list of child items.
// Segment and Group both satisfy it.
type Container interface {
	Item
	Items() []Item
}

type itemHeader struct {
	name   string
	desc   string
	offset int64
}

func (h itemHeader) Name() string        { return h.name }
func (h itemHeader) Description() string { return h.desc }
func (h itemHeader) Offset() int64       { return h.offset }

// Segment is a top-level container bound to a specific (space, origin).
// It is both a container of items and, for naming and address
// purposes, an item with its own offset — see the "container/item
// duality" design note. It is never handed to the group resolver;
// resolveSegment handles it as a distinct case.
type Segment struct {
	itemHeader
	Space    int
	Origin   int64
	Children []Item
}

// NewSegment constructs a Segment. offset is conventionally 0 for a
// top-level segment but is not assumed to be.
func NewSegment(name, desc string, space int, origin, offset int64) *Segment {
	return &Segment{itemHeader: itemHeader{name: name, desc: desc, offset: offset}, Space: space, Origin: origin}
}

func (s *Segment) Items() []Item { return s.Children }

// Group is an intermediate container, optionally replicated.
// Replication of 0 or 1 means "not repeated"; the resolver treats
// both the same way.
type Group struct {
	itemHeader
	Replication int
	Children    []Item
}

func NewGroup(name, desc string, offset int64, replication int) *Group {
	return &Group{itemHeader: itemHeader{name: name, desc: desc, offset: offset}, Replication: replication}
}

func (g *Group) Items() []Item { return g.Children }

// repeated reports whether this group lays out its children once
// per replica (R > 1) rather than in place (R <= 1).
func (g *Group) repeated() bool { return g.Replication > 1 }

// Integer is a fixed-width unsigned integer leaf. Size must be one of
// 1, 2, 4, 8 bytes; a different value is a LayoutError at resolution
// time, not at construction time (the Parser may not know better).
type Integer struct {
	itemHeader
	Size int

	Min, Max int64 // metadata only, never enforced by the core
	Default  int64
}

func NewInteger(name, desc string, offset int64, size int) *Integer {
	return &Integer{itemHeader: itemHeader{name: name, desc: desc, offset: offset}, Size: size}
}

// EventItem is an 8-byte event identifier leaf. Size is always 8 and
// is not configurable by the Parser.
type EventItem struct {
	itemHeader
}

func NewEvent(name, desc string, offset int64) *EventItem {
	return &EventItem{itemHeader: itemHeader{name: name, desc: desc, offset: offset}}
}

func (*EventItem) Size() int { return 8 }

// StringItem is a fixed-width, null-terminated-on-write text leaf.
type StringItem struct {
	itemHeader
	Size int
}

func NewString(name, desc string, offset int64, size int) *StringItem {
	return &StringItem{itemHeader: itemHeader{name: name, desc: desc, offset: offset}, Size: size}
}

// Representation is the Parser's complete output: an ordered sequence
// of top-level segments.
type Representation struct {
	RootSegments []*Segment
}

func (r *Representation) Segments() []*Segment { return r.RootSegments }
