package cdi

import "iter"

// Visitor parameterises traversal of the resolved entry tree with
// per-variant callbacks. Any unset callback falls back to
// VisitLeaf for leaf variants, or is simply skipped for containers.
// Container children are visited in declared order; replicas of a
// repeated group are visited in ascending Index order (they are
// stored that way by the resolver, so a plain ordered walk suffices).
type Visitor struct {
	VisitSegment  func(*SegmentEntry)
	VisitGroup    func(*GroupEntry)
	VisitGroupRep func(*GroupRep)
	VisitInt      func(*IntegerEntry)
	VisitEvent    func(*EventEntry)
	VisitString   func(*StringEntry)

	// VisitLeaf is invoked for any leaf entry whose specific callback
	// above was not set.
	VisitLeaf func(Entry)
}

// Walk descends into e, invoking the matching Visitor callback for e
// itself and then recursing into children for containers.
func Walk(e Entry, v *Visitor) {
	switch x := e.(type) {
	case *SegmentEntry:
		if v.VisitSegment != nil {
			v.VisitSegment(x)
		}
		for _, c := range x.Children {
			Walk(c, v)
		}
	case *GroupEntry:
		if v.VisitGroup != nil {
			v.VisitGroup(x)
		}
		for _, c := range x.Children {
			Walk(c, v)
		}
	case *GroupRep:
		if v.VisitGroupRep != nil {
			v.VisitGroupRep(x)
		}
		for _, c := range x.Children {
			Walk(c, v)
		}
	case *IntegerEntry:
		if v.VisitInt != nil {
			v.VisitInt(x)
		} else if v.VisitLeaf != nil {
			v.VisitLeaf(x)
		}
	case *EventEntry:
		if v.VisitEvent != nil {
			v.VisitEvent(x)
		} else if v.VisitLeaf != nil {
			v.VisitLeaf(x)
		}
	case *StringEntry:
		if v.VisitString != nil {
			v.VisitString(x)
		} else if v.VisitLeaf != nil {
			v.VisitLeaf(x)
		}
	}
}

// WalkRoot walks every segment of a resolved tree in declared order.
func WalkRoot(r *Root, v *Visitor) {
	for _, s := range r.Segments {
		Walk(s, v)
	}
}

// All returns an iterator over every entry in the tree, depth-first,
// in the same order Walk would visit them. It exists alongside the
// callback-based Visitor for call sites that prefer range-over-func.
func (r *Root) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		var walk func(Entry) bool
		walk = func(e Entry) bool {
			if !yield(e) {
				return false
			}
			var children []Entry
			switch x := e.(type) {
			case *SegmentEntry:
				children = x.Children
			case *GroupEntry:
				children = x.Children
			case *GroupRep:
				children = x.Children
			}
			for _, c := range children {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		for _, s := range r.Segments {
			if !walk(s) {
				return
			}
		}
	}
}

// Leaves returns an iterator over only the leaf entries (Integer,
// Event, String) of the tree — the entries the Memory-Space Cache's
// prefill actually needs ranges for.
func (r *Root) Leaves() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for e := range r.All() {
			switch e.(type) {
			case *IntegerEntry, *EventEntry, *StringEntry:
				if !yield(e) {
					return
				}
			}
		}
	}
}
