package cdi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iancoleman/strcase"
)

// Resolve walks a Representation and produces the Root of its typed
// entry tree. It is the Layout Resolver, component C.
//
// Resolution never talks to the network and never blocks; it is a
// pure function of rep, save for the warnings it logs through ctx for
// unknown item kinds.
func Resolve(ctx context.Context, rep *Representation) (*Root, error) {
	root := &Root{}
	for _, seg := range rep.Segments() {
		entry, err := resolveSegment(ctx, seg)
		if err != nil {
			return nil, err
		}
		root.Segments = append(root.Segments, entry)
	}
	return root, nil
}

func resolveSegment(ctx context.Context, seg *Segment) (*SegmentEntry, error) {
	key := normalizeName(seg.Name())
	children, end, err := resolveItems(ctx, seg.Children, seg.Origin, seg.Space, key)
	if err != nil {
		return nil, err
	}
	return &SegmentEntry{
		header: header{
			space:  seg.Space,
			origin: seg.Origin,
			size:   end - seg.Origin,
			key:    key,
			source: seg,
		},
		Children: children,
	}, nil
}

// resolveItems lays out items in declared order starting at
// startOrigin, returning the resolved children and the cursor
// position after the last one. Unknown item kinds
// are skipped entirely — no cursor advance, no offset applied — since
// they contribute no size.
func resolveItems(ctx context.Context, items []Item, startOrigin int64, space int, keyPrefix string) ([]Entry, int64, error) {
	cursor := startOrigin
	var children []Entry

	for _, item := range items {
		switch v := item.(type) {
		case *Integer, *EventItem, *StringItem, *Group:
			if item.Offset() < 0 {
				return nil, 0, &LayoutError{Key: keyPrefix, Reason: fmt.Sprintf("item %q declares a negative offset (%d)", item.Name(), item.Offset())}
			}
			origin := cursor + item.Offset()
			entry, size, err := resolveLeafOrGroup(ctx, v, origin, space, keyPrefix)
			if err != nil {
				return nil, 0, err
			}
			children = append(children, entry)
			cursor = origin + size
		default:
			slog.WarnContext(ctx, "skipping unknown CDI item kind", "name", item.Name())
		}
	}

	return children, cursor, nil
}

// resolveLeafOrGroup builds the entry for a single non-container-skip
// item at the given absolute origin, returning the entry and its
// byte size (so the caller can advance its cursor).
func resolveLeafOrGroup(ctx context.Context, item Item, origin int64, space int, keyPrefix string) (Entry, int64, error) {
	switch v := item.(type) {
	case *Integer:
		if v.Size != 1 && v.Size != 2 && v.Size != 4 && v.Size != 8 {
			return nil, 0, &LayoutError{Key: keyPrefix + "." + v.Name(), Reason: fmt.Sprintf("integer %q has invalid or missing size %d", v.Name(), v.Size)}
		}
		key := keyPrefix + "." + normalizeName(v.Name())
		return &IntegerEntry{header: header{space: space, origin: origin, size: int64(v.Size), key: key, source: v}}, int64(v.Size), nil

	case *EventItem:
		key := keyPrefix + "." + normalizeName(v.Name())
		return &EventEntry{header: header{space: space, origin: origin, size: 8, key: key, source: v}}, 8, nil

	case *StringItem:
		if v.Size <= 0 {
			return nil, 0, &LayoutError{Key: keyPrefix + "." + v.Name(), Reason: fmt.Sprintf("string %q has invalid or missing size %d", v.Name(), v.Size)}
		}
		key := keyPrefix + "." + normalizeName(v.Name())
		return &StringEntry{header: header{space: space, origin: origin, size: int64(v.Size), key: key, source: v}}, int64(v.Size), nil

	case *Group:
		return resolveGroup(ctx, v, origin, space, keyPrefix)

	default:
		// Unreachable: callers only route Integer/EventItem/StringItem/Group here.
		return nil, 0, &LayoutError{Key: keyPrefix, Reason: fmt.Sprintf("unexpected item type %T", item)}
	}
}

func resolveGroup(ctx context.Context, g *Group, origin int64, space int, keyPrefix string) (Entry, int64, error) {
	groupKey := keyPrefix + "." + normalizeName(g.Name())

	if !g.repeated() {
		children, end, err := resolveItems(ctx, g.Children, origin, space, groupKey)
		if err != nil {
			return nil, 0, err
		}
		size := end - origin
		return &GroupEntry{
			header:      header{space: space, origin: origin, size: size, key: groupKey, source: g},
			Children:    children,
			Replication: 1,
			RepeatSize:  size,
		}, size, nil
	}

	// Replication > 1: lay out repeat 0 to discover the one-repeat
	// size S, then lay out the remaining repeats contiguously at
	// origin + i*S.
	rep0Children, rep0End, err := resolveItems(ctx, g.Children, origin, space, fmt.Sprintf("%s(0)", groupKey))
	if err != nil {
		return nil, 0, err
	}
	repeatSize := rep0End - origin

	reps := make([]Entry, g.Replication)
	reps[0] = &GroupRep{
		header:   header{space: space, origin: origin, size: repeatSize, key: fmt.Sprintf("%s(0)", groupKey), source: g},
		Children: rep0Children,
		Index:    1,
	}
	for i := 1; i < g.Replication; i++ {
		repOrigin := origin + int64(i)*repeatSize
		repChildren, _, err := resolveItems(ctx, g.Children, repOrigin, space, fmt.Sprintf("%s(%d)", groupKey, i))
		if err != nil {
			return nil, 0, err
		}
		reps[i] = &GroupRep{
			header:   header{space: space, origin: repOrigin, size: repeatSize, key: fmt.Sprintf("%s(%d)", groupKey, i), source: g},
			Children: repChildren,
			Index:    i + 1,
		}
	}

	groupSize := int64(g.Replication) * repeatSize
	return &GroupEntry{
		header:      header{space: space, origin: origin, size: groupSize, key: groupKey, source: g},
		Children:    reps,
		Replication: g.Replication,
		RepeatSize:  repeatSize,
	}, groupSize, nil
}

// normalizeName turns a CDI item's declared name into the key
// component used when joining dotted paths. Names are snake-cased so
// that "User Name" and "userName" both produce a stable, shell- and
// path-friendly component.
func normalizeName(name string) string {
	return strcase.ToSnake(name)
}
