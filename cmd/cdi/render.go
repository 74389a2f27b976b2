package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	lipgloss "charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/openlcb-go/cdicore/pkg/cdi"
)

// maxValueWidth bounds how many visible columns a leaf's rendered
// value may occupy before it is truncated with an ellipsis — a
// string entry's buffer can be much wider than a terminal column.
const maxValueWidth = 40

// Styles follow an indentation-by-depth, color-by-variant scheme for
// the tree dump: one lipgloss style per node kind.
var (
	segmentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	groupStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	repStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	leafKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("150"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Italic(true)
)

// RenderTree writes a styled, indented dump of root to w. caches is
// nil-able: when provided, leaf values are decoded and printed
// alongside their keys; otherwise only the static layout is shown.
func RenderTree(w io.Writer, root *cdi.Root, caches cdi.CacheProvider) {
	depth := map[cdi.Entry]int{}
	var walkDepth func(e cdi.Entry, d int, children []cdi.Entry)

	v := &cdi.Visitor{
		VisitSegment: func(e *cdi.SegmentEntry) {
			fmt.Fprintf(w, "%s%s\n", indent(depth[e]), segmentStyle.Render(fmt.Sprintf("[segment] %s (space=%d origin=%d size=%d)", e.Key(), e.Space(), e.Origin(), e.Size())))
			walkDepth(e, depth[e], e.Children)
		},
		VisitGroup: func(e *cdi.GroupEntry) {
			fmt.Fprintf(w, "%s%s\n", indent(depth[e]), groupStyle.Render(fmt.Sprintf("[group] %s (replication=%d size=%d)", e.Key(), e.Replication, e.Size())))
			walkDepth(e, depth[e], e.Children)
		},
		VisitGroupRep: func(e *cdi.GroupRep) {
			fmt.Fprintf(w, "%s%s\n", indent(depth[e]), repStyle.Render(fmt.Sprintf("[%d] %s", e.Index, e.Key())))
			walkDepth(e, depth[e], e.Children)
		},
		VisitInt: func(e *cdi.IntegerEntry) {
			renderLeaf(w, depth[e], e.Key(), integerValue(e, caches))
		},
		VisitEvent: func(e *cdi.EventEntry) {
			renderLeaf(w, depth[e], e.Key(), eventValue(e, caches))
		},
		VisitString: func(e *cdi.StringEntry) {
			renderLeaf(w, depth[e], e.Key(), stringValue(e, caches))
		},
	}

	walkDepth = func(e cdi.Entry, d int, children []cdi.Entry) {
		for _, c := range children {
			depth[c] = d + 1
		}
	}

	for _, s := range root.Segments {
		depth[s] = 0
		cdi.Walk(s, v)
	}
}

func renderLeaf(w io.Writer, depth int, key, value string) {
	fmt.Fprintf(w, "%s%s = %s\n", indent(depth), leafKeyStyle.Render(key), truncateValue(value))
}

// truncateValue clips an already-styled value to maxValueWidth visible
// columns, counting grapheme width rather than bytes so ANSI color
// codes and wide characters don't throw off the cut point.
func truncateValue(value string) string {
	if ansi.StringWidth(value) <= maxValueWidth {
		return value
	}
	return ansi.Truncate(value, maxValueWidth, "…")
}

func indent(depth int) string { return strings.Repeat("  ", depth) }

func integerValue(e *cdi.IntegerEntry, caches cdi.CacheProvider) string {
	if caches == nil {
		return missingStyle.Render("<unbound>")
	}
	v := cdi.NewIntegerAccessor(e, caches).Get()
	return valueStyle.Render(fmt.Sprintf("%d", v))
}

func eventValue(e *cdi.EventEntry, caches cdi.CacheProvider) string {
	if caches == nil {
		return missingStyle.Render("<unbound>")
	}
	id, ok := cdi.NewEventAccessor(e, caches).Get()
	if !ok {
		return missingStyle.Render("<missing>")
	}
	return valueStyle.Render(fmt.Sprintf("%x", id))
}

func stringValue(e *cdi.StringEntry, caches cdi.CacheProvider) string {
	if caches == nil {
		return missingStyle.Render("<unbound>")
	}
	s, ok := cdi.NewStringAccessor(e, caches).Get()
	if !ok {
		return missingStyle.Render("<missing>")
	}
	return valueStyle.Render(fmt.Sprintf("%q", s))
}

// waitReady blocks on states, the channel a StateObserver was wired
// to feed, until it sees CacheComplete (nil) or Failed (its message as
// an error). It lets a synchronous CLI command sit on top of the
// inherently asynchronous Orchestrator without juggling channels
// inline in every subcommand.
func waitReady(ctx context.Context, states <-chan cdi.StateChange) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sc := <-states:
			if sc.State == cdi.StateCacheComplete {
				return nil
			}
			if sc.State == cdi.StateFailed {
				return fmt.Errorf("%s", sc.Message)
			}
		}
	}
}
