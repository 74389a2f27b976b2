package cdi

import "github.com/pkg/errors"

// Error kinds raised by the core. Each is a distinct sentinel
// type so callers can discriminate with errors.As; the textual detail
// comes from github.com/pkg/errors wrapping at the call site.

// ParseError wraps a failure from the Parser collaborator (component
// B). The Orchestrator treats it as fatal for the representation.
type ParseError struct {
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return errors.Wrap(e.Cause, "parse error: "+e.Reason).Error()
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Cause }

// LayoutError is raised by the Layout Resolver (component C) when a
// description item is missing required metadata or declares a
// negative offset.
type LayoutError struct {
	Key    string
	Reason string
}

func (e *LayoutError) Error() string {
	if e.Key == "" {
		return "layout error: " + e.Reason
	}
	return errors.Errorf("layout error at %q: %s", e.Key, e.Reason).Error()
}

// WriteError is surfaced when a Memory-Space Cache write fails to be
// acknowledged by the remote node.
type WriteError struct {
	Space  int
	Origin int64
	Cause  error
}

func (e *WriteError) Error() string {
	return errors.Wrapf(e.Cause, "write error: space=%d origin=%d", e.Space, e.Origin).Error()
}

func (e *WriteError) Unwrap() error { return e.Cause }

// EncodingError documents the shape of a string accessor's set()
// failure mode: a value that doesn't fit in the entry's byte budget.
// StringAccessor.Set never returns it — an oversized string is
// truncated at a rune boundary rather than rejected — but callers that
// want to detect truncation ahead of time can check len(s) against the
// entry's Size()-1 budget themselves.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string { return "encoding error: " + e.Reason }
