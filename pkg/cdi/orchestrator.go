package cdi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/openlcb-go/cdicore/pkg/cdi/transport"
)

// State is one of the Orchestrator's lifecycle states.
type State int

const (
	StateUninitialized State = iota
	StateFetching
	StateParsing
	StateReady
	StatePrefilling
	StateCacheComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateFetching:
		return "Fetching"
	case StateParsing:
		return "Parsing"
	case StateReady:
		return "Ready"
	case StatePrefilling:
		return "Prefilling"
	case StateCacheComplete:
		return "CacheComplete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// StateChange is the payload of the UPDATE_STATE observer tag.
type StateChange struct {
	State   State
	Message string
}

// Option configures an Orchestrator's observers at construction time
// via the functional-options pattern.
type Option func(*Orchestrator)

// WithStateObserver registers f to be called on every state
// transition (UPDATE_STATE).
func WithStateObserver(f func(StateChange)) Option {
	return func(o *Orchestrator) { o.onState = append(o.onState, f) }
}

// WithRepresentationObserver registers f to be called once, with the
// resolved tree, when the Parsing state succeeds (UPDATE_REP).
func WithRepresentationObserver(f func(*Root)) Option {
	return func(o *Orchestrator) { o.onRep = append(o.onRep, f) }
}

// WithCacheCompleteObserver registers f to be called exactly once per
// fillCache epoch, after every registered space's LoadingComplete
// (UPDATE_CACHE_COMPLETE).
func WithCacheCompleteObserver(f func()) Option {
	return func(o *Orchestrator) { o.onCacheComplete = append(o.onCacheComplete, f) }
}

// WithEntryDataObserver registers f to be called whenever any entry's
// backing bytes change (UPDATE_ENTRY_DATA).
func WithEntryDataObserver(f func(Entry)) Option {
	return func(o *Orchestrator) { o.onEntryData = append(o.onEntryData, f) }
}

// WithMaxChunk overrides the per-space cache's read chunk size.
func WithMaxChunk(n int) Option {
	return func(o *Orchestrator) { o.maxChunk = n }
}

// WithLogger overrides the *slog.Logger used for lifecycle logging.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// Orchestrator drives the CDI lifecycle end to end: Source Reader → Parser → Layout Resolver → per-space
// Memory-Space Caches → prefill → ready-for-steady-state. It also
// satisfies CacheProvider so accessors can be built directly against
// it.
type Orchestrator struct {
	node   transport.NodeID
	tp     transport.Transport
	parser Parser
	source *SourceReader

	maxChunk int
	log      *slog.Logger

	onState         []func(StateChange)
	onRep           []func(*Root)
	onCacheComplete []func()
	onEntryData     []func(Entry)

	mu      sync.Mutex
	state   State
	failMsg string
	root    *Root
	caches  map[int]*Cache
}

// New constructs an Orchestrator for node over tp, using parser to
// turn the fetched CDI stream into a Representation. cdiSpace
// defaults to DefaultCDISpace when 0.
func New(node transport.NodeID, tp transport.Transport, parser Parser, cdiSpace int, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		node:   node,
		tp:     tp,
		parser: parser,
		source: NewSourceReader(tp, cdiSpace),
		state:  StateUninitialized,
		caches: make(map[int]*Cache),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Root returns the resolved tree, or nil if the orchestrator has not
// reached at least StateReady.
func (o *Orchestrator) Root() *Root {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.root
}

// Cache implements CacheProvider, creating a cache for space on first
// use.
func (o *Orchestrator) Cache(space int) *Cache {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.caches[space]
	if !ok {
		c = NewCache(o.node, space, o.tp, o.maxChunk, o.log)
		o.caches[space] = c
	}
	return c
}

// Start drives Uninitialized → Fetching → Parsing → Ready →
// Prefilling → CacheComplete, or to Failed on any error along the
// way. It returns immediately; the whole sequence runs in the
// background and is observed through the Option callbacks.
func (o *Orchestrator) Start(ctx context.Context) {
	o.transition(StateFetching, "fetching CDI from node")

	o.source.FetchCDI(ctx, o.node, func(r io.Reader, err error) {
		if o.isFailed() {
			return // tolerate late callbacks arriving after Failed
		}
		if err != nil {
			o.fail(fmt.Sprintf("fetch failed: %v", err))
			return
		}
		o.parse(ctx, r)
	})
}

func (o *Orchestrator) parse(ctx context.Context, r io.Reader) {
	o.transition(StateParsing, "parsing CDI document")

	rep, err := o.parser.Parse(r)
	if err != nil {
		o.fail(fmt.Sprintf("parse failed: %v", err))
		return
	}

	root, err := Resolve(ctx, rep)
	if err != nil {
		o.fail(fmt.Sprintf("layout failed: %v", err))
		return
	}

	o.mu.Lock()
	o.root = root
	o.mu.Unlock()

	o.transition(StateReady, "representation ready")
	for _, f := range o.onRep {
		f(root)
	}

	o.prefill(ctx, root)
}

// prefill registers every leaf's byte range and an entry-data
// listener against its space's cache, then fires fillCache on every
// space touched, completing once every space has reported
// LoadingComplete for this epoch.
func (o *Orchestrator) prefill(ctx context.Context, root *Root) {
	o.transition(StatePrefilling, "prefilling memory-space caches")

	spaces := make(map[int]struct{})
	for e := range root.Leaves() {
		c := o.Cache(e.Space())
		lo := e.Origin()
		hi := e.Origin() + e.Size()
		c.AddRangeToCache(lo, hi)

		entry := e
		c.AddRangeListener(lo, hi, func() {
			entry.notify()
			for _, f := range o.onEntryData {
				f(entry)
			}
		})
		spaces[e.Space()] = struct{}{}
	}

	if len(spaces) == 0 {
		o.transition(StateCacheComplete, "cache complete (no leaves)")
		for _, f := range o.onCacheComplete {
			f()
		}
		return
	}

	var mu sync.Mutex
	remaining := len(spaces)
	for space := range spaces {
		o.Cache(space).FillCache(ctx, func() {
			mu.Lock()
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				if o.isFailed() {
					return
				}
				o.transition(StateCacheComplete, "cache complete")
				for _, f := range o.onCacheComplete {
					f()
				}
			}
		})
	}
}

func (o *Orchestrator) transition(s State, msg string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.log.Debug("cdi orchestrator state change", "state", s.String(), "message", msg)
	for _, f := range o.onState {
		f(StateChange{State: s, Message: msg})
	}
}

func (o *Orchestrator) fail(msg string) {
	o.mu.Lock()
	o.state = StateFailed
	o.failMsg = msg
	o.mu.Unlock()
	o.log.Error("cdi orchestrator failed", "message", msg)
	for _, f := range o.onState {
		f(StateChange{State: StateFailed, Message: msg})
	}
}

func (o *Orchestrator) isFailed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateFailed
}
