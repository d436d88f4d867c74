package dispatch

import (
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vito/multi/pkg/typegraph"
)

const instrumentationName = "github.com/vito/multi/pkg/dispatch"

// generic is a named generic function: its proto and its append-only
// candidate list.
type generic struct {
	name    string
	proto   *entry
	entries []*entry
	version uint64
}

// Env is a dispatch environment: a set of generic functions over one type
// graph, and the cache of their resolved orderings. Independent Envs do not
// share anything.
type Env struct {
	graph *typegraph.Graph

	mu    sync.RWMutex
	funcs map[string]*generic

	cache  *cache
	tracer trace.Tracer
}

type Option func(*Env)

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Env) {
		e.tracer = t
	}
}

// New creates an empty environment over the given type graph.
func New(graph *typegraph.Graph, opts ...Option) *Env {
	if graph == nil {
		graph = typegraph.New()
	}
	e := &Env{
		graph:  graph,
		funcs:  map[string]*generic{},
		cache:  newCache(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the type graph the environment dispatches over.
func (e *Env) Graph() *typegraph.Graph {
	return e.graph
}

// Functions returns the names of every generic function, sorted.
func (e *Env) Functions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.funcs))
	for name := range e.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshot returns the function's state at this instant. The entries slice
// is never appended to in place, so it stays valid after later
// registrations.
func (e *Env) snapshot(name string) (proto *entry, entries []*entry, version uint64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.funcs[name]
	if !ok {
		return nil, nil, 0, false
	}
	return g.proto, g.entries, g.version, true
}

func unknownFunction(name string) error {
	return &Error{
		Kind:     KindUnknownFunction,
		Function: name,
		Message:  "no such generic function",
	}
}
