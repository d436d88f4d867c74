package typegraph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Any is the root type. Every declared type conforms to it.
const Any = "Any"

var (
	ErrUnknownType = errors.New("unknown type")
	ErrRedeclared  = errors.New("type already declared")
	ErrCycle       = errors.New("conformance cycle")
)

// CycleError reports an edge that would have made the conforms-to relation cyclic.
type CycleError struct {
	Child  string
	Parent string
	// Path runs from Parent back to Child through existing edges.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s cannot conform to %s: %s", e.Child, e.Parent, strings.Join(append(e.Path, e.Parent), " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}

type node struct {
	name    string
	parents []string
}

// Graph is the nominal conforms-to relation over declared types.
type Graph struct {
	mu      sync.RWMutex
	nodes   map[string]*node
	version uint64
}

// New creates a graph that only knows about Any.
func New() *Graph {
	return &Graph{
		nodes: map[string]*node{
			Any: {name: Any},
		},
	}
}

// Declare adds a type with the given parents. A type with no parents
// conforms directly to Any.
func (g *Graph) Declare(name string, parents ...string) error {
	if name == "" {
		return errors.Errorf("declare: empty type name")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[name]; exists {
		return errors.Wrapf(ErrRedeclared, "declare %s", name)
	}
	if len(parents) == 0 {
		parents = []string{Any}
	}
	seen := map[string]bool{}
	ps := make([]string, 0, len(parents))
	for _, p := range parents {
		if _, ok := g.nodes[p]; !ok {
			return errors.Wrapf(ErrUnknownType, "declare %s: parent %s", name, p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		ps = append(ps, p)
	}

	g.nodes[name] = &node{name: name, parents: ps}
	g.version++
	return nil
}

// Extend makes an already declared type conform to another declared type.
// Edges that would introduce a cycle are rejected and leave the graph
// untouched.
func (g *Graph) Extend(name, parent string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	child, ok := g.nodes[name]
	if !ok {
		return errors.Wrapf(ErrUnknownType, "extend %s", name)
	}
	if _, ok := g.nodes[parent]; !ok {
		return errors.Wrapf(ErrUnknownType, "extend %s: parent %s", name, parent)
	}
	if path := g.path(parent, name); path != nil || parent == name {
		if path == nil {
			path = []string{name}
		}
		return &CycleError{Child: name, Parent: parent, Path: path}
	}
	for _, p := range child.parents {
		if p == parent {
			return nil
		}
	}

	child.parents = append(child.parents, parent)
	g.version++
	return nil
}

// Has reports whether the type has been declared.
func (g *Graph) Has(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[name]
	return ok
}

// Supertypes returns the direct parents of a type.
func (g *Graph) Supertypes(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	if !ok {
		return nil
	}
	return append([]string(nil), n.parents...)
}

// Names returns every declared type, sorted.
func (g *Graph) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version changes whenever a type or edge is added.
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// ConformsTo reports whether a is b or reaches b through conforms-to edges.
func (g *Graph) ConformsTo(a, b string) bool {
	_, ok := g.Distance(a, b)
	return ok
}

// Distance is the length of the shortest conforms-to path from a to b.
func (g *Graph) Distance(a, b string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.distance(a, b)
}

func (g *Graph) distance(a, b string) (int, bool) {
	if _, ok := g.nodes[a]; !ok {
		return 0, false
	}
	if _, ok := g.nodes[b]; !ok {
		return 0, false
	}
	if a == b {
		return 0, true
	}

	// breadth-first, so the first hit is the minimum over all paths
	seen := map[string]bool{a: true}
	frontier := []string{a}
	for depth := 1; len(frontier) > 0; depth++ {
		var next []string
		for _, name := range frontier {
			for _, p := range g.nodes[name].parents {
				if p == b {
					return depth, true
				}
				if !seen[p] {
					seen[p] = true
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return 0, false
}

// path returns a chain of edges from a to b, or nil.
func (g *Graph) path(a, b string) []string {
	if a == b {
		return nil
	}
	prev := map[string]string{a: ""}
	queue := []string{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range g.nodes[cur].parents {
			if _, seen := prev[p]; seen {
				continue
			}
			prev[p] = cur
			if p == b {
				var rev []string
				for at := b; at != ""; at = prev[at] {
					rev = append(rev, at)
				}
				for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
					rev[i], rev[j] = rev[j], rev[i]
				}
				return rev
			}
			queue = append(queue, p)
		}
	}
	return nil
}
