package dispatch

import (
	"fmt"

	"github.com/vito/multi/pkg/typegraph"
)

// wide marks a vector position absorbed by a slurpy parameter. It ranks
// below any concrete distance.
const wide = -1

// entry is a registered candidate.
type entry struct {
	Candidate
	arity       arity
	constrained bool
	vars        map[typegraph.TypeVariable]bool
}

// match is the type-level result of matching one candidate against an
// argument shape. It depends only on types, so it is what the cache holds.
type match struct {
	entry  *entry
	tier   int
	vector []int
	subs   typegraph.Subs
	// layout maps each parameter to the positional argument it binds, or -1.
	// A slurpy parameter binds from its index to the end.
	layout []int
}

func (m *match) label() string {
	return m.entry.Label()
}

func reject(e *entry, reason Reason, format string, args ...any) *Rejection {
	return &Rejection{
		Candidate: e.Label(),
		Reason:    reason,
		Detail:    fmt.Sprintf(format, args...),
	}
}

// resolveType maps a parameter's declared type through the captures made so
// far. A variable whose capturing parameter was not bound widens to Any.
func (e *entry) resolveType(p Param, subs typegraph.Subs) string {
	name := p.typeName()
	tv := typegraph.TypeVariable(name)
	if t, ok := subs.Get(tv); ok {
		return t
	}
	if e.vars[tv] {
		return typegraph.Any
	}
	return name
}

// matchTypes runs the arity and nominal filters and builds the narrowness
// vector.
func matchTypes(g *typegraph.Graph, e *entry, args Args) (*match, *Rejection) {
	if ok, why := e.arity.accepts(args); !ok {
		return nil, reject(e, ReasonArity, "%s", why)
	}

	n := len(args.Positional)
	m := &match{
		entry:  e,
		vector: make([]int, n),
		layout: make([]int, len(e.Params)),
	}

	claimed := map[string]bool{}
	next := 0
	for i, p := range e.Params {
		m.layout[i] = -1
		switch {
		case p.Named && p.Slurpy:
			// checked once every named parameter has claimed its argument
		case p.Named:
			claimed[p.Name] = true
			arg, ok := args.Named[p.Name]
			if !ok {
				continue
			}
			target := e.resolveType(p, m.subs)
			if !g.ConformsTo(arg.Type, target) {
				return nil, reject(e, ReasonType, "named argument %q of type %s does not conform to %s", p.Name, arg.Type, target)
			}
		case p.Slurpy:
			target := e.resolveType(p, m.subs)
			m.layout[i] = next
			for ; next < n; next++ {
				arg := args.Positional[next]
				if !g.ConformsTo(arg.Type, target) {
					return nil, reject(e, ReasonType, "argument %d of type %s does not conform to %s", next+1, arg.Type, target)
				}
				m.vector[next] = wide
			}
		default:
			if next >= n {
				continue
			}
			arg := args.Positional[next]
			target := e.resolveType(p, m.subs)
			d, ok := g.Distance(arg.Type, target)
			if !ok {
				return nil, reject(e, ReasonType, "argument %d of type %s does not conform to %s", next+1, arg.Type, target)
			}
			if p.Capture != "" {
				m.subs = m.subs.Bind(p.Capture, arg.Type)
				d = 0
			}
			m.vector[next] = d
			m.layout[i] = next
			next++
		}
	}

	for _, p := range e.Params {
		if !p.Named || !p.Slurpy {
			continue
		}
		target := e.resolveType(p, m.subs)
		for _, name := range args.namedKeys() {
			if claimed[name] {
				continue
			}
			if arg := args.Named[name]; !g.ConformsTo(arg.Type, target) {
				return nil, reject(e, ReasonType, "named argument %q of type %s does not conform to %s", name, arg.Type, target)
			}
		}
	}

	return m, nil
}

// dominance compares two narrowness vectors element-wise.
func dominance(a, b []int) (aWins, bWins bool) {
	var aLess, bLess bool
	for i := range a {
		x, y := a[i], b[i]
		switch {
		case x == y:
		case x == wide:
			bLess = true
		case y == wide:
			aLess = true
		case x < y:
			aLess = true
		default:
			bLess = true
		}
	}
	return aLess && !bLess, bLess && !aLess
}

// outranks reports whether a must be tried before b. Nominal dominance
// always wins; a constraint only breaks a nominal tie.
func outranks(a, b *match) bool {
	aWins, bWins := dominance(a.vector, b.vector)
	if aWins {
		return true
	}
	if bWins {
		return false
	}
	return a.entry.constrained && !b.entry.constrained
}

// rank orders matches narrowest first, in tiers. A tier holds every
// remaining match not outranked by another remaining match; matches in a
// tier keep registration order and are tied.
func rank(ms []*match) []*match {
	ranked := make([]*match, 0, len(ms))
	remaining := ms
	for tier := 0; len(remaining) > 0; tier++ {
		var top, rest []*match
		for _, m := range remaining {
			beaten := false
			for _, o := range remaining {
				if o != m && outranks(o, m) {
					beaten = true
					break
				}
			}
			if beaten {
				rest = append(rest, m)
			} else {
				top = append(top, m)
			}
		}
		if len(top) == 0 {
			// constraint tie-breaks between incomparable vectors can form a
			// cycle; whatever is left is one tier
			top, rest = remaining, nil
		}
		for _, m := range top {
			m.tier = tier
			ranked = append(ranked, m)
		}
		remaining = rest
	}
	return ranked
}
