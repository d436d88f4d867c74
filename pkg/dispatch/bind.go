package dispatch

import (
	"strconv"

	"github.com/vito/multi/pkg/typegraph"
)

// Bindings are the parameters of a candidate bound to the arguments of a
// call, along with the type captures made while matching.
type Bindings struct {
	params    []Param
	args      []Arg
	present   []bool
	rest      map[string][]Arg
	namedRest map[string]map[string]Arg
	subs      typegraph.Subs
}

func newBindings(params []Param, subs typegraph.Subs) *Bindings {
	return &Bindings{
		params:  params,
		args:    make([]Arg, len(params)),
		present: make([]bool, len(params)),
		subs:    subs,
	}
}

// Arg returns the argument bound to the named parameter.
func (b *Bindings) Arg(name string) (Arg, bool) {
	for i, p := range b.params {
		if p.Name == name && b.present[i] {
			return b.args[i], true
		}
	}
	return Arg{}, false
}

// Value returns the bound value of a parameter, or nil.
func (b *Bindings) Value(name string) any {
	arg, _ := b.Arg(name)
	return arg.Value
}

// Rest returns the arguments absorbed by a slurpy positional parameter.
func (b *Bindings) Rest(name string) []Arg {
	return b.rest[name]
}

// NamedRest returns the named arguments absorbed by a named slurpy.
func (b *Bindings) NamedRest(name string) map[string]Arg {
	return b.namedRest[name]
}

// TypeOf returns the runtime type captured by a type variable.
func (b *Bindings) TypeOf(tv typegraph.TypeVariable) (string, bool) {
	return b.subs.Get(tv)
}

func (b *Bindings) Captures() typegraph.Subs {
	return b.subs.Clone()
}

// bound returns the arguments a parameter takes from the call.
func (m *match) bound(i int, args Args) []Arg {
	p := m.entry.Params[i]
	switch {
	case p.Named && p.Slurpy:
		var out []Arg
		for _, name := range args.namedKeys() {
			if !m.claims(name) {
				out = append(out, args.Named[name])
			}
		}
		return out
	case p.Named:
		if arg, ok := args.Named[p.Name]; ok {
			return []Arg{arg}
		}
		return nil
	case p.Slurpy:
		if m.layout[i] < 0 {
			return nil
		}
		return args.Positional[m.layout[i]:]
	default:
		if m.layout[i] < 0 {
			return nil
		}
		return []Arg{args.Positional[m.layout[i]]}
	}
}

func (m *match) claims(name string) bool {
	for _, p := range m.entry.Params {
		if p.Named && !p.Slurpy && p.Name == name {
			return true
		}
	}
	return false
}

// evaluate checks writable bindings and then runs constraints in declared
// order. It never consults the cache: constraints may depend on values.
func (m *match) evaluate(args Args) (*Bindings, *Rejection) {
	for i, p := range m.entry.Params {
		if !p.Rw {
			continue
		}
		for _, arg := range m.bound(i, args) {
			if !arg.Mutable {
				return nil, reject(m.entry, ReasonBinding, "parameter %s requires a writable binding, got a read-only %s", paramName(i, p), arg.Type)
			}
		}
	}

	b := newBindings(m.entry.Params, m.subs)
	for i, p := range m.entry.Params {
		bound := m.bound(i, args)
		switch {
		case p.Named && p.Slurpy:
			rest := map[string]Arg{}
			for _, name := range args.namedKeys() {
				if !m.claims(name) {
					rest[name] = args.Named[name]
				}
			}
			if b.namedRest == nil {
				b.namedRest = map[string]map[string]Arg{}
			}
			b.namedRest[p.Name] = rest
			continue
		case p.Slurpy:
			if b.rest == nil {
				b.rest = map[string][]Arg{}
			}
			b.rest[p.Name] = bound
			continue
		}
		if len(bound) == 0 {
			continue
		}
		b.args[i] = bound[0]
		b.present[i] = true

		if p.Constraint == nil {
			continue
		}
		ok, err := p.Constraint(bound[0], b)
		if err != nil {
			r := reject(m.entry, ReasonConstraint, "constraint on %s failed", paramName(i, p))
			r.Err = err
			return nil, r
		}
		if !ok {
			return nil, reject(m.entry, ReasonConstraint, "constraint on %s rejected %v", paramName(i, p), bound[0].Value)
		}
	}
	return b, nil
}

func paramName(i int, p Param) string {
	if p.Name != "" {
		return p.Name
	}
	return "#" + strconv.Itoa(i+1)
}
