package dispatch

import (
	"fmt"

	"github.com/vito/multi/pkg/typegraph"
)

// Register adds a candidate to a generic function, creating the function on
// first use. It invalidates every cached ordering for the function.
func (e *Env) Register(name string, c Candidate) error {
	if c.Body == nil {
		return invalid(name, c, "candidate has no body")
	}
	ent, err := e.prepare(name, c)
	if err != nil {
		return err
	}

	e.mu.Lock()
	g, ok := e.funcs[name]
	if !ok {
		g = &generic{name: name}
		e.funcs[name] = g
	}
	if g.proto != nil {
		if err := conflicts(name, g.proto, ent); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	// copy on append so snapshots handed to readers never change
	entries := make([]*entry, len(g.entries), len(g.entries)+1)
	copy(entries, g.entries)
	g.entries = append(entries, ent)
	g.version++
	e.mu.Unlock()

	e.cache.evict(name)
	return nil
}

// RegisterProto declares the shape every candidate of the function must be
// able to satisfy. The proto itself is never dispatched to.
func (e *Env) RegisterProto(name string, c Candidate) error {
	ent, err := e.prepare(name, c)
	if err != nil {
		return err
	}

	e.mu.Lock()
	g, ok := e.funcs[name]
	if !ok {
		g = &generic{name: name}
		e.funcs[name] = g
	}
	if g.proto != nil {
		e.mu.Unlock()
		return &Error{
			Kind:     KindShapeConflict,
			Function: name,
			Message:  fmt.Sprintf("proto %s already declared", g.proto.Label()),
		}
	}
	for _, existing := range g.entries {
		if err := conflicts(name, ent, existing); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	g.proto = ent
	g.version++
	e.mu.Unlock()

	e.cache.evict(name)
	return nil
}

// Lookup returns a function's candidates in registration order.
func (e *Env) Lookup(name string) ([]Candidate, error) {
	_, entries, _, ok := e.snapshot(name)
	if !ok {
		return nil, unknownFunction(name)
	}
	cands := make([]Candidate, len(entries))
	for i, ent := range entries {
		cands[i] = ent.Candidate
	}
	return cands, nil
}

// Proto returns the function's proto, if one was declared.
func (e *Env) Proto(name string) (Candidate, bool) {
	proto, _, _, _ := e.snapshot(name)
	if proto == nil {
		return Candidate{}, false
	}
	return proto.Candidate, true
}

func invalid(name string, c Candidate, format string, args ...any) error {
	return &Error{
		Kind:     KindInvalidSignature,
		Function: name,
		Message:  c.Signature() + ": " + fmt.Sprintf(format, args...),
	}
}

// prepare validates a signature and freezes a private copy of it.
func (e *Env) prepare(name string, c Candidate) (*entry, error) {
	params := make([]Param, len(c.Params))
	copy(params, c.Params)
	c.Params = params

	vars := map[typegraph.TypeVariable]bool{}
	names := map[string]bool{}
	var sawSlurpy, sawNamedSlurpy, sawOptional bool
	for i, p := range params {
		if p.Name != "" {
			if names[p.Name] {
				return nil, invalid(name, c, "duplicate parameter %q", p.Name)
			}
			names[p.Name] = true
		}

		switch {
		case p.Named && p.Slurpy:
			if sawNamedSlurpy {
				return nil, invalid(name, c, "more than one named slurpy")
			}
			sawNamedSlurpy = true
		case p.Named:
			if p.Name == "" {
				return nil, invalid(name, c, "named parameter %d has no name", i+1)
			}
		case p.Slurpy:
			if sawSlurpy {
				return nil, invalid(name, c, "more than one slurpy")
			}
			sawSlurpy = true
		default:
			if sawSlurpy {
				return nil, invalid(name, c, "positional parameter %s after slurpy", paramName(i, p))
			}
			if p.Optional {
				sawOptional = true
			} else if sawOptional {
				return nil, invalid(name, c, "required parameter %s after optional", paramName(i, p))
			}
		}

		if p.Slurpy && p.Constraint != nil {
			return nil, invalid(name, c, "constraint on slurpy %s", paramName(i, p))
		}
		if p.Capture != "" && (p.Slurpy || p.Named) {
			return nil, invalid(name, c, "capture on non-positional %s", paramName(i, p))
		}

		typ := p.typeName()
		if !vars[typegraph.TypeVariable(typ)] && !e.graph.Has(typ) {
			return nil, invalid(name, c, "parameter %s: unknown type %s", paramName(i, p), typ)
		}

		if p.Capture != "" {
			if e.graph.Has(string(p.Capture)) {
				return nil, invalid(name, c, "capture ::%s shadows a declared type", p.Capture)
			}
			vars[p.Capture] = true
		}
	}

	return &entry{
		Candidate:   c,
		arity:       arityOf(params),
		constrained: c.constrained(),
		vars:        vars,
	}, nil
}

// conflicts checks a candidate against the function's proto.
func conflicts(name string, proto, cand *entry) error {
	shape := func(msg string, args ...any) error {
		return &Error{
			Kind:     KindShapeConflict,
			Function: name,
			Message:  fmt.Sprintf("%s does not fit proto %s: ", cand.Label(), proto.Signature()) + fmt.Sprintf(msg, args...),
		}
	}
	if !proto.arity.overlaps(cand.arity) {
		return shape("takes %s positional arguments, proto takes %s", cand.arity, proto.arity)
	}
	if proto.arity.namedSlurpy {
		return nil
	}
	for named, required := range cand.arity.named {
		if _, ok := proto.arity.named[named]; required && !ok {
			return shape("requires named argument %q", named)
		}
	}
	return nil
}
