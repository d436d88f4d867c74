package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vito/multi/pkg/typegraph"
)

// Arg is a single argument: its value, its runtime nominal type, and
// whether the caller holds a writable binding for it.
type Arg struct {
	Value   any
	Type    string
	Mutable bool
}

// Val is a read-only argument. An empty type means Any.
func Val(typ string, v any) Arg {
	if typ == "" {
		typ = typegraph.Any
	}
	return Arg{Value: v, Type: typ}
}

// Var is an argument bound to a writable container.
func Var(typ string, v any) Arg {
	a := Val(typ, v)
	a.Mutable = true
	return a
}

// Defined reports whether the argument carries a value.
func (a Arg) Defined() bool {
	return a.Value != nil
}

// Args is the argument tuple of one call.
type Args struct {
	Positional []Arg
	Named      map[string]Arg
}

// Positional builds an argument tuple with no named arguments.
func Positional(args ...Arg) Args {
	return Args{Positional: args}
}

// With returns a copy of the tuple with a named argument added.
func (a Args) With(name string, arg Arg) Args {
	named := make(map[string]Arg, len(a.Named)+1)
	for k, v := range a.Named {
		named[k] = v
	}
	named[name] = arg
	return Args{Positional: a.Positional, Named: named}
}

// Types returns the runtime types of the positional arguments.
func (a Args) Types() []string {
	types := make([]string, len(a.Positional))
	for i, arg := range a.Positional {
		types[i] = arg.Type
	}
	return types
}

func (a Args) namedKeys() []string {
	keys := make([]string, 0, len(a.Named))
	for k := range a.Named {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Shape renders the type shape of the tuple, e.g. "Int, Str, :verbose(Bool)".
func (a Args) Shape() string {
	parts := a.Types()
	for _, k := range a.namedKeys() {
		parts = append(parts, ":"+k+"("+a.Named[k].Type+")")
	}
	return strings.Join(parts, ", ")
}

// key encodes the shape for the dispatch cache. Type names are length
// prefixed so no choice of names makes two different shapes collide.
func (a Args) key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d;", len(a.Positional))
	for _, arg := range a.Positional {
		fmt.Fprintf(&sb, "%d:%s", len(arg.Type), arg.Type)
	}
	keys := a.namedKeys()
	fmt.Fprintf(&sb, ";%d;", len(keys))
	for _, k := range keys {
		typ := a.Named[k].Type
		fmt.Fprintf(&sb, "%d:%s%d:%s", len(k), k, len(typ), typ)
	}
	return sb.String()
}

// Body is the implementation of a candidate. The call carries the bound
// parameters and the delegation primitives.
type Body func(ctx context.Context, call *Call) (any, error)

// Param is a single parameter of a signature.
type Param struct {
	Name string
	// Type is a declared nominal type, or a type variable captured by an
	// earlier parameter. Empty means Any.
	Type string
	// Capture binds the argument's runtime type to a type variable.
	Capture    typegraph.TypeVariable
	Constraint Constraint
	// Rw requires a writable binding.
	Rw       bool
	Slurpy   bool
	Named    bool
	Optional bool
}

// Pos is a required positional parameter.
func Pos(name, typ string) Param {
	return Param{Name: name, Type: typ}
}

// Named is an optional named parameter.
func Named(name, typ string) Param {
	return Param{Name: name, Type: typ, Named: true, Optional: true}
}

// Slurpy absorbs the remaining positional arguments.
func Slurpy(name, typ string) Param {
	return Param{Name: name, Type: typ, Slurpy: true, Optional: true}
}

// Where attaches a constraint.
func (p Param) Where(c Constraint) Param {
	p.Constraint = c
	return p
}

// Captures binds the argument's runtime type to tv.
func (p Param) Captures(tv typegraph.TypeVariable) Param {
	p.Capture = tv
	return p
}

// Writable requires the argument to be passed as a writable binding.
func (p Param) Writable() Param {
	p.Rw = true
	return p
}

// Opt marks the parameter as optional.
func (p Param) Opt() Param {
	p.Optional = true
	return p
}

// Required marks a named parameter as required.
func (p Param) Required() Param {
	p.Optional = false
	return p
}

func (p Param) typeName() string {
	if p.Type == "" {
		return typegraph.Any
	}
	return p.Type
}

func (p Param) String() string {
	var s string
	switch {
	case p.Named && p.Slurpy:
		s = "*%" + p.Name
	case p.Named:
		s = ":" + p.Name + "(" + p.typeName() + ")"
		if !p.Optional {
			s += "!"
		}
	case p.Slurpy:
		s = "*" + p.typeName()
	default:
		s = p.typeName()
		if p.Capture != "" {
			if p.Type == "" {
				s = "::" + string(p.Capture)
			} else {
				s += " ::" + string(p.Capture)
			}
		}
		if p.Optional {
			s += "?"
		}
	}
	if p.Constraint != nil {
		s += " where"
	}
	if p.Rw {
		s += " is rw"
	}
	return s
}

// Candidate is one implementation of a generic function.
type Candidate struct {
	// Name labels the candidate in diagnostics. Defaults to its signature.
	Name   string
	Params []Param
	Body   Body
}

// Signature renders the parameter list, e.g. "(::T, T)".
func (c Candidate) Signature() string {
	parts := make([]string, len(c.Params))
	for i, p := range c.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Label is the name used for the candidate in errors and logs.
func (c Candidate) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Signature()
}

func (c Candidate) constrained() bool {
	for _, p := range c.Params {
		if p.Constraint != nil {
			return true
		}
	}
	return false
}

// arity is the call shape a signature accepts.
type arity struct {
	min, max    int // max < 0 is unbounded
	named       map[string]bool
	namedSlurpy bool
}

func arityOf(params []Param) arity {
	a := arity{named: map[string]bool{}}
	bounded := true
	for _, p := range params {
		switch {
		case p.Named && p.Slurpy:
			a.namedSlurpy = true
		case p.Named:
			a.named[p.Name] = !p.Optional
		case p.Slurpy:
			bounded = false
		default:
			if !p.Optional {
				a.min++
			}
			a.max++
		}
	}
	if !bounded {
		a.max = -1
	}
	return a
}

func (a arity) accepts(args Args) (bool, string) {
	n := len(args.Positional)
	if n < a.min {
		return false, fmt.Sprintf("needs at least %d positional arguments, got %d", a.min, n)
	}
	if a.max >= 0 && n > a.max {
		return false, fmt.Sprintf("takes at most %d positional arguments, got %d", a.max, n)
	}
	for name, required := range a.named {
		if _, ok := args.Named[name]; required && !ok {
			return false, fmt.Sprintf("missing required named argument %q", name)
		}
	}
	if !a.namedSlurpy {
		for _, name := range args.namedKeys() {
			if _, ok := a.named[name]; !ok {
				return false, fmt.Sprintf("unexpected named argument %q", name)
			}
		}
	}
	return true, ""
}

// overlaps reports whether some positional count satisfies both shapes.
func (a arity) overlaps(b arity) bool {
	lo := max(a.min, b.min)
	hi := a.max
	if hi < 0 || (b.max >= 0 && b.max < hi) {
		hi = b.max
	}
	return hi < 0 || lo <= hi
}

func (a arity) String() string {
	if a.max < 0 {
		return fmt.Sprintf("%d+", a.min)
	}
	if a.min == a.max {
		return fmt.Sprintf("%d", a.min)
	}
	return fmt.Sprintf("%d..%d", a.min, a.max)
}
