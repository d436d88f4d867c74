package dispatch

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vito/multi/pkg/ioctx"
	"github.com/vito/multi/pkg/typegraph"
)

// Dispatch calls the narrowest candidate of a generic function that accepts
// the arguments.
func (e *Env) Dispatch(ctx context.Context, name string, args Args) (_ any, rerr error) {
	ctx, span := e.tracer.Start(ctx, "dispatch "+name, trace.WithAttributes(
		attribute.String("dispatch.function", name),
		attribute.String("dispatch.shape", args.Shape()),
	))
	defer func() { endSpan(span, rerr) }()

	res, err := e.resolve(ctx, name, args)
	if err != nil {
		return nil, err
	}
	return e.walk(ctx, name, res.matches, args, res.rejections, res.total)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// checkTypes rejects arguments whose runtime types the graph has never
// heard of.
func (e *Env) checkTypes(name string, args Args) error {
	for i, arg := range args.Positional {
		if !e.graph.Has(arg.Type) {
			return errors.Wrapf(typegraph.ErrUnknownType, "%s: argument %d has type %s", name, i+1, arg.Type)
		}
	}
	for _, k := range args.namedKeys() {
		if typ := args.Named[k].Type; !e.graph.Has(typ) {
			return errors.Wrapf(typegraph.ErrUnknownType, "%s: named argument %q has type %s", name, k, typ)
		}
	}
	return nil
}

// resolve returns the cached ordering for the argument shape, computing it
// on a miss.
func (e *Env) resolve(ctx context.Context, name string, args Args) (*resolution, error) {
	proto, entries, version, ok := e.snapshot(name)
	if !ok {
		return nil, unknownFunction(name)
	}
	if err := e.checkTypes(name, args); err != nil {
		return nil, err
	}

	key := cacheKey{fn: name, shape: args.key()}
	graphVersion := e.graph.Version()
	res, hit := e.cache.get(key, version, graphVersion, func() *resolution {
		return e.order(name, proto, entries, args, version, graphVersion)
	})
	if !hit {
		ioctx.LoggerFromContext(ctx).DebugContext(ctx, "dispatch cache miss",
			"function", name,
			"shape", args.Shape(),
			"candidates", len(res.matches))
	}
	if res.err != nil {
		return nil, res.err
	}
	return res, nil
}

func (e *Env) order(name string, proto *entry, entries []*entry, args Args, version, graphVersion uint64) *resolution {
	res := &resolution{
		fnVersion:    version,
		graphVersion: graphVersion,
		total:        len(entries),
	}
	if err := fitsProto(name, proto, args); err != nil {
		res.err = err
		return res
	}

	var ms []*match
	for _, ent := range entries {
		m, rej := matchTypes(e.graph, ent, args)
		if rej != nil {
			res.rejections = append(res.rejections, *rej)
			continue
		}
		ms = append(ms, m)
	}
	res.matches = rank(ms)
	return res
}

func fitsProto(name string, proto *entry, args Args) error {
	if proto == nil {
		return nil
	}
	if ok, why := proto.arity.accepts(args); !ok {
		return &Error{
			Kind:     KindArityMismatch,
			Function: name,
			Shape:    args.Shape(),
			Message:  fmt.Sprintf("does not fit proto %s: %s", proto.Signature(), why),
		}
	}
	return nil
}

// selectFrom walks an ordering and returns the first candidate that binds
// and satisfies its constraints, along with the rest of the chain.
func selectFrom(fn string, chain []*match, args Args, prior []Rejection, total int) (*match, *Bindings, []*match, error) {
	rejections := append([]Rejection(nil), prior...)
	for i, m := range chain {
		b, rej := m.evaluate(args)
		if rej != nil {
			rejections = append(rejections, *rej)
			continue
		}
		for _, other := range chain[i+1:] {
			if other.tier != m.tier {
				break
			}
			if _, rej := other.evaluate(args); rej == nil {
				return nil, nil, nil, &Error{
					Kind:     KindAmbiguous,
					Function: fn,
					Shape:    args.Shape(),
					Message:  fmt.Sprintf("%s and %s are equally narrow", m.label(), other.label()),
				}
			}
		}
		return m, b, chain[i+1:], nil
	}
	return nil, nil, nil, failure(fn, args, total, rejections)
}

// continuation is returned by a body that transfers control for good.
type continuation struct {
	chain      []*match
	args       Args
	rejections []Rejection
}

// walk runs the selected candidate and follows any tail transfers it makes
// without growing the stack.
func (e *Env) walk(ctx context.Context, fn string, chain []*match, args Args, prior []Rejection, total int) (any, error) {
	logger := ioctx.LoggerFromContext(ctx)
	for {
		sel, b, rest, err := selectFrom(fn, chain, args, prior, total)
		if err != nil {
			return nil, err
		}
		logger.DebugContext(ctx, "selected candidate",
			"function", fn,
			"candidate", sel.label(),
			"remaining", len(rest))
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("dispatch.candidate", sel.label()))

		call := &Call{
			env:      e,
			fn:       fn,
			match:    sel,
			args:     args,
			bindings: b,
			rest:     rest,
			total:    total,
		}
		v, err := sel.entry.Body(ctx, call)
		if err != nil {
			return nil, err
		}
		next, ok := v.(*continuation)
		if !ok {
			return v, nil
		}
		logger.DebugContext(ctx, "tail transfer", "function", fn, "from", sel.label())
		chain, args, prior = next.chain, next.args, next.rejections
	}
}

// rematch re-runs the type-level filters of a chain against new arguments,
// keeping the chain's order.
func (e *Env) rematch(fn string, chain []*match, args Args) ([]*match, []Rejection, error) {
	if err := e.checkTypes(fn, args); err != nil {
		return nil, nil, err
	}
	proto, _, _, _ := e.snapshot(fn)
	if err := fitsProto(fn, proto, args); err != nil {
		return nil, nil, err
	}
	var out []*match
	var rejections []Rejection
	for _, m := range chain {
		nm, rej := matchTypes(e.graph, m.entry, args)
		if rej != nil {
			rejections = append(rejections, *rej)
			continue
		}
		nm.tier = m.tier
		out = append(out, nm)
	}
	return out, rejections, nil
}

// Call is the state of one invocation of a candidate: its bindings and the
// rest of the ordering, for delegation. It belongs to the body it is passed
// to and must not outlive it.
type Call struct {
	env      *Env
	fn       string
	match    *match
	args     Args
	bindings *Bindings
	rest     []*match
	total    int
}

// Function is the name of the generic function being called.
func (c *Call) Function() string {
	return c.fn
}

// Candidate is the candidate whose body is running.
func (c *Call) Candidate() Candidate {
	return c.match.entry.Candidate
}

// Args is the argument tuple the candidate was selected for.
func (c *Call) Args() Args {
	return c.args
}

func (c *Call) Bindings() *Bindings {
	return c.bindings
}

// Remaining is the number of candidates left to delegate to.
func (c *Call) Remaining() int {
	return len(c.rest)
}

func (c *Call) exhausted() error {
	return &Error{
		Kind:     KindNoMoreCandidates,
		Function: c.fn,
		Shape:    c.args.Shape(),
		Message:  fmt.Sprintf("%s has no candidate to delegate to", c.match.label()),
	}
}

// DelegateSame calls the next accepting candidate with the same arguments
// and returns its result.
func (c *Call) DelegateSame(ctx context.Context) (any, error) {
	if len(c.rest) == 0 {
		return nil, c.exhausted()
	}
	return c.delegate(ctx, c.rest, c.args, nil)
}

// DelegateWith calls the next candidate in the ordering that accepts args
// and returns its result.
func (c *Call) DelegateWith(ctx context.Context, args Args) (any, error) {
	if len(c.rest) == 0 {
		return nil, c.exhausted()
	}
	chain, rejections, err := c.env.rematch(c.fn, c.rest, args)
	if err != nil {
		return nil, err
	}
	return c.delegate(ctx, chain, args, rejections)
}

func (c *Call) delegate(ctx context.Context, chain []*match, args Args, rejections []Rejection) (_ any, rerr error) {
	ctx, span := c.env.tracer.Start(ctx, "delegate "+c.fn, trace.WithAttributes(
		attribute.String("dispatch.function", c.fn),
		attribute.String("dispatch.from", c.match.label()),
	))
	defer func() { endSpan(span, rerr) }()

	ioctx.LoggerFromContext(ctx).DebugContext(ctx, "delegating",
		"function", c.fn,
		"from", c.match.label(),
		"remaining", len(chain))
	return c.env.walk(ctx, c.fn, chain, args, rejections, c.total)
}

// TailSame hands control to the next accepting candidate for good. The body
// must return the values TailSame returns.
func (c *Call) TailSame() (any, error) {
	if len(c.rest) == 0 {
		return nil, c.exhausted()
	}
	return &continuation{chain: c.rest, args: c.args}, nil
}

// TailWith hands control to the next candidate accepting args for good. The
// body must return the values TailWith returns.
func (c *Call) TailWith(args Args) (any, error) {
	if len(c.rest) == 0 {
		return nil, c.exhausted()
	}
	chain, rejections, err := c.env.rematch(c.fn, c.rest, args)
	if err != nil {
		return nil, err
	}
	return &continuation{chain: chain, args: args, rejections: rejections}, nil
}

// Ranked is one entry of a resolved ordering.
type Ranked struct {
	Candidate   string
	Signature   string
	Tier        int
	Vector      []int
	Constrained bool
	Captures    typegraph.Subs
}

// Ordering is the resolved, constraint-agnostic candidate order for an
// argument shape.
type Ordering struct {
	Function string
	Shape    string
	Ranked   []Ranked
	Rejected []Rejection
}

// Order returns the ordering Dispatch would walk for args. Vector entries of
// -1 are positions absorbed by a slurpy parameter.
func (e *Env) Order(ctx context.Context, name string, args Args) (*Ordering, error) {
	res, err := e.resolve(ctx, name, args)
	if err != nil {
		return nil, err
	}
	o := &Ordering{
		Function: name,
		Shape:    args.Shape(),
		Rejected: append([]Rejection(nil), res.rejections...),
	}
	for _, m := range res.matches {
		o.Ranked = append(o.Ranked, Ranked{
			Candidate:   m.label(),
			Signature:   m.entry.Signature(),
			Tier:        m.tier,
			Vector:      append([]int(nil), m.vector...),
			Constrained: m.entry.constrained,
			Captures:    m.subs.Clone(),
		})
	}
	return o, nil
}
