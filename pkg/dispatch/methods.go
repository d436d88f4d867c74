package dispatch

import (
	"context"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Policy decides how many candidates a method-style call runs.
type Policy int

const (
	// AtMostOne runs the first accepting candidate, if any.
	AtMostOne Policy = iota
	// AtLeastOne runs the first accepting candidate and fails if there is none.
	AtLeastOne
	// All runs every accepting candidate in narrowness order.
	All
)

func (p Policy) String() string {
	switch p {
	case AtMostOne:
		return "at-most-one"
	case AtLeastOne:
		return "at-least-one"
	case All:
		return "all"
	}
	return "unknown"
}

// ParsePolicy accepts "at-most-one", "atLeastOne", "ALL" and so on.
func ParsePolicy(s string) (Policy, error) {
	switch strcase.ToKebab(s) {
	case "at-most-one":
		return AtMostOne, nil
	case "at-least-one":
		return AtLeastOne, nil
	case "all":
		return All, nil
	}
	return 0, errors.Errorf("unknown policy %q", s)
}

// noMatch reports whether err only says that nothing accepted the call.
func noMatch(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case KindNoCandidate, KindBindingFailure, KindArityMismatch:
		return true
	}
	return false
}

// DispatchAll runs a method-style call under the given policy. Candidates
// run this way have nothing to delegate to.
func (e *Env) DispatchAll(ctx context.Context, name string, args Args, policy Policy) (_ []any, rerr error) {
	ctx, span := e.tracer.Start(ctx, "dispatch "+name, trace.WithAttributes(
		attribute.String("dispatch.function", name),
		attribute.String("dispatch.shape", args.Shape()),
		attribute.String("dispatch.policy", policy.String()),
	))
	defer func() { endSpan(span, rerr) }()

	res, err := e.resolve(ctx, name, args)
	if err != nil {
		if policy != AtLeastOne && noMatch(err) {
			return nil, nil
		}
		return nil, err
	}

	switch policy {
	case AtMostOne, AtLeastOne:
		sel, b, _, err := selectFrom(name, res.matches, args, res.rejections, res.total)
		if err != nil {
			if policy == AtMostOne && noMatch(err) {
				return nil, nil
			}
			return nil, err
		}
		v, err := e.runAlone(ctx, name, sel, b, args, res.total)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil

	case All:
		var results []any
		for _, m := range res.matches {
			b, rej := m.evaluate(args)
			if rej != nil {
				continue
			}
			v, err := e.runAlone(ctx, name, m, b, args, res.total)
			if err != nil {
				return results, err
			}
			results = append(results, v)
		}
		return results, nil
	}

	return nil, errors.Errorf("unknown policy %d", policy)
}

// runAlone runs a body with an empty chain.
func (e *Env) runAlone(ctx context.Context, fn string, m *match, b *Bindings, args Args, total int) (any, error) {
	call := &Call{
		env:      e,
		fn:       fn,
		match:    m,
		args:     args,
		bindings: b,
		total:    total,
	}
	return m.entry.Body(ctx, call)
}
