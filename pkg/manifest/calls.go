package manifest

import (
	"context"
	"fmt"
	"reflect"

	"github.com/pkg/errors"

	"github.com/vito/multi/pkg/dispatch"
)

// Call is a parsed [[call]] entry.
type Call struct {
	Function string
	Args     dispatch.Args
	// Policy is set for method-style calls.
	Policy *dispatch.Policy
	Expect any
	// ExpectError is the kind of error the call must fail with, if any.
	ExpectError dispatch.Kind
}

func (c Call) String() string {
	s := c.Function + "(" + c.Args.Shape() + ")"
	if c.Policy != nil {
		s += " [" + c.Policy.String() + "]"
	}
	return s
}

// Calls parses the manifest's calls.
func (m *Manifest) Calls() ([]Call, error) {
	calls := make([]Call, len(m.CallDecls))
	for i, decl := range m.CallDecls {
		c := Call{
			Function: decl.Function,
			Args:     convertArgs(decl.Args, decl.Named),
			Expect:   decl.Expect,
		}
		if decl.Policy != "" {
			policy, err := dispatch.ParsePolicy(decl.Policy)
			if err != nil {
				return nil, errors.Wrapf(err, "call %d (%s)", i+1, decl.Function)
			}
			c.Policy = &policy
		}
		if decl.ExpectError != "" {
			kind, ok := dispatch.ParseKind(decl.ExpectError)
			if !ok {
				return nil, errors.Errorf("call %d (%s): unknown error kind %q", i+1, decl.Function, decl.ExpectError)
			}
			c.ExpectError = kind
		}
		calls[i] = c
	}
	return calls, nil
}

// Result is the outcome of running a Call.
type Result struct {
	Call  Call
	Value any
	Err   error
}

// Run makes the call against env.
func (c Call) Run(ctx context.Context, env *dispatch.Env) Result {
	res := Result{Call: c}
	if c.Policy != nil {
		vs, err := env.DispatchAll(ctx, c.Function, c.Args, *c.Policy)
		if vs == nil {
			vs = []any{}
		}
		res.Value, res.Err = vs, err
	} else {
		res.Value, res.Err = env.Dispatch(ctx, c.Function, c.Args)
	}
	return res
}

// Check compares the result to the call's expectations.
func (r Result) Check() error {
	if want := r.Call.ExpectError; want != 0 {
		got, ok := dispatch.KindOf(r.Err)
		if !ok {
			return errors.Errorf("%s: expected %s, got %s", r.Call, want, describe(r.Value, r.Err))
		}
		if got != want {
			return errors.Errorf("%s: expected %s, got %s", r.Call, want, got)
		}
		return nil
	}
	if r.Err != nil {
		return errors.Wrap(r.Err, r.Call.String())
	}
	if r.Call.Expect != nil && !equal(r.Call.Expect, r.Value) {
		return errors.Errorf("%s: expected %v, got %v", r.Call, r.Call.Expect, r.Value)
	}
	return nil
}

func describe(v any, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%v", v)
}

func equal(want, got any) bool {
	ws, wok := want.([]any)
	gs, gok := got.([]any)
	if wok && gok {
		if len(ws) != len(gs) {
			return false
		}
		for i := range ws {
			if !equal(ws[i], gs[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(want, got)
}
