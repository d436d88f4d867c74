package manifest

import (
	"context"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"

	"github.com/vito/multi/pkg/dispatch"
	"github.com/vito/multi/pkg/typegraph"
)

// Build declares the manifest's types and registers its protos and
// candidates in a fresh environment.
func (m *Manifest) Build(opts ...dispatch.Option) (*dispatch.Env, error) {
	g := typegraph.New()
	for _, t := range m.Types {
		if err := g.Declare(t.Name, t.Is...); err != nil {
			return nil, errors.Wrapf(err, "type %s", t.Name)
		}
	}

	env := dispatch.New(g, opts...)
	for i, decl := range m.Protos {
		params, err := convertParams(decl.Params)
		if err != nil {
			return nil, errors.Wrapf(err, "proto %d (%s)", i+1, decl.Function)
		}
		if err := env.RegisterProto(decl.Function, dispatch.Candidate{
			Name:   decl.Label,
			Params: params,
		}); err != nil {
			return nil, err
		}
	}
	for i, decl := range m.Candidates {
		c, err := decl.candidate()
		if err != nil {
			return nil, errors.Wrapf(err, "candidate %d (%s)", i+1, decl.Function)
		}
		if err := env.Register(decl.Function, c); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func (decl CandidateDecl) candidate() (dispatch.Candidate, error) {
	params, err := convertParams(decl.Params)
	if err != nil {
		return dispatch.Candidate{}, err
	}
	body, err := decl.body()
	if err != nil {
		return dispatch.Candidate{}, err
	}
	return dispatch.Candidate{
		Name:   decl.Label,
		Params: params,
		Body:   body,
	}, nil
}

func (decl CandidateDecl) body() (dispatch.Body, error) {
	returns := decl.Returns
	with := convertArgs(decl.With, nil)

	// pair the delegated result with our own, if we have one
	wrap := func(v any, err error) (any, error) {
		if err != nil || returns == nil {
			return v, err
		}
		return []any{returns, v}, nil
	}

	switch strings.ToLower(decl.Then) {
	case "":
		if len(decl.With) > 0 {
			return nil, errors.New("with is only used by callwith and nextwith")
		}
		return func(context.Context, *dispatch.Call) (any, error) {
			return returns, nil
		}, nil
	case "callsame":
		return func(ctx context.Context, call *dispatch.Call) (any, error) {
			return wrap(call.DelegateSame(ctx))
		}, nil
	case "callwith":
		return func(ctx context.Context, call *dispatch.Call) (any, error) {
			return wrap(call.DelegateWith(ctx, with))
		}, nil
	case "nextsame":
		return func(ctx context.Context, call *dispatch.Call) (any, error) {
			return call.TailSame()
		}, nil
	case "nextwith":
		return func(ctx context.Context, call *dispatch.Call) (any, error) {
			return call.TailWith(with)
		}, nil
	}
	return nil, errors.Errorf("unknown then %q", decl.Then)
}

func convertParams(decls []ParamDecl) ([]dispatch.Param, error) {
	params := make([]dispatch.Param, len(decls))
	for i, decl := range decls {
		p, err := decl.param()
		if err != nil {
			return nil, errors.Wrapf(err, "param %d", i+1)
		}
		params[i] = p
	}
	return params, nil
}

func (decl ParamDecl) param() (dispatch.Param, error) {
	p := dispatch.Param{
		Name:     decl.Name,
		Type:     decl.Type,
		Capture:  typegraph.TypeVariable(decl.Capture),
		Rw:       decl.Rw,
		Slurpy:   decl.Slurpy,
		Named:    decl.Named,
		Optional: decl.Optional || ((decl.Named || decl.Slurpy) && !decl.Required),
	}
	if decl.Where != "" {
		c, err := constraint(decl.Where, decl.WhereValue)
		if err != nil {
			return p, err
		}
		p.Constraint = c
	}
	return p, nil
}

// constraint resolves a stock constraint by name. Names are matched in any
// case style, so "oneOf", "one_of" and "one-of" are the same.
func constraint(name string, value any) (dispatch.Constraint, error) {
	switch strcase.ToKebab(name) {
	case "defined":
		return dispatch.Defined, nil
	case "undefined":
		return dispatch.Undefined, nil
	case "equals":
		return dispatch.Equals(value), nil
	case "not-equals":
		return dispatch.Not(dispatch.Equals(value)), nil
	case "one-of":
		vs, ok := value.([]any)
		if !ok {
			return nil, errors.Errorf("where = %q needs a list where_value, got %T", name, value)
		}
		return dispatch.OneOf(vs...), nil
	case "same-as":
		param, ok := value.(string)
		if !ok {
			return nil, errors.Errorf("where = %q needs a parameter name where_value, got %T", name, value)
		}
		return dispatch.SameAs(param), nil
	}
	return nil, errors.Errorf("unknown constraint %q", name)
}

func convertArgs(positional []ArgDecl, named map[string]ArgDecl) dispatch.Args {
	var args dispatch.Args
	for _, a := range positional {
		args.Positional = append(args.Positional, a.arg())
	}
	for k, a := range named {
		args = args.With(k, a.arg())
	}
	return args
}

func (decl ArgDecl) arg() dispatch.Arg {
	if decl.Rw {
		return dispatch.Var(decl.Type, decl.Value)
	}
	return dispatch.Val(decl.Type, decl.Value)
}
