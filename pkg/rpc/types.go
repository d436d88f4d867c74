package rpc

import (
	"bytes"
	"encoding/json"

	"github.com/vito/multi/pkg/dispatch"
	"github.com/vito/multi/pkg/typegraph"
)

// Arg is an argument on the wire. A missing value is undefined.
type Arg struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
	Rw    bool   `json:"rw,omitempty"`
}

// UnmarshalJSON decodes numbers in the value as int64 when they are
// integral and float64 otherwise, so they compare equal to the integers a
// manifest decodes.
func (a *Arg) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value,omitempty"`
		Rw    bool            `json:"rw,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return err
	}
	*a = Arg{Type: wire.Type, Rw: wire.Rw}
	if len(wire.Value) == 0 {
		return nil
	}
	dec = json.NewDecoder(bytes.NewReader(wire.Value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	a.Value = normalize(v)
	return nil
}

func normalize(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case []any:
		for i, e := range v {
			v[i] = normalize(e)
		}
		return v
	case map[string]any:
		for k, e := range v {
			v[k] = normalize(e)
		}
		return v
	default:
		return v
	}
}

func (a Arg) arg() dispatch.Arg {
	if a.Rw {
		return dispatch.Var(a.Type, a.Value)
	}
	return dispatch.Val(a.Type, a.Value)
}

// CallParams are the params of dispatch, dispatchAll and order.
type CallParams struct {
	Function string         `json:"function"`
	Args     []Arg          `json:"args,omitempty"`
	Named    map[string]Arg `json:"named,omitempty"`
	Policy   string         `json:"policy,omitempty"`
}

func (p CallParams) args() dispatch.Args {
	var args dispatch.Args
	for _, a := range p.Args {
		args.Positional = append(args.Positional, a.arg())
	}
	for k, a := range p.Named {
		args = args.With(k, a.arg())
	}
	return args
}

type DispatchResult struct {
	Value any `json:"value"`
}

type DispatchAllResult struct {
	Values []any `json:"values"`
}

type DescribeParams struct {
	Functions []string `json:"functions,omitempty"`
}

// Type is a declared type and its direct supertypes.
type Type struct {
	Name string   `json:"name"`
	Is   []string `json:"is"`
}

type Function struct {
	Name       string      `json:"name"`
	Proto      string      `json:"proto,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Label     string `json:"label"`
	Signature string `json:"signature"`
}

// Ranked is a candidate in an ordering. Vector entries of -1 are slurpy
// positions.
type Ranked struct {
	Candidate   string            `json:"candidate"`
	Tier        int               `json:"tier"`
	Vector      []int             `json:"vector"`
	Constrained bool              `json:"constrained,omitempty"`
	Captures    map[string]string `json:"captures,omitempty"`
}

type Rejection struct {
	Candidate string `json:"candidate"`
	Reason    string `json:"reason"`
	Detail    string `json:"detail"`
}

type OrderResult struct {
	Function string      `json:"function"`
	Shape    string      `json:"shape"`
	Ranked   []Ranked    `json:"ranked"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// ErrorData is attached to CodeDispatch errors.
type ErrorData struct {
	Kind       string      `json:"kind"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

func orderResult(o *dispatch.Ordering) OrderResult {
	res := OrderResult{
		Function: o.Function,
		Shape:    o.Shape,
		Ranked:   make([]Ranked, len(o.Ranked)),
	}
	for i, r := range o.Ranked {
		res.Ranked[i] = Ranked{
			Candidate:   r.Candidate,
			Tier:        r.Tier,
			Vector:      r.Vector,
			Constrained: r.Constrained,
		}
		if r.Captures.Len() > 0 {
			caps := map[string]string{}
			r.Captures.Each(func(tv typegraph.TypeVariable, t string) {
				caps[string(tv)] = t
			})
			res.Ranked[i].Captures = caps
		}
	}
	for _, r := range o.Rejected {
		res.Rejected = append(res.Rejected, Rejection{
			Candidate: r.Candidate,
			Reason:    r.Reason.String(),
			Detail:    r.Detail,
		})
	}
	return res
}
