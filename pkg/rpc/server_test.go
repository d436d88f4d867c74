package rpc

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/server"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vito/multi/pkg/dispatch"
	"github.com/vito/multi/pkg/manifest"
	"github.com/vito/multi/pkg/typegraph"
)

func testEnv(t *testing.T) *dispatch.Env {
	g := typegraph.New()
	for _, name := range []string{"Rock", "Paper", "Scissors"} {
		require.NoError(t, g.Declare(name))
	}
	env := dispatch.New(g)
	ret := func(v any) dispatch.Body {
		return func(context.Context, *dispatch.Call) (any, error) { return v, nil }
	}
	require.NoError(t, env.RegisterProto("beats", dispatch.Candidate{
		Params: []dispatch.Param{dispatch.Pos("a", ""), dispatch.Pos("b", "")},
	}))
	for _, c := range []dispatch.Candidate{
		{Params: []dispatch.Param{dispatch.Pos("a", "Scissors"), dispatch.Pos("b", "Paper")}, Body: ret("win")},
		{Name: "tie", Params: []dispatch.Param{dispatch.Pos("a", "").Captures("T"), dispatch.Pos("b", "T")}, Body: ret("tie")},
		{Name: "lose", Params: []dispatch.Param{dispatch.Pos("a", ""), dispatch.Pos("b", "")}, Body: ret("lose")},
	} {
		require.NoError(t, env.Register("beats", c))
	}
	require.NoError(t, env.Register("dup", dispatch.Candidate{Params: []dispatch.Param{dispatch.Pos("x", "Rock")}, Body: ret(1)}))
	require.NoError(t, env.Register("dup", dispatch.Candidate{Params: []dispatch.Param{dispatch.Pos("x", "Rock")}, Body: ret(2)}))
	return env
}

func local(t *testing.T) *jrpc2.Client {
	loc := server.NewLocal(NewServer(testEnv(t), nil).Methods(), nil)
	t.Cleanup(func() { loc.Close() })
	return loc.Client
}

func call(a, b string) CallParams {
	return CallParams{Function: "beats", Args: []Arg{{Type: a}, {Type: b}}}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	cli := local(t)

	for _, tt := range []struct {
		a, b, want string
	}{
		{"Scissors", "Paper", "win"},
		{"Paper", "Paper", "tie"},
		{"Rock", "Paper", "lose"},
	} {
		var res DispatchResult
		require.NoError(t, cli.CallResult(ctx, "dispatch", call(tt.a, tt.b), &res))
		assert.Equal(t, tt.want, res.Value)
	}
}

func TestDispatchErrors(t *testing.T) {
	ctx := context.Background()
	cli := local(t)

	var res DispatchResult
	err := cli.CallResult(ctx, "dispatch", CallParams{Function: "dup", Args: []Arg{{Type: "Rock"}}}, &res)
	var jerr *jrpc2.Error
	require.True(t, errors.As(err, &jerr), "%v", err)
	assert.Equal(t, CodeDispatch, jerr.Code)
	var data ErrorData
	require.NoError(t, json.Unmarshal(jerr.Data, &data))
	assert.Equal(t, "AmbiguousDispatch", data.Kind)

	err = cli.CallResult(ctx, "dispatch", CallParams{Function: "beats", Args: []Arg{{Type: "Rock"}}}, &res)
	require.True(t, errors.As(err, &jerr), "%v", err)
	require.NoError(t, json.Unmarshal(jerr.Data, &data))
	assert.Equal(t, "ArityMismatch", data.Kind)

	err = cli.CallResult(ctx, "dispatch", call("Rock", "Lizard"), &res)
	require.True(t, errors.As(err, &jerr), "%v", err)
	assert.Equal(t, jrpc2.InvalidParams, jerr.Code)

	err = cli.CallResult(ctx, "dispatch", CallParams{}, &res)
	require.True(t, errors.As(err, &jerr), "%v", err)
	assert.Equal(t, jrpc2.InvalidParams, jerr.Code)
}

func TestNumericValues(t *testing.T) {
	ctx := context.Background()

	m, err := manifest.Decode(`
[[type]]
name = "Int"

[[candidate]]
function = "fact"
params = [{ name = "n", type = "Int", where = "equals", where_value = 0 }]
returns = "base"

[[candidate]]
function = "fact"
params = [{ name = "n", type = "Int", where = "one-of", where_value = [5, 6] }]
returns = "five or six"

[[candidate]]
function = "fact"
params = [{ name = "n", type = "Int" }]
returns = "step"
`)
	require.NoError(t, err)
	env, err := m.Build()
	require.NoError(t, err)

	loc := server.NewLocal(NewServer(env, nil).Methods(), nil)
	defer loc.Close()

	for _, tt := range []struct {
		value any
		want  string
	}{
		{0, "base"},
		{5, "five or six"},
		{6, "five or six"},
		{7, "step"},
		{0.5, "step"},
	} {
		var res DispatchResult
		params := CallParams{Function: "fact", Args: []Arg{{Type: "Int", Value: tt.value}}}
		require.NoError(t, loc.Client.CallResult(ctx, "dispatch", params, &res))
		assert.Equal(t, tt.want, res.Value, "%v", tt.value)
	}
}

func TestArgNumbers(t *testing.T) {
	var a Arg
	require.NoError(t, json.Unmarshal([]byte(`{"type":"List","value":[1,2.5,{"n":3}]}`), &a))
	assert.Equal(t, []any{int64(1), 2.5, map[string]any{"n": int64(3)}}, a.Value)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"Int"}`), &a))
	assert.Equal(t, Arg{Type: "Int"}, a)

	require.Error(t, json.Unmarshal([]byte(`{"type":"Int","val":1}`), &a))
}

func TestDispatchAll(t *testing.T) {
	ctx := context.Background()
	cli := local(t)

	var res DispatchAllResult
	params := call("Paper", "Paper")
	params.Policy = "all"
	require.NoError(t, cli.CallResult(ctx, "dispatchAll", params, &res))
	assert.Equal(t, []any{"tie", "lose"}, res.Values)

	params.Policy = "at-most-one"
	require.NoError(t, cli.CallResult(ctx, "dispatchAll", params, &res))
	assert.Equal(t, []any{"tie"}, res.Values)

	params.Function = "dup"
	params.Args = []Arg{{Type: "Paper"}}
	require.NoError(t, cli.CallResult(ctx, "dispatchAll", params, &res))
	assert.Empty(t, res.Values)

	params.Policy = "sometimes"
	var jerr *jrpc2.Error
	err := cli.CallResult(ctx, "dispatchAll", params, &res)
	require.True(t, errors.As(err, &jerr), "%v", err)
	assert.Equal(t, jrpc2.InvalidParams, jerr.Code)
}

func TestOrder(t *testing.T) {
	ctx := context.Background()
	cli := local(t)

	var res OrderResult
	require.NoError(t, cli.CallResult(ctx, "order", call("Paper", "Paper"), &res))
	assert.Equal(t, "beats", res.Function)
	assert.Equal(t, "Paper, Paper", res.Shape)
	require.Len(t, res.Ranked, 2)
	assert.Equal(t, Ranked{
		Candidate: "tie",
		Tier:      0,
		Vector:    []int{0, 0},
		Captures:  map[string]string{"T": "Paper"},
	}, res.Ranked[0])
	assert.Equal(t, Ranked{
		Candidate: "lose",
		Tier:      1,
		Vector:    []int{1, 1},
	}, res.Ranked[1])
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "type", res.Rejected[0].Reason)
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	cli := local(t)

	var names []string
	require.NoError(t, cli.CallResult(ctx, "functions", nil, &names))
	assert.Equal(t, []string{"beats", "dup"}, names)

	var types []Type
	require.NoError(t, cli.CallResult(ctx, "types", nil, &types))
	assert.Equal(t, []Type{
		{Name: "Paper", Is: []string{"Any"}},
		{Name: "Rock", Is: []string{"Any"}},
		{Name: "Scissors", Is: []string{"Any"}},
	}, types)

	var fns []Function
	require.NoError(t, cli.CallResult(ctx, "describe", DescribeParams{Functions: []string{"beats"}}, &fns))
	require.Len(t, fns, 1)
	assert.Equal(t, Function{
		Name:  "beats",
		Proto: "(Any, Any)",
		Candidates: []Candidate{
			{Label: "(Scissors, Paper)", Signature: "(Scissors, Paper)"},
			{Label: "tie", Signature: "(::T, T)"},
			{Label: "lose", Signature: "(Any, Any)"},
		},
	}, fns[0])

	require.NoError(t, cli.CallResult(ctx, "describe", nil, &fns))
	require.Len(t, fns, 2)

	var jerr *jrpc2.Error
	err := cli.CallResult(ctx, "describe", DescribeParams{Functions: []string{"nope"}}, &fns)
	require.True(t, errors.As(err, &jerr), "%v", err)
	var data ErrorData
	require.NoError(t, json.Unmarshal(jerr.Data, &data))
	assert.Equal(t, "UnknownFunction", data.Kind)
}

func TestServe(t *testing.T) {
	srvR, cliW := io.Pipe()
	cliR, srvW := io.Pipe()

	srv := NewServer(testEnv(t), nil)
	var eg errgroup.Group
	eg.Go(func() error {
		defer srvW.Close()
		srv.Serve(srvR, srvW)
		return nil
	})

	cli := jrpc2.NewClient(channel.Line(cliR, cliW), nil)
	var res DispatchResult
	require.NoError(t, cli.CallResult(context.Background(), "dispatch", call("Rock", "Rock"), &res))
	assert.Equal(t, "tie", res.Value)
	cli.Close()
	require.NoError(t, eg.Wait())
}
