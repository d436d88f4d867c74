package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/pkg/errors"

	"github.com/vito/multi/pkg/dispatch"
	"github.com/vito/multi/pkg/ioctx"
	"github.com/vito/multi/pkg/typegraph"
)

// CodeDispatch is the error code for calls the dispatcher refused. The
// error data carries the Kind and the rejections.
const CodeDispatch = jrpc2.Code(-32000)

// Server answers JSON-RPC requests against one environment.
type Server struct {
	env    *dispatch.Env
	logger *slog.Logger
}

func NewServer(env *dispatch.Env, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{env: env, logger: logger}
}

// Methods returns the method table.
func (s *Server) Methods() handler.Map {
	return handler.Map{
		"dispatch":    s.handleDispatch,
		"dispatchAll": s.handleDispatchAll,
		"order":       s.handleOrder,
		"describe":    s.handleDescribe,
		"functions":   s.handleFunctions,
		"types":       s.handleTypes,
	}
}

// Serve handles newline-delimited requests from r until it is closed. w is
// closed when serving stops if it is an io.WriteCloser.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	wc, ok := w.(io.WriteCloser)
	if !ok {
		wc = nopCloser{w}
	}
	srv := jrpc2.NewServer(s.Methods(), &jrpc2.ServerOptions{
		Logger: func(text string) { s.logger.Debug(text) },
	})
	srv.Start(channel.Line(r, wc))
	s.logger.Info("serving", "functions", len(s.env.Functions()))
	return srv.Wait()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (s *Server) context(ctx context.Context) context.Context {
	return ioctx.LoggerToContext(ctx, s.logger)
}

func (s *Server) handleDispatch(ctx context.Context, req *jrpc2.Request) (any, error) {
	var params CallParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
	}
	if params.Function == "" {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing function")
	}
	v, err := s.env.Dispatch(s.context(ctx), params.Function, params.args())
	if err != nil {
		return nil, toRPCError(err)
	}
	return DispatchResult{Value: v}, nil
}

func (s *Server) handleDispatchAll(ctx context.Context, req *jrpc2.Request) (any, error) {
	var params CallParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
	}
	if params.Function == "" {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing function")
	}
	policy := dispatch.AtMostOne
	if params.Policy != "" {
		var err error
		policy, err = dispatch.ParsePolicy(params.Policy)
		if err != nil {
			return nil, jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
		}
	}
	vs, err := s.env.DispatchAll(s.context(ctx), params.Function, params.args(), policy)
	if err != nil {
		return nil, toRPCError(err)
	}
	if vs == nil {
		vs = []any{}
	}
	return DispatchAllResult{Values: vs}, nil
}

func (s *Server) handleOrder(ctx context.Context, req *jrpc2.Request) (any, error) {
	var params CallParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
	}
	o, err := s.env.Order(s.context(ctx), params.Function, params.args())
	if err != nil {
		return nil, toRPCError(err)
	}
	return orderResult(o), nil
}

func (s *Server) handleDescribe(ctx context.Context, req *jrpc2.Request) (any, error) {
	var params DescribeParams
	if req.HasParams() {
		if err := req.UnmarshalParams(&params); err != nil {
			return nil, jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
		}
	}
	names := params.Functions
	if len(names) == 0 {
		names = s.env.Functions()
	}
	out := make([]Function, 0, len(names))
	for _, name := range names {
		fn, err := Describe(s.env, name)
		if err != nil {
			return nil, toRPCError(err)
		}
		out = append(out, fn)
	}
	return out, nil
}

func (s *Server) handleFunctions(ctx context.Context, req *jrpc2.Request) (any, error) {
	return s.env.Functions(), nil
}

func (s *Server) handleTypes(ctx context.Context, req *jrpc2.Request) (any, error) {
	return Types(s.env.Graph()), nil
}

// Types lists the declared types and their direct supertypes. Any itself is
// left out.
func Types(g *typegraph.Graph) []Type {
	var out []Type
	for _, name := range g.Names() {
		if name == typegraph.Any {
			continue
		}
		out = append(out, Type{Name: name, Is: g.Supertypes(name)})
	}
	return out
}

// Describe summarizes a generic function's proto and candidates.
func Describe(env *dispatch.Env, name string) (Function, error) {
	cands, err := env.Lookup(name)
	if err != nil {
		return Function{}, err
	}
	fn := Function{Name: name, Candidates: make([]Candidate, len(cands))}
	if proto, ok := env.Proto(name); ok {
		fn.Proto = proto.Signature()
	}
	for i, c := range cands {
		fn.Candidates[i] = Candidate{Label: c.Label(), Signature: c.Signature()}
	}
	return fn, nil
}

func toRPCError(err error) error {
	if errors.Is(err, typegraph.ErrUnknownType) {
		return jrpc2.Errorf(jrpc2.InvalidParams, "%v", err)
	}
	var de *dispatch.Error
	if !errors.As(err, &de) {
		return err
	}
	data := ErrorData{Kind: de.Kind.String()}
	for _, r := range de.Rejections {
		data.Rejections = append(data.Rejections, Rejection{
			Candidate: r.Candidate,
			Reason:    r.Reason.String(),
			Detail:    r.Detail,
		})
	}
	raw, merr := json.Marshal(data)
	if merr != nil {
		return err
	}
	return &jrpc2.Error{
		Code:    CodeDispatch,
		Message: de.Error(),
		Data:    raw,
	}
}
