package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vito/multi/pkg/dispatch"
	"github.com/vito/multi/pkg/ioctx"
	"github.com/vito/multi/pkg/manifest"
	"github.com/vito/multi/pkg/rpc"
)

func runCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a manifest's calls and check their expectations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.File = args[0]
			}
			ctx := cmd.Context()
			m, env, err := load(ctx, cfg)
			if err != nil {
				return err
			}
			calls, err := m.Calls()
			if err != nil {
				return err
			}
			w := ioctx.StdoutFromContext(ctx)
			return runCalls(ctx, w, paletteFor(w), env, calls, cfg.Parallel)
		},
	}
	cmd.Flags().IntVarP(&cfg.Parallel, "parallel", "p", 1, "Number of calls to run at once")
	return cmd
}

// runCalls runs every call, at most parallel at a time, and reports them in
// manifest order.
func runCalls(ctx context.Context, w io.Writer, p palette, env *dispatch.Env, calls []manifest.Call, parallel int) error {
	results := make([]manifest.Result, len(calls))

	var eg errgroup.Group
	if parallel > 0 {
		eg.SetLimit(parallel)
	}
	for i, call := range calls {
		eg.Go(func() error {
			results[i] = call.Run(ctx, env)
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, res := range results {
		if err := res.Check(); err != nil {
			failed++
			fmt.Fprintf(w, "%s  %s\n", p.fail("FAIL"), err)
			continue
		}
		var outcome string
		if res.Call.ExpectError != 0 {
			outcome = res.Call.ExpectError.String()
		} else {
			outcome = formatValue(res.Value)
		}
		fmt.Fprintf(w, "%s    %s => %s\n", p.ok("ok"), res.Call, outcome)
	}
	fmt.Fprintf(w, "%d calls, %d failed\n", len(calls), failed)

	stats := env.CacheStats()
	ioctx.LoggerFromContext(ctx).DebugContext(ctx, "dispatch cache",
		"hits", stats.Hits,
		"misses", stats.Misses,
		"entries", stats.Entries)

	if failed > 0 {
		return errors.Errorf("%d of %d calls failed", failed, len(calls))
	}
	return nil
}

func formatValue(v any) string {
	if vs, ok := v.([]any); ok {
		parts := make([]string, len(vs))
		for i, v := range vs {
			parts[i] = formatValue(v)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(v)
}

func describeCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [function...]",
		Short: "Print the candidates of generic functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, env, err := load(ctx, cfg)
			if err != nil {
				return err
			}
			w := ioctx.StdoutFromContext(ctx)
			return describe(w, paletteFor(w), env, args)
		},
	}
}

// describe prints the named functions, or every function followed by the
// declared types.
func describe(w io.Writer, p palette, env *dispatch.Env, names []string) error {
	all := len(names) == 0
	if all {
		names = env.Functions()
	}
	for i, name := range names {
		fn, err := rpc.Describe(env, name)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		line := p.name(fn.Name)
		if fn.Proto != "" {
			line += " " + p.dim(fn.Proto)
		}
		fmt.Fprintln(w, line)
		for _, c := range fn.Candidates {
			fmt.Fprintln(w, "  "+p.candidate(c.Label, c.Signature))
		}
	}
	if !all {
		return nil
	}
	if len(names) > 0 {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, p.name("types"))
	for _, t := range rpc.Types(env.Graph()) {
		fmt.Fprintln(w, "  "+t.Name+" "+p.dim("is "+strings.Join(t.Is, ", ")))
	}
	return nil
}

func orderCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order function [type...]",
		Short: "Print the resolved candidate order for an argument shape",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, env, err := load(ctx, cfg)
			if err != nil {
				return err
			}
			shape, err := parseShape(args[1:], cfg.Named)
			if err != nil {
				return err
			}
			w := ioctx.StdoutFromContext(ctx)
			return order(ctx, w, paletteFor(w), env, args[0], shape, cfg.Raw)
		},
	}
	cmd.Flags().BoolVar(&cfg.Raw, "raw", false, "Dump the ordering as a Go value")
	cmd.Flags().StringArrayVarP(&cfg.Named, "named", "n", nil, "Named argument as name=Type")
	return cmd
}

func parseShape(types []string, named []string) (dispatch.Args, error) {
	var args dispatch.Args
	for _, typ := range types {
		args.Positional = append(args.Positional, dispatch.Val(typ, nil))
	}
	for _, kv := range named {
		name, typ, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return args, errors.Errorf("named argument %q is not name=Type", kv)
		}
		args = args.With(name, dispatch.Val(typ, nil))
	}
	return args, nil
}

func order(ctx context.Context, w io.Writer, p palette, env *dispatch.Env, name string, args dispatch.Args, raw bool) error {
	o, err := env.Order(ctx, name, args)
	if err != nil {
		return err
	}
	if raw {
		_, err := pretty.Fprintf(w, "%# v\n", o)
		return err
	}

	fmt.Fprintln(w, p.name(o.Function)+"("+o.Shape+")")
	for _, r := range o.Ranked {
		line := fmt.Sprintf("  %d  %s  %s", r.Tier, p.candidate(r.Candidate, r.Signature), p.dim(formatVector(r.Vector)))
		if r.Captures.Len() > 0 {
			line += "  " + r.Captures.String()
		}
		fmt.Fprintln(w, line)
	}
	if len(o.Rejected) > 0 {
		fmt.Fprintln(w, p.dim("rejected:"))
		for _, r := range o.Rejected {
			fmt.Fprintln(w, "  "+p.dim(r.String()))
		}
	}
	return nil
}

// formatVector renders a narrowness vector; slurpy positions print as *.
func formatVector(vec []int) string {
	parts := make([]string, len(vec))
	for i, d := range vec {
		if d < 0 {
			parts[i] = "*"
		} else {
			parts[i] = fmt.Sprint(d)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func serveCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve dispatch requests as line-delimited JSON-RPC on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, env, err := load(ctx, cfg)
			if err != nil {
				return err
			}
			return rpc.NewServer(env, ioctx.LoggerFromContext(ctx)).Serve(
				ioctx.StdinFromContext(ctx),
				ioctx.StdoutFromContext(ctx))
		},
	}
}
