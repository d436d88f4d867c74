package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vito/multi/pkg/dispatch"
	"github.com/vito/multi/pkg/ioctx"
	"github.com/vito/multi/pkg/manifest"
)

// Config holds the application configuration
type Config struct {
	Debug    bool
	File     string
	Parallel int
	Raw      bool
	Named    []string
}

func main() {
	ctx := context.Background()
	ctx = ioctx.StdinToContext(ctx, os.Stdin)
	ctx = ioctx.StdoutToContext(ctx, os.Stdout)
	ctx = ioctx.StderrToContext(ctx, os.Stderr)
	if err := fang.Execute(ctx, newRootCmd(),
		fang.WithVersion("v0.1.0"),
		fang.WithCommit("dev"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:   "multi",
		Short: "Multiple dispatch over a nominal type graph",
		Long: `multi loads a manifest of types and generic function candidates and
resolves calls against it, narrowest candidate first.

Without --file, multi looks for multi.toml in the current directory and its
parents, up to the repository root.`,
		Example: `  # Run the calls in a manifest and check their expectations
  multi run rps.toml

  # Show the candidates of a function
  multi describe -f rps.toml beats

  # Show how a call shape would be resolved
  multi order -f rps.toml beats Paper Paper`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := setupLogging(ioctx.StderrFromContext(cmd.Context()), cfg.Debug)
			cmd.SetContext(ioctx.LoggerToContext(cmd.Context(), logger))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfg.File, "file", "f", "", "Path to the manifest")

	rootCmd.AddCommand(
		runCmd(&cfg),
		describeCmd(&cfg),
		orderCmd(&cfg),
		serveCmd(&cfg),
	)
	return rootCmd
}

func setupLogging(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// load builds the environment from the configured manifest, falling back
// to a multi.toml found from the working directory.
func load(ctx context.Context, cfg *Config) (*manifest.Manifest, *dispatch.Env, error) {
	var m *manifest.Manifest
	if cfg.File != "" {
		var err error
		m, err = manifest.LoadFile(cfg.File)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		path, found, err := manifest.Find(cwd)
		if err != nil {
			return nil, nil, err
		}
		if found == nil {
			return nil, nil, errors.Errorf("no %s found in %s or its parents", manifest.FileName, cwd)
		}
		m = found
		cfg.File = path
	}

	env, err := m.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, m.Path)
	}
	ioctx.LoggerFromContext(ctx).DebugContext(ctx, "loaded manifest",
		"path", m.Path,
		"types", len(m.Types),
		"candidates", len(m.Candidates),
		"functions", len(env.Functions()))
	return m, env, nil
}
