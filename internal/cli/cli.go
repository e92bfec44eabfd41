// Package cli implements the tracekit command-line interface.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tracekit/pkg/buildinfo"
	"github.com/matzehuels/tracekit/pkg/cache"
	"github.com/matzehuels/tracekit/pkg/config"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/present"
	"github.com/matzehuels/tracekit/pkg/vectorize"
	"github.com/matzehuels/tracekit/pkg/vectorize/potrace"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display.
	appName = "tracekit"

	// tracerPotrace selects the built-in tracer.
	tracerPotrace = "potrace"

	// tracerNone disables tracing so every image is embedded.
	tracerNone = "none"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger     *log.Logger
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "tracekit converts raster images to SVG",
		Long:         `tracekit converts raster images to scalable vector graphics. Images the tracer cannot handle are embedded in an SVG envelope instead, so every conversion produces a usable file.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.Logger.GetLevel() <= log.DebugLevel {
				registerLogHooks(c.Logger)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/tracekit/config.toml)")

	// Register all subcommands
	root.AddCommand(c.convertCommand())
	root.AddCommand(c.previewCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the config file selected by --config.
func (c *CLI) loadConfig() (config.Config, error) {
	return config.Load(c.configPath)
}

// =============================================================================
// Runner Factory
// =============================================================================

// runnerOpts are the flags shared by commands that convert.
type runnerOpts struct {
	tracer  string
	timeout time.Duration
	noCache bool
}

func (o *runnerOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.tracer, "tracer", tracerPotrace, "tracer: potrace, none (always embed the raster)")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "give up tracing after this long and embed instead (0 waits)")
	cmd.Flags().BoolVar(&o.noCache, "no-cache", false, "do not reuse traced output")
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(cfg config.Config, opts runnerOpts) (*pipeline.Runner, error) {
	tracer, err := newTracer(opts.tracer)
	if err != nil {
		return nil, err
	}
	timeout := opts.timeout
	if timeout == 0 {
		timeout = cfg.Server.TraceTimeout.Std()
	}
	adapter := vectorize.NewAdapter(tracer,
		vectorize.WithTimeout(timeout),
		vectorize.WithLogger(c.Logger))

	return pipeline.NewRunner(newCache(cfg, opts.noCache), nil, c.Logger,
		pipeline.WithAdapter(adapter),
		pipeline.WithCacheTTL(cfg.Cache.TTL.Std())), nil
}

func newTracer(name string) (any, error) {
	switch name {
	case tracerPotrace, "":
		return potrace.New(), nil
	case tracerNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown tracer %q (must be %q or %q)", name, tracerPotrace, tracerNone)
}

func newCache(cfg config.Config, noCache bool) cache.Cache {
	if noCache || !cfg.Cache.Enabled {
		return cache.NewNullCache()
	}
	return cache.NewMemoryCache()
}

// =============================================================================
// Options Helpers
// =============================================================================

// parseVariants parses a comma-separated variant list. "all" selects every
// variant; empty selects the vector variant.
func parseVariants(s string) ([]present.Variant, error) {
	if s == "" {
		return []present.Variant{present.Vector}, nil
	}
	if s == "all" {
		return present.Variants, nil
	}
	var out []present.Variant
	seen := make(map[present.Variant]bool)
	for _, name := range strings.Split(s, ",") {
		v, err := present.ParseVariant(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}
