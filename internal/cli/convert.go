package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/matzehuels/tracekit/pkg/artifact"
	"github.com/matzehuels/tracekit/pkg/config"
	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/present"
	"github.com/matzehuels/tracekit/pkg/session"
	"github.com/matzehuels/tracekit/pkg/source"
	"github.com/matzehuels/tracekit/pkg/vectorize"
)

// stdinName is the display name of images read from stdin.
const stdinName = "image"

// convertOpts holds the command-line flags for the convert command.
type convertOpts struct {
	runner   runnerOpts
	output   string // output directory
	variants string // comma-separated download variants
	quiet    bool   // skip the metrics summary
	vec      vectorize.Options
}

// convertCommand creates the convert command.
func (c *CLI) convertCommand() *cobra.Command {
	var opts convertOpts

	cmd := &cobra.Command{
		Use:   "convert <file|-> [more files]",
		Short: "Convert an image to SVG",
		Long: `Convert an image to SVG and write the requested download variants.

Only the first file is converted; further files are reported and ignored.
Use "-" to read the image from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runConvert(cmd, args, &opts)
		},
	}

	opts.runner.register(cmd)
	registerVectorizeFlags(cmd, &opts.vec)
	cmd.Flags().StringVarP(&opts.output, "output", "o", ".", "output directory")
	cmd.Flags().StringVar(&opts.variants, "variants", "", "download variants: vector (default), embedded, hybrid, all (comma-separated)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the metrics summary")

	return cmd
}

func (c *CLI) runConvert(cmd *cobra.Command, args []string, opts *convertOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	variants, err := parseVariants(opts.variants)
	if err != nil {
		return err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	pipeOpts := pipelineOptions(cmd, cfg, opts.vec)
	if err := pipeOpts.Validate(); err != nil {
		return err
	}

	if ignored := len(args) - 1; ignored > 0 {
		printWarning("Ignoring %d more file(s); only the first is converted", ignored)
	}
	f, err := openInput(args[0])
	if err != nil {
		return err
	}
	if err := source.Validate(f); err != nil {
		return err
	}

	runner, err := c.newRunner(cfg, opts.runner)
	if err != nil {
		return err
	}
	defer runner.Close()

	store := artifact.NewStore(nil, nil, 0)
	defer store.Close()
	sess := session.New(store, 0)

	prog := newProgress(logger)
	spinner := newSpinner(ctx, cmd.ErrOrStderr(), fmt.Sprintf("Converting %s...", f.Name))
	spinner.Start()
	conv, err := sess.Convert(ctx, runner, f, pipeOpts)
	spinner.Stop()
	if err != nil {
		if spinner.Cancelled() {
			return ctx.Err()
		}
		return err
	}
	logger.Debug("converted", "name", conv.Name, "strategy", conv.Strategy, "cached", conv.CacheInfo.VectorizeHit)

	if conv.Vectorized {
		printSuccess("Converted %s", StyleHighlight.Render(conv.Name))
	} else {
		printWarning("Could not vectorize %s; embedded the raster instead", conv.Name)
		printDetail("%s", conv.FallbackReason)
	}

	paths, err := writeVariants(ctx, sess, opts.output, variants)
	for _, p := range paths {
		printFile(p)
	}
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Wrote %d file(s)", len(paths)))

	if !opts.quiet {
		printMetrics(conv)
	}
	return nil
}

// openInput resolves a path argument, or stdin for "-".
func openInput(arg string) (*source.File, error) {
	if arg != "-" {
		return source.FromPath(arg)
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "refusing to read an image from a terminal; pipe a file into stdin")
	}
	return source.FromReader(stdinName, os.Stdin)
}

// writeVariants writes each variant of the session's current result into
// dir through the session's single live artifact.
func writeVariants(ctx context.Context, sess *session.Session, dir string, variants []present.Variant) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var written []string
	for _, v := range variants {
		a, err := sess.Download(ctx, v)
		if err != nil {
			return written, err
		}
		if err := errors.ValidateFilename(a.Filename); err != nil {
			return written, err
		}
		path := filepath.Join(dir, a.Filename)
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	sess.Reset(ctx)
	return written, nil
}

// registerVectorizeFlags adds the tracing controls to cmd.
func registerVectorizeFlags(cmd *cobra.Command, o *vectorize.Options) {
	f := cmd.Flags()
	f.IntVar(&o.Colors, "colors", 0, "palette size (0 uses the tracer default)")
	f.Float64Var(&o.LineThreshold, "line-threshold", 0, "straight line tolerance")
	f.Float64Var(&o.CurveThreshold, "curve-threshold", 0, "corner threshold")
	f.IntVar(&o.PathOmit, "path-omit", 0, "drop paths smaller than this many pixels")
	f.Float64Var(&o.Blur, "blur", 0, "blur radius applied before tracing")
	f.Float64Var(&o.Scale, "scale", 0, "upscale factor applied before tracing")
	f.BoolVar(&o.OptimizePaths, "optimize", false, "optimize curves")
	f.BoolVar(&o.Outline, "outline", false, "stroke shapes instead of filling them")
	f.BoolVar(&o.HighQuality, "high-quality", false, "trade speed for fidelity")
}

// vectorizeFlagNames maps flag names to the option they set.
var vectorizeFlagNames = map[string]func(dst *vectorize.Options, src vectorize.Options){
	"colors":          func(d *vectorize.Options, s vectorize.Options) { d.Colors = s.Colors },
	"line-threshold":  func(d *vectorize.Options, s vectorize.Options) { d.LineThreshold = s.LineThreshold },
	"curve-threshold": func(d *vectorize.Options, s vectorize.Options) { d.CurveThreshold = s.CurveThreshold },
	"path-omit":       func(d *vectorize.Options, s vectorize.Options) { d.PathOmit = s.PathOmit },
	"blur":            func(d *vectorize.Options, s vectorize.Options) { d.Blur = s.Blur },
	"scale":           func(d *vectorize.Options, s vectorize.Options) { d.Scale = s.Scale },
	"optimize":        func(d *vectorize.Options, s vectorize.Options) { d.OptimizePaths = s.OptimizePaths },
	"outline":         func(d *vectorize.Options, s vectorize.Options) { d.Outline = s.Outline },
	"high-quality":    func(d *vectorize.Options, s vectorize.Options) { d.HighQuality = s.HighQuality },
}

// pipelineOptions layers explicitly set flags over the config file.
func pipelineOptions(cmd *cobra.Command, cfg config.Config, flags vectorize.Options) pipeline.Options {
	opts := cfg.PipelineOptions()
	for name, set := range vectorizeFlagNames {
		if cmd.Flags().Changed(name) {
			set(&opts.Vectorize, flags)
		}
	}
	return opts
}
