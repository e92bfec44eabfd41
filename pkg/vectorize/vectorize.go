// Package vectorize calls an external raster-to-vector tracer whose calling
// convention is not fixed.
//
// A tracer is any value implementing at least one of [OptionsTracer],
// [CallbackTracer] or [SyncTracer]. The [Adapter] tries an ordered list of
// [Strategy] values, one per call shape, and the first that produces
// non-empty markup wins:
//
//	a := vectorize.NewAdapter(potrace.New())
//	res, err := a.Vectorize(ctx, img, vectorize.Options{Colors: 8})
//	if errors.Is(err, errors.ErrCodeVectorization) {
//	    // embed the raster instead
//	}
//
// New call shapes are added with [Adapter.Register] without touching callers.
package vectorize

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/observability"
)

// Named is implemented by tracers that report a stable name.
type Named interface {
	Name() string
}

// TracerName returns the tracer's name, its type for unnamed tracers, or
// "none" for nil.
func TracerName(tracer any) string {
	if tracer == nil {
		return "none"
	}
	if n, ok := tracer.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", tracer)
}

// Result is traced markup plus the strategy that produced it.
type Result struct {
	SVG      string
	Strategy string
}

// Adapter bridges to a tracer through ordered strategies.
type Adapter struct {
	Tracer     any
	Strategies []Strategy
	Timeout    time.Duration // zero waits for ctx only
	Logger     *log.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithTimeout bounds each Vectorize call.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.Timeout = d }
}

// WithLogger sets the adapter logger.
func WithLogger(l *log.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.Logger = l
		}
	}
}

// WithStrategies replaces the default strategy list.
func WithStrategies(s ...Strategy) AdapterOption {
	return func(a *Adapter) { a.Strategies = s }
}

// NewAdapter returns an adapter for tracer using DefaultStrategies.
// A nil tracer is valid; every call then fails with VECTORIZATION_ERROR.
func NewAdapter(tracer any, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		Tracer:     tracer,
		Strategies: DefaultStrategies(),
		Logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register appends a strategy after the existing ones.
func (a *Adapter) Register(s Strategy) {
	a.Strategies = append(a.Strategies, s)
}

// Available reports whether a tracer is configured.
func (a *Adapter) Available() bool {
	return a != nil && a.Tracer != nil
}

// Name returns the configured tracer's name.
func (a *Adapter) Name() string {
	if a == nil {
		return TracerName(nil)
	}
	return TracerName(a.Tracer)
}

// Vectorize traces img. Every failure is a VECTORIZATION_ERROR.
func (a *Adapter) Vectorize(ctx context.Context, img image.Image, opts Options) (res Result, err error) {
	tracer := a.Name()
	hooks := observability.Pipeline()
	start := time.Now()
	hooks.OnVectorizeStart(ctx, tracer)
	defer func() {
		hooks.OnVectorizeComplete(ctx, tracer, res.Strategy, time.Since(start), err)
	}()

	if !a.Available() {
		return Result{}, errors.New(errors.ErrCodeVectorization, "no tracer configured")
	}
	if img == nil {
		return Result{}, errors.New(errors.ErrCodeVectorization, "no image to trace")
	}

	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	var lastErr error
	for _, s := range a.Strategies {
		svg, err := invoke(ctx, s, a.Tracer, img, opts)
		if err == nil {
			a.Logger.Debug("traced image", "tracer", tracer, "strategy", s.Name(), "bytes", len(svg))
			return Result{SVG: svg, Strategy: s.Name()}, nil
		}
		if err == ErrUnsupported {
			continue
		}
		lastErr = fmt.Errorf("%s: %w", s.Name(), err)
		if IsSettled(err) {
			break
		}
		a.Logger.Debug("strategy failed, trying next", "tracer", tracer, "strategy", s.Name(), "err", err)
	}

	if lastErr == nil {
		return Result{}, errors.New(errors.ErrCodeVectorization, "tracer %s supports no known call shape", tracer)
	}
	return Result{}, errors.Wrap(errors.ErrCodeVectorization, lastErr, "tracer %s failed", tracer)
}

// invoke runs one strategy and turns a panic into an error.
func invoke(ctx context.Context, s Strategy, tracer any, img image.Image, opts Options) (svg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Invoke(ctx, tracer, img, opts)
}
