package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/tracekit/pkg/cache"
	"github.com/matzehuels/tracekit/pkg/decode"
	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/metrics"
	"github.com/matzehuels/tracekit/pkg/observability"
	"github.com/matzehuels/tracekit/pkg/present"
	"github.com/matzehuels/tracekit/pkg/source"
	"github.com/matzehuels/tracekit/pkg/svgdoc"
	"github.com/matzehuels/tracekit/pkg/vectorize"
)

// keyTypeVectorize labels trace cache events.
const keyTypeVectorize = "vectorize"

// Runner encapsulates pipeline execution with caching.
// Both CLI and API use this to avoid duplicating the stage wiring.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store conversion results. Multiple goroutines can safely use the same
// Runner; concurrent traces of identical input are collapsed into one.
type Runner struct {
	Cache   cache.Cache
	Keyer   cache.Keyer
	Logger  *log.Logger
	Decoder *decode.Decoder
	Adapter *vectorize.Adapter
	TTL     time.Duration // lifetime of cached traces

	group singleflight.Group
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDecoder replaces the default decoder.
func WithDecoder(d *decode.Decoder) RunnerOption {
	return func(r *Runner) { r.Decoder = d }
}

// WithAdapter replaces the tracer adapter.
func WithAdapter(a *vectorize.Adapter) RunnerOption {
	return func(r *Runner) { r.Adapter = a }
}

// WithCacheTTL sets how long traced markup stays cached.
func WithCacheTTL(ttl time.Duration) RunnerOption {
	return func(r *Runner) { r.TTL = ttl }
}

// WithTracer wraps tracer in an adapter with the default strategies.
func WithTracer(tracer any) RunnerOption {
	return func(r *Runner) { r.Adapter = vectorize.NewAdapter(tracer, vectorize.WithLogger(r.Logger)) }
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
// Without a tracer option every run falls back to embedding.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger, opts ...RunnerOption) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	r := &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Decoder == nil {
		r.Decoder = decode.New(decode.WithLogger(logger))
	}
	if r.Adapter == nil {
		r.Adapter = vectorize.NewAdapter(nil, vectorize.WithLogger(logger))
	}
	if r.TTL <= 0 {
		r.TTL = cache.TTLVectorize
	}
	return r
}

// Convert runs one file through every stage.
//
// Errors are INPUT_REJECTED for non-images, READ_ERROR and IMAGE_LOAD_ERROR
// for unreadable input, INVALID_INPUT for bad options, or the context error
// when ctx ends. Tracer failures never surface here.
func (r *Runner) Convert(ctx context.Context, f *source.File, opts Options) (*Conversion, error) {
	if err := source.Validate(f); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := r.logger(opts)
	hooks := observability.Pipeline()
	start := time.Now()

	conv := &Conversion{
		Name:      f.Name,
		Base:      f.BaseName(),
		MediaType: f.MediaType,
		Tracer:    r.Adapter.Name(),
	}

	// Stage 1: Read
	hooks.OnDecodeStart(ctx, f.Name, f.MediaType, f.Size)
	url, raw, err := r.Decoder.ReadAsDataURL(ctx, f)
	if err != nil {
		hooks.OnDecodeComplete(ctx, f.Name, 0, 0, time.Since(start), err)
		return nil, err
	}
	conv.Stats.ReadTime = time.Since(start)

	// Stage 2: Decode
	decodeStart := time.Now()
	url = r.Decoder.DecodeIfTIFF(ctx, f, url)
	img, err := r.Decoder.Load(ctx, url)
	hooks.OnDecodeComplete(ctx, f.Name, imgWidth(img), imgHeight(img), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	conv.Width, conv.Height = img.Width, img.Height
	conv.Stats.DecodeTime = time.Since(decodeStart)

	logger.Info("decoded image",
		"name", f.Name,
		"format", img.Format,
		"width", img.Width,
		"height", img.Height,
		"duration", conv.Stats.ReadTime+conv.Stats.DecodeTime)

	// Stage 3: Vectorize
	vectorizeStart := time.Now()
	res, hit, err := r.vectorize(ctx, raw, img, opts)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		w, h := img.Dimensions()
		conv.SVG = svgdoc.Embed(w, h, url.String())
		conv.FallbackReason = errors.UserMessage(err)
		hooks.OnFallback(ctx, f.Name, err)
		logger.Warn("vectorization failed, embedding raster",
			"name", f.Name,
			"tracer", conv.Tracer,
			"err", err)
	} else {
		conv.SVG = res.SVG
		conv.Vectorized = true
		conv.Strategy = res.Strategy
	}
	conv.CacheInfo.VectorizeHit = hit
	conv.Stats.VectorizeTime = time.Since(vectorizeStart)

	// Stage 4: Render
	conv.Preview = present.Normalize(conv.SVG)
	conv.Elapsed = time.Since(start)

	logger.Info("rendered output",
		"name", f.Name,
		"vectorized", conv.Vectorized,
		"cached", hit,
		"duration", conv.Stats.VectorizeTime)

	// Stage 5: Metrics
	metricsStart := time.Now()
	conv.Metrics = metrics.Collect(ctx, metrics.Input{
		Elapsed:      conv.Elapsed,
		OriginalSize: int64(len(raw)),
		SVG:          conv.SVG,
		Image:        img.Image,
	}, logger)
	conv.Stats.MetricsTime = time.Since(metricsStart)

	return conv, nil
}

// vectorize traces img through the cache. Concurrent calls for the same
// input and options share one trace.
func (r *Runner) vectorize(ctx context.Context, raw []byte, img *decode.Image, opts Options) (vectorize.Result, bool, error) {
	if !r.Adapter.Available() {
		res, err := r.Adapter.Vectorize(ctx, img.Image, opts.Vectorize)
		return res, false, err
	}

	key := r.Keyer.VectorizeKey(cache.Hash(raw), cache.VectorizeKeyOpts{
		Tracer:  r.Adapter.Name(),
		Options: opts.Vectorize,
	})
	cacheHooks := observability.Cache()

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit && len(data) > 0 {
			cacheHooks.OnCacheHit(ctx, keyTypeVectorize)
			return vectorize.Result{SVG: string(data), Strategy: "cache"}, true, nil
		}
		cacheHooks.OnCacheMiss(ctx, keyTypeVectorize)
	}

	// The shared trace outlives any single caller; each caller stops
	// waiting when its own ctx ends.
	ch := r.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		res, err := r.Adapter.Vectorize(shared, img.Image, opts.Vectorize)
		if err != nil {
			return res, err
		}
		if err := r.Cache.Set(shared, key, []byte(res.SVG), r.TTL); err == nil {
			cacheHooks.OnCacheSet(shared, keyTypeVectorize, len(res.SVG))
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return vectorize.Result{}, false, ctx.Err()
	case out := <-ch:
		res, _ := out.Val.(vectorize.Result)
		return res, false, out.Err
	}
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) logger(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}

func imgWidth(img *decode.Image) int {
	if img == nil {
		return 0
	}
	return img.Width
}

func imgHeight(img *decode.Image) int {
	if img == nil {
		return 0
	}
	return img.Height
}
