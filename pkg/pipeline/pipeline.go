// Package pipeline runs one image through the conversion stages.
//
// The stages are:
//
//  1. Read: load the source file into a data URL (READ_ERROR aborts)
//  2. Decode: convert TIFF when possible, then load the raster
//     (IMAGE_LOAD_ERROR aborts)
//  3. Vectorize: trace through the configured tracer; on any failure the
//     raster is embedded in an SVG envelope instead
//  4. Render: normalize the markup for preview
//  5. Metrics: sizes, ratio, approximate colours, path count
//
// Only the first two stages can fail a run. A missing or broken tracer
// degrades the output and is reported in [Conversion.Vectorized].
//
// # Usage
//
//	runner := pipeline.NewRunner(cache.NewMemoryCache(), nil, logger,
//	    pipeline.WithTracer(potrace.New()))
//	conv, err := runner.Convert(ctx, file, pipeline.Options{})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(conv.Metrics.RatioString())
package pipeline

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/metrics"
	"github.com/matzehuels/tracekit/pkg/vectorize"
)

// =============================================================================
// Limits - shared by CLI flags, config file and HTTP requests
// =============================================================================

const (
	// MaxColors is the largest palette a request may ask for.
	MaxColors = 64

	// MaxScale is the largest upscaling factor.
	MaxScale = 8.0

	// MaxBlur is the largest blur radius.
	MaxBlur = 50.0
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options configures one conversion. It supports JSON for HTTP requests.
type Options struct {
	Vectorize vectorize.Options `json:"vectorize"`

	// Refresh bypasses the traced-markup cache.
	Refresh bool `json:"refresh,omitempty"`

	// Logger overrides the runner logger for this run.
	Logger *log.Logger `json:"-"`
}

// Validate checks every control against its range. Zero values are always
// valid and mean "tracer default".
func (o Options) Validate() error {
	v := o.Vectorize
	switch {
	case v.Colors < 0 || v.Colors > MaxColors:
		return errors.New(errors.ErrCodeInvalidInput, "colors must be between 0 and %d", MaxColors)
	case v.LineThreshold < 0:
		return errors.New(errors.ErrCodeInvalidInput, "line threshold must not be negative")
	case v.CurveThreshold < 0:
		return errors.New(errors.ErrCodeInvalidInput, "curve threshold must not be negative")
	case v.PathOmit < 0:
		return errors.New(errors.ErrCodeInvalidInput, "path omit must not be negative")
	case v.Blur < 0 || v.Blur > MaxBlur:
		return errors.New(errors.ErrCodeInvalidInput, "blur must be between 0 and %g", MaxBlur)
	case v.Scale < 0 || v.Scale > MaxScale:
		return errors.New(errors.ErrCodeInvalidInput, "scale must be between 0 and %g", MaxScale)
	}
	return nil
}

// =============================================================================
// Result Types
// =============================================================================

// Conversion is the outcome of one run.
type Conversion struct {
	Name      string `json:"name"`
	Base      string `json:"base"`
	MediaType string `json:"media_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`

	// SVG is the markup offered for download.
	SVG string `json:"svg"`
	// Preview is SVG normalized to fill its container.
	Preview string `json:"preview"`
	// Vectorized is false when the raster was embedded instead of traced.
	Vectorized bool   `json:"vectorized"`
	Tracer     string `json:"tracer"`
	Strategy   string `json:"strategy,omitempty"`
	// FallbackReason explains why the raster was embedded.
	FallbackReason string `json:"fallback_reason,omitempty"`

	Elapsed   time.Duration   `json:"elapsed"`
	Metrics   metrics.Metrics `json:"metrics"`
	Stats     Stats           `json:"stats"`
	CacheInfo CacheInfo       `json:"cache"`
}

// Stats holds per-stage timings.
type Stats struct {
	ReadTime      time.Duration `json:"read"`
	DecodeTime    time.Duration `json:"decode"`
	VectorizeTime time.Duration `json:"vectorize"`
	MetricsTime   time.Duration `json:"metrics"`
}

// CacheInfo reports cache usage for the run.
type CacheInfo struct {
	VectorizeHit bool `json:"vectorize_hit"`
}
