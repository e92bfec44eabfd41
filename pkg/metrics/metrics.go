// Package metrics computes the summary shown after a conversion.
//
// Every metric is computed independently. A metric that fails degrades to
// its placeholder and never hides the others.
package metrics

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"

	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/observability"
	"github.com/matzehuels/tracekit/pkg/svgdoc"
)

// SampleBound is the largest side of the surface used for colour counting.
const SampleBound = 200

// Placeholders for metrics without a value.
const (
	NoPaths      = "none"
	Unavailable  = "n/a"
	MetricColors = "colors"
	MetricPaths  = "paths"
)

// Count is an optional integer metric.
type Count struct {
	N  int
	OK bool
}

// Metrics is a read-only snapshot of one conversion.
type Metrics struct {
	Elapsed      time.Duration
	OriginalSize int64
	SVGSize      int64
	Ratio        float64
	Colors       Count // approximate, see CountColors
	Paths        Count // OK is false for non-vector output
}

// ElapsedString formats the elapsed time in seconds with two decimals.
func (m Metrics) ElapsedString() string {
	return fmt.Sprintf("%.2fs", m.Elapsed.Seconds())
}

// RatioString formats the compression ratio.
func (m Metrics) RatioString() string {
	return fmt.Sprintf("%.2fx", m.Ratio)
}

// ColorsString reports the colour count as an approximation.
func (m Metrics) ColorsString() string {
	if !m.Colors.OK {
		return Unavailable
	}
	return fmt.Sprintf("~%d", m.Colors.N)
}

// PathsString reports the path count, or NoPaths when there are none.
func (m Metrics) PathsString() string {
	if !m.Paths.OK {
		return NoPaths
	}
	return fmt.Sprintf("%d", m.Paths.N)
}

// Input carries what the collector needs from a finished run.
type Input struct {
	Elapsed      time.Duration
	OriginalSize int64
	SVG          string
	Image        image.Image // may be nil
}

// Collect computes every metric for in. Degraded metrics are logged at warn
// level and reported to the pipeline hooks.
func Collect(ctx context.Context, in Input, logger *log.Logger) Metrics {
	if logger == nil {
		logger = log.Default()
	}
	svgSize := SVGSize(in.SVG)
	m := Metrics{
		Elapsed:      in.Elapsed,
		OriginalSize: in.OriginalSize,
		SVGSize:      svgSize,
		Ratio:        Ratio(in.OriginalSize, svgSize),
	}

	degrade := func(metric string, err error) {
		err = errors.Wrap(errors.ErrCodeMetric, err, "%s metric unavailable", metric)
		logger.Warn("metric degraded", "metric", metric, "err", err)
		observability.Pipeline().OnMetricDegraded(ctx, metric, err)
	}

	if n, err := guard(func() (int, error) { return CountColors(in.Image) }); err != nil {
		degrade(MetricColors, err)
	} else {
		m.Colors = Count{N: n, OK: true}
	}

	if n, err := guard(func() (int, error) { return svgdoc.CountPaths(in.SVG) }); err != nil {
		logger.Debug("path count unavailable", "err", err)
	} else if n > 0 {
		m.Paths = Count{N: n, OK: true}
	}

	return m
}

// guard converts a panic in fn into an error.
func guard(fn func() (int, error)) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// SVGSize is the byte length of markup as downloaded (UTF-8).
func SVGSize(markup string) int64 {
	return int64(len(markup))
}

// Ratio is original/svg, or 1 when svg is zero or the quotient is not finite.
func Ratio(original, svg int64) float64 {
	if svg <= 0 {
		return 1
	}
	r := float64(original) / float64(svg)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 1
	}
	return r
}

// SampleSize returns the surface used for colour counting. The scale comes
// from the width alone; the height is clamped to SampleBound.
func SampleSize(w, h int) (int, int) {
	scale := math.Min(1, float64(SampleBound)/float64(w))
	sw := int(math.Round(float64(w) * scale))
	sh := int(math.Round(float64(h) * scale))
	if sh > SampleBound {
		sh = SampleBound
	}
	return max(sw, 1), max(sh, 1)
}

// CountColors returns the number of distinct 15-bit colour keys on the
// downsampled raster, skipping fully transparent pixels.
func CountColors(img image.Image) (int, error) {
	if img == nil {
		return 0, fmt.Errorf("no raster")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, fmt.Errorf("empty raster %dx%d", b.Dx(), b.Dy())
	}

	sw, sh := SampleSize(b.Dx(), b.Dy())
	var sample *image.NRGBA
	if sw == b.Dx() && sh == b.Dy() {
		sample = imaging.Clone(img)
	} else {
		sample = imaging.Resize(img, sw, sh, imaging.Linear)
	}

	var seen [1 << 15]bool
	count := 0
	for i := 0; i+3 < len(sample.Pix); i += 4 {
		if sample.Pix[i+3] == 0 {
			continue
		}
		key := QuantizeKey(sample.Pix[i], sample.Pix[i+1], sample.Pix[i+2])
		if !seen[key] {
			seen[key] = true
			count++
		}
	}
	return count, nil
}

// QuantizeKey packs the top five bits of each channel into a 15-bit key.
func QuantizeKey(r, g, b uint8) uint16 {
	return uint16(r>>3&31)<<10 | uint16(g>>3&31)<<5 | uint16(b>>3&31)
}
