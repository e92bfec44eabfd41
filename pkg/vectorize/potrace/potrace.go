// Package potrace is the bundled tracer. It quantizes the raster to a small
// palette, traces one bitmap per colour with gotrace and stacks the layers
// into a single SVG document, largest layer first.
//
// The tracer implements both the options-callback and the synchronous call
// shapes of package vectorize.
package potrace

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"sort"

	svgo "github.com/ajstarks/svgo"
	"github.com/disintegration/imaging"
	"github.com/gotranspile/gotrace"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/tracekit/pkg/svgdoc"
	"github.com/matzehuels/tracekit/pkg/vectorize"
)

// DefaultOptions are applied to every unset control.
func DefaultOptions() vectorize.Options {
	return vectorize.Options{
		Colors:         8,
		LineThreshold:  0.2,
		CurveThreshold: 1.0,
		PathOmit:       2,
		Scale:          1,
		OptimizePaths:  true,
	}
}

// MaxColors bounds the palette size.
const MaxColors = 64

// Tracer traces rasters with gotrace.
type Tracer struct {
	Defaults vectorize.Options
	Workers  int // concurrent layers, defaults to GOMAXPROCS
}

// New returns a tracer with DefaultOptions.
func New() *Tracer {
	return &Tracer{Defaults: DefaultOptions()}
}

// Name implements vectorize.Named.
func (t *Tracer) Name() string { return "potrace" }

// TraceWithOptions traces img in the background and reports through done.
func (t *Tracer) TraceWithOptions(img image.Image, opts vectorize.Options, done vectorize.Done) error {
	if img == nil {
		return fmt.Errorf("potrace: nil image")
	}
	go func() {
		svg, err := t.Trace(context.Background(), img, opts)
		done(svg, err)
	}()
	return nil
}

// TraceSVG traces img with the tracer defaults.
func (t *Tracer) TraceSVG(img image.Image) (string, error) {
	return t.Trace(context.Background(), img, vectorize.Options{})
}

type layer struct {
	color  color.NRGBA
	mask   *image.Gray
	pixels int
	paths  []svgdoc.Path
	box    *svgdoc.Box
}

// Trace converts img to SVG markup.
func (t *Tracer) Trace(ctx context.Context, img image.Image, opts vectorize.Options) (string, error) {
	if img == nil {
		return "", fmt.Errorf("potrace: nil image")
	}
	opts = opts.Merge(t.Defaults)
	src := prepare(img, opts)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return "", fmt.Errorf("potrace: empty image")
	}

	palette := medianCut(src, min(max(opts.Colors, 1), MaxColors))
	if len(palette) == 0 {
		return "", fmt.Errorf("potrace: image has no opaque pixels")
	}
	layers := split(src, palette)

	params := *gotrace.DefaultConfig()
	params.TurdSize = opts.PathOmit
	params.AlphaMax = opts.CurveThreshold
	params.OptiCurve = opts.OptimizePaths
	params.OptTolerance = opts.LineThreshold
	if opts.HighQuality {
		params.OptTolerance /= 4
	}

	g, ctx := errgroup.WithContext(ctx)
	workers := t.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for _, l := range layers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return traceLayer(l, params, w, h)
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("potrace: %w", err)
	}

	return compose(layers, w, h, opts.Outline)
}

// prepare applies scale and blur and returns an NRGBA copy.
func prepare(img image.Image, opts vectorize.Options) *image.NRGBA {
	src := imaging.Clone(img)
	if s := opts.ScaleOr(1); s != 1 {
		w := max(int(math.Round(float64(src.Bounds().Dx())*s)), 1)
		src = imaging.Resize(src, w, 0, imaging.Lanczos)
	}
	if opts.Blur > 0 {
		src = imaging.Blur(src, opts.Blur)
	}
	return src
}

// split assigns every opaque pixel to its nearest palette colour and returns
// one mask per non-empty colour, largest first. Masks are black where the
// colour is present.
func split(src *image.NRGBA, palette []color.NRGBA) []*layer {
	b := src.Bounds()
	layers := make([]*layer, len(palette))
	for i, c := range palette {
		mask := image.NewGray(b)
		for j := range mask.Pix {
			mask.Pix[j] = 255
		}
		layers[i] = &layer{color: c, mask: mask}
	}

	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < w; x++ {
			o := y*src.Stride + x*4
			if src.Pix[o+3] < 128 {
				continue
			}
			l := layers[nearest(palette, src.Pix[o], src.Pix[o+1], src.Pix[o+2])]
			l.mask.Pix[y*l.mask.Stride+x] = 0
			l.pixels++
		}
	}

	out := layers[:0]
	for _, l := range layers {
		if l.pixels > 0 {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].pixels > out[j].pixels })
	return out
}

func traceLayer(l *layer, params gotrace.Config, w, h int) error {
	bm := gotrace.BitmapFromGray(l.mask, nil)
	paths, err := gotrace.Trace(bm, &params)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := gotrace.Render("svg", nil, &buf, paths, w, h); err != nil {
		return err
	}
	markup := buf.String()
	if l.paths, err = svgdoc.Paths(markup); err != nil {
		return err
	}
	if box, err := svgdoc.ViewBox(markup); err == nil {
		l.box = &box
	}
	return nil
}

// compose stacks the traced layers into one document.
func compose(layers []*layer, w, h int, outline bool) (string, error) {
	box := svgdoc.Box{Width: float64(w), Height: float64(h)}
	total := 0
	for _, l := range layers {
		if l.box != nil {
			box = *l.box
		}
		total += len(l.paths)
	}
	if total == 0 {
		return "", fmt.Errorf("potrace: no paths traced")
	}

	var buf bytes.Buffer
	canvas := svgo.New(&buf)
	canvas.Start(w, h, `viewBox="`+box.String()+`"`)
	for _, l := range layers {
		if len(l.paths) == 0 {
			continue
		}
		canvas.Gstyle(style(l.color, outline))
		for _, p := range l.paths {
			if p.Transform != "" {
				canvas.Path(p.D, `transform="`+p.Transform+`"`)
			} else {
				canvas.Path(p.D)
			}
		}
		canvas.Gend()
	}
	canvas.End()
	return buf.String(), nil
}

func style(c color.NRGBA, outline bool) string {
	hex := fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	if outline {
		return "fill:none;stroke:" + hex + ";stroke-width:1"
	}
	return "fill:" + hex + ";stroke:none"
}
