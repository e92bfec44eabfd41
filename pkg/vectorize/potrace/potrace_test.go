package potrace

import (
	"context"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gotranspile/gotrace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/tracekit/pkg/svgdoc"
	"github.com/matzehuels/tracekit/pkg/vectorize"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

// halves returns a w×h image, left half red and right half blue.
func halves(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetNRGBA(x, y, red)
			} else {
				img.SetNRGBA(x, y, blue)
			}
		}
	}
	return img
}

func TestMedianCut(t *testing.T) {
	palette := medianCut(halves(8, 8), 8)
	require.Len(t, palette, 2, "identical pixels must not be split further")
	assert.ElementsMatch(t, []color.NRGBA{red, blue}, palette)
}

func TestMedianCutSingleColour(t *testing.T) {
	img := halves(4, 4)
	palette := medianCut(img, 1)
	require.Len(t, palette, 1)
	assert.Equal(t, uint8(127), palette[0].R)
	assert.Equal(t, uint8(127), palette[0].B)
}

func TestMedianCutTransparent(t *testing.T) {
	assert.Empty(t, medianCut(image.NewNRGBA(image.Rect(0, 0, 4, 4)), 4))
}

func TestNearest(t *testing.T) {
	palette := []color.NRGBA{red, blue}
	assert.Equal(t, 0, nearest(palette, 250, 10, 10))
	assert.Equal(t, 1, nearest(palette, 10, 10, 200))
}

func TestSplit(t *testing.T) {
	layers := split(halves(6, 2), []color.NRGBA{red, blue, {G: 255, A: 255}})
	require.Len(t, layers, 2, "empty colours are dropped")
	assert.Equal(t, 6, layers[0].pixels)
	assert.Equal(t, uint8(0), layers[0].mask.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), layers[0].mask.GrayAt(5, 0).Y)
}

func TestStyle(t *testing.T) {
	assert.Equal(t, "fill:#ff0000;stroke:none", style(red, false))
	assert.Equal(t, "fill:none;stroke:#0000ff;stroke-width:1", style(blue, true))
}

func TestTraceLayerDefaultConfig(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}
	for y := 4; y < 12; y++ {
		for x := 4; x < 12; x++ {
			mask.SetGray(x, y, color.Gray{})
		}
	}
	l := &layer{color: red, mask: mask, pixels: 64}

	require.NoError(t, traceLayer(l, *gotrace.DefaultConfig(), 16, 16))
	assert.NotEmpty(t, l.paths)
	require.NotNil(t, l.box)
	assert.Greater(t, l.box.Width, 0.0)
}

func TestTrace(t *testing.T) {
	out, err := New().Trace(context.Background(), halves(32, 32), vectorize.Options{Colors: 2})
	require.NoError(t, err)

	n, err := svgdoc.CountPaths(out)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.Contains(t, out, "fill:#ff0000")
	assert.Contains(t, out, "fill:#0000ff")
}

func TestTraceOutline(t *testing.T) {
	out, err := New().Trace(context.Background(), halves(32, 32), vectorize.Options{Outline: true, Scale: 2})
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "fill:none;stroke:#"))
	assert.Contains(t, out, `width="64"`)
}

func TestTraceErrors(t *testing.T) {
	_, err := New().Trace(context.Background(), nil, vectorize.Options{})
	assert.Error(t, err)

	_, err = New().Trace(context.Background(), image.NewNRGBA(image.Rect(0, 0, 8, 8)), vectorize.Options{})
	assert.Error(t, err, "fully transparent image has nothing to trace")
}

func TestAdapterUsesOptionsShape(t *testing.T) {
	a := vectorize.NewAdapter(New(), vectorize.WithLogger(log.New(io.Discard)))
	res, err := a.Vectorize(context.Background(), halves(16, 16), vectorize.Options{})
	require.NoError(t, err)
	assert.Equal(t, "options-callback", res.Strategy)
	assert.Equal(t, "potrace", a.Name())
}

func TestTraceSVG(t *testing.T) {
	out, err := New().TraceSVG(halves(16, 16))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
