package decode

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	tkerrors "github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/source"
)

func quietDecoder(opts ...Option) *Decoder {
	return New(append([]Option{WithLogger(log.New(io.Discard))}, opts...)...)
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeTIFF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	return buf.Bytes()
}

type failingTIFF struct{}

func (failingTIFF) New([]byte) (Canvas, error) { return nil, errors.New("unsupported compression") }

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }
func (brokenReader) Close() error             { return nil }

func TestDataURLRoundTrip(t *testing.T) {
	data := []byte{0, 1, 2, 255}
	u := Encode("image/png", data)

	assert.Equal(t, "image/png", u.MediaType())
	mediaType, got, err := u.Parse()
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, data, got)
}

func TestDataURLParseErrors(t *testing.T) {
	for _, u := range []DataURL{"", "http://x", "data:image/png", "data:image/png,abc", "data:image/png;base64,@@@"} {
		_, _, err := u.Parse()
		assert.Error(t, err, "Parse(%q)", u)
	}
	assert.Equal(t, "", DataURL("nope").MediaType())
}

func TestReadAsDataURL(t *testing.T) {
	d := quietDecoder()
	raw := encodePNG(t, solid(3, 2, color.White))
	f := source.New("a.png", "image/png", raw)

	u, data, err := d.ReadAsDataURL(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, raw, data)
	assert.Equal(t, Encode("image/png", raw), u)
}

func TestReadAsDataURLFailure(t *testing.T) {
	d := quietDecoder()
	_, _, err := d.ReadAsDataURL(context.Background(), source.FromOpener("broken.png", "image/png", 10, func() (io.ReadCloser, error) {
		return brokenReader{}, nil
	}))
	assert.True(t, tkerrors.Is(err, tkerrors.ErrCodeReadError), "err = %v", err)

	_, _, err = d.ReadAsDataURL(context.Background(), source.FromOpener("locked.png", "image/png", 10, func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}))
	assert.True(t, tkerrors.Is(err, tkerrors.ErrCodeReadError), "err = %v", err)
}

func TestReadAsDataURLCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := quietDecoder().ReadAsDataURL(ctx, source.New("a.png", "image/png", []byte("x")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeIfTIFF(t *testing.T) {
	ctx := context.Background()
	tiffData := encodeTIFF(t, solid(4, 3, color.RGBA{R: 255, A: 255}))
	tiffFile := source.New("scan.tiff", "image/tiff", tiffData)
	tiffURL := Encode("image/tiff", tiffData)

	t.Run("converts to png", func(t *testing.T) {
		u := quietDecoder().DecodeIfTIFF(ctx, tiffFile, tiffURL)
		assert.Equal(t, "image/png", u.MediaType())

		img, err := quietDecoder().Load(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, 4, img.Width)
		assert.Equal(t, 3, img.Height)
	})

	t.Run("collaborator absent", func(t *testing.T) {
		u := quietDecoder(WithoutTIFF()).DecodeIfTIFF(ctx, tiffFile, tiffURL)
		assert.Equal(t, tiffURL, u)
	})

	t.Run("collaborator fails", func(t *testing.T) {
		u := quietDecoder(WithTIFF(failingTIFF{})).DecodeIfTIFF(ctx, tiffFile, tiffURL)
		assert.Equal(t, tiffURL, u)
	})

	t.Run("corrupt tiff", func(t *testing.T) {
		bad := Encode("image/tiff", []byte("II*\x00garbage"))
		u := quietDecoder().DecodeIfTIFF(ctx, source.New("bad.tif", "image/tiff", nil), bad)
		assert.Equal(t, bad, u)
	})

	t.Run("not tiff", func(t *testing.T) {
		pngURL := Encode("image/png", encodePNG(t, solid(1, 1, color.Black)))
		u := quietDecoder(WithTIFF(failingTIFF{})).DecodeIfTIFF(ctx, source.New("a.png", "image/png", nil), pngURL)
		assert.Equal(t, pngURL, u)
	})
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	d := quietDecoder()

	img, err := d.Load(ctx, Encode("image/png", encodePNG(t, solid(64, 32, color.White))))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 32, img.Height)
	assert.Equal(t, "png", img.Format)

	_, err = d.Load(ctx, Encode("image/png", []byte("not an image")))
	assert.True(t, tkerrors.Is(err, tkerrors.ErrCodeImageLoadError), "err = %v", err)

	_, err = d.Load(ctx, DataURL("garbage"))
	assert.True(t, tkerrors.Is(err, tkerrors.ErrCodeImageLoadError), "err = %v", err)
}

func TestDimensionsDefault(t *testing.T) {
	var img *Image
	w, h := img.Dimensions()
	assert.Equal(t, DefaultSize, w)
	assert.Equal(t, DefaultSize, h)

	w, h = (&Image{Width: 0, Height: 7}).Dimensions()
	assert.Equal(t, DefaultSize, w)
	assert.Equal(t, 7, h)
}
