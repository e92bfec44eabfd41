// Package decode reads source files into data URLs and loads them as rasters.
//
// The decoder runs three steps, each with its own failure policy:
//
//  1. [Decoder.ReadAsDataURL] reads the file. I/O failure is a READ_ERROR and
//     aborts the run.
//  2. [Decoder.DecodeIfTIFF] converts TIFF input to a PNG data URL when a
//     TIFF collaborator is configured. Failure is logged and the original URL
//     is kept.
//  3. [Decoder.Load] decodes the data URL into an [Image]. Failure is an
//     IMAGE_LOAD_ERROR and aborts the run.
package decode

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/charmbracelet/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/source"
)

// DefaultSize is used for a dimension that cannot be determined.
const DefaultSize = 100

// Image is a decoded raster owned by a single pipeline run.
type Image struct {
	Image   image.Image
	Width   int
	Height  int
	Format  string
	DataURL DataURL
}

// Decoder reads and decodes source files.
type Decoder struct {
	TIFF   TIFFDecoder // nil disables TIFF conversion
	Logger *log.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithTIFF sets the TIFF collaborator.
func WithTIFF(t TIFFDecoder) Option {
	return func(d *Decoder) { d.TIFF = t }
}

// WithoutTIFF leaves TIFF input undecoded.
func WithoutTIFF() Option {
	return func(d *Decoder) { d.TIFF = nil }
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *log.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.Logger = l
		}
	}
}

// New returns a Decoder with the x/image TIFF collaborator.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		TIFF:   XImageTIFF{},
		Logger: log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReadAsDataURL reads f fully and returns its data URL and raw bytes.
func (d *Decoder) ReadAsDataURL(ctx context.Context, f *source.File) (DataURL, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return "", nil, errors.Wrap(errors.ErrCodeReadError, err, "could not read %s", f.Name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, errors.Wrap(errors.ErrCodeReadError, err, "could not read %s", f.Name)
	}
	return Encode(f.MediaType, data), data, nil
}

// DecodeIfTIFF returns a PNG data URL for TIFF input when a TIFF collaborator
// is configured. Any other input, or a failed decode, returns url unchanged.
func (d *Decoder) DecodeIfTIFF(ctx context.Context, f *source.File, url DataURL) DataURL {
	if d.TIFF == nil || !f.IsTIFF() {
		return url
	}
	converted, err := d.decodeTIFF(url)
	if err != nil {
		d.Logger.Warn("tiff decode failed, using original data",
			"file", f.Name,
			"err", errors.Wrap(errors.ErrCodeTIFFDecode, err, "decode %s", f.Name))
		return url
	}
	d.Logger.Debug("decoded tiff", "file", f.Name)
	return converted
}

func (d *Decoder) decodeTIFF(url DataURL) (DataURL, error) {
	_, data, err := url.Parse()
	if err != nil {
		return "", err
	}
	canvas, err := d.TIFF.New(data)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas.Image()); err != nil {
		return "", err
	}
	return Encode("image/png", buf.Bytes()), nil
}

// Load decodes url into a raster.
func (d *Decoder) Load(ctx context.Context, url DataURL) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := url.Parse()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeImageLoadError, err, "image data is malformed")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeImageLoadError, err, "could not load image")
	}
	b := img.Bounds()
	return &Image{
		Image:   img,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Format:  format,
		DataURL: url,
	}, nil
}

// Dimensions returns the intrinsic size, substituting DefaultSize for
// unknown or empty dimensions.
func (img *Image) Dimensions() (int, int) {
	if img == nil {
		return DefaultSize, DefaultSize
	}
	w, h := img.Width, img.Height
	if w <= 0 {
		w = DefaultSize
	}
	if h <= 0 {
		h = DefaultSize
	}
	return w, h
}
