package decode

import (
	"bytes"
	"image"

	"golang.org/x/image/tiff"
)

// TIFFDecoder turns a TIFF buffer into a raster canvas.
type TIFFDecoder interface {
	New(buf []byte) (Canvas, error)
}

// Canvas is a decoded raster surface.
type Canvas interface {
	Image() image.Image
}

// XImageTIFF decodes TIFF with golang.org/x/image/tiff.
type XImageTIFF struct{}

// New decodes buf.
func (XImageTIFF) New(buf []byte) (Canvas, error) {
	img, err := tiff.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	return rasterCanvas{img}, nil
}

type rasterCanvas struct{ img image.Image }

func (c rasterCanvas) Image() image.Image { return c.img }
