package potrace

import (
	"image"
	"image/color"
	"sort"
)

// maxPaletteSamples caps the pixels fed to median cut.
const maxPaletteSamples = 1 << 16

type pixel struct{ r, g, b int }

// box is a median-cut bucket with its channel ranges.
type box struct {
	pixels                             []pixel
	rMin, rMax, gMin, gMax, bMin, bMax int
}

func newBox(pixels []pixel) *box {
	b := &box{pixels: pixels, rMin: 255, gMin: 255, bMin: 255}
	for _, p := range pixels {
		b.rMin, b.rMax = min(b.rMin, p.r), max(b.rMax, p.r)
		b.gMin, b.gMax = min(b.gMin, p.g), max(b.gMax, p.g)
		b.bMin, b.bMax = min(b.bMin, p.b), max(b.bMax, p.b)
	}
	return b
}

func (b *box) widest() (channel, span int) {
	r, g, bl := b.rMax-b.rMin, b.gMax-b.gMin, b.bMax-b.bMin
	switch {
	case r >= g && r >= bl:
		return 0, r
	case g >= bl:
		return 1, g
	default:
		return 2, bl
	}
}

func (b *box) mean() color.NRGBA {
	var r, g, bl int
	for _, p := range b.pixels {
		r += p.r
		g += p.g
		bl += p.b
	}
	n := len(b.pixels)
	return color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: 255}
}

// medianCut reduces the opaque pixels of img to at most n colours.
// Pixels with alpha below half are ignored.
func medianCut(img *image.NRGBA, n int) []color.NRGBA {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	step := 1
	if total > maxPaletteSamples {
		step = total / maxPaletteSamples
	}

	var pixels []pixel
	for i := 0; i < total; i += step {
		o := i * 4
		if img.Pix[o+3] < 128 {
			continue
		}
		pixels = append(pixels, pixel{int(img.Pix[o]), int(img.Pix[o+1]), int(img.Pix[o+2])})
	}
	if len(pixels) == 0 {
		return nil
	}

	boxes := []*box{newBox(pixels)}
	for len(boxes) < n {
		idx, best := -1, 0
		for i, bx := range boxes {
			if len(bx.pixels) < 2 {
				continue
			}
			if _, span := bx.widest(); span > best {
				idx, best = i, span
			}
		}
		if idx < 0 {
			break
		}

		split := boxes[idx]
		channel, _ := split.widest()
		sort.Slice(split.pixels, func(i, j int) bool {
			a, c := split.pixels[i], split.pixels[j]
			switch channel {
			case 0:
				return a.r < c.r
			case 1:
				return a.g < c.g
			default:
				return a.b < c.b
			}
		})
		mid := len(split.pixels) / 2
		lo := newBox(append([]pixel(nil), split.pixels[:mid]...))
		hi := newBox(append([]pixel(nil), split.pixels[mid:]...))
		boxes = append(boxes[:idx], append([]*box{lo, hi}, boxes[idx+1:]...)...)
	}

	palette := make([]color.NRGBA, 0, len(boxes))
	for _, bx := range boxes {
		palette = append(palette, bx.mean())
	}
	return palette
}

// nearest returns the index of the palette colour closest to (r, g, b).
func nearest(palette []color.NRGBA, r, g, b uint8) int {
	best, bestDist := 0, int(^uint(0)>>1)
	for i, c := range palette {
		dr, dg, db := int(c.R)-int(r), int(c.G)-int(g), int(c.B)-int(b)
		if d := dr*dr + dg*dg + db*db; d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
