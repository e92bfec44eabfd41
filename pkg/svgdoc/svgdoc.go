// Package svgdoc builds and inspects SVG markup.
//
// [Embed] writes the raster-in-SVG envelope used when no vectorizer result is
// available. The remaining helpers read markup produced elsewhere: counting
// path elements, extracting path data, reading the viewBox and rewriting the
// attributes of the root element.
package svgdoc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	svgo "github.com/ajstarks/svgo"
	"github.com/rustyoz/svg"
)

// DefaultSize replaces an unknown width or height in Embed.
const DefaultSize = 100

// PreserveAspect is the preserveAspectRatio value used for embedded rasters
// and normalized previews.
const PreserveAspect = "xMidYMid meet"

// Embed wraps href in an SVG whose viewBox is "0 0 w h" and whose single
// image element covers the whole box. Non-positive sizes become DefaultSize.
func Embed(w, h int, href string) string {
	if w <= 0 {
		w = DefaultSize
	}
	if h <= 0 {
		h = DefaultSize
	}
	var buf bytes.Buffer
	canvas := svgo.New(&buf)
	canvas.Startview(w, h, 0, 0, w, h)
	canvas.Image(0, 0, w, h, href, `preserveAspectRatio="`+PreserveAspect+`"`)
	canvas.End()
	return buf.String()
}

// walk feeds every start element of markup to fn. It fails on malformed XML.
func walk(markup string, fn func(xml.StartElement)) error {
	dec := xml.NewDecoder(strings.NewReader(markup))
	seenRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if se, ok := tok.(xml.StartElement); ok {
			seenRoot = true
			fn(se)
		}
	}
	if !seenRoot {
		return fmt.Errorf("no root element")
	}
	return nil
}

// CountPaths returns the number of path elements at any depth.
func CountPaths(markup string) (int, error) {
	n := 0
	err := walk(markup, func(se xml.StartElement) {
		if se.Name.Local == "path" {
			n++
		}
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Path is a path element with the transforms of its ancestor groups.
type Path struct {
	D         string
	Transform string // ancestor transforms joined outermost first, may be empty
}

// Paths returns every path element with non-empty data in document order.
func Paths(markup string) ([]Path, error) {
	dec := xml.NewDecoder(strings.NewReader(markup))
	var (
		out   []Path
		stack []string
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			transform := ""
			var d string
			for _, a := range t.Attr {
				switch a.Name.Local {
				case "transform":
					transform = a.Value
				case "d":
					d = a.Value
				}
			}
			if t.Name.Local == "path" && d != "" {
				out = append(out, Path{D: d, Transform: joinTransforms(append(stack, transform))})
			}
			if len(stack) == 0 {
				// root transforms do not apply inside its viewport
				transform = ""
			}
			stack = append(stack, transform)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

func joinTransforms(ts []string) string {
	var parts []string
	for _, t := range ts {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Box is a parsed viewBox.
type Box struct {
	MinX, MinY, Width, Height float64
}

// String formats b the way it appears in markup.
func (b Box) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(b.MinX) + " " + f(b.MinY) + " " + f(b.Width) + " " + f(b.Height)
}

// ViewBox returns the root viewBox of markup.
func ViewBox(markup string) (box Box, err error) {
	raw, err := rootViewBox(markup)
	if err != nil {
		return Box{}, err
	}
	return ParseBox(raw)
}

// rootViewBox reads the attribute with rustyoz/svg and falls back to the
// root start element when that parser rejects the document.
func rootViewBox(markup string) (vb string, err error) {
	defer func() {
		if r := recover(); r != nil {
			vb, err = rootAttr(markup, "viewBox")
		}
	}()
	parsed, perr := svg.ParseSvg(markup, "document", 1.0)
	if perr == nil && parsed != nil && parsed.ViewBox != "" {
		return parsed.ViewBox, nil
	}
	return rootAttr(markup, "viewBox")
}

// ParseBox parses a viewBox value. Separators may be spaces or commas.
func ParseBox(raw string) (Box, error) {
	fields := strings.Fields(strings.ReplaceAll(raw, ",", " "))
	if len(fields) != 4 {
		return Box{}, fmt.Errorf("viewBox %q: want 4 numbers", raw)
	}
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Box{}, fmt.Errorf("viewBox %q: %w", raw, err)
		}
		v[i] = n
	}
	return Box{MinX: v[0], MinY: v[1], Width: v[2], Height: v[3]}, nil
}

func rootAttr(markup, name string) (string, error) {
	var value string
	found := false
	err := walk(markup, func(se xml.StartElement) {
		if found {
			return
		}
		found = true
		for _, a := range se.Attr {
			if a.Name.Local == name {
				value = a.Value
			}
		}
	})
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("root element has no %s", name)
	}
	return value, nil
}
