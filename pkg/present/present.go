// Package present turns a conversion into what a user sees: a normalized
// preview, a single visible preview state, and the download variants.
package present

import (
	"strconv"
	"strings"
	"sync"

	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/svgdoc"
)

// Normalize makes the root element fill its container while keeping its
// aspect ratio. A root without a viewBox gets one from its numeric width and
// height first. Markup that does not parse is returned unchanged.
func Normalize(markup string) string {
	out, err := svgdoc.RewriteRoot(markup, func(attrs []svgdoc.Attr) []svgdoc.Attr {
		if _, ok := svgdoc.GetAttr(attrs, "viewBox"); !ok {
			w, wok := svgdoc.GetAttr(attrs, "width")
			h, hok := svgdoc.GetAttr(attrs, "height")
			if wf, ok := length(w); ok && wok && hok {
				if hf, ok := length(h); ok {
					attrs = svgdoc.SetAttr(attrs, "viewBox", svgdoc.Box{Width: wf, Height: hf}.String())
				}
			}
		}
		attrs = svgdoc.SetAttr(attrs, "width", "100%")
		attrs = svgdoc.SetAttr(attrs, "height", "100%")
		return svgdoc.SetAttr(attrs, "preserveAspectRatio", svgdoc.PreserveAspect)
	})
	if err != nil {
		return markup
	}
	return out
}

// length parses a plain or px length.
func length(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil && v > 0
}

// State identifies what a preview surface shows.
type State int

const (
	Placeholder State = iota
	Processing
	Rendered
)

func (s State) String() string {
	switch s {
	case Processing:
		return "processing"
	case Rendered:
		return "rendered"
	default:
		return "placeholder"
	}
}

// View is the content of a surface in exactly one state.
type View struct {
	State  State
	Text   string // placeholder or status text
	SVG    string // normalized markup, Rendered only
	Labels []string
}

// Surface is a preview area. Each transition replaces the whole view.
type Surface struct {
	mu          sync.RWMutex
	view        View
	placeholder string
}

// NewSurface returns a surface showing placeholder.
func NewSurface(placeholder string) *Surface {
	s := &Surface{placeholder: placeholder}
	s.Clear()
	return s
}

// Clear shows the placeholder.
func (s *Surface) Clear() {
	s.set(View{State: Placeholder, Text: s.placeholder})
}

// Processing shows the in-progress overlay with status.
func (s *Surface) Processing(status string) {
	s.set(View{State: Processing, Text: status})
}

// Render shows markup after normalizing it. Labels annotate the content,
// for example to mark an embedded raster.
func (s *Surface) Render(markup string, labels ...string) {
	s.set(View{State: Rendered, SVG: Normalize(markup), Labels: labels})
}

// View returns the current view.
func (s *Surface) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.view
	v.Labels = append([]string(nil), s.view.Labels...)
	return v
}

func (s *Surface) set(v View) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}

// Variant names a download flavour.
type Variant string

const (
	Vector   Variant = "vector"
	Embedded Variant = "embedded"
	Hybrid   Variant = "hybrid"
)

// Variants lists every download variant in display order.
var Variants = []Variant{Vector, Embedded, Hybrid}

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", errors.New(errors.ErrCodeInvalidVariant, "unknown download variant %q", s)
}

// suffix is appended to the base name.
func (v Variant) suffix() string {
	if v == Vector {
		return ""
	}
	return "-" + string(v)
}

// Filename returns the download name for base.
func (v Variant) Filename(base string) string {
	return base + v.suffix() + ".svg"
}

// MediaType of every download.
const MediaType = "image/svg+xml"

// Download is one offered file.
type Download struct {
	Variant  Variant
	Filename string
	Data     []byte
}

// Downloads returns every variant of markup. All variants carry the same
// bytes; they differ only in name.
func Downloads(base, markup string) []Download {
	out := make([]Download, 0, len(Variants))
	for _, v := range Variants {
		out = append(out, DownloadFor(v, base, markup))
	}
	return out
}

// DownloadFor returns a single variant.
func DownloadFor(v Variant, base, markup string) Download {
	return Download{Variant: v, Filename: v.Filename(base), Data: []byte(markup)}
}

// Label returns the provenance label for a result.
func Label(vectorized bool) string {
	if vectorized {
		return "vector"
	}
	return "embedded raster"
}
