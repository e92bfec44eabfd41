package present

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/svgdoc"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []string
		notWant []string
	}{
		{
			name: "fixed size with viewBox",
			in:   `<svg xmlns="http://www.w3.org/2000/svg" width="64" height="32" viewBox="0 0 64 32"><path d="M0 0"/></svg>`,
			want: []string{`width="100%"`, `height="100%"`, `preserveAspectRatio="xMidYMid meet"`, `viewBox="0 0 64 32"`},
		},
		{
			name: "derives viewBox from size",
			in:   `<svg width="10px" height="20"></svg>`,
			want: []string{`viewBox="0 0 10 20"`, `width="100%"`},
		},
		{
			name:    "percentage size gets no viewBox",
			in:      `<svg width="50%" height="50%"></svg>`,
			want:    []string{`width="100%"`},
			notWant: []string{"viewBox"},
		},
		{
			name: "replaces existing aspect ratio",
			in:   `<svg preserveAspectRatio="none"></svg>`,
			want: []string{`preserveAspectRatio="xMidYMid meet"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Normalize() missing %s in %s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("Normalize() unexpected %s in %s", w, got)
				}
			}
		})
	}
}

func TestNormalizeFallsBackToRaw(t *testing.T) {
	for _, in := range []string{`<svg><g></svg>`, `not svg`, `<div/>`} {
		if got := Normalize(in); got != in {
			t.Errorf("Normalize(%q) = %q, want raw markup", in, got)
		}
	}
}

func TestNormalizeEmbed(t *testing.T) {
	out := Normalize(svgdoc.Embed(64, 64, "data:image/png;base64,AAAA"))
	box, err := svgdoc.ViewBox(out)
	if err != nil {
		t.Fatalf("ViewBox() error: %v", err)
	}
	if box != (svgdoc.Box{Width: 64, Height: 64}) {
		t.Errorf("ViewBox() = %v, want 0 0 64 64", box)
	}
	if strings.Count(out, "<image") != 1 {
		t.Error("normalized embed should keep its single image")
	}
}

func TestSurfaceStates(t *testing.T) {
	s := NewSurface("Drop an image")

	v := s.View()
	if v.State != Placeholder || v.Text != "Drop an image" || v.SVG != "" {
		t.Fatalf("initial view = %+v", v)
	}

	s.Processing("Vectorizing…")
	v = s.View()
	if v.State != Processing || v.Text != "Vectorizing…" || v.SVG != "" {
		t.Fatalf("processing view = %+v", v)
	}

	s.Render(`<svg width="4" height="4"></svg>`, Label(false))
	v = s.View()
	if v.State != Rendered || v.Text != "" {
		t.Fatalf("rendered view = %+v, status text must be cleared", v)
	}
	if !strings.Contains(v.SVG, `width="100%"`) {
		t.Errorf("rendered SVG not normalized: %s", v.SVG)
	}
	if len(v.Labels) != 1 || v.Labels[0] != "embedded raster" {
		t.Errorf("Labels = %v", v.Labels)
	}

	s.Clear()
	v = s.View()
	if v.State != Placeholder || v.SVG != "" || len(v.Labels) != 0 {
		t.Errorf("cleared view = %+v, rendered content must be gone", v)
	}
}

func TestStateString(t *testing.T) {
	if Placeholder.String() != "placeholder" || Processing.String() != "processing" || Rendered.String() != "rendered" {
		t.Error("unexpected State strings")
	}
}

func TestDownloads(t *testing.T) {
	markup := `<svg/>`
	got := Downloads("photo", markup)
	want := []string{"photo.svg", "photo-embedded.svg", "photo-hybrid.svg"}

	if len(got) != len(want) {
		t.Fatalf("Downloads() returned %d variants, want %d", len(got), len(want))
	}
	for i, d := range got {
		if d.Filename != want[i] {
			t.Errorf("Downloads()[%d].Filename = %q, want %q", i, d.Filename, want[i])
		}
		if !bytes.Equal(d.Data, got[0].Data) {
			t.Errorf("variant %s differs from vector variant", d.Variant)
		}
	}
}

func TestParseVariant(t *testing.T) {
	for _, v := range Variants {
		got, err := ParseVariant(string(v))
		if err != nil || got != v {
			t.Errorf("ParseVariant(%q) = (%v, %v)", v, got, err)
		}
	}
	if _, err := ParseVariant("raster"); !errors.Is(err, errors.ErrCodeInvalidVariant) {
		t.Errorf("ParseVariant(raster) error = %v, want INVALID_VARIANT", err)
	}
}
