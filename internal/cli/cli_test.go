package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tracekit/pkg/artifact"
	"github.com/matzehuels/tracekit/pkg/config"
	"github.com/matzehuels/tracekit/pkg/metrics"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/present"
	"github.com/matzehuels/tracekit/pkg/session"
	"github.com/matzehuels/tracekit/pkg/source"
	"github.com/matzehuels/tracekit/pkg/vectorize"
)

const tracedSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 2 2"><path d="M0 0h2v2H0z"/></svg>`

type fakeTracer struct{}

func (fakeTracer) TraceSVG(image.Image) (string, error) { return tracedSVG, nil }

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		in      string
		want    []present.Variant
		wantErr bool
	}{
		{"", []present.Variant{present.Vector}, false},
		{"all", present.Variants, false},
		{"hybrid", []present.Variant{present.Hybrid}, false},
		{"vector, embedded,vector", []present.Variant{present.Vector, present.Embedded}, false},
		{"png", nil, true},
	}

	for _, tt := range tests {
		got, err := parseVariants(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseVariants(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseVariants(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseVariants(%q) = %v, want %v", tt.in, got, tt.want)
				break
			}
		}
	}
}

func TestNewTracer(t *testing.T) {
	if tr, err := newTracer(tracerPotrace); err != nil || vectorize.TracerName(tr) != "potrace" {
		t.Errorf("newTracer(potrace) = %v, %v", tr, err)
	}
	if tr, err := newTracer(tracerNone); err != nil || tr != nil {
		t.Errorf("newTracer(none) = %v, %v", tr, err)
	}
	if _, err := newTracer("inkscape"); err == nil {
		t.Error("newTracer(inkscape) succeeded")
	}
}

func TestDisplayAddr(t *testing.T) {
	tests := []struct{ in, want string }{
		{":8080", "localhost:8080"},
		{"0.0.0.0:80", "0.0.0.0:80"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := displayAddr(tt.in); got != tt.want {
			t.Errorf("displayAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestMetricsTable(t *testing.T) {
	conv := &pipeline.Conversion{
		Vectorized: false,
		Metrics: metrics.Metrics{
			OriginalSize: 2048,
			SVGSize:      4096,
			Ratio:        0.5,
			Colors:       metrics.Count{N: 3, OK: true},
		},
	}
	out := metricsTable(conv)
	for _, want := range []string{"embedded raster", "0.50x", "~3", "none", "2.0 KiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("metricsTable() missing %q:\n%s", want, out)
		}
	}
}

func TestPipelineOptionsFlagsOverrideConfig(t *testing.T) {
	var vec vectorize.Options
	cmd := &cobra.Command{Use: "x"}
	registerVectorizeFlags(cmd, &vec)
	if err := cmd.Flags().Parse([]string{"--colors", "5"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Vectorize.Colors = 12
	cfg.Vectorize.Blur = 2

	opts := pipelineOptions(cmd, cfg, vec)
	if opts.Vectorize.Colors != 5 {
		t.Errorf("Colors = %d, want flag value 5", opts.Vectorize.Colors)
	}
	if opts.Vectorize.Blur != 2 {
		t.Errorf("Blur = %v, want config value 2", opts.Vectorize.Blur)
	}
}

func TestConvertCommandWritesVariants(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, "dot.png")
	out := filepath.Join(dir, "out")

	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs([]string{
		"--config", filepath.Join(dir, "missing.toml"),
		"convert", in, "--tracer", "none", "--variants", "all", "-o", out, "-q",
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("convert: %v", err)
	}

	var first []byte
	for _, name := range []string{"dot.svg", "dot-embedded.svg", "dot-hybrid.svg"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !bytes.Contains(data, []byte("data:image/png;base64,")) {
			t.Errorf("%s does not embed the raster", name)
		}
		if first == nil {
			first = data
		} else if !bytes.Equal(first, data) {
			t.Errorf("%s differs from dot.svg", name)
		}
	}
}

func TestConvertCommandRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(in, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", filepath.Join(dir, "missing.toml"), "convert", in, "-o", dir})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("convert accepted a text file")
	}
	if entries, _ := filepath.Glob(filepath.Join(dir, "*.svg")); len(entries) != 0 {
		t.Errorf("rejected input wrote %v", entries)
	}
}

func TestConfigPathCommand(t *testing.T) {
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", "/etc/tracekit.toml", "config", "path"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != "/etc/tracekit.toml" {
		t.Errorf("config path = %q", got)
	}
}

func TestPreviewModel(t *testing.T) {
	dir := t.TempDir()
	f, err := source.FromPath(writePNG(t, dir, "dot.png"))
	if err != nil {
		t.Fatal(err)
	}
	runner := pipeline.NewRunner(nil, nil, newLogger(io.Discard, LogInfo), pipeline.WithTracer(fakeTracer{}))
	sess := session.New(artifact.NewStore(nil, nil, 0), 0)
	m := newPreviewModel(context.Background(), sess, runner, f, pipeline.Options{}, dir)

	if v := m.View(); !strings.Contains(v, session.Placeholder) {
		t.Errorf("initial view missing placeholder:\n%s", v)
	}

	cmd := m.convert()
	if v := m.View(); !strings.Contains(v, "Converting dot.png") {
		t.Errorf("processing view missing status:\n%s", v)
	}

	model, _ := m.Update(cmd())
	m = model.(previewModel)
	if v := m.View(); !strings.Contains(v, "[vector]") || !strings.Contains(v, "Paths") {
		t.Errorf("rendered view missing result:\n%s", v)
	}

	model, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")})
	m = model.(previewModel)
	model, _ = m.Update(cmd())
	m = model.(previewModel)
	data, err := os.ReadFile(filepath.Join(dir, "dot-hybrid.svg"))
	if err != nil {
		t.Fatalf("saved download: %v", err)
	}
	if string(data) != tracedSVG {
		t.Errorf("saved data = %q", data)
	}
	if !strings.Contains(m.View(), "saved") {
		t.Error("view does not confirm the save")
	}

	model, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m = model.(previewModel)
	if v := m.View(); !strings.Contains(v, session.Placeholder) {
		t.Errorf("view after clear:\n%s", v)
	}
	if sess.Handle() != "" {
		t.Error("clear left a live artifact")
	}
}
