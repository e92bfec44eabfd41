package session

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tracekit/pkg/artifact"
	"github.com/matzehuels/tracekit/pkg/cache"
	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/present"
	"github.com/matzehuels/tracekit/pkg/source"
)

const tracedSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 2 2"><path d="M0 0h2v2H0z"/></svg>`

type fakeTracer struct{}

func (fakeTracer) TraceSVG(image.Image) (string, error) { return tracedSVG, nil }

func pngFile(t *testing.T, name string) *source.File {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return source.New(name, "image/png", buf.Bytes())
}

func newTestSession(t *testing.T) (*Session, *cache.MemoryCache) {
	t.Helper()
	c := cache.NewMemoryCache()
	return New(artifact.NewStore(c, nil, 0), 0), c
}

func newRunner(tracer any) *pipeline.Runner {
	l := log.New(&bytes.Buffer{})
	l.SetLevel(log.FatalLevel)
	return pipeline.NewRunner(nil, nil, l, pipeline.WithTracer(tracer))
}

func TestNewSessionIsIdle(t *testing.T) {
	sess, _ := newTestSession(t)
	snap := sess.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("State = %s, want idle", snap.State)
	}
	if v := sess.View(); v.State != present.Placeholder || v.Text != Placeholder {
		t.Errorf("View() = %+v, want placeholder", v)
	}
	if sess.ID == "" {
		t.Error("ID is empty")
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name      string
		tracer    any
		wantLabel string
	}{
		{"vectorized", fakeTracer{}, "vector"},
		{"embedded", nil, "embedded raster"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, _ := newTestSession(t)
			conv, err := sess.Convert(context.Background(), newRunner(tt.tracer), pngFile(t, "dot.png"), pipeline.Options{})
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if sess.Current() != conv {
				t.Error("Current() is not the returned conversion")
			}
			snap := sess.Snapshot()
			if snap.State != StateReady {
				t.Errorf("State = %s, want ready", snap.State)
			}
			v := sess.View()
			if v.State != present.Rendered {
				t.Errorf("view state = %s, want rendered", v.State)
			}
			if len(v.Labels) != 1 || v.Labels[0] != tt.wantLabel {
				t.Errorf("Labels = %v, want [%s]", v.Labels, tt.wantLabel)
			}
		})
	}
}

func TestConvertRejectedLeavesState(t *testing.T) {
	sess, _ := newTestSession(t)
	r := newRunner(fakeTracer{})
	ctx := context.Background()

	first, err := sess.Convert(ctx, r, pngFile(t, "dot.png"), pipeline.Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	before := sess.View()

	_, err = sess.Convert(ctx, r, source.New("notes.txt", "text/plain", []byte("hi")), pipeline.Options{})
	if !errors.Is(err, errors.ErrCodeInputRejected) {
		t.Fatalf("Convert() error = %v, want INPUT_REJECTED", err)
	}
	if sess.Current() != first {
		t.Error("rejected input replaced the current result")
	}
	if after := sess.View(); after.State != before.State || after.SVG != before.SVG {
		t.Error("rejected input changed the preview")
	}
}

func TestConvertFailureClearsOverlay(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := sess.Convert(context.Background(), newRunner(nil), source.New("bad.png", "image/png", []byte("nope")), pipeline.Options{})
	if !errors.Is(err, errors.ErrCodeImageLoadError) {
		t.Fatalf("Convert() error = %v, want IMAGE_LOAD_ERROR", err)
	}
	if v := sess.View(); v.State != present.Placeholder {
		t.Errorf("view state = %s, want placeholder", v.State)
	}
	snap := sess.Snapshot()
	if snap.State != StateFailed || snap.Error == "" {
		t.Errorf("Snapshot() = %+v, want failed with error", snap)
	}
	if snap.Result != nil {
		t.Error("failed run left a result")
	}
}

func TestLastCompletionWins(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	first := sess.Begin(ctx, "a.png")
	second := sess.Begin(ctx, "b.png")
	if snap := sess.Snapshot(); snap.State != StateProcessing || snap.Pending != 2 {
		t.Fatalf("Snapshot() = %+v, want 2 pending", snap)
	}

	convB := &pipeline.Conversion{Base: "b", SVG: tracedSVG, Vectorized: true}
	convA := &pipeline.Conversion{Base: "a", SVG: tracedSVG, Vectorized: true}

	sess.Complete(ctx, second, convB)
	if snap := sess.Snapshot(); snap.State != StateProcessing || snap.Preview != present.Processing.String() {
		t.Errorf("Snapshot() = %+v with one run pending, want processing state and preview", snap)
	}
	if sess.Current() != convB {
		t.Error("completed run is not current while another is pending")
	}
	sess.Complete(ctx, first, convA)
	if snap := sess.Snapshot(); snap.Preview != present.Rendered.String() {
		t.Errorf("preview = %s after last run, want rendered", snap.Preview)
	}

	if got := sess.Current(); got != convA {
		t.Errorf("Current() = %v, want the last completed run", got)
	}
	if snap := sess.Snapshot(); snap.State != StateReady || snap.Pending != 0 {
		t.Errorf("Snapshot() = %+v, want ready", snap)
	}
}

func TestFailAfterOtherRunCompletes(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	first := sess.Begin(ctx, "a.png")
	second := sess.Begin(ctx, "b.png")
	conv := &pipeline.Conversion{Base: "b", SVG: tracedSVG}
	sess.Complete(ctx, second, conv)
	if v := sess.View(); v.State != present.Processing {
		t.Errorf("view state = %s with a run pending, want processing", v.State)
	}
	sess.Fail(first, stderrors.New("boom"))

	if sess.Current() != conv {
		t.Error("failure discarded a completed result")
	}
	if v := sess.View(); v.State != present.Rendered {
		t.Errorf("view state = %s, want rendered", v.State)
	}
}

func TestDownloadKeepsOneArtifact(t *testing.T) {
	sess, c := newTestSession(t)
	ctx := context.Background()
	store := sess.artifacts

	if _, err := sess.Download(ctx, present.Vector); !errors.Is(err, errors.ErrCodeNoResult) {
		t.Fatalf("Download() before result error = %v, want NO_RESULT", err)
	}

	run := sess.Begin(ctx, "photo.png")
	sess.Complete(ctx, run, &pipeline.Conversion{Base: "photo", SVG: tracedSVG})

	var handles []string
	for _, v := range present.Variants {
		a, err := sess.Download(ctx, v)
		if err != nil {
			t.Fatalf("Download(%s): %v", v, err)
		}
		if a.Filename != v.Filename("photo") {
			t.Errorf("Filename = %q, want %q", a.Filename, v.Filename("photo"))
		}
		if string(a.Data) != tracedSVG {
			t.Errorf("Download(%s) data differs from the current markup", v)
		}
		if a.MediaType != present.MediaType {
			t.Errorf("MediaType = %q", a.MediaType)
		}
		if c.Len() != 1 {
			t.Errorf("live artifacts = %d, want 1", c.Len())
		}
		handles = append(handles, a.Handle)
	}

	for _, h := range handles[:len(handles)-1] {
		if _, err := store.Get(ctx, h); !errors.Is(err, errors.ErrCodeArtifactNotFound) {
			t.Errorf("released handle %s still resolves: %v", h, err)
		}
	}
	if sess.Handle() != handles[len(handles)-1] {
		t.Error("Handle() is not the latest artifact")
	}
}

func TestBeginAndResetReleaseArtifact(t *testing.T) {
	tests := []struct {
		name   string
		action func(ctx context.Context, s *Session)
	}{
		{"begin", func(ctx context.Context, s *Session) { s.Begin(ctx, "next.png") }},
		{"reset", func(ctx context.Context, s *Session) { s.Reset(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, c := newTestSession(t)
			ctx := context.Background()
			run := sess.Begin(ctx, "photo.png")
			sess.Complete(ctx, run, &pipeline.Conversion{Base: "photo", SVG: tracedSVG})
			if _, err := sess.Download(ctx, present.Vector); err != nil {
				t.Fatalf("Download: %v", err)
			}

			tt.action(ctx, sess)

			if c.Len() != 0 {
				t.Errorf("live artifacts = %d, want 0", c.Len())
			}
			if sess.Handle() != "" {
				t.Errorf("Handle() = %q, want empty", sess.Handle())
			}
			if sess.Current() != nil {
				t.Error("result survived")
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sess, _ := newTestSession(t)

	if err := store.Set(ctx, sess); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, sess.ID)
	if err != nil || got != sess {
		t.Fatalf("Get() = %v, %v; want stored session", got, err)
	}
	if got, _ := store.Get(ctx, "missing"); got != nil {
		t.Error("Get(missing) returned a session")
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := store.Get(ctx, sess.ID); got != nil {
		t.Error("session survived Delete")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := cache.NewMemoryCache()
	short := New(artifact.NewStore(c, nil, 0), time.Millisecond)
	long := New(artifact.NewStore(c, nil, 0), time.Hour)
	_ = store.Set(ctx, short)
	_ = store.Set(ctx, long)

	time.Sleep(5 * time.Millisecond)
	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if got, _ := store.Get(ctx, short.ID); got != nil {
		t.Error("expired session still returned")
	}
	if got, _ := store.Get(ctx, long.ID); got != long {
		t.Error("live session missing")
	}
}
