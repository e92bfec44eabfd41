package cli

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tracekit/pkg/observability"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"warn at info level", LogInfo, func(l *log.Logger) { l.Warn("vectorization failed") }, true},
		{"debug at info level", LogInfo, func(l *log.Logger) { l.Debug("decode start") }, false},
		{"debug at debug level", LogDebug, func(l *log.Logger) { l.Debug("decode start") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("got log output = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestProgressReportsElapsed(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, LogInfo))
	prog.start = prog.start.Add(-1500 * time.Millisecond)
	prog.done("Wrote 3 file(s)")

	out := buf.String()
	if !strings.Contains(out, "Wrote 3 file(s) (1.5") {
		t.Errorf("progress output = %q, want message with elapsed time", out)
	}
}

func TestLoggerContext(t *testing.T) {
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("loggerFromContext without a logger should return log.Default()")
	}
	l := newLogger(io.Discard, LogInfo)
	if loggerFromContext(withLogger(context.Background(), l)) != l {
		t.Error("loggerFromContext should return the attached logger")
	}
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	h := logHooks{logger: newLogger(&buf, LogDebug)}
	ctx := context.Background()

	h.OnDecodeStart(ctx, "dot.png", "image/png", 68)
	h.OnFallback(ctx, "dot.png", stderrors.New("no tracer"))
	h.OnCacheHit(ctx, "vectorize")

	out := buf.String()
	for _, want := range []string{"decode start", "fallback", "no tracer", "cache hit", "vectorize"} {
		if !strings.Contains(out, want) {
			t.Errorf("hook output missing %q:\n%s", want, out)
		}
	}
}

func TestVerboseConvertLogsStages(t *testing.T) {
	t.Cleanup(observability.Reset)
	dir := t.TempDir()
	in := writePNG(t, dir, "dot.png")

	var logs bytes.Buffer
	c := New(&logs, LogDebug)
	root := c.RootCommand()
	root.SetErr(io.Discard)
	root.SetArgs([]string{
		"--config", filepath.Join(dir, "missing.toml"),
		"convert", in, "--tracer", "none", "-o", filepath.Join(dir, "out"), "-q",
	})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("convert: %v", err)
	}

	out := logs.String()
	for _, want := range []string{"decode start", "decode done", "fallback"} {
		if !strings.Contains(out, want) {
			t.Errorf("debug log missing %q:\n%s", want, out)
		}
	}
}
