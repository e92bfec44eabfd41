package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/tracekit/pkg/observability"
)

// logHooks reports pipeline and cache events at debug level.
type logHooks struct {
	logger *log.Logger
}

// registerLogHooks routes observability events to logger.
func registerLogHooks(logger *log.Logger) {
	h := logHooks{logger: logger}
	observability.SetPipelineHooks(h)
	observability.SetCacheHooks(h)
}

func (h logHooks) OnDecodeStart(_ context.Context, name, mediaType string, size int64) {
	h.logger.Debug("decode start", "name", name, "type", mediaType, "size", size)
}

func (h logHooks) OnDecodeComplete(_ context.Context, name string, width, height int, d time.Duration, err error) {
	h.logger.Debug("decode done", "name", name, "width", width, "height", height, "duration", d, "err", err)
}

func (h logHooks) OnVectorizeStart(_ context.Context, tracer string) {
	h.logger.Debug("vectorize start", "tracer", tracer)
}

func (h logHooks) OnVectorizeComplete(_ context.Context, tracer, strategy string, d time.Duration, err error) {
	h.logger.Debug("vectorize done", "tracer", tracer, "strategy", strategy, "duration", d, "err", err)
}

func (h logHooks) OnFallback(_ context.Context, name string, reason error) {
	h.logger.Debug("fallback", "name", name, "reason", reason)
}

func (h logHooks) OnMetricDegraded(_ context.Context, metric string, err error) {
	h.logger.Debug("metric degraded", "metric", metric, "err", err)
}

func (h logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "size", size)
}
