// Package pkg provides the core libraries for tracekit image conversion.
//
// # Overview
//
// tracekit turns a raster image into SVG. When the tracer is missing or
// fails, the raster is embedded in an SVG envelope instead, so a conversion
// always produces a file. The pkg directory is organized into three areas:
//
//  1. Stages - input capture, decoding, tracing, embedding, metrics
//  2. Presentation - preview states and download variants
//  3. Infrastructure - caching, artifacts, sessions, configuration
//
// # Architecture
//
// The data flow through one conversion:
//
//	File selection or drop
//	         ↓
//	    [source] package (validate, first file only)
//	         ↓
//	    [decode] package (data URL, optional TIFF conversion, raster load)
//	         ↓
//	    [vectorize] package (adapter over the tracer's call shapes)
//	         ↓  on failure: [svgdoc] embeds the raster
//	    [metrics] package (sizes, ratio, colours, paths)
//	         ↓
//	    [present] package (preview surface, download variants)
//
// [pipeline] runs these stages with caching; [session] holds the current
// result and its single live download artifact.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(cache.NewMemoryCache(), nil, logger,
//	    pipeline.WithTracer(potrace.New()))
//	f, _ := source.FromPath("logo.png")
//	conv, err := runner.Convert(ctx, f, pipeline.Options{})
//	if err != nil {
//	    return err
//	}
//	for _, d := range present.Downloads(conv.Base, conv.SVG) {
//	    os.WriteFile(d.Filename, d.Data, 0o644)
//	}
//
// # Main Packages
//
// [vectorize/potrace] - Built-in colour tracer: median-cut palette, one
// potrace pass per colour layer, composed into a single SVG.
//
// [artifact] - Revocable download payloads on any cache, memory or redis.
//
// [config] - TOML configuration file.
//
// [errors] - Structured error codes shared by CLI and HTTP server.
//
// [observability] - Hooks for decode, trace, fallback and cache events.
//
// # Testing
//
// Run tests:
//
//	go test ./...                                     # All tests
//	TRACEKIT_TEST_REDIS=localhost:6379 go test ./pkg/cache/  # With redis
package pkg
