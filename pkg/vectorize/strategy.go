package vectorize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// Done receives the outcome of an asynchronous trace.
type Done func(svg string, err error)

// OptionsTracer traces with options and reports through a callback.
// A returned error means the call was not accepted.
type OptionsTracer interface {
	TraceWithOptions(img image.Image, opts Options, done Done) error
}

// CallbackTracer traces with its own defaults and reports through a callback.
type CallbackTracer interface {
	Trace(img image.Image, done Done) error
}

// SyncTracer returns markup directly.
type SyncTracer interface {
	TraceSVG(img image.Image) (string, error)
}

// ErrUnsupported means the tracer does not implement a strategy's call shape.
var ErrUnsupported = errors.New("call shape not supported")

// Strategy invokes a tracer through one calling convention.
type Strategy interface {
	Name() string
	Invoke(ctx context.Context, tracer any, img image.Image, opts Options) (string, error)
}

// settledError marks a failure reported by the tracer after it accepted the
// call. Later strategies are not attempted.
type settledError struct{ err error }

func (e *settledError) Error() string { return e.err.Error() }
func (e *settledError) Unwrap() error { return e.err }

// Settled wraps err so the adapter stops trying further strategies.
func Settled(err error) error {
	if err == nil {
		return nil
	}
	return &settledError{err: err}
}

// IsSettled reports whether err was wrapped with Settled.
func IsSettled(err error) bool {
	var s *settledError
	return errors.As(err, &s)
}

// DefaultStrategies returns the built-in strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{OptionsCallback{}, Callback{}, Sync{}}
}

// OptionsCallback calls OptionsTracer.TraceWithOptions.
type OptionsCallback struct{}

func (OptionsCallback) Name() string { return "options-callback" }

func (OptionsCallback) Invoke(ctx context.Context, tracer any, img image.Image, opts Options) (string, error) {
	t, ok := tracer.(OptionsTracer)
	if !ok {
		return "", ErrUnsupported
	}
	return await(ctx, func(done Done) error { return t.TraceWithOptions(img, opts, done) })
}

// Callback calls CallbackTracer.Trace.
type Callback struct{}

func (Callback) Name() string { return "callback" }

func (Callback) Invoke(ctx context.Context, tracer any, img image.Image, _ Options) (string, error) {
	t, ok := tracer.(CallbackTracer)
	if !ok {
		return "", ErrUnsupported
	}
	return await(ctx, func(done Done) error { return t.Trace(img, done) })
}

// Sync calls SyncTracer.TraceSVG.
type Sync struct{}

func (Sync) Name() string { return "sync" }

func (Sync) Invoke(ctx context.Context, tracer any, img image.Image, _ Options) (string, error) {
	t, ok := tracer.(SyncTracer)
	if !ok {
		return "", ErrUnsupported
	}
	svg, err := t.TraceSVG(img)
	if err != nil {
		return "", err
	}
	if svg == "" {
		return "", Settled(fmt.Errorf("tracer returned empty markup"))
	}
	return svg, nil
}

// await starts call and waits for its callback. Only the first callback
// counts. A synchronous error or panic from call is returned unsettled.
func await(ctx context.Context, call func(Done) error) (string, error) {
	type outcome struct {
		svg string
		err error
	}
	ch := make(chan outcome, 1)
	var once sync.Once
	done := func(svg string, err error) {
		once.Do(func() { ch <- outcome{svg, err} })
	}

	if err := call(done); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", Settled(ctx.Err())
	case out := <-ch:
		if out.err != nil {
			return "", Settled(out.err)
		}
		if out.svg == "" {
			return "", Settled(fmt.Errorf("tracer completed with empty markup"))
		}
		return out.svg, nil
	}
}
