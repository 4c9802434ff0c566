package kiseki

import (
	"context"
	"sync"
)

// Context propagation for the active trace and span.
//
// The active (trace, span) pair travels as a frame inside context.Context:
// entering a scoped operation derives a child context with a fresh frame, and
// the parent context is never mutated, so restoration after the operation
// returns, fails, or panics is automatic. Independent goroutines each hold
// their own context value and therefore never observe each other's frame
// unless it is explicitly propagated.

type contextKey string

const keyFrame contextKey = "frame"

// frame is the mutable (trace, span) pair for one logical call chain.
// Guarded by its own mutex so SetActiveSpan is safe even when a context is
// shared across goroutines.
type frame struct {
	mu    sync.Mutex
	trace Trace
	span  Span
}

func frameFrom(ctx context.Context) *frame {
	f, _ := ctx.Value(keyFrame).(*frame)
	return f
}

func contextWithFrame(ctx context.Context, t Trace, s Span) context.Context {
	return context.WithValue(ctx, keyFrame, &frame{trace: t, span: s})
}

// ContextWithTrace returns a context carrying t as the active trace with no
// active span.
func ContextWithTrace(ctx context.Context, t Trace) context.Context {
	return contextWithFrame(ctx, t, nil)
}

// ContextWithSpan returns a context carrying s as the active span. The active
// trace is inherited from ctx.
func ContextWithSpan(ctx context.Context, s Span) context.Context {
	return contextWithFrame(ctx, ActiveTrace(ctx), s)
}

// ActiveTrace returns the context's active trace, or nil when none is set.
func ActiveTrace(ctx context.Context) Trace {
	f := frameFrom(ctx)
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trace
}

// ActiveSpan returns the context's active span, or nil when none is set.
func ActiveSpan(ctx context.Context) Span {
	f := frameFrom(ctx)
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.span
}

// SetActiveSpan replaces the active span of the context's current frame in
// place. Unlike ContextWithSpan it does not derive a child context: every
// holder of this exact context observes the change. No-op when the context
// carries no frame.
func SetActiveSpan(ctx context.Context, s Span) {
	f := frameFrom(ctx)
	if f == nil {
		return
	}
	f.mu.Lock()
	f.span = s
	f.mu.Unlock()
}

// SetActiveTrace replaces the active trace of the context's current frame in
// place. No-op when the context carries no frame.
func SetActiveTrace(ctx context.Context, t Trace) {
	f := frameFrom(ctx)
	if f == nil {
		return
	}
	f.mu.Lock()
	f.trace = t
	f.mu.Unlock()
}

// WithSpan runs fn with s as the active span. The frame is scoped to fn's
// context: once fn returns (or panics), the caller's context still holds
// whatever was active before.
func WithSpan(ctx context.Context, s Span, fn func(ctx context.Context) error) error {
	return fn(ContextWithSpan(ctx, s))
}
