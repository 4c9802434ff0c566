package kiseki

import "context"

// The no-op variants back unsampled (or disabled) paths. They satisfy the
// same Trace/Span contracts, so calling code stays sampling-agnostic: every
// mutator does nothing and Finish never reaches the transport. Selected once
// at creation time rather than checking a sampled flag in every mutator.

type noopTrace struct{}

func (noopTrace) TraceID() string { return "" }
func (noopTrace) Name() string    { return "" }

func (nt noopTrace) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	ns := noopSpan{}
	return contextWithFrame(ctx, nt, ns), ns
}

func (noopTrace) SetAttribute(key string, value any)          {}
func (noopTrace) SetAttributes(attrs map[string]any)          {}
func (noopTrace) AddEvent(name string, attrs map[string]any)  {}
func (noopTrace) SetStatus(status SpanStatus, message string) {}
func (noopTrace) Status() SpanStatus                          { return SpanStatusUnset }
func (noopTrace) Finish(opts ...FinishOption)                 {}
func (noopTrace) IsFinished() bool                            { return false }
func (noopTrace) Serialize() SerializedTrace                  { return SerializedTrace{} }

type noopSpan struct{}

func (noopSpan) SpanID() string                              { return "" }
func (noopSpan) TraceID() string                             { return "" }
func (noopSpan) ParentSpanID() string                        { return "" }
func (noopSpan) Name() string                                { return "" }
func (noopSpan) SetAttribute(key string, value any)          {}
func (noopSpan) SetAttributes(attrs map[string]any)          {}
func (noopSpan) AddEvent(name string, attrs map[string]any)  {}
func (noopSpan) SetStatus(status SpanStatus, message string) {}
func (noopSpan) Status() SpanStatus                          { return SpanStatusUnset }
func (noopSpan) RecordError(err error)                       {}
func (noopSpan) Finish(opts ...FinishOption)                 {}
func (noopSpan) IsFinished() bool                            { return false }
func (noopSpan) Serialize() SerializedSpan                   { return SerializedSpan{} }
