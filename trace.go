package kiseki

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Trace is a logical end-to-end operation: an ordered collection of spans
// sharing one trace id. A trace owns span creation; finishing a trace does
// not finish its still-running spans — they keep their own lifecycle and are
// only shipped individually once finished.
type Trace interface {
	TraceID() string
	Name() string

	// StartSpan creates a child span bound to this trace. The parent span id
	// comes from WithParentSpanID when given, otherwise from the context's
	// active span when that span belongs to this trace. The returned context
	// carries the new span as active.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	SetAttribute(key string, value any)
	SetAttributes(attrs map[string]any)
	AddEvent(name string, attrs map[string]any)
	SetStatus(status SpanStatus, message string)
	Status() SpanStatus

	// Finish stamps the trace's end time and reports the trace payload for
	// buffering. Idempotent; transport errors are logged, never returned.
	Finish(opts ...FinishOption)
	IsFinished() bool

	// Serialize renders the trace and every owned span, in creation order.
	Serialize() SerializedTrace
}

// SpanOption configures a span at creation time.
type SpanOption func(*spanOptions)

type spanOptions struct {
	parentSpanID string
	kind         SpanKind
	startTime    time.Time
	attributes   map[string]any
}

// WithParentSpanID sets an explicit parent span id, bypassing the context's
// active span.
func WithParentSpanID(id string) SpanOption {
	return func(o *spanOptions) { o.parentSpanID = id }
}

// WithSpanKind sets the span kind. Defaults to internal.
func WithSpanKind(kind SpanKind) SpanOption {
	return func(o *spanOptions) { o.kind = kind }
}

// WithStartTime overrides the span's start timestamp.
func WithStartTime(t time.Time) SpanOption {
	return func(o *spanOptions) { o.startTime = t }
}

// WithSpanAttributes sets initial attributes on the span.
func WithSpanAttributes(attrs map[string]any) SpanOption {
	return func(o *spanOptions) { o.attributes = attrs }
}

type trace struct {
	traceID string
	rep     reporter
	logger  *slog.Logger

	mu            sync.Mutex
	name          string
	startTime     time.Time
	endTime       time.Time
	finished      bool
	status        SpanStatus
	statusMessage string
	attributes    map[string]any
	events        []Event
	spans         []*span // creation order
}

func newTrace(traceID, name string, attrs map[string]any, rep reporter, logger *slog.Logger) *trace {
	t := &trace{
		traceID:    traceID,
		rep:        rep,
		logger:     logger,
		name:       name,
		startTime:  time.Now().UTC(),
		status:     SpanStatusUnset,
		attributes: make(map[string]any),
	}
	maps.Copy(t.attributes, attrs)
	return t
}

func (t *trace) TraceID() string { return t.traceID }

func (t *trace) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

func (t *trace) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	var o spanOptions
	for _, fn := range opts {
		fn(&o)
	}

	parentID := o.parentSpanID
	if parentID == "" {
		if active := ActiveSpan(ctx); active != nil && active.TraceID() == t.traceID {
			parentID = active.SpanID()
		}
	}

	s := newSpan(t.traceID, parentID, name, o.kind, o.startTime, o.attributes, t.rep, t.logger)

	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()

	ctx = contextWithFrame(ctx, t, s)
	return ctx, s
}

func (t *trace) SetAttribute(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.attributes[key] = value
}

func (t *trace) SetAttributes(attrs map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	maps.Copy(t.attributes, attrs)
}

func (t *trace) AddEvent(name string, attrs map[string]any) {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	t.events = append(t.events, Event{Name: name, Timestamp: now, Attributes: attrs})
}

func (t *trace) SetStatus(status SpanStatus, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.status = status
	t.statusMessage = message
}

func (t *trace) Status() SpanStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Finish does not cascade to open child spans: an unfinished span appears in
// the trace payload without an end time and is only shipped on its own once
// its Finish runs.
func (t *trace) Finish(opts ...FinishOption) {
	var cfg finishConfig
	for _, fn := range opts {
		fn(&cfg)
	}

	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	if cfg.endTime.IsZero() {
		t.endTime = time.Now().UTC()
	} else {
		t.endTime = cfg.endTime.UTC()
	}
	payload := t.serializeLocked()
	t.mu.Unlock()

	if t.rep == nil {
		return
	}
	if err := t.rep.reportTrace(payload); err != nil {
		t.logger.Warn("kiseki: trace report failed",
			"trace_id", t.traceID,
			"error", err,
		)
	}
}

func (t *trace) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

func (t *trace) Serialize() SerializedTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.serializeLocked()
}

func (t *trace) serializeLocked() SerializedTrace {
	out := SerializedTrace{
		TraceID:       t.traceID,
		Name:          t.name,
		Status:        t.status,
		StatusMessage: t.statusMessage,
		StartTime:     t.startTime.Format(time.RFC3339Nano),
		Attributes:    maps.Clone(t.attributes),
		Spans:         make([]SerializedSpan, 0, len(t.spans)),
	}
	if t.finished {
		out.EndTime = t.endTime.Format(time.RFC3339Nano)
	}
	for _, ev := range t.events {
		out.Events = append(out.Events, SerializedEvent{
			Name:       ev.Name,
			Timestamp:  ev.Timestamp.Format(time.RFC3339Nano),
			Attributes: maps.Clone(ev.Attributes),
		})
	}
	for _, s := range t.spans {
		out.Spans = append(out.Spans, s.Serialize())
	}
	return out
}
