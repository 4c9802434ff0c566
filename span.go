package kiseki

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Span is one timed unit of work within a trace. All mutators become no-ops
// once the span is finished; Finish is idempotent and hands the span to the
// client's transport exactly once. Implementations are safe for concurrent
// use, but a span is normally owned by a single logical call chain.
type Span interface {
	SpanID() string
	TraceID() string
	ParentSpanID() string
	Name() string

	// SetAttribute merges a single attribute; the last write for a key wins.
	SetAttribute(key string, value any)
	// SetAttributes merges all entries of attrs into the attribute map.
	SetAttributes(attrs map[string]any)
	// AddEvent appends an event stamped with the time of the call.
	AddEvent(name string, attrs map[string]any)
	// SetStatus sets the span status and optional message. The last call
	// before Finish wins.
	SetStatus(status SpanStatus, message string)
	Status() SpanStatus
	// RecordError sets status to error and attaches the error's type and
	// message as attributes. Safe to call with nil.
	RecordError(err error)

	// Finish stamps the end time (defaulting to now), marks the span
	// finished, and reports it for buffering. Transport errors are logged,
	// never returned — a broken collector must not break the caller.
	Finish(opts ...FinishOption)
	IsFinished() bool

	// Serialize renders the span's current state in wire form.
	Serialize() SerializedSpan
}

// FinishOption adjusts how a span or trace is finished.
type FinishOption func(*finishConfig)

type finishConfig struct {
	endTime time.Time
}

// WithEndTime overrides the end timestamp recorded by Finish.
func WithEndTime(t time.Time) FinishOption {
	return func(c *finishConfig) { c.endTime = t }
}

// Event is a timestamped annotation on a span.
type Event struct {
	Name       string
	Timestamp  time.Time
	Attributes map[string]any
}

// reporter is the finish-time hand-off point between the data model and the
// batching transport. The Buffer implements it.
type reporter interface {
	reportSpan(s SerializedSpan) error
	reportTrace(t SerializedTrace) error
}

type span struct {
	spanID       string
	traceID      string
	parentSpanID string
	rep          reporter
	logger       *slog.Logger

	mu            sync.Mutex
	name          string
	kind          SpanKind
	startTime     time.Time
	endTime       time.Time
	finished      bool
	status        SpanStatus
	statusMessage string
	attributes    map[string]any
	events        []Event
}

func newSpan(traceID, parentSpanID, name string, kind SpanKind, startTime time.Time, attrs map[string]any, rep reporter, logger *slog.Logger) *span {
	if kind == "" {
		kind = SpanKindInternal
	}
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}
	s := &span{
		spanID:       NewSpanID(),
		traceID:      traceID,
		parentSpanID: parentSpanID,
		rep:          rep,
		logger:       logger,
		name:         name,
		kind:         kind,
		startTime:    startTime,
		status:       SpanStatusUnset,
		attributes:   make(map[string]any),
	}
	maps.Copy(s.attributes, attrs)
	return s
}

func (s *span) SpanID() string       { return s.spanID }
func (s *span) TraceID() string      { return s.traceID }
func (s *span) ParentSpanID() string { return s.parentSpanID }

func (s *span) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *span) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.attributes[key] = value
}

func (s *span) SetAttributes(attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	maps.Copy(s.attributes, attrs)
}

func (s *span) AddEvent(name string, attrs map[string]any) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	s.events = append(s.events, Event{Name: name, Timestamp: now, Attributes: attrs})
}

func (s *span) SetStatus(status SpanStatus, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.status = status
	s.statusMessage = message
}

func (s *span) Status() SpanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *span) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.status = SpanStatusError
	s.statusMessage = err.Error()
	s.attributes["error.type"] = fmt.Sprintf("%T", err)
	s.attributes["error.message"] = err.Error()
	s.mu.Unlock()
}

func (s *span) Finish(opts ...FinishOption) {
	var cfg finishConfig
	for _, fn := range opts {
		fn(&cfg)
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	if cfg.endTime.IsZero() {
		s.endTime = time.Now().UTC()
	} else {
		s.endTime = cfg.endTime.UTC()
	}
	payload := s.serializeLocked()
	s.mu.Unlock()

	if s.rep == nil {
		return
	}
	if err := s.rep.reportSpan(payload); err != nil {
		s.logger.Warn("kiseki: span report failed",
			"span_id", s.spanID,
			"trace_id", s.traceID,
			"error", err,
		)
	}
}

func (s *span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *span) Serialize() SerializedSpan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serializeLocked()
}

func (s *span) serializeLocked() SerializedSpan {
	out := SerializedSpan{
		SpanID:        s.spanID,
		TraceID:       s.traceID,
		ParentSpanID:  s.parentSpanID,
		Name:          s.name,
		Kind:          s.kind,
		Status:        s.status,
		StatusMessage: s.statusMessage,
		StartTime:     s.startTime.Format(time.RFC3339Nano),
		Attributes:    maps.Clone(s.attributes),
		Events:        make([]SerializedEvent, 0, len(s.events)),
	}
	if s.finished {
		out.EndTime = s.endTime.Format(time.RFC3339Nano)
	}
	for _, ev := range s.events {
		out.Events = append(out.Events, SerializedEvent{
			Name:       ev.Name,
			Timestamp:  ev.Timestamp.Format(time.RFC3339Nano),
			Attributes: maps.Clone(ev.Attributes),
		})
	}
	return out
}
