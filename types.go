package kiseki

// SpanKind classifies the relationship between a span and the work it times.
type SpanKind string

const (
	SpanKindInternal SpanKind = "internal"
	SpanKindClient   SpanKind = "client"
	SpanKindServer   SpanKind = "server"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

// SpanStatus is the outcome of a span or trace.
type SpanStatus string

const (
	SpanStatusUnset SpanStatus = "unset"
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// SerializedEvent is the wire form of a span event.
type SerializedEvent struct {
	Name       string         `json:"name"`
	Timestamp  string         `json:"timestamp"`
	Attributes map[string]any `json:"attributes"`
}

// SerializedSpan is the transport-ready form of a finished (or snapshotted)
// span. Timestamps are RFC 3339 in UTC; EndTime is empty while the span is
// still running.
type SerializedSpan struct {
	SpanID        string            `json:"span_id"`
	TraceID       string            `json:"trace_id"`
	ParentSpanID  string            `json:"parent_span_id,omitempty"`
	Name          string            `json:"name"`
	Kind          SpanKind          `json:"kind"`
	Status        SpanStatus        `json:"status"`
	StatusMessage string            `json:"status_message,omitempty"`
	StartTime     string            `json:"start_time"`
	EndTime       string            `json:"end_time,omitempty"`
	Attributes    map[string]any    `json:"attributes"`
	Events        []SerializedEvent `json:"events"`
}

// SerializedTrace is the transport-ready form of a trace: its own metadata
// plus the serialized state of every span created under it, in creation order.
type SerializedTrace struct {
	TraceID       string            `json:"trace_id"`
	Name          string            `json:"name"`
	Status        SpanStatus        `json:"status"`
	StatusMessage string            `json:"status_message,omitempty"`
	StartTime     string            `json:"start_time"`
	EndTime       string            `json:"end_time,omitempty"`
	Attributes    map[string]any    `json:"attributes"`
	Events        []SerializedEvent `json:"events,omitempty"`
	Spans         []SerializedSpan  `json:"spans"`
}

// Batch is the payload posted to the collector: trace payloads enqueued by
// Trace.Finish and span payloads enqueued by Span.Finish since the last flush.
type Batch struct {
	Traces []SerializedTrace `json:"traces"`
	Spans  []SerializedSpan  `json:"spans"`
}

// Len returns the total number of payloads in the batch.
func (b Batch) Len() int {
	return len(b.Traces) + len(b.Spans)
}
