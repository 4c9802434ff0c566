package kiseki

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReporter captures everything handed to the transport.
type recordingReporter struct {
	mu     sync.Mutex
	spans  []SerializedSpan
	traces []SerializedTrace
	err    error
}

func (r *recordingReporter) reportSpan(s SerializedSpan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.spans = append(r.spans, s)
	return nil
}

func (r *recordingReporter) reportTrace(t SerializedTrace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.traces = append(r.traces, t)
	return nil
}

func (r *recordingReporter) spanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spans)
}

func (r *recordingReporter) traceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.traces)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestSpan(t *testing.T, rep reporter) *span {
	t.Helper()
	return newSpan(NewTraceID(), "", "test-op", SpanKindInternal, time.Time{}, nil, rep, discardLogger())
}

func TestSpanAttributeLastWriteWins(t *testing.T) {
	s := newTestSpan(t, &recordingReporter{})

	s.SetAttribute("model", "gpt-4o-mini")
	s.SetAttribute("model", "gpt-4o")
	s.SetAttributes(map[string]any{"tokens": 100, "model": "claude"})

	out := s.Serialize()
	assert.Equal(t, "claude", out.Attributes["model"])
	assert.Equal(t, 100, out.Attributes["tokens"])
}

func TestSpanFinishIsIdempotent(t *testing.T) {
	rep := &recordingReporter{}
	s := newTestSpan(t, rep)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Finish(WithEndTime(first))
	s.Finish()
	s.Finish(WithEndTime(first.Add(time.Hour)))

	require.Equal(t, 1, rep.spanCount(), "span must reach the transport exactly once")
	assert.Equal(t, first.Format(time.RFC3339Nano), s.Serialize().EndTime)
}

func TestSpanMutatorsNoopAfterFinish(t *testing.T) {
	s := newTestSpan(t, &recordingReporter{})

	s.SetAttribute("before", true)
	s.SetStatus(SpanStatusOK, "done")
	s.Finish()

	s.SetAttribute("after", true)
	s.SetAttributes(map[string]any{"after2": true})
	s.AddEvent("late", nil)
	s.SetStatus(SpanStatusError, "too late")
	s.RecordError(errors.New("too late"))

	out := s.Serialize()
	assert.Equal(t, true, out.Attributes["before"])
	assert.NotContains(t, out.Attributes, "after")
	assert.NotContains(t, out.Attributes, "after2")
	assert.Empty(t, out.Events)
	assert.Equal(t, SpanStatusOK, out.Status)
	assert.Equal(t, "done", out.StatusMessage)
}

func TestSpanStatusLastWriteBeforeFinishWins(t *testing.T) {
	s := newTestSpan(t, &recordingReporter{})

	s.SetStatus(SpanStatusError, "first")
	s.SetStatus(SpanStatusOK, "second")
	s.Finish()

	assert.Equal(t, SpanStatusOK, s.Status())
}

func TestSpanAddEventCapturesCallTime(t *testing.T) {
	s := newTestSpan(t, &recordingReporter{})

	before := time.Now().UTC()
	s.AddEvent("tool-call", map[string]any{"tool": "search"})
	after := time.Now().UTC()

	out := s.Serialize()
	require.Len(t, out.Events, 1)
	ts, err := time.Parse(time.RFC3339Nano, out.Events[0].Timestamp)
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
	assert.Equal(t, "search", out.Events[0].Attributes["tool"])
}

func TestSpanAddEventDefaultsAttributes(t *testing.T) {
	s := newTestSpan(t, &recordingReporter{})
	s.AddEvent("checkpoint", nil)

	out := s.Serialize()
	require.Len(t, out.Events, 1)
	assert.NotNil(t, out.Events[0].Attributes)
}

func TestSpanRecordError(t *testing.T) {
	s := newTestSpan(t, &recordingReporter{})

	s.RecordError(errors.New("model timeout"))

	out := s.Serialize()
	assert.Equal(t, SpanStatusError, out.Status)
	assert.Equal(t, "model timeout", out.StatusMessage)
	assert.Equal(t, "model timeout", out.Attributes["error.message"])
	assert.Equal(t, "*errors.errorString", out.Attributes["error.type"])

	s.RecordError(nil) // must not panic or change anything
	assert.Equal(t, SpanStatusError, s.Status())
}

func TestSpanSerializeBeforeFinishOmitsEndTime(t *testing.T) {
	s := newTestSpan(t, &recordingReporter{})

	out := s.Serialize()
	assert.Empty(t, out.EndTime)
	_, err := time.Parse(time.RFC3339Nano, out.StartTime)
	assert.NoError(t, err)
	assert.Equal(t, SpanStatusUnset, out.Status)
}

func TestSpanFinishSwallowsReporterError(t *testing.T) {
	rep := &recordingReporter{err: errors.New("transport down")}
	s := newTestSpan(t, rep)

	// Must not panic or propagate; the span still finishes.
	s.Finish()
	assert.True(t, s.IsFinished())
}
