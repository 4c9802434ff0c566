// Package kiseki is a client-side tracing SDK for AI agents.
//
// Applications create traces and spans around units of work, attach
// attributes and events, and the SDK batches finished payloads and ships
// them to a kiseki collector:
//
//	client, err := kiseki.New(kiseki.ConfigFromEnv())
//	if err != nil { ... }
//	defer client.Shutdown(ctx)
//
//	ctx, tr := client.CreateTrace(ctx, "handle-request")
//	ctx, sp := client.StartSpan(ctx, "call-model", kiseki.WithSpanKind(kiseki.SpanKindClient))
//	sp.SetAttribute("model", "gpt-4o")
//	sp.Finish()
//	tr.Finish()
//
// Tracing is invisible to the host application on both the happy and the
// unhappy path: the only calls that surface transport failure are Flush and
// Shutdown, whose purpose is to let the caller observe delivery.
package kiseki

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
)

// Client composes the sampler, the context propagation helpers, and the
// batching transport. Construct with New; all methods are safe for
// concurrent use.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	sampler  Sampler
	exporter Exporter
	buf      *Buffer
	disabled bool
}

// New validates cfg, wires the exporter and batch buffer, and starts the
// background flush loop. Configuration errors are fatal here — nothing else
// in the SDK returns them.
func New(cfg Config, opts ...Option) (*Client, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg = cfg.withDefaults()

	if cfg.Disabled {
		return &Client{cfg: cfg, logger: logger, disabled: true}, nil
	}

	if o.exporter == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.Timeout}
		}
		o.exporter = NewHTTPExporter(cfg.BaseURL, cfg.AgentID, cfg.APIKey, httpClient)
	} else if err := cfg.validateLimits(); err != nil {
		return nil, err
	}

	sampler := o.sampler
	if sampler == nil {
		sampler = NewRuleSampler(cfg.SampleRate, cfg.SamplingRules)
	}

	buf := NewBuffer(o.exporter, logger, cfg.BatchSize, cfg.FlushInterval)
	buf.Start(context.Background())

	return &Client{
		cfg:      cfg,
		logger:   logger,
		sampler:  sampler,
		exporter: o.exporter,
		buf:      buf,
	}, nil
}

// TraceOption configures a trace at creation time.
type TraceOption func(*traceOptions)

type traceOptions struct {
	attributes map[string]any
}

// WithTraceAttributes sets initial attributes on the trace.
func WithTraceAttributes(attrs map[string]any) TraceOption {
	return func(o *traceOptions) {
		if o.attributes == nil {
			o.attributes = make(map[string]any)
		}
		maps.Copy(o.attributes, attrs)
	}
}

// CreateTrace starts a new trace and returns a context carrying it as
// active. The sampler decides once, here: an unsampled trace is the no-op
// variant, and everything created under it stays no-op.
func (c *Client) CreateTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, Trace) {
	var o traceOptions
	for _, fn := range opts {
		fn(&o)
	}

	traceID := NewTraceID()
	if c.disabled || !c.sampler.ShouldSample(traceID, name) {
		nt := noopTrace{}
		return ContextWithTrace(ctx, nt), nt
	}

	t := newTrace(traceID, name, o.attributes, c.buf, c.logger)
	return ContextWithTrace(ctx, t), t
}

// StartSpan creates a span under the context's active trace. Without an
// active trace it creates a standalone span with a fresh trace id, subject
// to its own sampling decision.
func (c *Client) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	if t := ActiveTrace(ctx); t != nil {
		return t.StartSpan(ctx, name, opts...)
	}

	traceID := NewTraceID()
	if c.disabled || !c.sampler.ShouldSample(traceID, name) {
		ns := noopSpan{}
		return ContextWithSpan(ctx, ns), ns
	}

	var o spanOptions
	for _, fn := range opts {
		fn(&o)
	}
	s := newSpan(traceID, o.parentSpanID, name, o.kind, o.startTime, o.attributes, c.buf, c.logger)
	return ContextWithSpan(ctx, s), s
}

// RunInSpan starts a span around fn and finishes it on every exit path. A
// non-nil error from fn is recorded on the span and returned unchanged.
func (c *Client) RunInSpan(ctx context.Context, name string, fn func(ctx context.Context, sp Span) error) error {
	ctx, sp := c.StartSpan(ctx, name)
	defer sp.Finish()

	if err := fn(ctx, sp); err != nil {
		sp.RecordError(err)
		return err
	}
	sp.SetStatus(SpanStatusOK, "")
	return nil
}

// Flush forces delivery of everything currently buffered. This is the one
// place transport failure is surfaced to the caller.
func (c *Client) Flush(ctx context.Context) error {
	if c.disabled {
		return nil
	}
	return c.buf.Flush(ctx)
}

// Shutdown stops intake, drains the buffer with a final flush, and leaves
// the client in a terminal state. Idempotent; a repeat call does nothing and
// returns nil.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.disabled {
		return nil
	}
	return c.buf.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Process-wide client
// ---------------------------------------------------------------------------

var (
	globalMu     sync.Mutex
	globalClient *Client
)

// Initialize constructs the process-wide client returned by Get. It fails if
// one is already set; call ResetForTesting between initializations. Prefer
// passing a *Client explicitly — the global exists for instrumentation that
// has no way to thread one through.
func Initialize(cfg Config, opts ...Option) (*Client, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalClient != nil {
		return nil, fmt.Errorf("kiseki: process-wide client already initialized, call ResetForTesting first")
	}
	client, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	globalClient = client
	return client, nil
}

// Get returns the process-wide client. Before Initialize it returns a
// disabled client, so call sites never need a nil check.
func Get() *Client {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalClient == nil {
		return &Client{logger: slog.Default(), disabled: true}
	}
	return globalClient
}

// ResetForTesting shuts down and clears the process-wide client.
func ResetForTesting() {
	globalMu.Lock()
	client := globalClient
	globalClient = nil
	globalMu.Unlock()

	if client != nil {
		_ = client.Shutdown(context.Background())
	}
}
