package kiseki

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// maxBufferCapacity is the hard upper limit on buffered payloads to prevent
// OOM. When this limit is reached, report applies backpressure by returning
// an error.
const maxBufferCapacity = 10_000

// Buffer accumulates finished trace and span payloads and flushes them to
// the exporter when either the batch size or the flush interval is reached.
// Explicit Flush surfaces the exporter's error to the caller; size- and
// timer-triggered flushes only log it.
type Buffer struct {
	exporter      Exporter
	logger        *slog.Logger
	maxSize       int
	flushInterval time.Duration

	mu     sync.Mutex
	traces []SerializedTrace
	spans  []SerializedSpan
	closed bool

	droppedPayloads atomic.Int64 // total payloads dropped due to capacity after flush failure

	started    atomic.Bool
	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
}

// NewBuffer creates a buffer that delivers batches through exporter.
func NewBuffer(exporter Exporter, logger *slog.Logger, maxSize int, flushInterval time.Duration) *Buffer {
	return &Buffer{
		exporter:      exporter,
		logger:        logger,
		maxSize:       maxSize,
		flushInterval: flushInterval,
		flushCh:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start begins the background flush loop. Call Shutdown to stop. A second
// call is a no-op.
func (b *Buffer) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		b.logger.Warn("kiseki: buffer already started")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	b.cancelLoop = cancel
	go b.flushLoop(loopCtx)
}

func (b *Buffer) reportSpan(s SerializedSpan) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.admitLocked(1); err != nil {
		return err
	}
	b.spans = append(b.spans, s)
	b.maybeTriggerLocked()
	return nil
}

func (b *Buffer) reportTrace(t SerializedTrace) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.admitLocked(1); err != nil {
		return err
	}
	b.traces = append(b.traces, t)
	b.maybeTriggerLocked()
	return nil
}

func (b *Buffer) admitLocked(n int) error {
	if b.closed {
		return fmt.Errorf("kiseki: buffer is shut down")
	}
	if b.lenLocked()+n > maxBufferCapacity {
		return fmt.Errorf("kiseki: buffer at capacity (%d payloads)", b.lenLocked())
	}
	return nil
}

func (b *Buffer) maybeTriggerLocked() {
	if b.lenLocked() >= b.maxSize {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
}

func (b *Buffer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(b.done)
			return
		case <-ticker.C:
			b.flushLogged(ctx)
			ticker.Reset(b.flushInterval)
		case <-b.flushCh:
			b.flushLogged(ctx)
			ticker.Reset(b.flushInterval)
		}
	}
}

// flushLogged is the fire-and-forget path for size/timer flushes.
func (b *Buffer) flushLogged(ctx context.Context) {
	if err := b.Flush(ctx); err != nil {
		b.logger.Error("kiseki: flush failed", "error", err)
	}
}

// Flush sends everything currently buffered, regardless of size or timer
// state. On failure the batch is restored to the buffer (up to the capacity
// limit) and the error is returned; the caller decides whether to retry.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if b.lenLocked() == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := &Batch{Traces: b.traces, Spans: b.spans}
	b.traces = nil
	b.spans = nil
	b.mu.Unlock()

	start := time.Now()
	err := b.exporter.Export(ctx, batch)
	duration := time.Since(start)

	if err != nil {
		b.mu.Lock()
		if b.lenLocked()+batch.Len() <= maxBufferCapacity {
			b.traces = append(batch.Traces, b.traces...)
			b.spans = append(batch.Spans, b.spans...)
		} else {
			b.droppedPayloads.Add(int64(batch.Len()))
			b.logger.Error("kiseki: dropping payloads, buffer at capacity after flush failure",
				"dropped", batch.Len())
		}
		b.mu.Unlock()
		return fmt.Errorf("kiseki: flush batch of %d: %w", batch.Len(), err)
	}

	b.logger.Info("kiseki: batch flushed",
		"batch_size", batch.Len(),
		"flush_duration_ms", duration.Milliseconds(),
	)
	return nil
}

// Shutdown disables further buffering, stops the flush loop, and performs a
// final flush. Safe to call multiple times: repeat calls return nil without
// touching the network. The final flush error is returned, but the buffer is
// terminal either way.
func (b *Buffer) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.cancelLoop != nil {
		b.cancelLoop()
		select {
		case <-b.done:
		case <-ctx.Done():
			b.logger.Warn("kiseki: shutdown timed out waiting for flush loop")
		}
	}

	return b.Flush(ctx)
}

// Len returns the current number of buffered payloads.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lenLocked()
}

func (b *Buffer) lenLocked() int {
	return len(b.traces) + len(b.spans)
}

// DroppedPayloads returns the total number of payloads dropped due to buffer
// capacity exhaustion after a flush failure. A non-zero value indicates data
// loss.
func (b *Buffer) DroppedPayloads() int64 {
	return b.droppedPayloads.Load()
}
