package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// asyncEntry pairs a record with the handler it was logged through, so a
// record enqueued via a WithAttrs/WithGroup child keeps that child's
// attributes when the drainer delivers it.
type asyncEntry struct {
	h   slog.Handler
	rec slog.Record
}

// asyncCore is the queue shared by an AsyncHandler and all of its
// WithAttrs/WithGroup children.
type asyncCore struct {
	ch      chan asyncEntry
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// AsyncHandler moves record delivery off the request path. The gateway
// logs on admission rejections, so under a flood of bad credentials
// synchronous logging would serialize the very requests being rejected.
// Info-and-below records are queued and may be dropped when the queue is
// full; error-level records are always delivered synchronously, so a
// rejection storm can drop noise but never the failures themselves.
// Correlation attributes from the request context (request id, tenant id)
// are stamped onto each record before it is deferred, since the context
// itself is gone by the time the drainer runs.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler wraps inner with a bounded queue of the given capacity
// and starts the drainer.
func NewAsyncHandler(inner slog.Handler, capacity int) *AsyncHandler {
	if capacity < 1 {
		capacity = 1
	}
	h := &AsyncHandler{
		inner: inner,
		core:  &asyncCore{ch: make(chan asyncEntry, capacity)},
	}
	h.core.wg.Add(1)
	go h.core.drain()
	return h
}

func (c *asyncCore) drain() {
	defer c.wg.Done()
	for e := range c.ch {
		_ = e.h.Handle(context.Background(), e.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle stamps correlation attributes from ctx onto the record, then
// either delivers it synchronously (error and above) or enqueues it. A
// full queue drops the record and counts it; every thousandth drop is
// reported through the inner handler so the loss is visible.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if attrs := ContextAttrs(ctx); len(attrs) > 0 {
		rec = rec.Clone()
		rec.AddAttrs(attrs...)
	}

	if rec.Level >= slog.LevelError {
		return h.inner.Handle(ctx, rec)
	}

	select {
	case h.core.ch <- asyncEntry{h: h.inner, rec: rec}:
	default:
		if h.core.dropped.Add(1)%1000 == 1 {
			warn := slog.NewRecord(time.Now(), slog.LevelWarn, "log buffer full, dropping records", 0)
			warn.AddAttrs(slog.Int64("dropped_total", h.core.dropped.Load()))
			_ = h.inner.Handle(ctx, warn)
		}
	}
	return nil
}

// WithAttrs returns a handler sharing the same queue wrapping a new inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup returns a handler sharing the same queue wrapping a new inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close stops the queue and waits for the drainer to flush it.
func (h *AsyncHandler) Close() {
	close(h.core.ch)
	h.core.wg.Wait()
}
