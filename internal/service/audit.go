package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/audit"
)

// auditWriteTimeout bounds each backend write so a slow store cannot back
// up the worker pool indefinitely.
const auditWriteTimeout = 5 * time.Second

// AuditPublisher is the optional transport for audit records (NATS).
type AuditPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// AuditStore persists audit records.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *audit.Record) error
}

// AuditSink records every completed or rejected operation without ever
// blocking the response path. Records flow through a bounded channel to a
// worker pool; when the channel is full the record is dropped and counted.
// Backend failures are logged and swallowed: audit is observability, not a
// correctness-critical ledger.
type AuditSink struct {
	store   AuditStore
	pub     AuditPublisher // nil when NATS is not configured
	subject string
	log     *slog.Logger

	ch      chan *audit.Record
	wg      sync.WaitGroup
	dropped atomic.Int64

	// mu orders Record against Close: Close may only close the channel
	// once no Record is between its closed check and its send.
	mu     sync.RWMutex
	closed bool
}

// NewAuditSink creates and starts an AuditSink. pub may be nil.
func NewAuditSink(store AuditStore, pub AuditPublisher, cfg config.Audit, subject string, log *slog.Logger) *AuditSink {
	bufferSize := cfg.BufferSize
	if bufferSize < 1 {
		bufferSize = 1024
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	s := &AuditSink{
		store:   store,
		pub:     pub,
		subject: subject,
		log:     log,
		ch:      make(chan *audit.Record, bufferSize),
	}
	for range workers {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Record enqueues an audit record. It never blocks and never returns an
// error to the caller; a full buffer drops the record and counts it.
func (s *AuditSink) Record(rec *audit.Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- rec:
	default:
		if s.dropped.Add(1)%1000 == 1 {
			s.log.Warn("audit buffer full, dropping records", "dropped_total", s.dropped.Load())
		}
	}
}

// DroppedCount returns the number of records dropped so far.
func (s *AuditSink) DroppedCount() int64 {
	return s.dropped.Load()
}

// Close stops accepting records and drains the buffer.
func (s *AuditSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.ch)
	s.wg.Wait()
}

func (s *AuditSink) worker() {
	defer s.wg.Done()
	for rec := range s.ch {
		s.process(rec)
	}
}

func (s *AuditSink) process(rec *audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := s.store.InsertAuditRecord(ctx, rec); err != nil {
		s.log.Error("audit store write failed", "record_id", rec.ID, "error", err)
	}

	if s.pub == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Error("audit record marshal failed", "record_id", rec.ID, "error", err)
		return
	}
	if err := s.pub.Publish(ctx, s.subject, data); err != nil {
		s.log.Error("audit publish failed", "record_id", rec.ID, "error", err)
	}
}
