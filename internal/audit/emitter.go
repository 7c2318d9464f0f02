// Package audit writes activity log records after the originating
// transaction has committed. Emission is best effort: failures are logged
// and counted but never reported to the caller.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BerniPi/BGBB-IKT/internal/logging"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// Record describes one auditable action.
type Record struct {
	Actor      string
	Action     persistence.ActionType
	EntityType string
	EntityID   string
	Details    map[string]any
	At         time.Time
}

// Sink persists audit entries.
type Sink interface {
	AppendActivity(ctx context.Context, entry persistence.ActivityEntry) error
}

// Retrier re-runs writes that failed for transient reasons.
type Retrier interface {
	WithRetry(ctx context.Context, fn func() error) error
}

// Emitter queues records and writes them from a single background worker.
type Emitter struct {
	sink         Sink
	retrier      Retrier
	logger       *slog.Logger
	now          func() time.Time
	writeTimeout time.Duration

	mu      sync.RWMutex
	queue   chan Record
	closed  bool
	started bool
	done    chan struct{}
}

// Option customises an Emitter.
type Option func(*Emitter)

// WithQueueSize bounds the number of records waiting to be written.
func WithQueueSize(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.queue = make(chan Record, n)
		}
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRetrier wraps every sink write.
func WithRetrier(r Retrier) Option {
	return func(e *Emitter) { e.retrier = r }
}

// WithClock overrides the timestamp source for records without one.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithWriteTimeout bounds a single sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.writeTimeout = d
		}
	}
}

// NewEmitter constructs an emitter writing to sink. Call Start to begin
// writing and Close to flush on shutdown.
func NewEmitter(sink Sink, opts ...Option) *Emitter {
	e := &Emitter{
		sink:         sink,
		logger:       slog.Default(),
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan Record, defaultQueueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "audit")
	return e
}

// Start launches the background writer. It returns immediately.
func (e *Emitter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.closed {
		return
	}
	e.started = true
	go e.run()
}

// Record enqueues rec without blocking. Records are dropped when the queue
// is full or the emitter has been closed.
func (e *Emitter) Record(ctx context.Context, rec Record) {
	if e == nil {
		return
	}
	if rec.At.IsZero() {
		rec.At = e.now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(ctx, rec, "emitter closed")
		return
	}
	select {
	case e.queue <- rec:
		queueDepth.Inc()
	default:
		e.drop(ctx, rec, "queue full")
	}
}

// Close stops accepting records and waits for queued ones to be written or
// for ctx to expire.
func (e *Emitter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	started := e.started
	e.mu.Unlock()

	if !started {
		e.run()
		return nil
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit: %d records not written: %w", len(e.queue), ctx.Err())
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for rec := range e.queue {
		queueDepth.Dec()
		e.write(rec)
	}
}

func (e *Emitter) write(rec Record) {
	logger := e.logger.With(
		"action_type", string(rec.Action),
		"entity_type", rec.EntityType,
		"entity_id", rec.EntityID,
		"actor", rec.Actor,
	)

	entry, err := toEntry(rec)
	if err != nil {
		recordOutcome("failed")
		logger.Error("failed to encode audit record", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
	defer cancel()

	if e.sink == nil {
		recordOutcome("dropped")
		return
	}
	write := func() error { return e.sink.AppendActivity(ctx, entry) }
	if e.retrier != nil {
		err = e.retrier.WithRetry(ctx, write)
	} else {
		err = write()
	}
	if err != nil {
		recordOutcome("failed")
		logger.ErrorContext(ctx, "failed to write audit record", "error", err)
		return
	}
	recordOutcome("written")
}

func (e *Emitter) drop(ctx context.Context, rec Record, reason string) {
	recordOutcome("dropped")
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = e.logger
	}
	logger.WarnContext(ctx, "audit record dropped",
		"reason", reason,
		"action_type", string(rec.Action),
		"entity_id", rec.EntityID,
	)
}

func toEntry(rec Record) (persistence.ActivityEntry, error) {
	entry := persistence.ActivityEntry{
		Timestamp:  rec.At,
		Username:   rec.Actor,
		ActionType: rec.Action,
		EntityType: rec.EntityType,
	}
	if rec.EntityID != "" {
		id := rec.EntityID
		entry.EntityID = &id
	}
	if len(rec.Details) > 0 {
		raw, err := json.Marshal(rec.Details)
		if err != nil {
			return persistence.ActivityEntry{}, err
		}
		entry.Details = raw
	}
	return entry, nil
}
