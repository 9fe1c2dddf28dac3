// Package audit records every authentication stage outcome. Recording never
// fails from the caller's point of view: write errors are logged and counted
// and the login carries on.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"SecureAccess/api/logging"
	"SecureAccess/api/metrics"
	"SecureAccess/api/models"

	"go.uber.org/zap"
)

const (
	StepLocation    = models.AuthStepLocation
	StepDevice      = models.AuthStepDevice
	StepCredentials = models.AuthStepCredentials
)

type Entry struct {
	Principal         string
	DeviceFingerprint string
	Location          json.RawMessage
	Method            string
	Step              string
	Success           bool
	Error             string
	SourceAddress     string
	UserAgent         string
	At                time.Time
}

type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Appender persists a single entry.
type Appender interface {
	Append(ctx context.Context, e Entry) error
}

// AsyncRecorder hands entries to a background writer through a bounded
// queue. When the queue is full the entry is dropped.
type AsyncRecorder struct {
	store  Appender
	logger *zap.Logger
	queue  chan Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsyncRecorder(store Appender, size int, logger *zap.Logger) *AsyncRecorder {
	if size <= 0 {
		size = 256
	}
	r := &AsyncRecorder{
		store:  store,
		logger: logging.OrNop(logger),
		queue:  make(chan Entry, size),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *AsyncRecorder) Record(_ context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(e, "recorder closed")
		return
	}
	select {
	case r.queue <- e:
	default:
		r.drop(e, "queue full")
	}
}

func (r *AsyncRecorder) drop(e Entry, why string) {
	metrics.AuditEntriesDroppedTotal.Inc()
	r.logger.Warn("audit entry dropped",
		zap.String("reason", why),
		zap.String("username", e.Principal),
		zap.String("auth_step", e.Step),
		zap.Bool("success", e.Success),
	)
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for e := range r.queue {
		// Entries already accepted are written even while the server shuts down.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.Append(ctx, e)
		cancel()
		if err != nil {
			metrics.AuditWriteErrorsTotal.Inc()
			logging.Report(r.logger, "audit write failed", err,
				zap.String("username", e.Principal),
				zap.String("auth_step", e.Step),
			)
		}
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx to end.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncRecorder writes inline. Tests use it to assert on the trail right after
// a call returns.
type SyncRecorder struct {
	store  Appender
	logger *zap.Logger
}

func NewSyncRecorder(store Appender, logger *zap.Logger) *SyncRecorder {
	return &SyncRecorder{store: store, logger: logging.OrNop(logger)}
}

func (r *SyncRecorder) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if err := r.store.Append(ctx, e); err != nil {
		metrics.AuditWriteErrorsTotal.Inc()
		logging.Report(r.logger, "audit write failed", err, zap.String("auth_step", e.Step))
	}
}

// MemoryRecorder keeps entries in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemoryRecorder) Record(_ context.Context, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *MemoryRecorder) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
