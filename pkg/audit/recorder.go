package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"verity-health/outpost/pkg/store"
)

// Config contains configuration for the traffic-light recorder.
type Config struct {
	// Enabled enables audit recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing one entry to the store.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Metrics receives drop notifications. Implemented by telemetry; a nil
// Metrics is a no-op.
type Metrics interface {
	EntryDropped()
}

// Recorder appends traffic-light entries to the audit log
// asynchronously, so the evaluation path never blocks on storage. An
// entry that cannot be queued is dropped with a warning; the verdict
// it describes has already been returned to the caller.
type Recorder struct {
	store   store.AuditStore
	config  *Config
	entries chan *store.TrafficLightEntry
	wg      sync.WaitGroup
	done    chan struct{}
	dropped atomic.Uint64
	metrics Metrics
	logger  *slog.Logger
}

// NewRecorder creates a recorder and starts its background writer.
func NewRecorder(auditStore store.AuditStore, config *Config) *Recorder {
	return NewRecorderWithMetrics(auditStore, config, nil)
}

// NewRecorderWithMetrics additionally publishes drop counts.
func NewRecorderWithMetrics(auditStore store.AuditStore, config *Config, metrics Metrics) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}

	r := &Recorder{
		store:   auditStore,
		config:  config,
		entries: make(chan *store.TrafficLightEntry, config.AsyncBuffer),
		done:    make(chan struct{}),
		metrics: metrics,
		logger:  slog.Default().With("component", "audit.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Record enqueues one audit entry. It never blocks: when the buffer is
// full the entry is dropped and counted. Entries are assigned an ID and
// timestamp here so callers only fill the evaluation fields.
func (r *Recorder) Record(entry *store.TrafficLightEntry) {
	if !r.config.Enabled {
		return
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	select {
	case r.entries <- entry:
	case <-r.done:
		r.drop()
		r.logger.Warn("recorder shutting down, dropping audit entry",
			"request_id", entry.RequestID,
		)
	default:
		r.drop()
		r.logger.Warn("audit channel full, dropping entry",
			"request_id", entry.RequestID,
			"channel_capacity", r.config.AsyncBuffer,
			"dropped_total", r.dropped.Load(),
		)
	}
}

func (r *Recorder) drop() {
	r.dropped.Add(1)
	if r.metrics != nil {
		r.metrics.EntryDropped()
	}
}

// Dropped reports how many entries have been dropped since startup.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close drains the channel and waits for pending writes to complete.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.entries:
			r.writeEntry(entry)

		case <-r.done:
			// Drain remaining entries before exit.
			for {
				select {
				case entry := <-r.entries:
					r.writeEntry(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeEntry(entry *store.TrafficLightEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.store.AppendTrafficLight(ctx, entry); err != nil {
		// The verdict was already served; an audit write failure is
		// an operator concern, not a request failure.
		r.logger.Warn("failed to append audit entry",
			"entry_id", entry.ID,
			"request_id", entry.RequestID,
			"error", err,
		)
		return
	}

	if elapsed := time.Since(start); elapsed > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"entry_id", entry.ID,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}
