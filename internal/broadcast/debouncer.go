package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshboard/meshboard-core/internal/infrastructure/logging"
	"github.com/meshboard/meshboard-core/internal/message"
)

const (
	defaultWindow    = 1 * time.Second
	defaultCapacity  = 1000
	defaultBatchSize = 100
)

// Broadcaster receives flushed batches. *Hub implements it.
type Broadcaster interface {
	Broadcast(batch []message.Record)
}

var _ Broadcaster = (*Hub)(nil)

// DebouncerConfig tunes batching behaviour.
type DebouncerConfig struct {
	// Window is how long after the first buffered record a flush fires.
	// Defaults to 1s.
	Window time.Duration

	// Capacity bounds the buffer. When full, the oldest records are
	// evicted to make room. Defaults to 1000.
	Capacity int

	// BatchSize caps how many records one broadcast carries. A larger
	// flush is split into consecutive batches. Defaults to 100.
	BatchSize int
}

// Debouncer coalesces ingested records into periodic broadcasts.
//
// Submit never blocks and is safe from any goroutine; the ingest loop
// must not stall because a flush is slow. Records are flushed in
// arrival order one window after the first record of a burst, so a
// radio drain that stores fifty messages produces one broadcast, not
// fifty.
type Debouncer struct {
	cfg    DebouncerConfig
	target Broadcaster
	logger *logging.Logger

	mu      sync.Mutex
	pending []message.Record

	wake chan struct{}

	flushedTotal atomic.Uint64
	evictedTotal atomic.Uint64
}

// NewDebouncer creates a debouncer flushing into target. Run must be
// started for flushes to fire.
func NewDebouncer(cfg DebouncerConfig, target Broadcaster, logger *logging.Logger) *Debouncer {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Debouncer{
		cfg:    cfg,
		target: target,
		logger: logger.With("component", "debouncer"),
		wake:   make(chan struct{}, 1),
	}
}

// Submit buffers one record for the next flush. It never blocks: when
// the buffer is full the oldest records are evicted so the newest
// always fit.
func (d *Debouncer) Submit(rec *message.Record) {
	if rec == nil {
		return
	}

	d.mu.Lock()
	wasEmpty := len(d.pending) == 0
	d.pending = append(d.pending, *rec)
	evicted := 0
	if len(d.pending) > d.cfg.Capacity {
		evicted = len(d.pending) - d.cfg.Capacity
		d.pending = append(d.pending[:0:0], d.pending[evicted:]...)
	}
	d.mu.Unlock()

	if evicted > 0 {
		d.evictedTotal.Add(uint64(evicted))
		d.logger.Warn("buffer full, evicted oldest records", "evicted", evicted)
	}
	if wasEmpty {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// Run fires flushes one window after each burst starts. On shutdown
// any buffered records are flushed so nothing submitted is silently
// lost.
func (d *Debouncer) Run(ctx context.Context) {
	timer := time.NewTimer(d.cfg.Window)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	d.logger.Info("debouncer started",
		"window", d.cfg.Window.String(),
		"capacity", d.cfg.Capacity,
		"batch_size", d.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			d.flush()
			d.logger.Info("debouncer stopped")
			return
		case <-d.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.cfg.Window)
		case <-timer.C:
			d.flush()
		}
	}
}

// Stats returns debouncer counters for status reporting.
func (d *Debouncer) Stats() DebouncerStats {
	d.mu.Lock()
	pending := len(d.pending)
	d.mu.Unlock()

	return DebouncerStats{
		Pending:      pending,
		FlushedTotal: d.flushedTotal.Load(),
		EvictedTotal: d.evictedTotal.Load(),
	}
}

// DebouncerStats holds debouncer counters.
type DebouncerStats struct {
	Pending      int    `json:"pending"`
	FlushedTotal uint64 `json:"flushed_total"`
	EvictedTotal uint64 `json:"evicted_total"`
}

// flush drains the buffer and broadcasts it in order, split into
// batches of at most BatchSize.
func (d *Debouncer) flush() {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	d.flushedTotal.Add(uint64(len(batch)))

	for len(batch) > 0 {
		n := len(batch)
		if n > d.cfg.BatchSize {
			n = d.cfg.BatchSize
		}
		d.target.Broadcast(batch[:n])
		batch = batch[n:]
	}
}
