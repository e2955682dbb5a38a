// Package scheduler redelivers work that failed after its triggering write
// already succeeded. Entries wait in a min-heap ordered by their next retry
// time and back off exponentially until MaxRetries is exhausted.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/infra/metrics"
)

// ─── Retry Queue ────────────────────────────────────────────────────────────

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	MaxRetries int           // Maximum retry attempts before permanent failure
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
	Interval   time.Duration // How often Run drains ready entries
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Interval:   1 * time.Second,
	}
}

// Task is retried until it returns nil. It must be idempotent.
type Task func(ctx context.Context) error

// RetryEntry tracks a failed task's retry state.
type RetryEntry struct {
	Key       string // At most one pending entry per key
	Task      Task
	Attempt   int       // Current retry attempt (0 = first try)
	NextRetry time.Time // Earliest time this can be retried
	FailedAt  time.Time // When the last failure occurred
	Error     string    // Last failure reason
}

// RetryQueue schedules task retries with exponential backoff.
type RetryQueue struct {
	mu      sync.Mutex
	config  RetryConfig
	heap    entryHeap
	pending map[string]bool
	clock   clock.Clock
	log     *log.Logger

	// Stats
	totalRetries   int64
	totalExhausted int64 // Tasks that exceeded MaxRetries
}

// NewRetryQueue creates an empty queue. Zero config fields take defaults.
func NewRetryQueue(cfg RetryConfig, clk clock.Clock, logger *log.Logger) *RetryQueue {
	def := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(def.MaxDelay, cfg.BaseDelay)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RetryQueue{
		config:  cfg,
		pending: make(map[string]bool),
		clock:   clk,
		log:     logger.With("component", "retry"),
	}
}

// ScheduleRetry queues a failed task with exponential backoff. Returns
// false if the task has exceeded MaxRetries or its key is already pending.
func (rq *RetryQueue) ScheduleRetry(entry RetryEntry) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.pending[entry.Key] {
		return false
	}

	entry.Attempt++
	if entry.Attempt > rq.config.MaxRetries {
		rq.totalExhausted++
		metrics.Redeliveries.WithLabelValues("exhausted").Inc()
		rq.log.Error("retries exhausted", "key", entry.Key, "attempts", entry.Attempt-1, "err", entry.Error)
		return false
	}

	// Exponential backoff: baseDelay * 2^(attempt-1)
	delay := rq.config.BaseDelay
	for i := 1; i < entry.Attempt; i++ {
		delay *= 2
		if delay > rq.config.MaxDelay {
			delay = rq.config.MaxDelay
			break
		}
	}

	now := rq.clock.Now()
	entry.FailedAt = now
	entry.NextRetry = now.Add(delay)
	heap.Push(&rq.heap, entry)
	rq.pending[entry.Key] = true

	rq.totalRetries++
	metrics.RedeliveryPending.Set(float64(rq.heap.Len()))
	return true
}

// NextReady pops the next entry whose NextRetry time has passed.
func (rq *RetryQueue) NextReady() (*RetryEntry, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.heap.Len() == 0 || rq.clock.Now().Before(rq.heap[0].NextRetry) {
		return nil, false
	}
	entry := heap.Pop(&rq.heap).(RetryEntry)
	delete(rq.pending, entry.Key)
	metrics.RedeliveryPending.Set(float64(rq.heap.Len()))
	return &entry, true
}

// DrainReady drains all ready-to-retry entries, earliest first.
func (rq *RetryQueue) DrainReady() []RetryEntry {
	var ready []RetryEntry
	for {
		entry, ok := rq.NextReady()
		if !ok {
			break
		}
		ready = append(ready, *entry)
	}
	return ready
}

// RunOnce retries every ready entry and reschedules the ones that fail
// again. Returns how many succeeded.
func (rq *RetryQueue) RunOnce(ctx context.Context) int {
	done := 0
	for _, entry := range rq.DrainReady() {
		if ctx.Err() != nil {
			// Put it back untouched for the next run.
			entry.Attempt--
			rq.ScheduleRetry(entry)
			continue
		}
		err := entry.Task(ctx)
		if err == nil {
			done++
			metrics.Redeliveries.WithLabelValues("succeeded").Inc()
			rq.log.Info("redelivered", "key", entry.Key, "attempt", entry.Attempt)
			continue
		}
		metrics.Redeliveries.WithLabelValues("failed").Inc()
		entry.Error = err.Error()
		rq.log.Warn("redelivery failed", "key", entry.Key, "attempt", entry.Attempt, "err", err)
		rq.ScheduleRetry(entry)
	}
	return done
}

// Run drains the queue every Interval until ctx is done. Call in a goroutine.
func (rq *RetryQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(rq.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rq.RunOnce(ctx)
		}
	}
}

// Len returns the number of tasks pending retry.
func (rq *RetryQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.heap.Len()
}

// RetryStats holds retry queue statistics.
type RetryStats struct {
	PendingRetries int   `json:"pending_retries"`
	TotalRetries   int64 `json:"total_retries"`
	TotalExhausted int64 `json:"total_exhausted"` // Exceeded MaxRetries
}

// RetryStats returns current retry queue statistics.
func (rq *RetryQueue) RetryStats() RetryStats {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return RetryStats{
		PendingRetries: rq.heap.Len(),
		TotalRetries:   rq.totalRetries,
		TotalExhausted: rq.totalExhausted,
	}
}

// ─── Heap ───────────────────────────────────────────────────────────────────

type entryHeap []RetryEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].NextRetry.Equal(h[j].NextRetry) {
		return h[i].FailedAt.Before(h[j].FailedAt)
	}
	return h[i].NextRetry.Before(h[j].NextRetry)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(RetryEntry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = RetryEntry{}
	*h = old[:n-1]
	return e
}
