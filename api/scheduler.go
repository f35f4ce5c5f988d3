/*
scheduler.go - Periodic rebuild of derived records

PURPOSE:
  Date-dependent fields (task overdue flags, stalled task counts, weeks
  remaining, burn projections) only change when an event triggers a
  recompute. The scheduler rebuilds every derived record on an interval so a
  quiet project still shows today's numbers.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Rebuilds once immediately on start
  - Records the outcome of the last run for GET /api/admin/rebuild

CONFIGURATION:
  - rebuild.interval: How often to rebuild (default: 0, disabled)

USAGE:
  scheduler := NewRebuildScheduler(handler, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - performance/rebuild.go: Engine.RecomputeAll
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/warp/timesheet-analytics/performance"
)

// RebuildRun is the outcome of one scheduled or manual rebuild.
type RebuildRun struct {
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt time.Time                `json:"completed_at"`
	Status      string                   `json:"status"` // "completed" | "failed"
	Error       string                   `json:"error,omitempty"`
	Stats       performance.RebuildStats `json:"stats"`
}

// RebuildScheduler periodically rebuilds all derived records.
type RebuildScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.Mutex
	last   *RebuildRun
}

// NewRebuildScheduler creates a scheduler. A non-positive interval disables it.
func NewRebuildScheduler(h *Handler, interval time.Duration) *RebuildScheduler {
	return &RebuildScheduler{
		Handler:       h,
		CheckInterval: interval,
		Enabled:       interval > 0,
	}
}

func (rs *RebuildScheduler) log() *slog.Logger {
	return rs.Handler.Log.With(slog.String("component", "rebuild-scheduler"))
}

// Start begins the scheduler.
func (rs *RebuildScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log().Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan bool)
	rs.wg.Add(1)

	go rs.run()

	rs.log().Info("started", slog.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for a running rebuild to finish.
func (rs *RebuildScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.log().Info("stopped")
	}
}

func (rs *RebuildScheduler) run() {
	defer rs.wg.Done()

	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow rebuilds immediately and records the run.
func (rs *RebuildScheduler) RunNow(ctx context.Context) RebuildRun {
	h := rs.Handler
	run := RebuildRun{StartedAt: h.Clock.Now()}

	stats, err := h.Engine.RecomputeAll(ctx, h.Store)
	run.Stats = stats
	run.CompletedAt = h.Clock.Now()
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		rs.log().Error("rebuild failed", slog.Any("error", err))
	} else {
		run.Status = "completed"
	}

	rs.lastMu.Lock()
	rs.last = &run
	rs.lastMu.Unlock()
	return run
}

// LastRun returns the most recent run, or nil before the first one.
func (rs *RebuildScheduler) LastRun() *RebuildRun {
	rs.lastMu.Lock()
	defer rs.lastMu.Unlock()
	if rs.last == nil {
		return nil
	}
	run := *rs.last
	return &run
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRebuild runs a rebuild synchronously.
func (rs *RebuildScheduler) TriggerRebuild(w http.ResponseWriter, r *http.Request) {
	run := rs.RunNow(r.Context())
	if run.Status != "completed" {
		writeJSON(w, http.StatusInternalServerError, run)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetLastRebuild returns the last run, or null.
func (rs *RebuildScheduler) GetLastRebuild(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rs.LastRun())
}
