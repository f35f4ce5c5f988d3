package performance

import (
	"log/slog"
	"time"

	"github.com/warp/timesheet-analytics/timesheet"
)

// Recompute kinds reported to the Observer.
const (
	KindTaskEfficiency      = "task_efficiency"
	KindProjectPerformance  = "project_performance"
	KindEmployeePerformance = "employee_performance"
	KindSnapshot            = "snapshot"
)

// Observer is notified after every computation. metrics.Recorder implements it.
type Observer interface {
	ObserveRecompute(kind string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRecompute(string, time.Duration, error) {}

// Engine computes and upserts derived records. Each Recompute* call reads raw
// state fresh, computes, and writes one record under a per-key lock, so two
// concurrent recomputations of the same key never interleave their read and
// write.
type Engine struct {
	Source   timesheet.Reader
	Store    Store
	Clock    timesheet.Clock
	Log      *slog.Logger
	Observer Observer

	locks keyedMutex
}

// NewEngine returns an engine on the system clock with a discarding observer.
// Fields may be overridden before first use.
func NewEngine(source timesheet.Reader, store Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Source:   source,
		Store:    store,
		Clock:    timesheet.SystemClock{},
		Log:      log.With(slog.String("component", "performance")),
		Observer: nopObserver{},
	}
}

func (e *Engine) today() timesheet.Date {
	return timesheet.Today(e.clock())
}

func (e *Engine) now() time.Time {
	return e.clock().Now()
}

func (e *Engine) clock() timesheet.Clock {
	if e.Clock == nil {
		return timesheet.SystemClock{}
	}
	return e.Clock
}

func (e *Engine) log() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// observe is deferred by every computation with a pointer to its named error.
func (e *Engine) observe(kind string, started time.Time, err *error) {
	obs := e.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	obs.ObserveRecompute(kind, time.Since(started), *err)
	if *err != nil {
		e.log().Warn("recompute failed", slog.String("kind", kind), slog.Any("error", *err))
	}
}
