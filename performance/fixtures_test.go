package performance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/store/memory"
	"github.com/warp/timesheet-analytics/timesheet"
)

var (
	// 2025-03-03 is a Monday.
	week1 = timesheet.MustParseDate("2025-03-03")
	week0 = week1.AddDays(-7)
	week2 = week1.AddDays(7)
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	engine *performance.Engine
	clock  *timesheet.FixedClock
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	clock := &timesheet.FixedClock{At: timesheet.MustParseDate(today).Time().Add(9 * time.Hour)}
	store := memory.New()
	store.Clock = clock
	engine := performance.NewEngine(store, store, nil)
	engine.Clock = clock
	return &fixture{t: t, ctx: context.Background(), store: store, engine: engine, clock: clock}
}

func (f *fixture) user(id string, role timesheet.Role, manager string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveUser(f.ctx, timesheet.User{
		ID:        timesheet.UserID(id),
		Username:  id,
		Role:      role,
		ManagerID: timesheet.UserID(manager),
	}))
}

func (f *fixture) project(p timesheet.Project) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveProject(f.ctx, p))
}

func (f *fixture) task(t timesheet.Task) {
	f.t.Helper()
	if t.Status == "" {
		t.Status = timesheet.StatusNotStarted
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = f.clock.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = f.clock.Now()
	}
	require.NoError(f.t, f.store.SaveTask(f.ctx, t))
}

// week saves a timesheet for user starting at start, with one log per element
// of days (Monday first).
func (f *fixture) week(id, user string, start timesheet.Date, days ...[]timesheet.TaskEntry) []timesheet.TaskID {
	f.t.Helper()
	ts := timesheet.Timesheet{
		ID:             timesheet.TimesheetID(id),
		UserID:         timesheet.UserID(user),
		WeekStart:      start,
		ApprovalStatus: timesheet.ApprovalPending,
	}
	for i, entries := range days {
		ts.Logs = append(ts.Logs, timesheet.DailyLog{Date: start.AddDays(i), Entries: entries})
	}
	require.NoError(f.t, ts.Validate())
	touched, err := f.store.SaveTimesheet(f.ctx, ts)
	require.NoError(f.t, err)
	return touched
}

func entries(pairs ...any) []timesheet.TaskEntry {
	var out []timesheet.TaskEntry
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, timesheet.TaskEntry{
			TaskID:   timesheet.TaskID(pairs[i].(string)),
			Duration: pairs[i+1].(float64),
		})
	}
	return out
}

// repeat returns n copies of the same day.
func repeat(n int, day []timesheet.TaskEntry) [][]timesheet.TaskEntry {
	out := make([][]timesheet.TaskEntry, n)
	for i := range out {
		out[i] = day
	}
	return out
}
