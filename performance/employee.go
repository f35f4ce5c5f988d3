package performance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/warp/timesheet-analytics/timesheet"
)

// EmployeeInputs is the raw and derived state one weekly computation reads.
type EmployeeInputs struct {
	UserID    timesheet.UserID
	WeekStart timesheet.Date
	Summary   TimeSummary

	// Previous is the stored record for WeekStart minus seven days, or nil.
	Previous *EmployeePerformance
	// History is every stored record of the user; the current week is ignored.
	History []EmployeePerformance
}

// ComputeEmployeePerformance derives one (user, week) record. Utilization is
// measured against the fixed 40-hour week and tasks per day against five
// working days.
func ComputeEmployeePerformance(in EmployeeInputs, now time.Time) EmployeePerformance {
	s := in.Summary
	perf := EmployeePerformance{
		UserID:                in.UserID,
		WeekStart:             in.WeekStart,
		TotalHours:            s.TotalHours,
		ProductiveHours:       s.ProductiveHours,
		AdminHours:            s.AdminHours,
		ContextSwitchCount:    s.ContextSwitches,
		AverageTaskPerDay:     perDay(s.DistinctTasks, timesheet.WorkingDaysPerWeek),
		MultiProjectLoad:      len(s.ProjectHours),
		ProjectTimeAllocation: s.ProjectHours,
		UpdatedAt:             now,
	}
	if perf.ProjectTimeAllocation == nil {
		perf.ProjectTimeAllocation = ProjectAllocation{}
	}
	if s.TotalHours > 0 {
		perf.UtilizationRate = ratio(s.ProductiveHours, BaselineWeekHours)
	}
	perf.Overutilized, perf.Underutilized, perf.Balanced = classify(s.ProductiveHours)

	for _, h := range in.History {
		if h.WeekStart.Equal(in.WeekStart) {
			continue
		}
		if h.ProductiveHours > OverutilizedHours {
			perf.HighUtilizationWeeks++
		}
	}

	// No record for the exact prior week reads as no change.
	if in.Previous != nil {
		perf.UtilizationTrend = sub(perf.UtilizationRate, in.Previous.UtilizationRate)
	}
	return perf
}

// RecomputeEmployee recomputes and upserts the (user, week) record. A week
// without a timesheet produces an all-zero record.
func (e *Engine) RecomputeEmployee(ctx context.Context, user timesheet.UserID, week timesheet.Date) (perf *EmployeePerformance, err error) {
	defer e.observe(KindEmployeePerformance, time.Now(), &err)

	if week.IsZero() {
		return nil, timesheet.ErrInvalidWeek
	}

	unlock := e.locks.Lock(employeeKey(user, week))
	defer unlock()

	if _, err := e.Source.GetUser(ctx, user); err != nil {
		return nil, err
	}

	var weekSheets []timesheet.Timesheet
	ts, err := e.Source.TimesheetForWeek(ctx, user, week)
	switch {
	case err == nil:
		weekSheets = append(weekSheets, *ts)
	case errors.Is(err, timesheet.ErrTimesheetNotFound):
	default:
		return nil, err
	}

	summary, err := e.aggregate(ctx, weekSheets)
	if err != nil {
		return nil, err
	}

	previous, err := e.previousWeek(ctx, user, week)
	if err != nil {
		return nil, err
	}
	history, err := e.Store.ListEmployeePerformance(ctx, user)
	if err != nil {
		return nil, err
	}

	computed := ComputeEmployeePerformance(EmployeeInputs{
		UserID:    user,
		WeekStart: week,
		Summary:   summary,
		Previous:  previous,
		History:   history,
	}, e.now())

	if err := e.Store.UpsertEmployeePerformance(ctx, computed); err != nil {
		return nil, err
	}

	e.log().Debug("employee performance recomputed",
		slog.String("user_id", string(user)),
		slog.String("week_start", week.String()),
		slog.Float64("utilization", computed.UtilizationRate),
		slog.Float64("trend", computed.UtilizationTrend))
	return &computed, nil
}

// previousWeek reads the prior week's record under that week's own lock, so a
// concurrent write to it is either fully visible or not at all. Locks are always
// taken newest week first.
func (e *Engine) previousWeek(ctx context.Context, user timesheet.UserID, week timesheet.Date) (*EmployeePerformance, error) {
	prior := week.AddDays(-7)
	unlock := e.locks.Lock(employeeKey(user, prior))
	defer unlock()

	rec, err := e.Store.GetEmployeePerformance(ctx, user, prior)
	if errors.Is(err, timesheet.ErrPerformanceNotFound) {
		return nil, nil
	}
	return rec, err
}

// aggregate loads the tasks the timesheets reference and summarizes them.
func (e *Engine) aggregate(ctx context.Context, sheets []timesheet.Timesheet) (TimeSummary, error) {
	if len(sheets) == 0 {
		return Aggregate(nil, nil)
	}
	seen := make(map[timesheet.TaskID]bool)
	var ids []timesheet.TaskID
	for _, ts := range sheets {
		for _, id := range ts.TaskIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	tasks, err := e.Source.GetTasks(ctx, ids)
	if err != nil {
		return TimeSummary{}, err
	}
	return Aggregate(sheets, tasks)
}
