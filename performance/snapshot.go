package performance

import (
	"context"
	"time"

	"github.com/warp/timesheet-analytics/timesheet"
)

// ComputeSnapshot derives the all-time view from a summary of every timesheet
// the user has.
func ComputeSnapshot(user timesheet.UserID, s TimeSummary) EmployeeSnapshot {
	snap := EmployeeSnapshot{
		UserID:                user,
		Timesheets:            s.Timesheets,
		TotalHours:            s.TotalHours,
		ProductiveHours:       s.ProductiveHours,
		AdminHours:            s.AdminHours,
		UtilizationRate:       ratio(s.ProductiveHours, s.TotalHours),
		AverageTaskPerDay:     perDay(s.DistinctTasks, s.Timesheets),
		ContextSwitchCount:    s.ContextSwitches,
		MultiProjectLoad:      len(s.ProjectHours),
		ProjectTimeAllocation: s.ProjectHours,
	}
	if snap.ProjectTimeAllocation == nil {
		snap.ProjectTimeAllocation = ProjectAllocation{}
	}
	snap.Overutilized, snap.Underutilized, snap.Balanced = classify(s.ProductiveHours)
	return snap
}

// Snapshot computes the user's all-time view. Nothing is written.
func (e *Engine) Snapshot(ctx context.Context, user timesheet.UserID) (snap *EmployeeSnapshot, err error) {
	defer e.observe(KindSnapshot, time.Now(), &err)

	if _, err := e.Source.GetUser(ctx, user); err != nil {
		return nil, err
	}
	sheets, err := e.Source.TimesheetsByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	summary, err := e.aggregate(ctx, sheets)
	if err != nil {
		return nil, err
	}

	computed := ComputeSnapshot(user, summary)
	return &computed, nil
}
