package performance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/timesheet-analytics/timesheet"
)

// RebuildStats counts the records a RecomputeAll pass wrote.
type RebuildStats struct {
	Tasks     int `json:"tasks"`
	Projects  int `json:"projects"`
	Employees int `json:"employees"`
}

// RecomputeAll rebuilds every derived record from raw state: task efficiency,
// then project performance, then each user's weeks oldest first so that every
// week's trend sees its predecessor.
func (e *Engine) RecomputeAll(ctx context.Context, dir timesheet.Directory) (RebuildStats, error) {
	var stats RebuildStats

	projects, err := dir.ListProjects(ctx)
	if err != nil {
		return stats, err
	}
	for _, p := range projects {
		tasks, err := e.Source.TasksByProject(ctx, p.ID)
		if err != nil {
			return stats, err
		}
		for _, t := range tasks {
			if _, err := e.RecomputeTask(ctx, t.ID); err != nil {
				return stats, fmt.Errorf("task %s: %w", t.ID, err)
			}
			stats.Tasks++
		}
		if _, err := e.RecomputeProject(ctx, p.ID); err != nil {
			return stats, fmt.Errorf("project %s: %w", p.ID, err)
		}
		stats.Projects++
	}

	users, err := dir.ListUsers(ctx)
	if err != nil {
		return stats, err
	}
	for _, u := range users {
		sheets, err := e.Source.TimesheetsByUser(ctx, u.ID)
		if err != nil {
			return stats, err
		}
		for _, ts := range sheets {
			if _, err := e.RecomputeEmployee(ctx, u.ID, ts.WeekStart); err != nil {
				return stats, fmt.Errorf("employee %s week %s: %w", u.ID, ts.WeekStart, err)
			}
			stats.Employees++
		}
	}

	e.log().Info("rebuilt derived records",
		slog.Int("tasks", stats.Tasks),
		slog.Int("projects", stats.Projects),
		slog.Int("employee_weeks", stats.Employees))
	return stats, nil
}
