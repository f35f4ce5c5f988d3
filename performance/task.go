package performance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/warp/timesheet-analytics/timesheet"
)

// ComputeTaskEfficiency derives a task's efficiency record.
//
// prior is the currently stored record, or nil. Without a due date the overdue
// and on-time flags carry over from prior (false and true on first compute).
func ComputeTaskEfficiency(task timesheet.Task, prior *TaskEfficiency, today timesheet.Date, now time.Time) TaskEfficiency {
	eff := TaskEfficiency{
		TaskID:          task.ID,
		ProjectID:       task.ProjectID,
		EstimatedHours:  task.EstimatedHours,
		ActualHours:     task.LoggedHours,
		EfficiencyRatio: ratio(task.EstimatedHours, task.LoggedHours),
		Overdue:         false,
		OnTime:          true,
		UpdatedAt:       now,
	}
	if prior != nil {
		eff.Overdue = prior.Overdue
		eff.OnTime = prior.OnTime
	}

	completed := task.IsCompleted()
	if !task.DueDate.IsZero() {
		eff.Overdue = !completed && today.After(task.DueDate)
		eff.OnTime = completed && !task.CompletedOn.IsZero() && task.CompletedOn.BeforeOrEqual(task.DueDate)
	}

	if completed && !task.CompletedOn.IsZero() && !task.CreatedAt.IsZero() {
		if days := timesheet.DaysBetween(timesheet.DateOf(task.CreatedAt), task.CompletedOn); days >= 0 {
			eff.CompletionTimeDays = &days
		}
	}
	return eff
}

// RecomputeTask recomputes and upserts the efficiency record of one task.
func (e *Engine) RecomputeTask(ctx context.Context, id timesheet.TaskID) (eff *TaskEfficiency, err error) {
	defer e.observe(KindTaskEfficiency, time.Now(), &err)

	unlock := e.locks.Lock(taskKey(id))
	defer unlock()

	task, err := e.Source.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	prior, err := e.Store.GetTaskEfficiency(ctx, id)
	if err != nil && !errors.Is(err, timesheet.ErrPerformanceNotFound) {
		return nil, err
	}

	computed := ComputeTaskEfficiency(*task, prior, e.today(), e.now())
	if err := e.Store.UpsertTaskEfficiency(ctx, computed); err != nil {
		return nil, err
	}

	e.log().Debug("task efficiency recomputed",
		slog.String("task_id", string(id)),
		slog.Float64("efficiency_ratio", computed.EfficiencyRatio),
		slog.Bool("overdue", computed.Overdue))
	return &computed, nil
}
