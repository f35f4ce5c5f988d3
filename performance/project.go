/*
project.go - Project performance

PURPOSE:
  Progress, budget burn, forecast and risk signals for one project, always
  recomputed in full from the project's current tasks.

FORECAST:
  Above BurnRateProgressFloor percent progress, the burn rate is budget used per
  percentage point and the forecast extrapolates it to 100%. At or below the
  floor the burn rate is one full-time worker (hourly rate x 40 hours) per week
  and the forecast multiplies it by the weeks left until the end date. The
  deviation from budget is reported only once some progress exists.

LOAD:
  MultiProjectLoad here is cross-project contention: the number of other
  projects that any assignee of this project's tasks also has tasks in. The
  employee record uses a different, per-week definition.
*/
package performance

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/timesheet-analytics/timesheet"
)

// ProjectInputs is the raw state one project computation reads.
type ProjectInputs struct {
	Project timesheet.Project
	Tasks   []timesheet.Task
	// AssigneeTasks are all tasks, in any project, assigned to an assignee of Tasks.
	AssigneeTasks []timesheet.Task
}

// ComputeProjectPerformance derives a project's performance record.
func ComputeProjectPerformance(in ProjectInputs, today timesheet.Date, now time.Time) ProjectPerformance {
	p := in.Project
	perf := ProjectPerformance{
		ProjectID:     p.ID,
		ProjectBudget: p.Budget,
		UpdatedAt:     now,
	}

	velocitySince := today.AddWeeks(-VelocityWindowWeeks)
	recentlyCompleted := 0
	for _, t := range in.Tasks {
		perf.TotalLoggedHours += t.LoggedHours
		if t.IsCompleted() {
			perf.TasksCompleted++
			if !t.CompletedOn.IsZero() && t.CompletedOn.AfterOrEqual(velocitySince) {
				recentlyCompleted++
			}
			continue
		}
		perf.TasksRemaining++
		if timesheet.DaysBetween(timesheet.DateOf(t.UpdatedAt), today) >= StallThresholdDays {
			perf.StalledTasksCount++
		}
	}

	// Progress
	if n := perf.TasksCompleted + perf.TasksRemaining; n > 0 {
		perf.ProgressPercentage = float64(perf.TasksCompleted) / float64(n) * 100
	}
	if perf.TasksCompleted > 0 {
		perf.AverageTaskDuration = perf.TotalLoggedHours / float64(perf.TasksCompleted)
	}
	perf.TasksPerWeek = float64(recentlyCompleted) / VelocityWindowWeeks

	// Budget
	perf.BudgetUsed = perf.TotalLoggedHours * p.HourlyRate
	perf.BudgetRemaining = max(p.Budget-perf.BudgetUsed, 0)
	perf.OverBudget = perf.BudgetRemaining <= 0

	// Timeline
	if p.HasTimeline() {
		perf.ProjectDaysTotal = timesheet.DaysBetween(p.StartDate, p.EndDate)
	}
	if !p.StartDate.IsZero() {
		perf.ProjectDaysElapsed = timesheet.DaysBetween(p.StartDate, today)
	}
	var elapsedShare float64
	if perf.ProjectDaysTotal != 0 {
		elapsedShare = float64(perf.ProjectDaysElapsed) / float64(perf.ProjectDaysTotal)
		perf.ProgressExpected = elapsedShare * 100
		onTrack := perf.ProgressPercentage >= perf.ProgressExpected
		perf.OnTrack = &onTrack
	}

	// Forecast
	if !p.EndDate.IsZero() {
		perf.WeeksRemaining = float64(timesheet.DaysBetween(today, p.EndDate)) / 7
	}
	if perf.ProgressPercentage > BurnRateProgressFloor {
		perf.BurnRate = perf.BudgetUsed / perf.ProgressPercentage
		perf.ForecastedBudgetBurn = perf.BurnRate * 100
	} else {
		perf.BurnRate = p.HourlyRate * timesheet.StandardWeekHours
		perf.ForecastedBudgetBurn = perf.BurnRate * perf.WeeksRemaining
	}
	if perf.ProgressPercentage > 0 {
		perf.BudgetDeviation = perf.ForecastedBudgetBurn - p.Budget
	}
	expectedBurn := p.Budget * elapsedShare
	perf.BudgetWarning = perf.BudgetUsed > expectedBurn

	perf.MultiProjectLoad = otherProjects(p.ID, in.Tasks, in.AssigneeTasks)
	return perf
}

// otherProjects counts the distinct projects, other than self, holding tasks
// assigned to anyone assigned in tasks.
func otherProjects(self timesheet.ProjectID, tasks, assigneeTasks []timesheet.Task) int {
	assignees := make(map[timesheet.UserID]bool)
	for _, t := range tasks {
		if t.AssignedTo != "" {
			assignees[t.AssignedTo] = true
		}
	}
	projects := make(map[timesheet.ProjectID]bool)
	for _, t := range assigneeTasks {
		if t.ProjectID != self && assignees[t.AssignedTo] {
			projects[t.ProjectID] = true
		}
	}
	return len(projects)
}

func assigneesOf(tasks []timesheet.Task) []timesheet.UserID {
	seen := make(map[timesheet.UserID]bool)
	var users []timesheet.UserID
	for _, t := range tasks {
		if t.AssignedTo != "" && !seen[t.AssignedTo] {
			seen[t.AssignedTo] = true
			users = append(users, t.AssignedTo)
		}
	}
	return users
}

// RecomputeProject recomputes and upserts the performance record of one project.
func (e *Engine) RecomputeProject(ctx context.Context, id timesheet.ProjectID) (perf *ProjectPerformance, err error) {
	defer e.observe(KindProjectPerformance, time.Now(), &err)

	unlock := e.locks.Lock(projectKey(id))
	defer unlock()

	project, err := e.Source.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := e.Source.TasksByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	var assigneeTasks []timesheet.Task
	if users := assigneesOf(tasks); len(users) > 0 {
		if assigneeTasks, err = e.Source.TasksByAssignees(ctx, users); err != nil {
			return nil, err
		}
	}

	computed := ComputeProjectPerformance(ProjectInputs{
		Project:       *project,
		Tasks:         tasks,
		AssigneeTasks: assigneeTasks,
	}, e.today(), e.now())

	if err := e.Store.UpsertProjectPerformance(ctx, computed); err != nil {
		return nil, err
	}

	e.log().Debug("project performance recomputed",
		slog.String("project_id", string(id)),
		slog.Float64("progress", computed.ProgressPercentage),
		slog.Bool("over_budget", computed.OverBudget),
		slog.Int("stalled_tasks", computed.StalledTasksCount))
	return &computed, nil
}
