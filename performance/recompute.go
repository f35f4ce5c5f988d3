/*
recompute.go - Mutation events and the recomputation chain

PURPOSE:
  The code paths that mutate raw records (timesheet create/update/approve,
  task update/complete, project update) publish an Event once their write has
  committed. Recomputer.Handle maps the event to engine calls; nothing is
  recomputed implicitly on save.

CHAINS:
  timesheet.*      -> task efficiency for every touched task,
                      project performance for every project of those tasks,
                      employee performance for (user, week)
  task.*           -> task efficiency for the tasks,
                      project performance for their projects
  project.updated  -> project performance for the project

  Within one event each subject is recomputed once, in ID order. The first
  failure stops the chain and is returned.

SEE ALSO:
  - events/: inline and Kafka delivery of Events
  - api/handlers.go: where events are published
*/
package performance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/warp/timesheet-analytics/timesheet"
)

type EventKind string

const (
	EventTimesheetCreated  EventKind = "timesheet.created"
	EventTimesheetUpdated  EventKind = "timesheet.updated"
	EventTimesheetApproved EventKind = "timesheet.approved"
	EventTaskUpdated       EventKind = "task.updated"
	EventTaskCompleted     EventKind = "task.completed"
	EventProjectUpdated    EventKind = "project.updated"
)

func (k EventKind) IsTimesheet() bool {
	return k == EventTimesheetCreated || k == EventTimesheetUpdated || k == EventTimesheetApproved
}

func (k EventKind) IsTask() bool {
	return k == EventTaskUpdated || k == EventTaskCompleted
}

func (k EventKind) Valid() bool {
	return k.IsTimesheet() || k.IsTask() || k == EventProjectUpdated
}

// EmployeeWeek names one stored EmployeePerformance record.
type EmployeeWeek struct {
	UserID    timesheet.UserID `json:"user_id"`
	WeekStart timesheet.Date   `json:"week_start"`
}

// Event announces a committed raw-state change. Employees lists extra
// employee weeks a task change reaches, such as weeks that logged time to a
// recategorized task.
type Event struct {
	ID         string                `json:"id"`
	Kind       EventKind             `json:"kind"`
	UserID     timesheet.UserID      `json:"user_id,omitempty"`
	WeekStart  timesheet.Date        `json:"week_start"`
	TaskIDs    []timesheet.TaskID    `json:"task_ids,omitempty"`
	ProjectIDs []timesheet.ProjectID `json:"project_ids,omitempty"`
	Employees  []EmployeeWeek        `json:"employees,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// TimesheetEvent builds the event for a timesheet mutation. touched are the
// tasks whose entries changed, as returned by timesheet.Writer.SaveTimesheet.
func TimesheetEvent(kind EventKind, ts timesheet.Timesheet, touched []timesheet.TaskID, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserID:     ts.UserID,
		WeekStart:  ts.WeekStart,
		TaskIDs:    touched,
		OccurredAt: at,
	}
}

func TaskEvent(kind EventKind, task timesheet.Task, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		TaskIDs:    []timesheet.TaskID{task.ID},
		ProjectIDs: []timesheet.ProjectID{task.ProjectID},
		OccurredAt: at,
	}
}

func ProjectEvent(id timesheet.ProjectID, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       EventProjectUpdated,
		ProjectIDs: []timesheet.ProjectID{id},
		OccurredAt: at,
	}
}

// Validate checks the event carries the subjects its kind needs.
func (ev Event) Validate() error {
	switch {
	case !ev.Kind.Valid():
		return fmt.Errorf("event %s: unknown kind %q", ev.ID, ev.Kind)
	case ev.Kind.IsTimesheet() && ev.UserID == "":
		return fmt.Errorf("event %s: %s without user", ev.ID, ev.Kind)
	case ev.Kind.IsTimesheet() && ev.WeekStart.IsZero():
		return fmt.Errorf("event %s: %w", ev.ID, timesheet.ErrInvalidWeek)
	case ev.Kind.IsTask() && len(ev.TaskIDs) == 0:
		return fmt.Errorf("event %s: %s without tasks", ev.ID, ev.Kind)
	case ev.Kind == EventProjectUpdated && len(ev.ProjectIDs) == 0:
		return fmt.Errorf("event %s: %s without project", ev.ID, ev.Kind)
	}
	for _, w := range ev.Employees {
		if w.UserID == "" {
			return fmt.Errorf("event %s: employee week without user", ev.ID)
		}
		if w.WeekStart.IsZero() {
			return fmt.Errorf("event %s: %w", ev.ID, timesheet.ErrInvalidWeek)
		}
	}
	return nil
}

// =============================================================================
// RECOMPUTER
// =============================================================================

// Recomputer runs the recomputation chain for an event.
type Recomputer struct {
	Engine *Engine
}

// Handle recomputes every derived record the event affects.
func (r *Recomputer) Handle(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	e := r.Engine

	projects := make(map[timesheet.ProjectID]bool)
	for _, id := range ev.ProjectIDs {
		projects[id] = true
	}

	if ev.Kind.IsTimesheet() || ev.Kind.IsTask() {
		for _, id := range uniqueSorted(ev.TaskIDs) {
			eff, err := e.RecomputeTask(ctx, id)
			if err != nil {
				return fmt.Errorf("%s: task %s: %w", ev.Kind, id, err)
			}
			projects[eff.ProjectID] = true
		}
	}

	projectIDs := make([]timesheet.ProjectID, 0, len(projects))
	for id := range projects {
		projectIDs = append(projectIDs, id)
	}
	for _, id := range uniqueSorted(projectIDs) {
		if _, err := e.RecomputeProject(ctx, id); err != nil {
			return fmt.Errorf("%s: project %s: %w", ev.Kind, id, err)
		}
	}

	weeks := ev.Employees
	if ev.Kind.IsTimesheet() {
		weeks = append([]EmployeeWeek{{UserID: ev.UserID, WeekStart: ev.WeekStart}}, weeks...)
	}
	weeks = uniqueWeeks(weeks)
	for _, w := range weeks {
		if _, err := e.RecomputeEmployee(ctx, w.UserID, w.WeekStart); err != nil {
			return fmt.Errorf("%s: employee %s week %s: %w", ev.Kind, w.UserID, w.WeekStart, err)
		}
	}

	e.log().Info("recomputed",
		slog.String("event_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
		slog.Int("tasks", len(ev.TaskIDs)),
		slog.Int("projects", len(projectIDs)),
		slog.Int("employee_weeks", len(weeks)))
	return nil
}

// uniqueWeeks drops duplicates and orders by user, then week.
func uniqueWeeks(weeks []EmployeeWeek) []EmployeeWeek {
	seen := make(map[string]bool, len(weeks))
	out := make([]EmployeeWeek, 0, len(weeks))
	for _, w := range weeks {
		key := string(w.UserID) + "|" + w.WeekStart.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].WeekStart.Before(out[j].WeekStart)
	})
	return out
}

func uniqueSorted[T ~string](ids []T) []T {
	seen := make(map[T]bool, len(ids))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
