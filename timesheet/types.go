/*
Package timesheet holds the raw, source-of-truth records of the time tracking system.

PURPOSE:
  Projects, tasks, weekly timesheets, daily logs and task entries are owned and
  mutated by the surrounding application. The performance engine only reads them.
  This package defines their shapes, the closed enumerations they use, and the
  store interfaces the engine reads them through.

KEY CONCEPTS IN THIS FILE (types.go):
  - Project:   budget, hourly rate and optional timeline
  - Task:      belongs to one project; status, estimate, logged hours, due date
  - Timesheet: one employee's declared work for one calendar week
  - DailyLog:  one calendar date within a timesheet
  - TaskEntry: the atomic fact every aggregation derives from

INVARIANTS (maintained by the application and the stores, trusted by the engine):
  1. Task.LoggedHours equals the sum of Duration over every entry referencing it
  2. Timesheets are unique per (UserID, WeekStart)
  3. TaskEntry.Duration > 0
  4. CompletedOn is set once, on the transition to Completed

SEE ALSO:
  - enums.go: TaskStatus, ApprovalStatus, Category
  - time.go:  Date and Clock
  - store.go: Reader / Writer interfaces
*/
package timesheet

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ProjectID string
type TaskID string
type TimesheetID string

// =============================================================================
// USER
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// User is the minimal identity record the engine needs: existence checks and the
// manager relation used by the dashboard summary.
type User struct {
	ID        UserID
	Username  string
	Email     string
	FirstName string
	LastName  string
	Role      Role
	ManagerID UserID
	CreatedAt time.Time
}

// =============================================================================
// PROJECT
// =============================================================================

// DefaultHourlyRate is applied to projects created without a rate.
const DefaultHourlyRate = 50.0

type Project struct {
	ID          ProjectID
	Name        string
	Description string
	Budget      float64
	HourlyRate  float64
	StartDate   Date // zero = unset
	EndDate     Date // zero = unset
	ManagerID   UserID
	Internal    bool
	Billable    bool
	CreatedAt   time.Time
}

// HasTimeline reports whether both timeline bounds are set.
func (p Project) HasTimeline() bool {
	return !p.StartDate.IsZero() && !p.EndDate.IsZero()
}

// Validate rejects projects the engine must never see.
func (p Project) Validate() error {
	if p.Budget < 0 || p.HourlyRate < 0 {
		return fmt.Errorf("project %s: negative budget or rate: %w", p.ID, ErrInvalidAmount)
	}
	if p.HasTimeline() && p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("project %s: end %s before start %s: %w", p.ID, p.EndDate, p.StartDate, ErrInvalidTimeline)
	}
	return nil
}

// =============================================================================
// TASK
// =============================================================================

type Task struct {
	ID             TaskID
	ProjectID      ProjectID
	Name           string
	Description    string
	Category       Category
	Billable       bool
	AssignedTo     UserID // "" = unassigned
	Status         TaskStatus
	EstimatedHours float64
	LoggedHours    float64
	DueDate        Date // zero = no deadline
	CompletedOn    Date // zero until completed
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t Task) IsCompleted() bool { return t.Status == StatusCompleted }

// Validate rejects tasks the engine must never see.
func (t Task) Validate() error {
	if t.ProjectID == "" {
		return fmt.Errorf("task %s: project is required: %w", t.ID, ErrInvalidTask)
	}
	if t.EstimatedHours < 0 || t.LoggedHours < 0 {
		return fmt.Errorf("task %s: negative hours: %w", t.ID, ErrInvalidAmount)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: status %q: %w", t.ID, t.Status, ErrInvalidTask)
	}
	return nil
}

// =============================================================================
// TIMESHEET
// =============================================================================

const (
	// StandardWeekHours is the regular working week; anything above is overtime.
	StandardWeekHours = 40.0

	WorkingDaysPerWeek = 5
)

type Timesheet struct {
	ID              TimesheetID
	UserID          UserID
	ManagerID       UserID
	WeekStart       Date
	ApprovalStatus  ApprovalStatus
	RejectionReason string
	Logs            []DailyLog
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type DailyLog struct {
	ID      string
	Date    Date
	Entries []TaskEntry
}

type TaskEntry struct {
	ID       string
	TaskID   TaskID
	Duration float64 // fractional hours, > 0
}

// Hours returns the declared total and the part of it above the standard week.
func (ts Timesheet) Hours() (total, overtime float64) {
	for _, log := range ts.Logs {
		for _, e := range log.Entries {
			total += e.Duration
		}
	}
	if total > StandardWeekHours {
		overtime = total - StandardWeekHours
	}
	return total, overtime
}

// TaskIDs returns every task referenced by the timesheet, in first-seen order.
func (ts Timesheet) TaskIDs() []TaskID {
	seen := make(map[TaskID]bool)
	var ids []TaskID
	for _, log := range ts.Logs {
		for _, e := range log.Entries {
			if !seen[e.TaskID] {
				seen[e.TaskID] = true
				ids = append(ids, e.TaskID)
			}
		}
	}
	return ids
}

// Validate enforces the raw-entity invariants before a timesheet reaches storage.
func (ts Timesheet) Validate() error {
	if ts.UserID == "" {
		return fmt.Errorf("timesheet %s: user is required: %w", ts.ID, ErrInvalidTimesheet)
	}
	if ts.WeekStart.IsZero() {
		return fmt.Errorf("timesheet %s: %w", ts.ID, ErrInvalidWeek)
	}
	if !ts.ApprovalStatus.Valid() {
		return fmt.Errorf("timesheet %s: approval status %q: %w", ts.ID, ts.ApprovalStatus, ErrInvalidTimesheet)
	}
	if ts.ApprovalStatus == ApprovalRejected && ts.RejectionReason == "" {
		return fmt.Errorf("timesheet %s: %w", ts.ID, ErrRejectionReasonRequired)
	}
	if len(ts.Logs) > WorkingDaysPerWeek {
		return fmt.Errorf("timesheet %s: %d daily logs, at most %d working days: %w", ts.ID, len(ts.Logs), WorkingDaysPerWeek, ErrInvalidTimesheet)
	}
	week := ts.Week()
	for _, log := range ts.Logs {
		if !week.Contains(log.Date) {
			return fmt.Errorf("timesheet %s: log date %s outside week %s: %w", ts.ID, log.Date, week, ErrInvalidTimesheet)
		}
		if log.Date.IsWeekend() {
			return fmt.Errorf("timesheet %s: log date %s falls on a weekend: %w", ts.ID, log.Date, ErrInvalidTimesheet)
		}
		for _, e := range log.Entries {
			if e.TaskID == "" {
				return fmt.Errorf("timesheet %s: entry without task: %w", ts.ID, ErrInvalidTimesheet)
			}
			if e.Duration <= 0 {
				return fmt.Errorf("timesheet %s: entry for task %s has duration %v: %w", ts.ID, e.TaskID, e.Duration, ErrInvalidDuration)
			}
		}
	}
	return nil
}

// Week returns the seven calendar days the timesheet covers.
func (ts Timesheet) Week() Period {
	return WeekOf(ts.WeekStart)
}
