/*
Package performance derives performance metrics from raw time-tracking records.

PURPOSE:
  Converts projects, tasks and weekly timesheets into three derived records
  (ProjectPerformance, EmployeePerformance, TaskEfficiency) plus the ephemeral
  EmployeeSnapshot. Every derived record is recomputed from scratch and upserted
  under its natural key; nothing is ever patched or accumulated.

KEY CONCEPTS:
  - Aggregate:   rolls timesheet entries up into a TimeSummary (aggregate.go)
  - Engine:      reads raw state, computes, upserts (task.go, project.go, employee.go)
  - Snapshot:    all-time, read-only view of one employee (snapshot.go)
  - Recomputer:  maps mutation events to engine calls (recompute.go)

DETERMINISM:
  Every "today" comes from the injected timesheet.Clock, and UpdatedAt is the
  clock's Now(). Two recomputations over identical raw state with the same clock
  produce identical records.

DEPENDENCIES BETWEEN DERIVED RECORDS:
  Derived records are leaves. The one exception is EmployeePerformance, whose
  trend reads the same user's record for the week exactly seven days earlier.

SEE ALSO:
  - timesheet/types.go: the raw records
  - store/sqlite, store/memory: Store implementations
*/
package performance

import (
	"time"

	"github.com/warp/timesheet-analytics/timesheet"
)

// Policy constants.
const (
	// BaselineWeekHours is the fixed denominator for weekly utilization.
	BaselineWeekHours = 40.0

	OverutilizedHours  = 45.0
	UnderutilizedHours = 30.0

	// StallThresholdDays is how long an open task may go untouched.
	StallThresholdDays = 14

	// BurnRateProgressFloor is the progress (percent) below which the burn rate
	// falls back to one full-time worker at the project's rate.
	BurnRateProgressFloor = 5.0

	VelocityWindowWeeks = 4
)

// =============================================================================
// PROJECT PERFORMANCE - keyed by project
// =============================================================================

type ProjectPerformance struct {
	ProjectID timesheet.ProjectID `json:"project_id"`

	TotalLoggedHours    float64 `json:"total_logged_hours"`
	TasksCompleted      int     `json:"tasks_completed"`
	TasksRemaining      int     `json:"tasks_remaining"`
	ProgressPercentage  float64 `json:"progress_percentage"`
	AverageTaskDuration float64 `json:"average_task_duration"`
	TasksPerWeek        float64 `json:"tasks_per_week"`

	ProjectBudget   float64 `json:"project_budget"`
	BudgetUsed      float64 `json:"budget_used"`
	BudgetRemaining float64 `json:"budget_remaining"`
	OverBudget      bool    `json:"over_budget"`

	ProjectDaysTotal   int     `json:"project_days_total"`
	ProjectDaysElapsed int     `json:"project_days_elapsed"`
	ProgressExpected   float64 `json:"progress_expected"`
	// OnTrack is nil for projects without a timeline.
	OnTrack *bool `json:"on_track"`

	BurnRate             float64 `json:"burn_rate"`
	WeeksRemaining       float64 `json:"weeks_remaining"`
	ForecastedBudgetBurn float64 `json:"forecasted_budget_burn"`
	BudgetDeviation      float64 `json:"budget_deviation"`
	BudgetWarning        bool    `json:"budget_warning"`

	StalledTasksCount int `json:"stalled_tasks_count"`
	MultiProjectLoad  int `json:"multi_project_load"`

	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// EMPLOYEE PERFORMANCE - keyed by (user, week)
// =============================================================================

// ProjectAllocation maps a project to the hours spent on it.
type ProjectAllocation map[timesheet.ProjectID]float64

type EmployeePerformance struct {
	UserID    timesheet.UserID `json:"user_id"`
	WeekStart timesheet.Date   `json:"week_start"`

	TotalHours      float64 `json:"total_hours"`
	ProductiveHours float64 `json:"productive_hours"`
	AdminHours      float64 `json:"admin_hours"`

	UtilizationRate float64 `json:"utilization_rate"`
	Overutilized    bool    `json:"overutilized"`
	Underutilized   bool    `json:"underutilized"`
	Balanced        bool    `json:"balanced"`

	ContextSwitchCount int     `json:"context_switch_count"`
	AverageTaskPerDay  float64 `json:"average_task_per_day"`
	MultiProjectLoad   int     `json:"multi_project_load"`

	// HighUtilizationWeeks counts every other stored week of the user above
	// OverutilizedHours. It is a historical total, not a consecutive streak.
	HighUtilizationWeeks int     `json:"high_utilization_weeks"`
	UtilizationTrend     float64 `json:"utilization_trend"`

	ProjectTimeAllocation ProjectAllocation `json:"project_time_allocation"`

	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// TASK EFFICIENCY - keyed by task
// =============================================================================

type TaskEfficiency struct {
	TaskID    timesheet.TaskID    `json:"task_id"`
	ProjectID timesheet.ProjectID `json:"project_id"`

	EstimatedHours  float64 `json:"estimated_hours"`
	ActualHours     float64 `json:"actual_hours"`
	EfficiencyRatio float64 `json:"efficiency_ratio"`

	Overdue bool `json:"overdue"`
	OnTime  bool `json:"on_time"`

	// CompletionTimeDays is nil until the task is completed with both dates known.
	CompletionTimeDays *int `json:"completion_time"`

	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// EMPLOYEE SNAPSHOT - ephemeral, never stored
// =============================================================================

// EmployeeSnapshot is the all-time view of one employee. Utilization is
// normalized by the employee's own total hours and tasks per day by the number
// of timesheets, unlike EmployeePerformance.
type EmployeeSnapshot struct {
	UserID     timesheet.UserID `json:"user_id"`
	Timesheets int              `json:"timesheets"`

	TotalHours      float64 `json:"total_hours"`
	ProductiveHours float64 `json:"productive_hours"`
	AdminHours      float64 `json:"admin_hours"`

	UtilizationRate    float64 `json:"utilization_rate"`
	AverageTaskPerDay  float64 `json:"average_task_per_day"`
	ContextSwitchCount int     `json:"context_switch_count"`
	MultiProjectLoad   int     `json:"multi_project_load"`

	Overutilized  bool `json:"overutilized"`
	Underutilized bool `json:"underutilized"`
	Balanced      bool `json:"balanced"`

	ProjectTimeAllocation ProjectAllocation `json:"project_time_allocation"`
}

// classify partitions productive hours into exactly one band. Both boundaries
// (45 and 30) are balanced.
func classify(productive float64) (over, under, balanced bool) {
	over = productive > OverutilizedHours
	under = productive < UnderutilizedHours
	return over, under, !over && !under
}
