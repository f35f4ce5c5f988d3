/*
aggregate.go - Time-entry aggregation

PURPOSE:
  Rolls the task entries of a set of timesheets (one week, or a user's whole
  history) up into a TimeSummary. Both the employee engine and the snapshot
  run on it; it has no state of its own.

CLASSIFICATION:
  An entry's hours are admin time when its task's category is Admin, Training,
  Meeting or Research, productive otherwise (unset category included).

CONTEXT SWITCHES:
  Distinct calendar dates with at least one entry. Five entries on one day
  count once.

PRECISION:
  Hours are summed as decimals, so TotalHours is the exact sum of the entry
  durations whatever order the timesheets, logs or entries arrive in.
*/
package performance

import (
	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-analytics/timesheet"
)

// TimeSummary is the structural roll-up of a set of task entries.
type TimeSummary struct {
	TotalHours      float64
	ProductiveHours float64
	AdminHours      float64

	ContextSwitches int
	DistinctTasks   int
	Entries         int
	Timesheets      int

	ProjectHours ProjectAllocation
}

// Aggregate summarizes the entries of the given timesheets. tasks must hold
// every task the entries reference; a missing one is a not-found error. Empty
// input yields an all-zero summary.
func Aggregate(timesheets []timesheet.Timesheet, tasks map[timesheet.TaskID]timesheet.Task) (TimeSummary, error) {
	var (
		total      = decimal.Zero
		productive = decimal.Zero
		admin      = decimal.Zero
		byProject  = make(map[timesheet.ProjectID]decimal.Decimal)
		dates      = make(map[string]struct{})
		distinct   = make(map[timesheet.TaskID]struct{})
		entries    int
	)

	for _, ts := range timesheets {
		for _, log := range ts.Logs {
			if len(log.Entries) > 0 {
				dates[log.Date.String()] = struct{}{}
			}
			for _, e := range log.Entries {
				task, ok := tasks[e.TaskID]
				if !ok {
					return TimeSummary{}, timesheet.TaskNotFound(e.TaskID)
				}

				d := decimal.NewFromFloat(e.Duration)
				total = total.Add(d)
				if task.Category.TimeType() == timesheet.TimeAdmin {
					admin = admin.Add(d)
				} else {
					productive = productive.Add(d)
				}
				byProject[task.ProjectID] = byProject[task.ProjectID].Add(d)

				distinct[e.TaskID] = struct{}{}
				entries++
			}
		}
	}

	allocation := make(ProjectAllocation, len(byProject))
	for id, hours := range byProject {
		allocation[id] = hours.InexactFloat64()
	}

	return TimeSummary{
		TotalHours:      total.InexactFloat64(),
		ProductiveHours: productive.InexactFloat64(),
		AdminHours:      admin.InexactFloat64(),
		ContextSwitches: len(dates),
		DistinctTasks:   len(distinct),
		Entries:         entries,
		Timesheets:      len(timesheets),
		ProjectHours:    allocation,
	}, nil
}

// =============================================================================
// ROUNDING
// =============================================================================

// ratio returns num / den * 100 rounded to two places, or 0 when den is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromFloat(num).
		Div(decimal.NewFromFloat(den)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}

// perDay returns count / days rounded to two places, or 0 when either is 0.
func perDay(count, days int) float64 {
	if count == 0 || days == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(count)).
		Div(decimal.NewFromInt(int64(days))).
		Round(2).
		InexactFloat64()
}

func round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

// sub returns a - b without binary float drift on two-place values.
func sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}
