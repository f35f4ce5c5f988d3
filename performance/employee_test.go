package performance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/timesheet"
)

func employeeFixture(t *testing.T) *fixture {
	f := newFixture(t, "2025-03-17")
	f.user("u-1", timesheet.RoleEmployee, "m-1")
	f.project(timesheet.Project{ID: "p-1", Budget: 5000, HourlyRate: 50})
	f.project(timesheet.Project{ID: "p-2", Budget: 5000, HourlyRate: 50})
	f.task(timesheet.Task{ID: "dev", ProjectID: "p-1", Category: timesheet.CategoryDevelopment, AssignedTo: "u-1"})
	f.task(timesheet.Task{ID: "qa", ProjectID: "p-1", Category: timesheet.CategoryTesting, AssignedTo: "u-1"})
	f.task(timesheet.Task{ID: "sync", ProjectID: "p-2", Category: timesheet.CategoryMeeting, AssignedTo: "u-1"})
	return f
}

func TestClassification_PartitionsExclusively(t *testing.T) {
	for _, hours := range []float64{0, 29.99, 30, 37.5, 45, 45.01, 80} {
		perf := performance.ComputeEmployeePerformance(performance.EmployeeInputs{
			UserID:    "u-1",
			WeekStart: week1,
			Summary:   performance.TimeSummary{TotalHours: hours, ProductiveHours: hours},
		}, now)

		set := 0
		for _, b := range []bool{perf.Overutilized, perf.Underutilized, perf.Balanced} {
			if b {
				set++
			}
		}
		assert.Equal(t, 1, set, "productive=%v", hours)
	}

	at45 := performance.ComputeEmployeePerformance(performance.EmployeeInputs{
		Summary: performance.TimeSummary{TotalHours: 45, ProductiveHours: 45},
	}, now)
	assert.True(t, at45.Balanced, "45 is not overutilized")

	at30 := performance.ComputeEmployeePerformance(performance.EmployeeInputs{
		Summary: performance.TimeSummary{TotalHours: 30, ProductiveHours: 30},
	}, now)
	assert.True(t, at30.Balanced, "30 is not underutilized")
}

func TestEngine_RecomputeEmployee_FiftyProductiveHours(t *testing.T) {
	// GIVEN: 10 productive hours every weekday, no prior week on record
	f := employeeFixture(t)
	f.week("ts-1", "u-1", week1, repeat(5, entries("dev", 6.0, "qa", 4.0))...)

	// WHEN
	perf, err := f.engine.RecomputeEmployee(f.ctx, "u-1", week1)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 50.0, perf.TotalHours)
	assert.Equal(t, 50.0, perf.ProductiveHours)
	assert.Equal(t, 125.0, perf.UtilizationRate)
	assert.True(t, perf.Overutilized)
	assert.False(t, perf.Balanced)
	assert.Equal(t, 0.0, perf.UtilizationTrend, "no prior week means no change")
	assert.Equal(t, 5, perf.ContextSwitchCount)
	assert.Equal(t, 0.4, perf.AverageTaskPerDay, "two distinct tasks over five days")
	assert.Equal(t, 1, perf.MultiProjectLoad)
	assert.Equal(t, performance.ProjectAllocation{"p-1": 50}, perf.ProjectTimeAllocation)
}

func TestEngine_RecomputeEmployee_TrendAndHistory(t *testing.T) {
	// GIVEN: a 40-hour week followed by a 50-hour week with some admin time
	f := employeeFixture(t)
	f.week("ts-0", "u-1", week0, repeat(5, entries("dev", 8.0))...)
	f.week("ts-1", "u-1", week1, repeat(5, entries("dev", 9.5, "sync", 0.5))...)
	f.week("ts-2", "u-1", week2, repeat(5, entries("dev", 10.0))...)

	// WHEN
	w0, err := f.engine.RecomputeEmployee(f.ctx, "u-1", week0)
	require.NoError(t, err)
	w1, err := f.engine.RecomputeEmployee(f.ctx, "u-1", week1)
	require.NoError(t, err)
	w2, err := f.engine.RecomputeEmployee(f.ctx, "u-1", week2)
	require.NoError(t, err)

	// THEN
	assert.Equal(t, 100.0, w0.UtilizationRate)
	assert.Equal(t, 0.0, w0.UtilizationTrend)

	assert.Equal(t, 47.5, w1.ProductiveHours)
	assert.Equal(t, 2.5, w1.AdminHours)
	assert.Equal(t, 118.75, w1.UtilizationRate)
	assert.Equal(t, 18.75, w1.UtilizationTrend)
	assert.Equal(t, 2, w1.MultiProjectLoad)
	assert.Equal(t, performance.ProjectAllocation{"p-1": 47.5, "p-2": 2.5}, w1.ProjectTimeAllocation)
	assert.Equal(t, 0, w1.HighUtilizationWeeks)

	assert.Equal(t, 125.0, w2.UtilizationRate)
	assert.Equal(t, 6.25, w2.UtilizationTrend)
	assert.Equal(t, 1, w2.HighUtilizationWeeks, "week1 only; the current week is not counted")

	// AND: recomputing week1 now sees week2 in history
	again, err := f.engine.RecomputeEmployee(f.ctx, "u-1", week1)
	require.NoError(t, err)
	assert.Equal(t, 1, again.HighUtilizationWeeks)
}

func TestEngine_RecomputeEmployee_Idempotent(t *testing.T) {
	f := employeeFixture(t)
	f.week("ts-1", "u-1", week1, entries("dev", 3.0), entries("sync", 1.0))

	first, err := f.engine.RecomputeEmployee(f.ctx, "u-1", week1)
	require.NoError(t, err)
	second, err := f.engine.RecomputeEmployee(f.ctx, "u-1", week1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, second.Underutilized)
}

func TestEngine_RecomputeEmployee_EmptyWeek(t *testing.T) {
	f := employeeFixture(t)

	perf, err := f.engine.RecomputeEmployee(f.ctx, "u-1", week1)

	require.NoError(t, err)
	assert.Zero(t, perf.TotalHours)
	assert.Zero(t, perf.UtilizationRate)
	assert.Zero(t, perf.AverageTaskPerDay)
	assert.True(t, perf.Underutilized)
	assert.NotNil(t, perf.ProjectTimeAllocation)
}

func TestEngine_RecomputeEmployee_Errors(t *testing.T) {
	f := employeeFixture(t)

	_, err := f.engine.RecomputeEmployee(f.ctx, "ghost", week1)
	assert.ErrorIs(t, err, timesheet.ErrUserNotFound)

	_, err = f.engine.RecomputeEmployee(f.ctx, "u-1", timesheet.Date{})
	assert.ErrorIs(t, err, timesheet.ErrInvalidWeek)
}
