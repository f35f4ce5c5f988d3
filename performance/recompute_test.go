package performance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/timesheet"
)

type countingObserver struct {
	counts map[string]int
	errors int
}

func (o *countingObserver) ObserveRecompute(kind string, _ time.Duration, err error) {
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[kind]++
	if err != nil {
		o.errors++
	}
}

func TestRecomputer_TimesheetChain(t *testing.T) {
	// GIVEN: a saved timesheet touching two tasks in one project, one task twice
	f := employeeFixture(t)
	obs := &countingObserver{}
	f.engine.Observer = obs
	touched := f.week("ts-1", "u-1", week1, entries("dev", 4.0, "qa", 2.0), entries("dev", 3.0))
	ts, err := f.store.GetTimesheet(f.ctx, "ts-1")
	require.NoError(t, err)

	ev := performance.TimesheetEvent(performance.EventTimesheetCreated, *ts, append(touched, "dev"), f.clock.Now())
	r := &performance.Recomputer{Engine: f.engine}

	// WHEN
	require.NoError(t, r.Handle(f.ctx, ev))

	// THEN: each subject recomputed exactly once
	assert.Equal(t, 2, obs.counts[performance.KindTaskEfficiency])
	assert.Equal(t, 1, obs.counts[performance.KindProjectPerformance])
	assert.Equal(t, 1, obs.counts[performance.KindEmployeePerformance])
	assert.Zero(t, obs.errors)

	dev, err := f.store.GetTaskEfficiency(f.ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, 7.0, dev.ActualHours)

	proj, err := f.store.GetProjectPerformance(f.ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 9.0, proj.TotalLoggedHours)

	emp, err := f.store.GetEmployeePerformance(f.ctx, "u-1", week1)
	require.NoError(t, err)
	assert.Equal(t, 9.0, emp.TotalHours)
}

func TestRecomputer_TaskAndProjectEvents(t *testing.T) {
	f := employeeFixture(t)
	r := &performance.Recomputer{Engine: f.engine}
	task, err := f.store.GetTask(f.ctx, "sync")
	require.NoError(t, err)

	require.NoError(t, r.Handle(f.ctx, performance.TaskEvent(performance.EventTaskCompleted, *task, f.clock.Now())))
	_, err = f.store.GetTaskEfficiency(f.ctx, "sync")
	assert.NoError(t, err)
	_, err = f.store.GetProjectPerformance(f.ctx, "p-2")
	assert.NoError(t, err)
	_, err = f.store.GetProjectPerformance(f.ctx, "p-1")
	assert.ErrorIs(t, err, timesheet.ErrPerformanceNotFound, "untouched project")

	require.NoError(t, r.Handle(f.ctx, performance.ProjectEvent("p-1", f.clock.Now())))
	_, err = f.store.GetProjectPerformance(f.ctx, "p-1")
	assert.NoError(t, err)
	_, err = f.store.GetEmployeePerformance(f.ctx, "u-1", week1)
	assert.ErrorIs(t, err, timesheet.ErrPerformanceNotFound, "task and project events skip employees")
}

func TestRecomputer_TaskEventWithEmployeeWeeks(t *testing.T) {
	// GIVEN: a task event naming the same employee week twice
	f := employeeFixture(t)
	obs := &countingObserver{}
	f.engine.Observer = obs
	f.week("ts-1", "u-1", week1, entries("dev", 4.0))
	task, err := f.store.GetTask(f.ctx, "dev")
	require.NoError(t, err)

	ev := performance.TaskEvent(performance.EventTaskUpdated, *task, f.clock.Now())
	ev.Employees = []performance.EmployeeWeek{
		{UserID: "u-1", WeekStart: week1},
		{UserID: "u-1", WeekStart: week1},
	}

	// WHEN
	require.NoError(t, (&performance.Recomputer{Engine: f.engine}).Handle(f.ctx, ev))

	// THEN: the week is recomputed once
	assert.Equal(t, 1, obs.counts[performance.KindEmployeePerformance])
	emp, err := f.store.GetEmployeePerformance(f.ctx, "u-1", week1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, emp.TotalHours)
}

func TestRecomputer_StopsAtFirstError(t *testing.T) {
	f := employeeFixture(t)
	r := &performance.Recomputer{Engine: f.engine}

	ev := performance.Event{
		ID:        "ev-1",
		Kind:      performance.EventTimesheetUpdated,
		UserID:    "u-1",
		WeekStart: week1,
		TaskIDs:   []timesheet.TaskID{"dev", "a-missing"},
	}
	err := r.Handle(context.Background(), ev)

	assert.ErrorIs(t, err, timesheet.ErrTaskNotFound)
	assert.Contains(t, err.Error(), "timesheet.updated")
	_, err = f.store.GetTaskEfficiency(f.ctx, "dev")
	assert.ErrorIs(t, err, timesheet.ErrPerformanceNotFound, "dev sorts after a-missing and never ran")
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name string
		ev   performance.Event
		ok   bool
	}{
		{"unknown kind", performance.Event{Kind: "task.deleted", TaskIDs: []timesheet.TaskID{"t"}}, false},
		{"timesheet without user", performance.Event{Kind: performance.EventTimesheetApproved, WeekStart: week1}, false},
		{"timesheet without week", performance.Event{Kind: performance.EventTimesheetApproved, UserID: "u"}, false},
		{"task without tasks", performance.Event{Kind: performance.EventTaskUpdated}, false},
		{"project without project", performance.Event{Kind: performance.EventProjectUpdated}, false},
		{"employee week without user", performance.Event{Kind: performance.EventTaskUpdated, TaskIDs: []timesheet.TaskID{"t"},
			Employees: []performance.EmployeeWeek{{WeekStart: week1}}}, false},
		{"employee week without week", performance.Event{Kind: performance.EventTaskUpdated, TaskIDs: []timesheet.TaskID{"t"},
			Employees: []performance.EmployeeWeek{{UserID: "u"}}}, false},
		{"valid timesheet", performance.Event{Kind: performance.EventTimesheetCreated, UserID: "u", WeekStart: week1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
