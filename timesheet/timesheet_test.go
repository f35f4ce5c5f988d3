package timesheet_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-analytics/timesheet"
)

// 2025-03-03 is a Monday.
var monday = timesheet.NewDate(2025, time.March, 3)

func weekTimesheet(logs ...timesheet.DailyLog) timesheet.Timesheet {
	return timesheet.Timesheet{
		ID:             "ts-1",
		UserID:         "u-1",
		WeekStart:      monday,
		ApprovalStatus: timesheet.ApprovalPending,
		Logs:           logs,
	}
}

func logOn(d timesheet.Date, entries ...timesheet.TaskEntry) timesheet.DailyLog {
	return timesheet.DailyLog{Date: d, Entries: entries}
}

func entry(task string, hours float64) timesheet.TaskEntry {
	return timesheet.TaskEntry{TaskID: timesheet.TaskID(task), Duration: hours}
}

// =============================================================================
// CATEGORY
// =============================================================================

func TestCategory_TimeType(t *testing.T) {
	admin := []timesheet.Category{
		timesheet.CategoryAdmin, timesheet.CategoryTraining,
		timesheet.CategoryMeeting, timesheet.CategoryResearch,
	}
	for _, c := range admin {
		assert.Equal(t, timesheet.TimeAdmin, c.TimeType(), c)
	}

	productive := []timesheet.Category{
		timesheet.CategoryUnset, timesheet.CategoryDevelopment,
		timesheet.CategoryDesign, timesheet.CategoryTesting,
	}
	for _, c := range productive {
		assert.Equal(t, timesheet.TimeProductive, c.TimeType(), c)
	}
}

func TestParseCategory(t *testing.T) {
	c, err := timesheet.ParseCategory("meeting")
	require.NoError(t, err)
	assert.Equal(t, timesheet.CategoryMeeting, c)

	c, err = timesheet.ParseCategory("  ")
	require.NoError(t, err)
	assert.Equal(t, timesheet.CategoryUnset, c)

	_, err = timesheet.ParseCategory("Meetting")
	assert.ErrorIs(t, err, timesheet.ErrUnknownCategory)
	assert.True(t, timesheet.IsClientError(err))
}

// =============================================================================
// DATE
// =============================================================================

func TestDate_DaysBetweenAndJSON(t *testing.T) {
	start := timesheet.MustParseDate("2025-01-01")
	end := timesheet.MustParseDate("2025-03-01")
	assert.Equal(t, 59, timesheet.DaysBetween(start, end))
	assert.Equal(t, -59, timesheet.DaysBetween(end, start))

	b, err := json.Marshal(struct {
		Due  timesheet.Date `json:"due"`
		Done timesheet.Date `json:"done"`
	}{Due: start})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2025-01-01","done":null}`, string(b))

	var back struct {
		Due timesheet.Date `json:"due"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2025-01-01"}`), &back))
	assert.True(t, back.Due.Equal(start))
}

func TestFixedClock_Today(t *testing.T) {
	clock := timesheet.FixedClock{At: time.Date(2025, 3, 5, 17, 30, 0, 0, time.UTC)}
	assert.Equal(t, "2025-03-05", timesheet.Today(clock).String())
}

// =============================================================================
// TIMESHEET
// =============================================================================

func TestTimesheet_HoursAndOvertime(t *testing.T) {
	ts := weekTimesheet(
		logOn(monday, entry("t-1", 9), entry("t-2", 3)),
		logOn(monday.AddDays(1), entry("t-1", 10)),
		logOn(monday.AddDays(2), entry("t-3", 12)),
		logOn(monday.AddDays(3), entry("t-1", 11)),
	)

	total, overtime := ts.Hours()
	assert.Equal(t, 45.0, total)
	assert.Equal(t, 5.0, overtime)
	assert.Equal(t, []timesheet.TaskID{"t-1", "t-2", "t-3"}, ts.TaskIDs())
}

func TestTimesheet_Validate(t *testing.T) {
	tests := []struct {
		name string
		ts   timesheet.Timesheet
		want error
	}{
		{"valid", weekTimesheet(logOn(monday, entry("t-1", 2))), nil},
		{"zero duration", weekTimesheet(logOn(monday, entry("t-1", 0))), timesheet.ErrInvalidDuration},
		{"negative duration", weekTimesheet(logOn(monday, entry("t-1", -1))), timesheet.ErrInvalidDuration},
		{"outside week", weekTimesheet(logOn(monday.AddDays(7), entry("t-1", 1))), timesheet.ErrInvalidTimesheet},
		{"weekend", weekTimesheet(logOn(monday.AddDays(5), entry("t-1", 1))), timesheet.ErrInvalidTimesheet},
		{"missing week", timesheet.Timesheet{UserID: "u-1", ApprovalStatus: timesheet.ApprovalPending}, timesheet.ErrInvalidWeek},
		{"rejected without reason", func() timesheet.Timesheet {
			ts := weekTimesheet()
			ts.ApprovalStatus = timesheet.ApprovalRejected
			return ts
		}(), timesheet.ErrRejectionReasonRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ts.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProject_Validate(t *testing.T) {
	p := timesheet.Project{
		ID:        "p-1",
		StartDate: timesheet.MustParseDate("2025-06-01"),
		EndDate:   timesheet.MustParseDate("2025-05-01"),
	}
	assert.ErrorIs(t, p.Validate(), timesheet.ErrInvalidTimeline)

	p.EndDate = timesheet.Date{}
	assert.NoError(t, p.Validate(), "open-ended projects are valid")
	assert.False(t, p.HasTimeline())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestNotFoundError_Unwraps(t *testing.T) {
	err := timesheet.TaskNotFound("t-9")
	assert.ErrorIs(t, err, timesheet.ErrTaskNotFound)
	assert.True(t, timesheet.IsNotFound(err))
	assert.Contains(t, err.Error(), "t-9")

	var nf *timesheet.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "task", nf.Kind)
}

// =============================================================================
// TASK STATUS MACHINE
// =============================================================================

func TestTransitionTask_CompleteStampsOnce(t *testing.T) {
	// GIVEN: an in-progress task
	task := timesheet.Task{ID: "t-1", Status: timesheet.StatusInProgress}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	// WHEN: completing it
	err := timesheet.TransitionTask(&task, timesheet.StatusCompleted, timesheet.DateOf(now), now)

	// THEN: completed_on is set and updated_at touched
	require.NoError(t, err)
	assert.Equal(t, timesheet.StatusCompleted, task.Status)
	assert.Equal(t, "2025-03-10", task.CompletedOn.String())
	assert.Equal(t, now, task.UpdatedAt)

	// AND: completing again is a no-op, moving back is refused
	later := now.AddDate(0, 0, 3)
	require.NoError(t, timesheet.TransitionTask(&task, timesheet.StatusCompleted, timesheet.DateOf(later), later))
	assert.Equal(t, "2025-03-10", task.CompletedOn.String())

	err = timesheet.TransitionTask(&task, timesheet.StatusInProgress, timesheet.DateOf(later), later)
	var te *timesheet.TransitionError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, timesheet.ErrInvalidTransition)
	assert.Equal(t, timesheet.StatusCompleted, task.Status)
}

func TestTransitionTask_StartAndStop(t *testing.T) {
	task := timesheet.Task{ID: "t-2"}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, timesheet.TransitionTask(&task, timesheet.StatusInProgress, timesheet.DateOf(now), now))
	assert.Equal(t, timesheet.StatusInProgress, task.Status)

	require.NoError(t, timesheet.TransitionTask(&task, timesheet.StatusNotStarted, timesheet.DateOf(now), now))
	assert.Equal(t, timesheet.StatusNotStarted, task.Status)
	assert.True(t, task.CompletedOn.IsZero())
}
