package scenario_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/scenario"
	"github.com/warp/timesheet-analytics/store/memory"
	"github.com/warp/timesheet-analytics/timesheet"
)

// 2025-03-19 is a Wednesday; its week starts on 2025-03-17.
var wednesday = timesheet.MustParseDate("2025-03-19")

func load(t *testing.T, id string) (*memory.Store, *performance.Engine) {
	t.Helper()
	ctx := context.Background()
	clock := timesheet.FixedClock{At: wednesday.Time().Add(10 * time.Hour)}
	store := memory.New()
	store.Clock = clock

	_, err := scenario.Load(ctx, store, clock, id)
	require.NoError(t, err)

	engine := performance.NewEngine(store, store, nil)
	engine.Clock = clock
	_, err = engine.RecomputeAll(ctx, store)
	require.NoError(t, err)
	return store, engine
}

func TestList_EmbeddedScenarios(t *testing.T) {
	all, err := scenario.List()

	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.ID
		assert.NotEmpty(t, s.Name, s.ID)
		assert.NotEmpty(t, s.Description, s.ID)
	}
	assert.Equal(t, []string{"balanced-team", "overloaded-sprint", "stalled-project"}, ids)
}

func TestGet_Unknown(t *testing.T) {
	_, err := scenario.Get("nope")

	assert.ErrorIs(t, err, scenario.ErrUnknownScenario)
}

func TestParse_RequiresID(t *testing.T) {
	_, err := scenario.Parse([]byte("name: nameless\n"))
	assert.Error(t, err)

	_, err = scenario.Parse([]byte("id: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_BalancedTeam(t *testing.T) {
	// GIVEN / WHEN
	store, _ := load(t, "balanced-team")
	ctx := context.Background()

	// THEN: weeks are dated relative to the current Monday
	weeks, err := store.WeeksForUser(ctx, "emp-ben")
	require.NoError(t, err)
	assert.Equal(t, []timesheet.Date{
		timesheet.MustParseDate("2025-03-10"),
		timesheet.MustParseDate("2025-03-03"),
	}, weeks)

	// AND: logged hours are maintained from the entries
	api, err := store.GetTask(ctx, "portal-api")
	require.NoError(t, err)
	assert.Equal(t, 65.0, api.LoggedHours)

	ui, err := store.GetTask(ctx, "portal-ui")
	require.NoError(t, err)
	assert.Equal(t, timesheet.MustParseDate("2025-03-12"), ui.CompletedOn)

	// AND: derived records exist for the week
	perf, err := store.GetEmployeePerformance(ctx, "emp-ben", timesheet.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 40.0, perf.TotalHours)
	assert.True(t, perf.Balanced)
}

func TestLoad_OverloadedSprint(t *testing.T) {
	store, _ := load(t, "overloaded-sprint")
	ctx := context.Background()

	last, err := store.GetEmployeePerformance(ctx, "emp-eve", timesheet.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 50.0, last.ProductiveHours)
	assert.True(t, last.Overutilized)
	assert.Equal(t, 2, last.MultiProjectLoad)

	before, err := store.GetEmployeePerformance(ctx, "emp-eve", timesheet.MustParseDate("2025-03-03"))
	require.NoError(t, err)
	assert.True(t, before.Balanced, "45 productive hours is not overutilized")

	ts, err := store.TimesheetForWeek(ctx, "emp-eve", timesheet.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, timesheet.ApprovalRejected, ts.ApprovalStatus)
	assert.Equal(t, timesheet.UserID("mgr-dan"), ts.ManagerID)

	eff, err := store.GetTaskEfficiency(ctx, "billing-migration")
	require.NoError(t, err)
	assert.True(t, eff.Overdue)
}

func TestLoad_StalledProject(t *testing.T) {
	// GIVEN
	store, engine := load(t, "stalled-project")
	summaries := &performance.SummaryService{Directory: store, Engine: engine}

	// WHEN
	sum, err := summaries.ManagerSummary(context.Background(), "mgr-fay")

	// THEN: four untouched tasks stall the project, both reports sit in training
	require.NoError(t, err)
	assert.Equal(t, 1, sum.StalledProjects)
	assert.Equal(t, 2, sum.UnderutilizedMembers)
}

func TestLoad_Unknown(t *testing.T) {
	_, err := scenario.Load(context.Background(), memory.New(), timesheet.SystemClock{}, "nope")

	assert.ErrorIs(t, err, scenario.ErrUnknownScenario)
}
