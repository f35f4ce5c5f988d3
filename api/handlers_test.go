/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Raw-record writes publishing recompute events (inline transport)
- Derived-record reads after each write
- Error mapping (400 / 404 / 409)
- Metrics exposition
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-analytics/events"
	"github.com/warp/timesheet-analytics/metrics"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/store/sqlite"
	"github.com/warp/timesheet-analytics/timesheet"
)

// 2025-03-19 is a Wednesday; the previous week starts on 2025-03-10.
var (
	today    = timesheet.MustParseDate("2025-03-19")
	lastWeek = timesheet.MustParseDate("2025-03-10")
)

type testServer struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
	store   *sqlite.Store
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := timesheet.FixedClock{At: today.Time().Add(10 * time.Hour)}
	store.Clock = clock

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := metrics.New()
	engine := performance.NewEngine(store, store, log)
	engine.Clock = clock
	engine.Observer = rec
	pub := events.NewInline(&performance.Recomputer{Engine: engine}, rec)

	h := NewHandler(store, engine, pub, log)
	return &testServer{t: t, handler: h, router: NewRouter(h, rec), store: store}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

// must sends the request, requires the status, and decodes the body into out.
func (s *testServer) must(method, path string, body any, status int, out any) {
	s.t.Helper()
	rr := s.do(method, path, body)
	require.Equal(s.t, status, rr.Code, "%s %s: %s", method, path, rr.Body.String())
	if out != nil {
		require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), out))
	}
}

// seedTeam creates a manager, one report, a project and two tasks.
func (s *testServer) seedTeam() {
	s.must(http.MethodPost, "/api/users", CreateUserRequest{ID: "m-1", Username: "mona", Role: "manager"}, http.StatusCreated, nil)
	s.must(http.MethodPost, "/api/users", CreateUserRequest{ID: "u-1", Username: "uri", ManagerID: "m-1"}, http.StatusCreated, nil)
	s.must(http.MethodPost, "/api/projects", map[string]any{
		"id": "p-1", "name": "Portal", "budget": 10000, "manager_id": "m-1",
		"start_date": "2025-03-03", "end_date": "2025-04-28",
	}, http.StatusCreated, nil)
	s.must(http.MethodPost, "/api/tasks", TaskRequest{
		ID: "dev", ProjectID: "p-1", Name: "Build", Category: "development",
		AssignedTo: "u-1", EstimatedHours: 20, DueDate: timesheet.MustParseDate("2025-03-28"),
	}, http.StatusCreated, nil)
	s.must(http.MethodPost, "/api/tasks", TaskRequest{
		ID: "sync", ProjectID: "p-1", Name: "Sync", Category: "Meeting", AssignedTo: "u-1",
	}, http.StatusCreated, nil)
}

func day(offset int, entries ...TaskEntryDTO) DailyLogDTO {
	return DailyLogDTO{Date: lastWeek.AddDays(offset), Entries: entries}
}

func entry(task string, hours float64) TaskEntryDTO {
	return TaskEntryDTO{TaskID: task, Duration: hours}
}

func submitWeek(s *testServer) TimesheetDTO {
	var ts TimesheetDTO
	s.must(http.MethodPost, "/api/timesheets", TimesheetRequest{
		ID: "ts-1", UserID: "u-1", WeekStart: lastWeek,
		Logs: []DailyLogDTO{
			day(0, entry("dev", 6), entry("sync", 2)),
			day(1, entry("dev", 8)),
			day(2, entry("dev", 7), entry("sync", 1)),
		},
	}, http.StatusCreated, &ts)
	return ts
}

// =============================================================================
// TIMESHEETS
// =============================================================================

func TestCreateTimesheet_RecomputesDerivedRecords(t *testing.T) {
	// GIVEN
	s := setupTestServer(t)
	s.seedTeam()

	// WHEN
	ts := submitWeek(s)

	// THEN: the timesheet carries its totals and the manager of its user
	assert.Equal(t, 24.0, ts.TotalHours)
	assert.Zero(t, ts.OvertimeHours)
	assert.Equal(t, "m-1", ts.ManagerID)
	assert.Equal(t, string(timesheet.ApprovalPending), ts.ApprovalStatus)

	// AND: task efficiency is fresh
	var eff performance.TaskEfficiency
	s.must(http.MethodGet, "/api/tasks/dev/efficiency", nil, http.StatusOK, &eff)
	assert.Equal(t, 21.0, eff.ActualHours)
	assert.False(t, eff.Overdue)

	// AND: project performance is fresh
	var proj performance.ProjectPerformance
	s.must(http.MethodGet, "/api/projects/p-1/performance", nil, http.StatusOK, &proj)
	assert.Equal(t, 24.0, proj.TotalLoggedHours)

	// AND: the week's employee record is fresh
	var perf performance.EmployeePerformance
	s.must(http.MethodGet, "/api/users/u-1/performance/2025-03-10", nil, http.StatusOK, &perf)
	assert.Equal(t, 24.0, perf.TotalHours)
	assert.Equal(t, 21.0, perf.ProductiveHours)
	assert.Equal(t, 3.0, perf.AdminHours)
	assert.True(t, perf.Underutilized)

	var weeks []timesheet.Date
	s.must(http.MethodGet, "/api/users/u-1/weeks", nil, http.StatusOK, &weeks)
	assert.Equal(t, []timesheet.Date{lastWeek}, weeks)
}

func TestCreateTimesheet_Conflicts(t *testing.T) {
	s := setupTestServer(t)
	s.seedTeam()
	submitWeek(s)

	// same id
	rr := s.do(http.MethodPost, "/api/timesheets", TimesheetRequest{ID: "ts-1", UserID: "u-1", WeekStart: lastWeek.AddDays(7)})
	assert.Equal(t, http.StatusConflict, rr.Code)

	// same (user, week)
	rr = s.do(http.MethodPost, "/api/timesheets", TimesheetRequest{ID: "ts-2", UserID: "u-1", WeekStart: lastWeek})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCreateTimesheet_Rejects(t *testing.T) {
	s := setupTestServer(t)
	s.seedTeam()

	tests := []struct {
		name   string
		req    TimesheetRequest
		status int
	}{
		{"unknown user", TimesheetRequest{UserID: "ghost", WeekStart: lastWeek}, http.StatusNotFound},
		{"missing week", TimesheetRequest{UserID: "u-1"}, http.StatusBadRequest},
		{"unknown task", TimesheetRequest{UserID: "u-1", WeekStart: lastWeek,
			Logs: []DailyLogDTO{day(0, entry("ghost", 1))}}, http.StatusNotFound},
		{"zero duration", TimesheetRequest{UserID: "u-1", WeekStart: lastWeek,
			Logs: []DailyLogDTO{day(0, entry("dev", 0))}}, http.StatusBadRequest},
		{"weekend log", TimesheetRequest{UserID: "u-1", WeekStart: lastWeek,
			Logs: []DailyLogDTO{day(5, entry("dev", 1))}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(http.MethodPost, "/api/timesheets", tt.req)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestUpdateTimesheet_RemovingTaskRecomputesIt(t *testing.T) {
	// GIVEN: a week logging dev and sync
	s := setupTestServer(t)
	s.seedTeam()
	submitWeek(s)

	// WHEN: sync disappears from the timesheet
	var ts TimesheetDTO
	s.must(http.MethodPut, "/api/timesheets/ts-1", TimesheetRequest{
		Logs: []DailyLogDTO{day(0, entry("dev", 8))},
	}, http.StatusOK, &ts)

	// THEN: both tasks are recomputed from the new entries
	assert.Equal(t, 8.0, ts.TotalHours)

	var sync performance.TaskEfficiency
	s.must(http.MethodGet, "/api/tasks/sync/efficiency", nil, http.StatusOK, &sync)
	assert.Zero(t, sync.ActualHours)

	var task TaskDTO
	s.must(http.MethodGet, "/api/tasks/dev", nil, http.StatusOK, &task)
	assert.Equal(t, 8.0, task.LoggedHours)
}

func TestUpdateTimesheet_WeekIsFixed(t *testing.T) {
	s := setupTestServer(t)
	s.seedTeam()
	submitWeek(s)

	rr := s.do(http.MethodPut, "/api/timesheets/ts-1", TimesheetRequest{WeekStart: lastWeek.AddDays(7)})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestApproveAndReject(t *testing.T) {
	s := setupTestServer(t)
	s.seedTeam()
	submitWeek(s)

	var ts TimesheetDTO
	s.must(http.MethodPost, "/api/timesheets/ts-1/approve", nil, http.StatusOK, &ts)
	assert.Equal(t, string(timesheet.ApprovalApproved), ts.ApprovalStatus)

	// a rejection needs a reason
	rr := s.do(http.MethodPost, "/api/timesheets/ts-1/reject", RejectTimesheetRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.must(http.MethodPost, "/api/timesheets/ts-1/reject", RejectTimesheetRequest{Reason: "missing Friday"}, http.StatusOK, &ts)
	assert.Equal(t, string(timesheet.ApprovalRejected), ts.ApprovalStatus)
	assert.Equal(t, "missing Friday", ts.RejectionReason)

	// editing sends it back to pending
	s.must(http.MethodPut, "/api/timesheets/ts-1", TimesheetRequest{Logs: []DailyLogDTO{day(4, entry("dev", 8))}}, http.StatusOK, &ts)
	assert.Equal(t, string(timesheet.ApprovalPending), ts.ApprovalStatus)
	assert.Empty(t, ts.RejectionReason)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/timesheets/nope/approve", nil).Code)
}

func TestRejectTimesheet_MalformedBody(t *testing.T) {
	// GIVEN
	s := setupTestServer(t)
	s.seedTeam()
	submitWeek(s)

	// WHEN: the body is not JSON
	req := httptest.NewRequest(http.MethodPost, "/api/timesheets/ts-1/reject", strings.NewReader(`{"reason":`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	// THEN: the decode failure is reported, not a missing reason
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Invalid request body", body.Error)

	var ts TimesheetDTO
	s.must(http.MethodGet, "/api/timesheets/ts-1", nil, http.StatusOK, &ts)
	assert.Equal(t, string(timesheet.ApprovalPending), ts.ApprovalStatus)
}

// =============================================================================
// TASKS
// =============================================================================

func TestUpdateTask_RecomputesEmployeeWeeksAndOtherProjects(t *testing.T) {
	// GIVEN: u-1 logged 3h of Meeting time on sync; u-2 works only on p-2
	s := setupTestServer(t)
	s.seedTeam()
	submitWeek(s)
	s.must(http.MethodPost, "/api/users", CreateUserRequest{ID: "u-2", Username: "vera", ManagerID: "m-1"}, http.StatusCreated, nil)
	s.must(http.MethodPost, "/api/projects", map[string]any{"id": "p-2", "name": "Ops", "budget": 5000, "manager_id": "m-1"}, http.StatusCreated, nil)
	s.must(http.MethodPost, "/api/tasks", TaskRequest{ID: "ops", ProjectID: "p-2", Name: "Ops", AssignedTo: "u-2"}, http.StatusCreated, nil)

	var other performance.ProjectPerformance
	s.must(http.MethodGet, "/api/projects/p-2/performance", nil, http.StatusOK, &other)
	require.Zero(t, other.MultiProjectLoad)

	// WHEN: sync becomes productive work
	s.must(http.MethodPut, "/api/tasks/sync", TaskRequest{Name: "Sync", Category: "Development", AssignedTo: "u-1"}, http.StatusOK, nil)

	// THEN: the week that logged it is reclassified
	var perf performance.EmployeePerformance
	s.must(http.MethodGet, "/api/users/u-1/performance/2025-03-10", nil, http.StatusOK, &perf)
	assert.Equal(t, 24.0, perf.ProductiveHours)
	assert.Zero(t, perf.AdminHours)

	// WHEN: sync moves to u-2
	s.must(http.MethodPut, "/api/tasks/sync", TaskRequest{Name: "Sync", Category: "Development", AssignedTo: "u-2"}, http.StatusOK, nil)

	// THEN: p-2 now shares u-2 with p-1
	s.must(http.MethodGet, "/api/projects/p-2/performance", nil, http.StatusOK, &other)
	assert.Equal(t, 1, other.MultiProjectLoad)
}

func TestCompleteTask(t *testing.T) {
	// GIVEN
	s := setupTestServer(t)
	s.seedTeam()
	submitWeek(s)

	// WHEN
	var task TaskDTO
	s.must(http.MethodPost, "/api/tasks/dev/complete", nil, http.StatusOK, &task)

	// THEN: completion is stamped with today and the efficiency follows
	assert.Equal(t, string(timesheet.StatusCompleted), task.Status)
	assert.Equal(t, today, task.CompletedOn)

	var eff performance.TaskEfficiency
	s.must(http.MethodGet, "/api/tasks/dev/efficiency", nil, http.StatusOK, &eff)
	assert.True(t, eff.OnTime)
	require.NotNil(t, eff.CompletionTimeDays)
	assert.Equal(t, 0, *eff.CompletionTimeDays)

	var proj performance.ProjectPerformance
	s.must(http.MethodGet, "/api/projects/p-1/performance", nil, http.StatusOK, &proj)
	assert.Equal(t, 1, proj.TasksCompleted)
	assert.Equal(t, 1, proj.TasksRemaining)

	// AND: completing again is a no-op, reopening is a conflict
	s.must(http.MethodPost, "/api/tasks/dev/complete", nil, http.StatusOK, &task)
	assert.Equal(t, today, task.CompletedOn)

	rr := s.do(http.MethodPut, "/api/tasks/dev", TaskRequest{Name: "Build", Category: "Development", Status: "In Progress"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCreateTask_Validation(t *testing.T) {
	s := setupTestServer(t)
	s.seedTeam()

	tests := []struct {
		name   string
		req    TaskRequest
		status int
	}{
		{"unknown category", TaskRequest{ProjectID: "p-1", Category: "Napping"}, http.StatusBadRequest},
		{"unknown status", TaskRequest{ProjectID: "p-1", Status: "Blocked"}, http.StatusBadRequest},
		{"missing project", TaskRequest{Name: "orphan"}, http.StatusBadRequest},
		{"unknown project", TaskRequest{ProjectID: "ghost"}, http.StatusNotFound},
		{"negative estimate", TaskRequest{ProjectID: "p-1", EstimatedHours: -1}, http.StatusBadRequest},
		{"duplicate id", TaskRequest{ID: "dev", ProjectID: "p-1"}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(http.MethodPost, "/api/tasks", tt.req)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestCreateTask_GeneratesID(t *testing.T) {
	s := setupTestServer(t)
	s.seedTeam()

	var task TaskDTO
	s.must(http.MethodPost, "/api/tasks", TaskRequest{ProjectID: "p-1", Name: "Docs"}, http.StatusCreated, &task)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, string(timesheet.StatusNotStarted), task.Status)
	assert.True(t, task.Billable)

	var eff performance.TaskEfficiency
	s.must(http.MethodGet, "/api/tasks/"+task.ID+"/efficiency", nil, http.StatusOK, &eff)
}

func TestUpdateTask_CannotMoveProject(t *testing.T) {
	s := setupTestServer(t)
	s.seedTeam()
	s.must(http.MethodPost, "/api/projects", ProjectRequest{ID: "p-2", Name: "Other"}, http.StatusCreated, nil)

	rr := s.do(http.MethodPut, "/api/tasks/dev", TaskRequest{ProjectID: "p-2", Name: "Build"})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =============================================================================
// PROJECTS AND USERS
// =============================================================================

func TestProject_DefaultsAndUpdate(t *testing.T) {
	s := setupTestServer(t)

	var p ProjectDTO
	s.must(http.MethodPost, "/api/projects", ProjectRequest{ID: "p-9", Name: "Ops", Budget: 500}, http.StatusCreated, &p)
	assert.Equal(t, timesheet.DefaultHourlyRate, p.HourlyRate)
	assert.True(t, p.Billable)

	rate := 80.0
	s.must(http.MethodPut, "/api/projects/p-9", ProjectRequest{Name: "Ops", Budget: 500, HourlyRate: &rate}, http.StatusOK, &p)
	assert.Equal(t, 80.0, p.HourlyRate)

	var perf performance.ProjectPerformance
	s.must(http.MethodGet, "/api/projects/p-9/performance", nil, http.StatusOK, &perf)
	assert.Zero(t, perf.Progress)

	rr := s.do(http.MethodPut, "/api/projects/p-9", map[string]any{
		"name": "Ops", "start_date": "2025-03-10", "end_date": "2025-03-01",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/projects/nope", nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/projects", ProjectRequest{ID: "p-9"}).Code)
}

func TestCreateUser_Validation(t *testing.T) {
	s := setupTestServer(t)
	s.must(http.MethodPost, "/api/users", CreateUserRequest{ID: "u-1", Username: "uri"}, http.StatusCreated, nil)

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/users", CreateUserRequest{ID: "u-1", Username: "again"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/users", CreateUserRequest{Username: "x", Role: "overlord"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/users", CreateUserRequest{}).Code)

	var users []UserDTO
	s.must(http.MethodGet, "/api/users", nil, http.StatusOK, &users)
	require.Len(t, users, 1)
	assert.Equal(t, string(timesheet.RoleEmployee), users[0].Role)
}

func TestSnapshotAndSummary(t *testing.T) {
	// GIVEN
	s := setupTestServer(t)
	s.seedTeam()
	submitWeek(s)

	// WHEN / THEN: the employee snapshot covers all timesheets
	var snap performance.EmployeeSnapshot
	s.must(http.MethodGet, "/api/users/u-1/snapshot", nil, http.StatusOK, &snap)
	assert.Equal(t, 24.0, snap.TotalHours)

	// AND: the manager summary averages the report's two distinct tasks
	var sum performance.Summary
	s.must(http.MethodGet, "/api/users/m-1/summary", nil, http.StatusOK, &sum)
	require.NotNil(t, sum.Manager)
	assert.Equal(t, 2.0, sum.Manager.AverageTeamVelocity)
	assert.Zero(t, sum.Manager.UnderutilizedMembers)
	assert.NotEmpty(t, sum.Cards)

	var effs []performance.TaskEfficiency
	s.must(http.MethodGet, "/api/users/u-1/task-efficiency", nil, http.StatusOK, &effs)
	assert.Len(t, effs, 2)
	s.must(http.MethodGet, "/api/projects/p-1/task-efficiency", nil, http.StatusOK, &effs)
	assert.Len(t, effs, 2)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/users/ghost/snapshot", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/users/u-1/performance/2025-01-06", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/users/u-1/performance/last-week", nil).Code)
}

// =============================================================================
// INFRASTRUCTURE
// =============================================================================

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(_ context.Context, _ performance.Event) error {
	p.calls++
	return errors.New("broker down")
}

func (p *failingPublisher) Close() error { return nil }

func TestPublishFailure_KeepsRawWrite(t *testing.T) {
	// GIVEN: a transport that always fails
	s := setupTestServer(t)
	pub := &failingPublisher{}
	s.handler.Publisher = pub

	// WHEN
	s.must(http.MethodPost, "/api/projects", ProjectRequest{ID: "p-1", Name: "Portal"}, http.StatusCreated, nil)

	// THEN: the project exists, its derived record waits for a rebuild
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/projects/p-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/projects/p-1/performance", nil).Code)

	s.must(http.MethodPost, "/api/admin/rebuild", nil, http.StatusOK, nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/projects/p-1/performance", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t)
	s.seedTeam()

	rr := s.do(http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{route="/api/tasks",status="201"} 2`), body)
	assert.Contains(t, body, `performance_recompute_total{kind="project_performance"}`)
	assert.Contains(t, body, `performance_events_total`)
}
