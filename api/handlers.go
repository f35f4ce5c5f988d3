/*
handlers.go - HTTP API handlers for the timesheet analytics service

PURPOSE:
  Exposes raw-record mutations and derived-record reads via REST API. The
  mutation handlers own the recompute trigger points: each publishes a
  performance.Event after its raw write committed.

ENDPOINTS:
  Users:
    GET    /api/users                          List users
    POST   /api/users                          Create user
    GET    /api/users/{id}/snapshot            All-time snapshot (computed, never stored)
    GET    /api/users/{id}/weeks               Weeks with timesheets, newest first
    GET    /api/users/{id}/performance/{week}  Stored weekly performance
    GET    /api/users/{id}/task-efficiency     Efficiency of tasks assigned to the user
    GET    /api/users/{id}/summary             Dashboard summary cards

  Projects:
    GET    /api/projects                       List projects
    POST   /api/projects                       Create project
    GET    /api/projects/{id}                  Get project
    PUT    /api/projects/{id}                  Update project      -> project.updated
    GET    /api/projects/{id}/performance      Stored project performance
    GET    /api/projects/{id}/task-efficiency  Efficiency of the project's tasks

  Tasks:
    POST   /api/tasks                          Create task         -> task.updated
    GET    /api/tasks/{id}                     Get task
    PUT    /api/tasks/{id}                     Update task         -> task.updated / task.completed
    POST   /api/tasks/{id}/complete            Complete task       -> task.completed
    GET    /api/tasks/{id}/efficiency          Stored task efficiency

  Timesheets:
    POST   /api/timesheets                     Create              -> timesheet.created
    GET    /api/timesheets/{id}                Get with total/overtime hours
    PUT    /api/timesheets/{id}                Replace logs        -> timesheet.updated
    POST   /api/timesheets/{id}/approve        Approve             -> timesheet.approved
    POST   /api/timesheets/{id}/reject         Reject with reason  -> timesheet.updated

  Admin:
    POST   /api/admin/rebuild                  Rebuild every derived record now
    GET    /api/admin/rebuild                  Outcome of the last rebuild

RECOMPUTATION:
  A failed publish does not undo the raw write: it is logged, the request
  still succeeds, and `server recompute` rebuilds the derived records.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate id or week, illegal status transition)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/timesheet-analytics/events"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/timesheet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API reads and writes.
type Store interface {
	timesheet.Store
	performance.Store
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Engine    *performance.Engine
	Summaries *performance.SummaryService
	Publisher events.Publisher
	Clock     timesheet.Clock
	Log       *slog.Logger

	// Rebuilds serves the admin rebuild routes. NewHandler installs a
	// disabled scheduler; callers replace it to rebuild on an interval.
	Rebuilds *RebuildScheduler

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the handler around a store, an engine reading that store,
// and a publisher delivering events to it.
func NewHandler(store Store, engine *performance.Engine, pub events.Publisher, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		Store:     store,
		Engine:    engine,
		Summaries: &performance.SummaryService{Directory: store, Engine: engine},
		Publisher: pub,
		Clock:     engine.Clock,
		Log:       log.With(slog.String("component", "api")),
	}
	h.Rebuilds = NewRebuildScheduler(h, 0)
	return h
}

func (h *Handler) now() timesheet.Date {
	return timesheet.Today(h.Clock)
}

// publish hands ev to the transport. Failures are logged, never returned.
func (h *Handler) publish(ctx context.Context, ev performance.Event) {
	if h.Publisher == nil {
		return
	}
	if err := h.Publisher.Publish(ctx, ev); err != nil {
		h.Log.Warn("recompute event failed",
			slog.String("event_id", ev.ID),
			slog.String("kind", string(ev.Kind)),
			slog.Any("error", err))
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required", nil)
		return
	}

	role := timesheet.Role(req.Role)
	switch role {
	case "":
		role = timesheet.RoleEmployee
	case timesheet.RoleAdmin, timesheet.RoleManager, timesheet.RoleEmployee:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown role %q", req.Role), nil)
		return
	}

	u := timesheet.User{
		ID:        timesheet.UserID(orNewID(req.ID)),
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		ManagerID: timesheet.UserID(req.ManagerID),
		CreatedAt: h.Clock.Now(),
	}
	if _, err := h.Store.GetUser(r.Context(), u.ID); err == nil {
		writeDomainError(w, "User already exists", fmt.Errorf("user %s: %w", u.ID, timesheet.ErrDuplicateID))
		return
	}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// GetSnapshot returns the all-time snapshot, computed on read.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Engine.Snapshot(r.Context(), timesheet.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to compute snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) GetUserWeeks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := timesheet.UserID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetUser(ctx, id); err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	weeks, err := h.Store.WeeksForUser(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list weeks", err)
		return
	}
	if weeks == nil {
		weeks = []timesheet.Date{}
	}
	writeJSON(w, http.StatusOK, weeks)
}

func (h *Handler) GetEmployeePerformance(w http.ResponseWriter, r *http.Request) {
	week, err := timesheet.ParseDate(chi.URLParam(r, "week"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid week (use YYYY-MM-DD)", err)
		return
	}

	perf, err := h.Store.GetEmployeePerformance(r.Context(), timesheet.UserID(chi.URLParam(r, "id")), week)
	if err != nil {
		writeDomainError(w, "Failed to get employee performance", err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (h *Handler) GetUserTaskEfficiency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := timesheet.UserID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetUser(ctx, id); err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	tasks, err := h.Store.TasksByAssignees(ctx, []timesheet.UserID{id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}
	h.writeEfficiencies(w, r, tasks)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Summaries.Summary(r.Context(), timesheet.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to build summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p := projectFromRequest(req)
	p.ID = timesheet.ProjectID(orNewID(req.ID))
	p.CreatedAt = h.Clock.Now()
	if err := p.Validate(); err != nil {
		writeDomainError(w, "Invalid project", err)
		return
	}
	if _, err := h.Store.GetProject(ctx, p.ID); err == nil {
		writeDomainError(w, "Project already exists", fmt.Errorf("project %s: %w", p.ID, timesheet.ErrDuplicateID))
		return
	}
	if err := h.Store.SaveProject(ctx, p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create project", err)
		return
	}

	h.publish(ctx, performance.ProjectEvent(p.ID, h.Clock.Now()))
	writeJSON(w, http.StatusCreated, toProjectDTO(p))
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProject(r.Context(), timesheet.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(*p))
}

// UpdateProject replaces the project's mutable fields.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := timesheet.ProjectID(chi.URLParam(r, "id"))

	existing, err := h.Store.GetProject(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get project", err)
		return
	}
	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p := projectFromRequest(req)
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	if req.HourlyRate == nil {
		p.HourlyRate = existing.HourlyRate
	}
	if err := p.Validate(); err != nil {
		writeDomainError(w, "Invalid project", err)
		return
	}
	if err := h.Store.SaveProject(ctx, p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update project", err)
		return
	}

	h.publish(ctx, performance.ProjectEvent(p.ID, h.Clock.Now()))
	writeJSON(w, http.StatusOK, toProjectDTO(p))
}

func projectFromRequest(req ProjectRequest) timesheet.Project {
	p := timesheet.Project{
		Name:        req.Name,
		Description: req.Description,
		Budget:      req.Budget,
		HourlyRate:  timesheet.DefaultHourlyRate,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		ManagerID:   timesheet.UserID(req.ManagerID),
		Internal:    req.Internal,
		Billable:    true,
	}
	if req.HourlyRate != nil {
		p.HourlyRate = *req.HourlyRate
	}
	if req.Billable != nil {
		p.Billable = *req.Billable
	}
	return p
}

func (h *Handler) GetProjectPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.Store.GetProjectPerformance(r.Context(), timesheet.ProjectID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get project performance", err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (h *Handler) GetProjectTaskEfficiency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := timesheet.ProjectID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetProject(ctx, id); err != nil {
		writeDomainError(w, "Failed to get project", err)
		return
	}
	tasks, err := h.Store.TasksByProject(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}
	h.writeEfficiencies(w, r, tasks)
}

func (h *Handler) writeEfficiencies(w http.ResponseWriter, r *http.Request, tasks []timesheet.Task) {
	ids := make([]timesheet.TaskID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	effs, err := h.Store.TaskEfficiencies(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list task efficiency", err)
		return
	}
	if effs == nil {
		effs = []performance.TaskEfficiency{}
	}
	writeJSON(w, http.StatusOK, effs)
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	now := h.Clock.Now()
	t := timesheet.Task{
		ID:        timesheet.TaskID(orNewID(req.ID)),
		ProjectID: timesheet.ProjectID(req.ProjectID),
		Status:    timesheet.StatusNotStarted,
		Billable:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.applyTaskRequest(&t, req); err != nil {
		writeDomainError(w, "Invalid task", err)
		return
	}
	if _, err := h.Store.GetTask(ctx, t.ID); err == nil {
		writeDomainError(w, "Task already exists", fmt.Errorf("task %s: %w", t.ID, timesheet.ErrDuplicateID))
		return
	}
	if err := h.Store.SaveTask(ctx, t); err != nil {
		writeDomainError(w, "Failed to create task", err)
		return
	}

	h.publish(ctx, performance.TaskEvent(taskEventKind(t), t, now))
	writeJSON(w, http.StatusCreated, toTaskDTO(t))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.GetTask(r.Context(), timesheet.TaskID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get task", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(*t))
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := h.Store.GetTask(ctx, timesheet.TaskID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get task", err)
		return
	}
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProjectID != "" && timesheet.ProjectID(req.ProjectID) != t.ProjectID {
		writeError(w, http.StatusBadRequest, "A task cannot move to another project", nil)
		return
	}

	before := *t
	if err := h.applyTaskRequest(t, req); err != nil {
		writeDomainError(w, "Invalid task", err)
		return
	}
	t.UpdatedAt = h.Clock.Now()
	if err := h.Store.SaveTask(ctx, *t); err != nil {
		writeDomainError(w, "Failed to update task", err)
		return
	}

	ev := performance.TaskEvent(taskEventKind(*t), *t, t.UpdatedAt)
	if err := h.widenTaskEvent(ctx, &ev, before, *t); err != nil {
		h.Log.Warn("recompute scope limited to the task's project",
			slog.String("task_id", string(t.ID)), slog.Any("error", err))
	}
	h.publish(ctx, ev)
	writeJSON(w, http.StatusOK, toTaskDTO(*t))
}

// widenTaskEvent adds the subjects a task change reaches outside its own
// project. A reassignment changes the contention count of every project the
// old and new assignee work in. A category move between productive and admin
// time changes every employee week that logged hours to the task.
func (h *Handler) widenTaskEvent(ctx context.Context, ev *performance.Event, before, after timesheet.Task) error {
	if before.AssignedTo != after.AssignedTo {
		var users []timesheet.UserID
		for _, u := range []timesheet.UserID{before.AssignedTo, after.AssignedTo} {
			if u != "" {
				users = append(users, u)
			}
		}
		if len(users) > 0 {
			tasks, err := h.Store.TasksByAssignees(ctx, users)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				ev.ProjectIDs = append(ev.ProjectIDs, t.ProjectID)
			}
		}
	}

	if before.Category.TimeType() == after.Category.TimeType() {
		return nil
	}
	users, err := h.Store.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		sheets, err := h.Store.TimesheetsByUser(ctx, u.ID)
		if err != nil {
			return err
		}
		for _, ts := range sheets {
			if slices.Contains(ts.TaskIDs(), after.ID) {
				ev.Employees = append(ev.Employees, performance.EmployeeWeek{UserID: ts.UserID, WeekStart: ts.WeekStart})
			}
		}
	}
	return nil
}

// CompleteTask moves the task to Completed, stamping today as its completion date.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := h.Store.GetTask(ctx, timesheet.TaskID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get task", err)
		return
	}
	if err := timesheet.TransitionTask(t, timesheet.StatusCompleted, h.now(), h.Clock.Now()); err != nil {
		writeDomainError(w, "Cannot complete task", err)
		return
	}
	if err := h.Store.SaveTask(ctx, *t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to complete task", err)
		return
	}

	h.publish(ctx, performance.TaskEvent(performance.EventTaskCompleted, *t, h.Clock.Now()))
	writeJSON(w, http.StatusOK, toTaskDTO(*t))
}

// applyTaskRequest copies the request onto t. Status changes go through the
// task state machine.
func (h *Handler) applyTaskRequest(t *timesheet.Task, req TaskRequest) error {
	category, err := timesheet.ParseCategory(req.Category)
	if err != nil {
		return err
	}
	t.Name = req.Name
	t.Description = req.Description
	t.Category = category
	t.AssignedTo = timesheet.UserID(req.AssignedTo)
	t.EstimatedHours = req.EstimatedHours
	t.DueDate = req.DueDate
	if req.Billable != nil {
		t.Billable = *req.Billable
	}

	if req.Status != "" {
		status, err := timesheet.ParseTaskStatus(req.Status)
		if err != nil {
			return err
		}
		if err := timesheet.TransitionTask(t, status, h.now(), h.Clock.Now()); err != nil {
			return err
		}
	}
	return t.Validate()
}

func taskEventKind(t timesheet.Task) performance.EventKind {
	if t.IsCompleted() {
		return performance.EventTaskCompleted
	}
	return performance.EventTaskUpdated
}

func (h *Handler) GetTaskEfficiency(w http.ResponseWriter, r *http.Request) {
	eff, err := h.Store.GetTaskEfficiency(r.Context(), timesheet.TaskID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get task efficiency", err)
		return
	}
	writeJSON(w, http.StatusOK, eff)
}

// =============================================================================
// TIMESHEET HANDLERS
// =============================================================================

func (h *Handler) CreateTimesheet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req TimesheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.Store.GetUser(ctx, timesheet.UserID(req.UserID))
	if err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	now := h.Clock.Now()
	ts := timesheet.Timesheet{
		ID:             timesheet.TimesheetID(orNewID(req.ID)),
		UserID:         user.ID,
		ManagerID:      user.ManagerID,
		WeekStart:      req.WeekStart,
		ApprovalStatus: timesheet.ApprovalPending,
		Logs:           fromLogDTOs(req.Logs),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := h.Store.GetTimesheet(ctx, ts.ID); err == nil {
		writeDomainError(w, "Timesheet already exists", fmt.Errorf("timesheet %s: %w", ts.ID, timesheet.ErrDuplicateID))
		return
	}

	h.saveTimesheet(w, r, ts, performance.EventTimesheetCreated, http.StatusCreated)
}

func (h *Handler) GetTimesheet(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Store.GetTimesheet(r.Context(), timesheet.TimesheetID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get timesheet", err)
		return
	}
	writeJSON(w, http.StatusOK, toTimesheetDTO(*ts))
}

// UpdateTimesheet replaces the logs. The week is fixed at creation and an
// edited timesheet goes back to Pending.
func (h *Handler) UpdateTimesheet(w http.ResponseWriter, r *http.Request) {
	ts, ok := h.loadTimesheet(w, r)
	if !ok {
		return
	}
	var req TimesheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.WeekStart.IsZero() && !req.WeekStart.Equal(ts.WeekStart) {
		writeDomainError(w, "The week of a timesheet cannot change",
			fmt.Errorf("timesheet %s: week_start %s: %w", ts.ID, req.WeekStart, timesheet.ErrInvalidTimesheet))
		return
	}

	ts.Logs = fromLogDTOs(req.Logs)
	ts.ApprovalStatus = timesheet.ApprovalPending
	ts.RejectionReason = ""
	ts.UpdatedAt = h.Clock.Now()
	h.saveTimesheet(w, r, *ts, performance.EventTimesheetUpdated, http.StatusOK)
}

func (h *Handler) ApproveTimesheet(w http.ResponseWriter, r *http.Request) {
	ts, ok := h.loadTimesheet(w, r)
	if !ok {
		return
	}
	ts.ApprovalStatus = timesheet.ApprovalApproved
	ts.RejectionReason = ""
	ts.UpdatedAt = h.Clock.Now()
	h.saveTimesheet(w, r, *ts, performance.EventTimesheetApproved, http.StatusOK)
}

func (h *Handler) RejectTimesheet(w http.ResponseWriter, r *http.Request) {
	ts, ok := h.loadTimesheet(w, r)
	if !ok {
		return
	}
	var req RejectTimesheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ts.ApprovalStatus = timesheet.ApprovalRejected
	ts.RejectionReason = req.Reason
	ts.UpdatedAt = h.Clock.Now()
	h.saveTimesheet(w, r, *ts, performance.EventTimesheetUpdated, http.StatusOK)
}

func (h *Handler) loadTimesheet(w http.ResponseWriter, r *http.Request) (*timesheet.Timesheet, bool) {
	ts, err := h.Store.GetTimesheet(r.Context(), timesheet.TimesheetID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get timesheet", err)
		return nil, false
	}
	return ts, true
}

// saveTimesheet validates, writes, and publishes the event for the tasks whose
// entries changed.
func (h *Handler) saveTimesheet(w http.ResponseWriter, r *http.Request, ts timesheet.Timesheet, kind performance.EventKind, status int) {
	ctx := r.Context()
	if err := ts.Validate(); err != nil {
		writeDomainError(w, "Invalid timesheet", err)
		return
	}
	touched, err := h.Store.SaveTimesheet(ctx, ts)
	if err != nil {
		writeDomainError(w, "Failed to save timesheet", err)
		return
	}

	h.publish(ctx, performance.TimesheetEvent(kind, ts, touched, h.Clock.Now()))
	writeJSON(w, status, toTimesheetDTO(ts))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error's category.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	var transition *timesheet.TransitionError
	switch {
	case timesheet.IsNotFound(err):
		return http.StatusNotFound
	case timesheet.IsConflict(err), errors.As(err, &transition):
		return http.StatusConflict
	case timesheet.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func orNewID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
