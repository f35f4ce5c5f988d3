/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Raw records have no JSON
  shape of their own; derived records (performance package) already carry
  their wire tags and are returned as-is.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Calendar dates are YYYY-MM-DD strings (timesheet.Date), timestamps RFC 3339.

VALIDATION:
  Validation is done in handlers and the timesheet package, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/timesheet-analytics/timesheet"
)

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role"`
	ManagerID string `json:"manager_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateUserRequest struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	ManagerID string `json:"manager_id"`
}

func toUserDTO(u timesheet.User) UserDTO {
	return UserDTO{
		ID:        string(u.ID),
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		ManagerID: string(u.ManagerID),
		CreatedAt: formatTime(u.CreatedAt),
	}
}

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectDTO struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Budget      float64        `json:"budget"`
	HourlyRate  float64        `json:"hourly_rate"`
	StartDate   timesheet.Date `json:"start_date"`
	EndDate     timesheet.Date `json:"end_date"`
	ManagerID   string         `json:"manager_id,omitempty"`
	Internal    bool           `json:"internal"`
	Billable    bool           `json:"billable"`
	CreatedAt   string         `json:"created_at,omitempty"`
}

// ProjectRequest creates or replaces a project. A missing hourly_rate takes the
// default rate; a missing billable flag means billable.
type ProjectRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Budget      float64        `json:"budget"`
	HourlyRate  *float64       `json:"hourly_rate"`
	StartDate   timesheet.Date `json:"start_date"`
	EndDate     timesheet.Date `json:"end_date"`
	ManagerID   string         `json:"manager_id"`
	Internal    bool           `json:"internal"`
	Billable    *bool          `json:"billable"`
}

func toProjectDTO(p timesheet.Project) ProjectDTO {
	return ProjectDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		Description: p.Description,
		Budget:      p.Budget,
		HourlyRate:  p.HourlyRate,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		ManagerID:   string(p.ManagerID),
		Internal:    p.Internal,
		Billable:    p.Billable,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

// =============================================================================
// TASKS
// =============================================================================

type TaskDTO struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Category       string         `json:"category"`
	Billable       bool           `json:"billable"`
	AssignedTo     string         `json:"assigned_to,omitempty"`
	Status         string         `json:"status"`
	EstimatedHours float64        `json:"estimated_hours"`
	LoggedHours    float64        `json:"logged_hours"`
	DueDate        timesheet.Date `json:"due_date"`
	CompletedOn    timesheet.Date `json:"completed_on"`
	CreatedAt      string         `json:"created_at,omitempty"`
	UpdatedAt      string         `json:"updated_at,omitempty"`
}

// TaskRequest creates or updates a task. The project of an existing task
// cannot change; logged hours are maintained from timesheets only.
type TaskRequest struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Category       string         `json:"category"`
	Billable       *bool          `json:"billable"`
	AssignedTo     string         `json:"assigned_to"`
	Status         string         `json:"status"`
	EstimatedHours float64        `json:"estimated_hours"`
	DueDate        timesheet.Date `json:"due_date"`
}

func toTaskDTO(t timesheet.Task) TaskDTO {
	return TaskDTO{
		ID:             string(t.ID),
		ProjectID:      string(t.ProjectID),
		Name:           t.Name,
		Description:    t.Description,
		Category:       string(t.Category),
		Billable:       t.Billable,
		AssignedTo:     string(t.AssignedTo),
		Status:         string(t.Status),
		EstimatedHours: t.EstimatedHours,
		LoggedHours:    t.LoggedHours,
		DueDate:        t.DueDate,
		CompletedOn:    t.CompletedOn,
		CreatedAt:      formatTime(t.CreatedAt),
		UpdatedAt:      formatTime(t.UpdatedAt),
	}
}

// =============================================================================
// TIMESHEETS
// =============================================================================

type TaskEntryDTO struct {
	ID       string  `json:"id,omitempty"`
	TaskID   string  `json:"task_id"`
	Duration float64 `json:"duration"`
}

type DailyLogDTO struct {
	ID      string         `json:"id,omitempty"`
	Date    timesheet.Date `json:"date"`
	Entries []TaskEntryDTO `json:"entries"`
}

type TimesheetDTO struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	ManagerID       string         `json:"manager_id,omitempty"`
	WeekStart       timesheet.Date `json:"week_start"`
	ApprovalStatus  string         `json:"approval_status"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	Logs            []DailyLogDTO  `json:"logs"`
	TotalHours      float64        `json:"total_hours"`
	OvertimeHours   float64        `json:"overtime_hours"`
	CreatedAt       string         `json:"created_at,omitempty"`
	UpdatedAt       string         `json:"updated_at,omitempty"`
}

// TimesheetRequest creates a timesheet or replaces its logs.
type TimesheetRequest struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	WeekStart timesheet.Date `json:"week_start"`
	Logs      []DailyLogDTO  `json:"logs"`
}

type RejectTimesheetRequest struct {
	Reason string `json:"reason"`
}

func toTimesheetDTO(ts timesheet.Timesheet) TimesheetDTO {
	total, overtime := ts.Hours()
	logs := make([]DailyLogDTO, len(ts.Logs))
	for i, l := range ts.Logs {
		entries := make([]TaskEntryDTO, len(l.Entries))
		for j, e := range l.Entries {
			entries[j] = TaskEntryDTO{ID: e.ID, TaskID: string(e.TaskID), Duration: e.Duration}
		}
		logs[i] = DailyLogDTO{ID: l.ID, Date: l.Date, Entries: entries}
	}
	return TimesheetDTO{
		ID:              string(ts.ID),
		UserID:          string(ts.UserID),
		ManagerID:       string(ts.ManagerID),
		WeekStart:       ts.WeekStart,
		ApprovalStatus:  string(ts.ApprovalStatus),
		RejectionReason: ts.RejectionReason,
		Logs:            logs,
		TotalHours:      total,
		OvertimeHours:   overtime,
		CreatedAt:       formatTime(ts.CreatedAt),
		UpdatedAt:       formatTime(ts.UpdatedAt),
	}
}

func fromLogDTOs(dtos []DailyLogDTO) []timesheet.DailyLog {
	logs := make([]timesheet.DailyLog, len(dtos))
	for i, d := range dtos {
		entries := make([]timesheet.TaskEntry, len(d.Entries))
		for j, e := range d.Entries {
			entries[j] = timesheet.TaskEntry{ID: e.ID, TaskID: timesheet.TaskID(e.TaskID), Duration: e.Duration}
		}
		logs[i] = timesheet.DailyLog{ID: d.ID, Date: d.Date, Entries: entries}
	}
	return logs
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
