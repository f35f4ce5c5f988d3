/*
errors.go - Error types for the timesheet domain and the engine built on it

ERROR CATEGORIES:
  1. Missing references - the subject (project, task, user, timesheet,
     derived record) does not exist; always surfaced, never defaulted
  2. Validation - raw-entity invariants rejected before storage
  3. Conflicts - duplicate timesheet week, illegal status transition

Degenerate input (zero hours, no tasks, no timeline) is NOT an error anywhere in
this module: every computation has a documented floor value instead.

USAGE:
  if timesheet.IsNotFound(err) { ... 404 ... }
  if errors.Is(err, timesheet.ErrTaskNotFound) { ... }
*/
package timesheet

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrTimesheetNotFound   = errors.New("timesheet not found")
	ErrPerformanceNotFound = errors.New("performance record not found")

	ErrInvalidWeek             = errors.New("invalid week: week start is required")
	ErrInvalidTimeline         = errors.New("invalid timeline: end before start")
	ErrInvalidDuration         = errors.New("invalid duration: must be positive")
	ErrInvalidAmount           = errors.New("invalid amount: must not be negative")
	ErrInvalidTask             = errors.New("invalid task")
	ErrInvalidTimesheet        = errors.New("invalid timesheet")
	ErrRejectionReasonRequired = errors.New("rejection reason is required")
	ErrUnknownCategory         = errors.New("unknown task category")

	// ErrDuplicateTimesheet is returned when a user already has a timesheet for the week.
	ErrDuplicateTimesheet = errors.New("timesheet already exists for week")

	// ErrDuplicateID is returned when a record with the same ID already exists.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrInvalidTransition is returned when a task status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names the missing subject and unwraps to the matching sentinel.
type NotFoundError struct {
	Kind string // "project", "task", "user", "timesheet", ...
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func ProjectNotFound(id ProjectID) error {
	return &NotFoundError{Kind: "project", ID: string(id), Err: ErrProjectNotFound}
}

func TaskNotFound(id TaskID) error {
	return &NotFoundError{Kind: "task", ID: string(id), Err: ErrTaskNotFound}
}

func UserNotFound(id UserID) error {
	return &NotFoundError{Kind: "user", ID: string(id), Err: ErrUserNotFound}
}

func TimesheetNotFound(id string) error {
	return &NotFoundError{Kind: "timesheet", ID: id, Err: ErrTimesheetNotFound}
}

// PerformanceNotFound is used by derived stores; kind names the record type.
func PerformanceNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id, Err: ErrPerformanceNotFound}
}

// TransitionError reports an illegal task status change.
type TransitionError struct {
	TaskID TaskID
	From   TaskStatus
	To     TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot move from %q to %q", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrTimesheetNotFound) ||
		errors.Is(err, ErrPerformanceNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidWeek) ||
		errors.Is(err, ErrInvalidTimeline) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTask) ||
		errors.Is(err, ErrInvalidTimesheet) ||
		errors.Is(err, ErrRejectionReasonRequired) ||
		errors.Is(err, ErrUnknownCategory)
}

// IsConflict returns true if the error is a uniqueness or state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateTimesheet) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInvalidTransition)
}
