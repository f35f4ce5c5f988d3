/*
store.go - Persistence interfaces for the raw records

PURPOSE:
  The engine reads raw records through Reader and never writes them. The
  surrounding application (the api package, the seeding CLI) writes through
  Writer. Both store/sqlite and store/memory implement the full Store.

LOGGED HOURS:
  SaveTimesheet is the only path that adds or removes task entries, so it is
  also where Task.LoggedHours is kept equal to the sum of entry durations: for
  every task whose entries changed, the store recomputes logged_hours inside
  the same write and touches updated_at only when the sum moved. Approving or
  rejecting an unchanged timesheet leaves task timestamps alone.

NOT FOUND:
  Single-record getters return a *NotFoundError (errors.Is-compatible with the
  Err*NotFound sentinels), never (nil, nil).

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - store/memory/memory.go: in-memory implementation
*/
package timesheet

import "context"

// Reader is the engine's read access to raw records.
type Reader interface {
	GetUser(ctx context.Context, id UserID) (*User, error)
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	GetTask(ctx context.Context, id TaskID) (*Task, error)

	// GetTasks returns the requested tasks keyed by ID. Unknown IDs are absent
	// from the result rather than an error; callers decide.
	GetTasks(ctx context.Context, ids []TaskID) (map[TaskID]Task, error)

	// TasksByProject returns every task of the project, ordered by ID.
	TasksByProject(ctx context.Context, id ProjectID) ([]Task, error)

	// TasksByAssignees returns every task assigned to any of the users.
	TasksByAssignees(ctx context.Context, users []UserID) ([]Task, error)

	// TimesheetsByUser returns all of the user's timesheets, oldest week first.
	TimesheetsByUser(ctx context.Context, id UserID) ([]Timesheet, error)

	// TimesheetForWeek returns the user's timesheet for the week, or a
	// NotFoundError when none was submitted.
	TimesheetForWeek(ctx context.Context, id UserID, weekStart Date) (*Timesheet, error)
}

// Directory lists records for dashboards and listings.
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UsersByManager(ctx context.Context, manager UserID) ([]User, error)
	ProjectsByManager(ctx context.Context, manager UserID) ([]Project, error)

	// WeeksForUser returns the distinct week starts the user has timesheets
	// for, newest first.
	WeeksForUser(ctx context.Context, id UserID) ([]Date, error)
}

// Writer is owned by the surrounding application.
type Writer interface {
	SaveUser(ctx context.Context, u User) error
	SaveProject(ctx context.Context, p Project) error
	SaveTask(ctx context.Context, t Task) error

	GetTimesheet(ctx context.Context, id TimesheetID) (*Timesheet, error)

	// SaveTimesheet inserts or fully replaces a timesheet (its logs and entries
	// included) and returns every task whose entries changed: the union of the
	// tasks referenced before and after the write, sorted by ID. A different
	// timesheet already holding the same (user, week) yields ErrDuplicateTimesheet.
	SaveTimesheet(ctx context.Context, ts Timesheet) ([]TaskID, error)
}

// Store is the full raw-record store.
type Store interface {
	Reader
	Directory
	Writer
}
