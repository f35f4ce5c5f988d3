/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements timesheet.Store (raw records) and performance.Store (derived
  records) on one SQLite database.

INTERFACES IMPLEMENTED:
  timesheet.Reader:    engine read access to raw records
  timesheet.Directory: listings for dashboards
  timesheet.Writer:    application writes
  performance.Store:   derived-record upserts

KEY TABLES:
  users, projects, tasks:           raw records
  timesheets, daily_logs,
  task_entries:                     weekly timesheets, cascading on delete
  project_performance,
  task_efficiency,
  employee_performance:             derived records, one row per natural key

LOGGED HOURS:
  SaveTimesheet replaces the timesheet's logs and entries and, in the same SQL
  transaction, recomputes tasks.logged_hours from task_entries for every task
  whose entries changed. updated_at moves only when the sum differs, so an
  approval leaves the stalled-task clock alone.

UPSERTS:
  Derived records are written with INSERT ... ON CONFLICT DO UPDATE over every
  column, so a write fully replaces the row or fails and leaves it untouched.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block the
  single writer.

USAGE:
  store, err := sqlite.New("./data/timesheet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - timesheet/store.go: raw store interfaces
  - performance/store.go: derived store interface
  - store/memory/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/timesheet"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	// Clock stamps task updated_at when a timesheet save changes logged hours.
	Clock timesheet.Clock

	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, Clock: timesheet.SystemClock{}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT,
		first_name TEXT,
		last_name TEXT,
		role TEXT NOT NULL,
		manager_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_manager
		ON users(manager_id) WHERE manager_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		budget REAL NOT NULL DEFAULT 0,
		hourly_rate REAL NOT NULL DEFAULT 50,
		start_date TEXT,
		end_date TEXT,
		manager_id TEXT,
		internal BOOLEAN DEFAULT FALSE,
		billable BOOLEAN DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_manager
		ON projects(manager_id) WHERE manager_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT NOT NULL DEFAULT '',
		billable BOOLEAN DEFAULT TRUE,
		assigned_to TEXT,
		status TEXT NOT NULL DEFAULT 'Not Started',
		estimated_hours REAL NOT NULL DEFAULT 0,
		logged_hours REAL NOT NULL DEFAULT 0,
		due_date TEXT,
		completed_on TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project
		ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_assigned
		ON tasks(assigned_to) WHERE assigned_to IS NOT NULL;

	-- One timesheet per user and week
	CREATE TABLE IF NOT EXISTS timesheets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		manager_id TEXT,
		week_start TEXT NOT NULL,
		approval_status TEXT NOT NULL DEFAULT 'Pending',
		rejection_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, week_start)
	);

	-- Logs and entries are keyed by position within their parent
	CREATE TABLE IF NOT EXISTS daily_logs (
		timesheet_id TEXT NOT NULL REFERENCES timesheets(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		log_id TEXT,
		date TEXT NOT NULL,
		PRIMARY KEY (timesheet_id, position)
	);

	CREATE TABLE IF NOT EXISTS task_entries (
		timesheet_id TEXT NOT NULL,
		log_position INTEGER NOT NULL,
		position INTEGER NOT NULL,
		entry_id TEXT,
		task_id TEXT NOT NULL REFERENCES tasks(id),
		duration REAL NOT NULL CHECK (duration > 0),
		PRIMARY KEY (timesheet_id, log_position, position),
		FOREIGN KEY (timesheet_id, log_position)
			REFERENCES daily_logs(timesheet_id, position) ON DELETE CASCADE
	);

	-- logged_hours recomputation (hot path on every timesheet save)
	CREATE INDEX IF NOT EXISTS idx_task_entries_task
		ON task_entries(task_id);

	-- Derived records
	CREATE TABLE IF NOT EXISTS project_performance (
		project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
		total_logged_hours REAL NOT NULL,
		tasks_completed INTEGER NOT NULL,
		tasks_remaining INTEGER NOT NULL,
		progress_percentage REAL NOT NULL,
		average_task_duration REAL NOT NULL,
		tasks_per_week REAL NOT NULL,
		project_budget REAL NOT NULL,
		budget_used REAL NOT NULL,
		budget_remaining REAL NOT NULL,
		over_budget BOOLEAN NOT NULL,
		project_days_total INTEGER NOT NULL,
		project_days_elapsed INTEGER NOT NULL,
		progress_expected REAL NOT NULL,
		on_track BOOLEAN,
		burn_rate REAL NOT NULL,
		weeks_remaining REAL NOT NULL,
		forecasted_budget_burn REAL NOT NULL,
		budget_deviation REAL NOT NULL,
		budget_warning BOOLEAN NOT NULL,
		stalled_tasks_count INTEGER NOT NULL,
		multi_project_load INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_efficiency (
		task_id TEXT PRIMARY KEY REFERENCES tasks(id) ON DELETE CASCADE,
		project_id TEXT NOT NULL,
		estimated_hours REAL NOT NULL,
		actual_hours REAL NOT NULL,
		efficiency_ratio REAL NOT NULL,
		overdue BOOLEAN NOT NULL,
		on_time BOOLEAN NOT NULL,
		completion_time_days INTEGER,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employee_performance (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		week_start TEXT NOT NULL,
		total_hours REAL NOT NULL,
		productive_hours REAL NOT NULL,
		admin_hours REAL NOT NULL,
		utilization_rate REAL NOT NULL,
		overutilized BOOLEAN NOT NULL,
		underutilized BOOLEAN NOT NULL,
		balanced BOOLEAN NOT NULL,
		context_switch_count INTEGER NOT NULL,
		average_task_per_day REAL NOT NULL,
		multi_project_load INTEGER NOT NULL,
		high_utilization_weeks INTEGER NOT NULL,
		utilization_trend REAL NOT NULL,
		project_time_allocation_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, week_start)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, username, email, first_name, last_name, role, manager_id, created_at`

func (s *Store) SaveUser(ctx context.Context, u timesheet.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			role = excluded.role,
			manager_id = excluded.manager_id`,
		u.ID, u.Username, nullString(u.Email), nullString(u.FirstName), nullString(u.LastName),
		u.Role, nullString(string(u.ManagerID)), formatTime(createdAt(u.CreatedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id timesheet.UserID) (*timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users, err := s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, timesheet.UserNotFound(id)
	}
	return &users[0], nil
}

func (s *Store) ListUsers(ctx context.Context) ([]timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (s *Store) UsersByManager(ctx context.Context, manager timesheet.UserID) ([]timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE manager_id = ? ORDER BY id`, manager)
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]timesheet.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []timesheet.User
	for rows.Next() {
		var (
			u                       timesheet.User
			email, first, last, mgr sql.NullString
			created                 string
		)
		if err := rows.Scan(&u.ID, &u.Username, &email, &first, &last, &u.Role, &mgr, &created); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Email, u.FirstName, u.LastName = email.String, first.String, last.String
		u.ManagerID = timesheet.UserID(mgr.String)
		u.CreatedAt = parseTime(created)
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// PROJECTS
// =============================================================================

const projectColumns = `id, name, description, budget, hourly_rate, start_date, end_date,
	manager_id, internal, billable, created_at`

func (s *Store) SaveProject(ctx context.Context, p timesheet.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			budget = excluded.budget,
			hourly_rate = excluded.hourly_rate,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			manager_id = excluded.manager_id,
			internal = excluded.internal,
			billable = excluded.billable`,
		p.ID, p.Name, nullString(p.Description), p.Budget, p.HourlyRate,
		nullDate(p.StartDate), nullDate(p.EndDate), nullString(string(p.ManagerID)),
		p.Internal, p.Billable, formatTime(createdAt(p.CreatedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id timesheet.ProjectID) (*timesheet.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects, err := s.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, timesheet.ProjectNotFound(id)
	}
	return &projects[0], nil
}

func (s *Store) ListProjects(ctx context.Context) ([]timesheet.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
}

func (s *Store) ProjectsByManager(ctx context.Context, manager timesheet.UserID) ([]timesheet.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects WHERE manager_id = ? ORDER BY id`, manager)
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]timesheet.Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []timesheet.Project
	for rows.Next() {
		var (
			p                     timesheet.Project
			desc, start, end, mgr sql.NullString
			created               string
		)
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.Budget, &p.HourlyRate, &start, &end,
			&mgr, &p.Internal, &p.Billable, &created); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Description = desc.String
		p.StartDate = parseDate(start)
		p.EndDate = parseDate(end)
		p.ManagerID = timesheet.UserID(mgr.String)
		p.CreatedAt = parseTime(created)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// =============================================================================
// TASKS
// =============================================================================

const taskColumns = `id, project_id, name, description, category, billable, assigned_to, status,
	estimated_hours, logged_hours, due_date, completed_on, created_at, updated_at`

func (s *Store) SaveTask(ctx context.Context, t timesheet.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE id = ?`, t.ProjectID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}
	if exists == 0 {
		return timesheet.ProjectNotFound(t.ProjectID)
	}

	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = s.Clock.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			billable = excluded.billable,
			assigned_to = excluded.assigned_to,
			status = excluded.status,
			estimated_hours = excluded.estimated_hours,
			logged_hours = excluded.logged_hours,
			due_date = excluded.due_date,
			completed_on = excluded.completed_on,
			updated_at = excluded.updated_at`,
		t.ID, t.ProjectID, t.Name, nullString(t.Description), string(t.Category), t.Billable,
		nullString(string(t.AssignedTo)), string(t.Status), t.EstimatedHours, t.LoggedHours,
		nullDate(t.DueDate), nullDate(t.CompletedOn),
		formatTime(createdAt(t.CreatedAt)), formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id timesheet.TaskID) (*timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := queryTasks(ctx, s.db, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, timesheet.TaskNotFound(id)
	}
	return &tasks[0], nil
}

func (s *Store) GetTasks(ctx context.Context, ids []timesheet.TaskID) (map[timesheet.TaskID]timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[timesheet.TaskID]timesheet.Task, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	tasks, err := queryTasks(ctx, s.db,
		`SELECT `+taskColumns+` FROM tasks WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out, nil
}

func (s *Store) TasksByProject(ctx context.Context, id timesheet.ProjectID) ([]timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTasks(ctx, s.db, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY id`, id)
}

func (s *Store) TasksByAssignees(ctx context.Context, users []timesheet.UserID) ([]timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(users) == 0 {
		return nil, nil
	}
	args := make([]any, len(users))
	for i, u := range users {
		args[i] = string(u)
	}
	return queryTasks(ctx, s.db,
		`SELECT `+taskColumns+` FROM tasks WHERE assigned_to IN (`+placeholders(len(users))+`) ORDER BY id`, args...)
}

func queryTasks(ctx context.Context, db queryer, query string, args ...any) ([]timesheet.Task, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []timesheet.Task
	for rows.Next() {
		var (
			t                                timesheet.Task
			desc, assigned, due, completedOn sql.NullString
			category, status                 string
			created, updated                 string
		)
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &desc, &category, &t.Billable, &assigned,
			&status, &t.EstimatedHours, &t.LoggedHours, &due, &completedOn, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Description = desc.String
		t.Category = timesheet.Category(category)
		t.AssignedTo = timesheet.UserID(assigned.String)
		t.Status = timesheet.TaskStatus(status)
		t.DueDate = parseDate(due)
		t.CompletedOn = parseDate(completedOn)
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// =============================================================================
// TIMESHEETS
// =============================================================================

const timesheetColumns = `id, user_id, manager_id, week_start, approval_status, rejection_reason,
	created_at, updated_at`

// SaveTimesheet replaces the timesheet with its logs and entries, then brings
// logged_hours of every touched task back in line, all in one transaction.
func (s *Store) SaveTimesheet(ctx context.Context, ts timesheet.Timesheet) ([]timesheet.TaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := checkReferences(ctx, sqlTx, ts); err != nil {
		return nil, err
	}

	touched := make(map[timesheet.TaskID]bool)
	oldTasks, err := entryTaskIDs(ctx, sqlTx, ts.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range oldTasks {
		touched[id] = true
	}
	for _, id := range ts.TaskIDs() {
		touched[id] = true
	}

	now := s.Clock.Now()
	updated := ts.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO timesheets (`+timesheetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			manager_id = excluded.manager_id,
			week_start = excluded.week_start,
			approval_status = excluded.approval_status,
			rejection_reason = excluded.rejection_reason,
			updated_at = excluded.updated_at`,
		ts.ID, ts.UserID, nullString(string(ts.ManagerID)), ts.WeekStart.String(),
		string(ts.ApprovalStatus), nullString(ts.RejectionReason),
		formatTime(createdAt(ts.CreatedAt)), formatTime(updated),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, timesheet.ErrDuplicateTimesheet
		}
		return nil, fmt.Errorf("failed to save timesheet: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM daily_logs WHERE timesheet_id = ?`, ts.ID); err != nil {
		return nil, fmt.Errorf("failed to clear daily logs: %w", err)
	}
	for i, log := range ts.Logs {
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO daily_logs (timesheet_id, position, log_id, date) VALUES (?, ?, ?, ?)`,
			ts.ID, i, nullString(log.ID), log.Date.String(),
		); err != nil {
			return nil, fmt.Errorf("failed to save daily log: %w", err)
		}
		for j, e := range log.Entries {
			if _, err := sqlTx.ExecContext(ctx, `
				INSERT INTO task_entries (timesheet_id, log_position, position, entry_id, task_id, duration)
				VALUES (?, ?, ?, ?, ?, ?)`,
				ts.ID, i, j, nullString(e.ID), e.TaskID, e.Duration,
			); err != nil {
				return nil, fmt.Errorf("failed to save task entry: %w", err)
			}
		}
	}

	ids := make([]timesheet.TaskID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		logged, err := loggedHours(ctx, sqlTx, id)
		if err != nil {
			return nil, err
		}
		if _, err := sqlTx.ExecContext(ctx,
			`UPDATE tasks SET logged_hours = ?, updated_at = ? WHERE id = ? AND logged_hours <> ?`,
			logged, formatTime(now), id, logged,
		); err != nil {
			return nil, fmt.Errorf("failed to update logged hours: %w", err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit timesheet: %w", err)
	}
	return ids, nil
}

// checkReferences turns missing users and tasks into not-found errors instead
// of foreign key failures.
func checkReferences(ctx context.Context, tx *sql.Tx, ts timesheet.Timesheet) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, ts.UserID).Scan(&n); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return timesheet.UserNotFound(ts.UserID)
	}
	for _, id := range ts.TaskIDs() {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, id).Scan(&n); err != nil {
			return fmt.Errorf("failed to check task: %w", err)
		}
		if n == 0 {
			return timesheet.TaskNotFound(id)
		}
	}
	return nil
}

// loggedHours sums a task's entry durations in decimal, matching the engine's
// aggregation rather than SQLite's float SUM.
func loggedHours(ctx context.Context, db queryer, id timesheet.TaskID) (float64, error) {
	rows, err := db.QueryContext(ctx, `SELECT duration FROM task_entries WHERE task_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to query durations: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return 0, err
		}
		sum = sum.Add(decimal.NewFromFloat(d))
	}
	return sum.InexactFloat64(), rows.Err()
}

func entryTaskIDs(ctx context.Context, db queryer, id timesheet.TimesheetID) ([]timesheet.TaskID, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT task_id FROM task_entries WHERE timesheet_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry tasks: %w", err)
	}
	defer rows.Close()

	var ids []timesheet.TaskID
	for rows.Next() {
		var tid timesheet.TaskID
		if err := rows.Scan(&tid); err != nil {
			return nil, err
		}
		ids = append(ids, tid)
	}
	return ids, rows.Err()
}

func (s *Store) GetTimesheet(ctx context.Context, id timesheet.TimesheetID) (*timesheet.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheets, err := s.queryTimesheets(ctx, `SELECT `+timesheetColumns+` FROM timesheets WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, timesheet.TimesheetNotFound(string(id))
	}
	return &sheets[0], nil
}

func (s *Store) TimesheetsByUser(ctx context.Context, id timesheet.UserID) ([]timesheet.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryTimesheets(ctx,
		`SELECT `+timesheetColumns+` FROM timesheets WHERE user_id = ? ORDER BY week_start ASC`, id)
}

func (s *Store) TimesheetForWeek(ctx context.Context, id timesheet.UserID, week timesheet.Date) (*timesheet.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheets, err := s.queryTimesheets(ctx,
		`SELECT `+timesheetColumns+` FROM timesheets WHERE user_id = ? AND week_start = ?`, id, week.String())
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, timesheet.TimesheetNotFound(string(id) + "@" + week.String())
	}
	return &sheets[0], nil
}

func (s *Store) WeeksForUser(ctx context.Context, id timesheet.UserID) ([]timesheet.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT week_start FROM timesheets WHERE user_id = ? ORDER BY week_start DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query weeks: %w", err)
	}
	defer rows.Close()

	var weeks []timesheet.Date
	for rows.Next() {
		var w sql.NullString
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		weeks = append(weeks, parseDate(w))
	}
	return weeks, rows.Err()
}

// queryTimesheets loads the timesheet rows, then their logs and entries.
func (s *Store) queryTimesheets(ctx context.Context, query string, args ...any) ([]timesheet.Timesheet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query timesheets: %w", err)
	}

	var sheets []timesheet.Timesheet
	for rows.Next() {
		var (
			ts               timesheet.Timesheet
			mgr, reason      sql.NullString
			week             sql.NullString
			approval         string
			created, updated string
		)
		if err := rows.Scan(&ts.ID, &ts.UserID, &mgr, &week, &approval, &reason, &created, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan timesheet: %w", err)
		}
		ts.ManagerID = timesheet.UserID(mgr.String)
		ts.WeekStart = parseDate(week)
		ts.ApprovalStatus = timesheet.ApprovalStatus(approval)
		ts.RejectionReason = reason.String
		ts.CreatedAt = parseTime(created)
		ts.UpdatedAt = parseTime(updated)
		sheets = append(sheets, ts)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sheets {
		logs, err := s.loadLogs(ctx, sheets[i].ID)
		if err != nil {
			return nil, err
		}
		sheets[i].Logs = logs
	}
	return sheets, nil
}

func (s *Store) loadLogs(ctx context.Context, id timesheet.TimesheetID) ([]timesheet.DailyLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.position, l.log_id, l.date, e.entry_id, e.task_id, e.duration
		FROM daily_logs l
		LEFT JOIN task_entries e
			ON e.timesheet_id = l.timesheet_id AND e.log_position = l.position
		WHERE l.timesheet_id = ?
		ORDER BY l.position, e.position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily logs: %w", err)
	}
	defer rows.Close()

	var (
		logs []timesheet.DailyLog
		last = -1
	)
	for rows.Next() {
		var (
			position int
			logID    sql.NullString
			date     sql.NullString
			entryID  sql.NullString
			taskID   sql.NullString
			duration sql.NullFloat64
		)
		if err := rows.Scan(&position, &logID, &date, &entryID, &taskID, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan daily log: %w", err)
		}
		if position != last {
			logs = append(logs, timesheet.DailyLog{ID: logID.String, Date: parseDate(date)})
			last = position
		}
		if taskID.Valid {
			cur := &logs[len(logs)-1]
			cur.Entries = append(cur.Entries, timesheet.TaskEntry{
				ID:       entryID.String,
				TaskID:   timesheet.TaskID(taskID.String),
				Duration: duration.Float64,
			})
		}
	}
	return logs, rows.Err()
}

// =============================================================================
// DERIVED RECORDS (performance.Store interface)
// =============================================================================

const projectPerfColumns = `project_id, total_logged_hours, tasks_completed, tasks_remaining,
	progress_percentage, average_task_duration, tasks_per_week, project_budget, budget_used,
	budget_remaining, over_budget, project_days_total, project_days_elapsed, progress_expected,
	on_track, burn_rate, weeks_remaining, forecasted_budget_burn, budget_deviation,
	budget_warning, stalled_tasks_count, multi_project_load, updated_at`

func (s *Store) UpsertProjectPerformance(ctx context.Context, p performance.ProjectPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var onTrack sql.NullBool
	if p.OnTrack != nil {
		onTrack = sql.NullBool{Bool: *p.OnTrack, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO project_performance (`+projectPerfColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProjectID, p.TotalLoggedHours, p.TasksCompleted, p.TasksRemaining,
		p.ProgressPercentage, p.AverageTaskDuration, p.TasksPerWeek, p.ProjectBudget, p.BudgetUsed,
		p.BudgetRemaining, p.OverBudget, p.ProjectDaysTotal, p.ProjectDaysElapsed, p.ProgressExpected,
		onTrack, p.BurnRate, p.WeeksRemaining, p.ForecastedBudgetBurn, p.BudgetDeviation,
		p.BudgetWarning, p.StalledTasksCount, p.MultiProjectLoad, formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project performance: %w", err)
	}
	return nil
}

func (s *Store) GetProjectPerformance(ctx context.Context, id timesheet.ProjectID) (*performance.ProjectPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p       performance.ProjectPerformance
		onTrack sql.NullBool
		updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+projectPerfColumns+` FROM project_performance WHERE project_id = ?`, id,
	).Scan(&p.ProjectID, &p.TotalLoggedHours, &p.TasksCompleted, &p.TasksRemaining,
		&p.ProgressPercentage, &p.AverageTaskDuration, &p.TasksPerWeek, &p.ProjectBudget, &p.BudgetUsed,
		&p.BudgetRemaining, &p.OverBudget, &p.ProjectDaysTotal, &p.ProjectDaysElapsed, &p.ProgressExpected,
		&onTrack, &p.BurnRate, &p.WeeksRemaining, &p.ForecastedBudgetBurn, &p.BudgetDeviation,
		&p.BudgetWarning, &p.StalledTasksCount, &p.MultiProjectLoad, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, timesheet.PerformanceNotFound("project performance", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project performance: %w", err)
	}
	if onTrack.Valid {
		v := onTrack.Bool
		p.OnTrack = &v
	}
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

const taskEffColumns = `task_id, project_id, estimated_hours, actual_hours, efficiency_ratio,
	overdue, on_time, completion_time_days, updated_at`

func (s *Store) UpsertTaskEfficiency(ctx context.Context, e performance.TaskEfficiency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completion sql.NullInt64
	if e.CompletionTimeDays != nil {
		completion = sql.NullInt64{Int64: int64(*e.CompletionTimeDays), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO task_efficiency (`+taskEffColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.ProjectID, e.EstimatedHours, e.ActualHours, e.EfficiencyRatio,
		e.Overdue, e.OnTime, completion, formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task efficiency: %w", err)
	}
	return nil
}

func (s *Store) GetTaskEfficiency(ctx context.Context, id timesheet.TaskID) (*performance.TaskEfficiency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	effs, err := s.queryTaskEfficiency(ctx, `SELECT `+taskEffColumns+` FROM task_efficiency WHERE task_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(effs) == 0 {
		return nil, timesheet.PerformanceNotFound("task efficiency", string(id))
	}
	return &effs[0], nil
}

func (s *Store) TaskEfficiencies(ctx context.Context, ids []timesheet.TaskID) ([]performance.TaskEfficiency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	return s.queryTaskEfficiency(ctx,
		`SELECT `+taskEffColumns+` FROM task_efficiency WHERE task_id IN (`+placeholders(len(ids))+`) ORDER BY task_id`,
		args...)
}

func (s *Store) queryTaskEfficiency(ctx context.Context, query string, args ...any) ([]performance.TaskEfficiency, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task efficiency: %w", err)
	}
	defer rows.Close()

	var out []performance.TaskEfficiency
	for rows.Next() {
		var (
			e          performance.TaskEfficiency
			completion sql.NullInt64
			updated    string
		)
		if err := rows.Scan(&e.TaskID, &e.ProjectID, &e.EstimatedHours, &e.ActualHours, &e.EfficiencyRatio,
			&e.Overdue, &e.OnTime, &completion, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task efficiency: %w", err)
		}
		if completion.Valid {
			days := int(completion.Int64)
			e.CompletionTimeDays = &days
		}
		e.UpdatedAt = parseTime(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

const employeePerfColumns = `user_id, week_start, total_hours, productive_hours, admin_hours,
	utilization_rate, overutilized, underutilized, balanced, context_switch_count,
	average_task_per_day, multi_project_load, high_utilization_weeks, utilization_trend,
	project_time_allocation_json, updated_at`

func (s *Store) UpsertEmployeePerformance(ctx context.Context, p performance.EmployeePerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allocation := p.ProjectTimeAllocation
	if allocation == nil {
		allocation = performance.ProjectAllocation{}
	}
	allocationJSON, err := json.Marshal(allocation)
	if err != nil {
		return fmt.Errorf("failed to encode project allocation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO employee_performance (`+employeePerfColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.WeekStart.String(), p.TotalHours, p.ProductiveHours, p.AdminHours,
		p.UtilizationRate, p.Overutilized, p.Underutilized, p.Balanced, p.ContextSwitchCount,
		p.AverageTaskPerDay, p.MultiProjectLoad, p.HighUtilizationWeeks, p.UtilizationTrend,
		string(allocationJSON), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert employee performance: %w", err)
	}
	return nil
}

func (s *Store) GetEmployeePerformance(ctx context.Context, user timesheet.UserID, week timesheet.Date) (*performance.EmployeePerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryEmployeePerformance(ctx,
		`SELECT `+employeePerfColumns+` FROM employee_performance WHERE user_id = ? AND week_start = ?`,
		user, week.String())
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, timesheet.PerformanceNotFound("employee performance", string(user)+"@"+week.String())
	}
	return &recs[0], nil
}

func (s *Store) ListEmployeePerformance(ctx context.Context, user timesheet.UserID) ([]performance.EmployeePerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryEmployeePerformance(ctx,
		`SELECT `+employeePerfColumns+` FROM employee_performance WHERE user_id = ? ORDER BY week_start ASC`, user)
}

func (s *Store) queryEmployeePerformance(ctx context.Context, query string, args ...any) ([]performance.EmployeePerformance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employee performance: %w", err)
	}
	defer rows.Close()

	var out []performance.EmployeePerformance
	for rows.Next() {
		var (
			p                       performance.EmployeePerformance
			week                    sql.NullString
			allocationJSON, updated string
		)
		if err := rows.Scan(&p.UserID, &week, &p.TotalHours, &p.ProductiveHours, &p.AdminHours,
			&p.UtilizationRate, &p.Overutilized, &p.Underutilized, &p.Balanced, &p.ContextSwitchCount,
			&p.AverageTaskPerDay, &p.MultiProjectLoad, &p.HighUtilizationWeeks, &p.UtilizationTrend,
			&allocationJSON, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan employee performance: %w", err)
		}
		p.WeekStart = parseDate(week)
		p.ProjectTimeAllocation = performance.ProjectAllocation{}
		if err := json.Unmarshal([]byte(allocationJSON), &p.ProjectTimeAllocation); err != nil {
			return nil, fmt.Errorf("failed to decode project allocation: %w", err)
		}
		p.UpdatedAt = parseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"employee_performance", "task_efficiency", "project_performance",
		"task_entries", "daily_logs", "timesheets", "tasks", "projects", "users",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d timesheet.Date) sql.NullString {
	return nullString(d.String())
}

func parseDate(s sql.NullString) timesheet.Date {
	if !s.Valid {
		return timesheet.Date{}
	}
	d, _ := timesheet.ParseDate(s.String)
	return d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
