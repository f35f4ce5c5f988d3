/*
Package scenario loads demo datasets into a raw-record store.

PURPOSE:
  Provides pre-built teams that populate the database with realistic weeks of
  timesheets for demos and end-to-end tests. Each scenario is a YAML document
  embedded in the binary (data/*.yaml).

AVAILABLE SCENARIOS:
  balanced-team:     Manager with two reports logging regular 40-hour weeks
  overloaded-sprint: One developer carrying two projects past the 45-hour line
  stalled-project:   Budgeted project whose tasks never started, idle reports

DATES:
  Scenario dates are day offsets from the Monday of the current week, and
  timesheet weeks are week offsets (0 = this week, -1 = last week), so a
  scenario always looks current whatever the clock says.

HOW SCENARIOS WORK:
 1. Caller resets the store
 2. Users, projects, tasks, timesheets are written in that order
 3. Caller rebuilds derived records (performance.Engine.RecomputeAll)

ADDING NEW SCENARIOS:
  Drop a new YAML file in data/. The file name does not matter; the id field
  does.

SEE ALSO:
  - api/scenarios.go: HTTP handlers
  - cmd/server/main.go: `seed` command
*/
package scenario

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/warp/timesheet-analytics/timesheet"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// ErrUnknownScenario is returned by Get and Load for an id with no dataset.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// DOCUMENT
// =============================================================================

// Scenario is one parsed dataset.
type Scenario struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Users       []User      `yaml:"users"`
	Projects    []Project   `yaml:"projects"`
	Tasks       []Task      `yaml:"tasks"`
	Timesheets  []Timesheet `yaml:"timesheets"`
}

type User struct {
	ID        string `yaml:"id"`
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Role      string `yaml:"role"`
	Manager   string `yaml:"manager"`
}

type Project struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Budget      float64  `yaml:"budget"`
	HourlyRate  *float64 `yaml:"hourly_rate"`
	Start       *int     `yaml:"start"`
	End         *int     `yaml:"end"`
	Manager     string   `yaml:"manager"`
	Internal    bool     `yaml:"internal"`
}

type Task struct {
	ID             string  `yaml:"id"`
	Project        string  `yaml:"project"`
	Name           string  `yaml:"name"`
	Category       string  `yaml:"category"`
	AssignedTo     string  `yaml:"assigned_to"`
	Status         string  `yaml:"status"`
	EstimatedHours float64 `yaml:"estimated_hours"`
	Due            *int    `yaml:"due"`
	Completed      *int    `yaml:"completed"`
	Updated        *int    `yaml:"updated"` // last touched, defaults to now
}

type Timesheet struct {
	ID     string  `yaml:"id"`
	User   string  `yaml:"user"`
	Week   int     `yaml:"week"`
	Status string  `yaml:"status"`
	Reason string  `yaml:"reason"`
	Days   [][]Log `yaml:"days"` // Monday first, at most five
}

type Log struct {
	Task  string  `yaml:"task"`
	Hours float64 `yaml:"hours"`
}

// =============================================================================
// CATALOG
// =============================================================================

// List returns every embedded scenario, ordered by id.
func List() ([]Scenario, error) {
	files, err := fs.ReadDir(dataFS, "data")
	if err != nil {
		return nil, err
	}
	var out []Scenario
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}
		data, err := dataFS.ReadFile("data/" + f.Name())
		if err != nil {
			return nil, err
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Scenario) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Get returns the embedded scenario with the given id.
func Get(id string) (*Scenario, error) {
	all, err := List()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%q: %w", id, ErrUnknownScenario)
}

// Parse decodes one YAML dataset.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid scenario yaml: %w", err)
	}
	if s.ID == "" {
		return nil, errors.New("invalid scenario yaml: id is required")
	}
	return &s, nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load writes the scenario with the given id into w, dated relative to the
// clock's current week.
func Load(ctx context.Context, w timesheet.Writer, clock timesheet.Clock, id string) (*Scenario, error) {
	s, err := Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.Apply(ctx, w, clock); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", id, err)
	}
	return s, nil
}

// Apply writes the scenario's records into w.
func (s *Scenario) Apply(ctx context.Context, w timesheet.Writer, clock timesheet.Clock) error {
	now := clock.Now()
	anchor := mondayOf(timesheet.Today(clock))
	at := func(offset *int) timesheet.Date {
		if offset == nil {
			return timesheet.Date{}
		}
		return anchor.AddDays(*offset)
	}

	managers := make(map[string]timesheet.UserID, len(s.Users))
	for _, u := range s.Users {
		role := timesheet.Role(u.Role)
		if role == "" {
			role = timesheet.RoleEmployee
		}
		managers[u.ID] = timesheet.UserID(u.Manager)
		if err := w.SaveUser(ctx, timesheet.User{
			ID:        timesheet.UserID(u.ID),
			Username:  u.Username,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Role:      role,
			ManagerID: timesheet.UserID(u.Manager),
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}

	for _, p := range s.Projects {
		project := timesheet.Project{
			ID:          timesheet.ProjectID(p.ID),
			Name:        p.Name,
			Description: p.Description,
			Budget:      p.Budget,
			HourlyRate:  timesheet.DefaultHourlyRate,
			StartDate:   at(p.Start),
			EndDate:     at(p.End),
			ManagerID:   timesheet.UserID(p.Manager),
			Internal:    p.Internal,
			Billable:    !p.Internal,
			CreatedAt:   now,
		}
		if p.HourlyRate != nil {
			project.HourlyRate = *p.HourlyRate
		}
		if err := project.Validate(); err != nil {
			return err
		}
		if err := w.SaveProject(ctx, project); err != nil {
			return err
		}
	}

	for _, t := range s.Tasks {
		category, err := timesheet.ParseCategory(t.Category)
		if err != nil {
			return err
		}
		status, err := timesheet.ParseTaskStatus(t.Status)
		if err != nil {
			return err
		}
		task := timesheet.Task{
			ID:             timesheet.TaskID(t.ID),
			ProjectID:      timesheet.ProjectID(t.Project),
			Name:           t.Name,
			Category:       category,
			Billable:       true,
			AssignedTo:     timesheet.UserID(t.AssignedTo),
			Status:         status,
			EstimatedHours: t.EstimatedHours,
			DueDate:        at(t.Due),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if t.Updated != nil {
			task.UpdatedAt = at(t.Updated).Time()
		}
		if status == timesheet.StatusCompleted {
			task.CompletedOn = at(t.Completed)
			if task.CompletedOn.IsZero() {
				task.CompletedOn = timesheet.Today(clock)
			}
		}
		if err := task.Validate(); err != nil {
			return err
		}
		if err := w.SaveTask(ctx, task); err != nil {
			return err
		}
	}

	for _, ts := range s.Timesheets {
		sheet, err := ts.build(anchor, managers[ts.User], now)
		if err != nil {
			return err
		}
		if _, err := w.SaveTimesheet(ctx, sheet); err != nil {
			return err
		}
	}
	return nil
}

func (ts Timesheet) build(anchor timesheet.Date, manager timesheet.UserID, now time.Time) (timesheet.Timesheet, error) {
	status := timesheet.ApprovalStatus(ts.Status)
	if status == "" {
		status = timesheet.ApprovalPending
	}
	start := anchor.AddWeeks(ts.Week)
	sheet := timesheet.Timesheet{
		ID:              timesheet.TimesheetID(ts.ID),
		UserID:          timesheet.UserID(ts.User),
		ManagerID:       manager,
		WeekStart:       start,
		ApprovalStatus:  status,
		RejectionReason: ts.Reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, day := range ts.Days {
		if len(day) == 0 {
			continue
		}
		log := timesheet.DailyLog{
			ID:   fmt.Sprintf("%s-d%d", ts.ID, i+1),
			Date: start.AddDays(i),
		}
		for j, e := range day {
			log.Entries = append(log.Entries, timesheet.TaskEntry{
				ID:       fmt.Sprintf("%s-d%d-e%d", ts.ID, i+1, j+1),
				TaskID:   timesheet.TaskID(e.Task),
				Duration: e.Hours,
			})
		}
		sheet.Logs = append(sheet.Logs, log)
	}
	return sheet, sheet.Validate()
}

// mondayOf returns the Monday on or before d.
func mondayOf(d timesheet.Date) timesheet.Date {
	back := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-back)
}
