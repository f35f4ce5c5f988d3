// Package memory provides an in-memory implementation of the raw and derived
// stores, for tests and demos.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-analytics/performance"
	"github.com/warp/timesheet-analytics/timesheet"
)

// =============================================================================
// MEMORY STORE - implements timesheet.Store and performance.Store
// =============================================================================

type Store struct {
	// Clock stamps task updated_at when a timesheet save changes logged hours.
	Clock timesheet.Clock

	mu         sync.RWMutex
	users      map[timesheet.UserID]timesheet.User
	projects   map[timesheet.ProjectID]timesheet.Project
	tasks      map[timesheet.TaskID]timesheet.Task
	timesheets map[timesheet.TimesheetID]timesheet.Timesheet

	projectPerf map[timesheet.ProjectID]performance.ProjectPerformance
	taskEff     map[timesheet.TaskID]performance.TaskEfficiency
	employee    map[employeeKey]performance.EmployeePerformance
}

type employeeKey struct {
	UserID timesheet.UserID
	Week   string
}

func New() *Store {
	s := &Store{Clock: timesheet.SystemClock{}}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.users = make(map[timesheet.UserID]timesheet.User)
	s.projects = make(map[timesheet.ProjectID]timesheet.Project)
	s.tasks = make(map[timesheet.TaskID]timesheet.Task)
	s.timesheets = make(map[timesheet.TimesheetID]timesheet.Timesheet)
	s.projectPerf = make(map[timesheet.ProjectID]performance.ProjectPerformance)
	s.taskEff = make(map[timesheet.TaskID]performance.TaskEfficiency)
	s.employee = make(map[employeeKey]performance.EmployeePerformance)
}

// Reset clears all data.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// =============================================================================
// RAW RECORDS - timesheet.Reader
// =============================================================================

func (s *Store) GetUser(_ context.Context, id timesheet.UserID) (*timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, timesheet.UserNotFound(id)
	}
	return &u, nil
}

func (s *Store) GetProject(_ context.Context, id timesheet.ProjectID) (*timesheet.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, timesheet.ProjectNotFound(id)
	}
	return &p, nil
}

func (s *Store) GetTask(_ context.Context, id timesheet.TaskID) (*timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, timesheet.TaskNotFound(id)
	}
	return &t, nil
}

func (s *Store) GetTasks(_ context.Context, ids []timesheet.TaskID) (map[timesheet.TaskID]timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[timesheet.TaskID]timesheet.Task, len(ids))
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (s *Store) TasksByProject(_ context.Context, id timesheet.ProjectID) ([]timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTasks(func(t timesheet.Task) bool { return t.ProjectID == id }), nil
}

func (s *Store) TasksByAssignees(_ context.Context, users []timesheet.UserID) ([]timesheet.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterTasks(func(t timesheet.Task) bool {
		return t.AssignedTo != "" && slices.Contains(users, t.AssignedTo)
	}), nil
}

func (s *Store) filterTasks(keep func(timesheet.Task) bool) []timesheet.Task {
	var out []timesheet.Task
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) TimesheetsByUser(_ context.Context, id timesheet.UserID) ([]timesheet.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []timesheet.Timesheet
	for _, ts := range s.timesheets {
		if ts.UserID == id {
			out = append(out, cloneTimesheet(ts))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out, nil
}

func (s *Store) TimesheetForWeek(_ context.Context, id timesheet.UserID, week timesheet.Date) (*timesheet.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ts, ok := s.timesheetForWeekLocked(id, week); ok {
		c := cloneTimesheet(ts)
		return &c, nil
	}
	return nil, timesheet.TimesheetNotFound(string(id) + "@" + week.String())
}

func (s *Store) timesheetForWeekLocked(id timesheet.UserID, week timesheet.Date) (timesheet.Timesheet, bool) {
	for _, ts := range s.timesheets {
		if ts.UserID == id && ts.WeekStart.Equal(week) {
			return ts, true
		}
	}
	return timesheet.Timesheet{}, false
}

// =============================================================================
// DIRECTORY - timesheet.Directory
// =============================================================================

func (s *Store) ListUsers(_ context.Context) ([]timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterUsers(func(timesheet.User) bool { return true }), nil
}

func (s *Store) UsersByManager(_ context.Context, manager timesheet.UserID) ([]timesheet.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterUsers(func(u timesheet.User) bool { return u.ManagerID == manager }), nil
}

func (s *Store) filterUsers(keep func(timesheet.User) bool) []timesheet.User {
	var out []timesheet.User
	for _, u := range s.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ListProjects(_ context.Context) ([]timesheet.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterProjects(func(timesheet.Project) bool { return true }), nil
}

func (s *Store) ProjectsByManager(_ context.Context, manager timesheet.UserID) ([]timesheet.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterProjects(func(p timesheet.Project) bool { return p.ManagerID == manager }), nil
}

func (s *Store) filterProjects(keep func(timesheet.Project) bool) []timesheet.Project {
	var out []timesheet.Project
	for _, p := range s.projects {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) WeeksForUser(_ context.Context, id timesheet.UserID) ([]timesheet.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var weeks []timesheet.Date
	for _, ts := range s.timesheets {
		if ts.UserID == id {
			weeks = append(weeks, ts.WeekStart)
		}
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].After(weeks[j]) })
	return weeks, nil
}

// =============================================================================
// WRITES - timesheet.Writer
// =============================================================================

func (s *Store) SaveUser(_ context.Context, u timesheet.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) SaveProject(_ context.Context, p timesheet.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *Store) SaveTask(_ context.Context, t timesheet.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[t.ProjectID]; !ok {
		return timesheet.ProjectNotFound(t.ProjectID)
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *Store) GetTimesheet(_ context.Context, id timesheet.TimesheetID) (*timesheet.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.timesheets[id]
	if !ok {
		return nil, timesheet.TimesheetNotFound(string(id))
	}
	c := cloneTimesheet(ts)
	return &c, nil
}

// SaveTimesheet replaces the timesheet and brings logged_hours of every task
// whose entries changed back in line with the entries. updated_at moves only
// when the sum changed; every touched task is still returned.
func (s *Store) SaveTimesheet(_ context.Context, ts timesheet.Timesheet) ([]timesheet.TaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[ts.UserID]; !ok {
		return nil, timesheet.UserNotFound(ts.UserID)
	}
	if other, ok := s.timesheetForWeekLocked(ts.UserID, ts.WeekStart); ok && other.ID != ts.ID {
		return nil, timesheet.ErrDuplicateTimesheet
	}
	for _, id := range ts.TaskIDs() {
		if _, ok := s.tasks[id]; !ok {
			return nil, timesheet.TaskNotFound(id)
		}
	}

	touched := make(map[timesheet.TaskID]bool)
	if old, ok := s.timesheets[ts.ID]; ok {
		for _, id := range old.TaskIDs() {
			touched[id] = true
		}
	}
	for _, id := range ts.TaskIDs() {
		touched[id] = true
	}

	s.timesheets[ts.ID] = cloneTimesheet(ts)

	ids := slices.Sorted(maps.Keys(touched))
	now := s.Clock.Now()
	for _, id := range ids {
		t := s.tasks[id]
		if logged := s.loggedHoursLocked(id); logged != t.LoggedHours {
			t.LoggedHours = logged
			t.UpdatedAt = now
			s.tasks[id] = t
		}
	}
	return ids, nil
}

func (s *Store) loggedHoursLocked(id timesheet.TaskID) float64 {
	sum := decimal.Zero
	for _, ts := range s.timesheets {
		for _, log := range ts.Logs {
			for _, e := range log.Entries {
				if e.TaskID == id {
					sum = sum.Add(decimal.NewFromFloat(e.Duration))
				}
			}
		}
	}
	return sum.InexactFloat64()
}

func cloneTimesheet(ts timesheet.Timesheet) timesheet.Timesheet {
	logs := make([]timesheet.DailyLog, len(ts.Logs))
	for i, log := range ts.Logs {
		log.Entries = slices.Clone(log.Entries)
		logs[i] = log
	}
	ts.Logs = logs
	return ts
}

// =============================================================================
// DERIVED RECORDS - performance.Store
// =============================================================================

func (s *Store) GetProjectPerformance(_ context.Context, id timesheet.ProjectID) (*performance.ProjectPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projectPerf[id]
	if !ok {
		return nil, timesheet.PerformanceNotFound("project performance", string(id))
	}
	return &p, nil
}

func (s *Store) UpsertProjectPerformance(_ context.Context, p performance.ProjectPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectPerf[p.ProjectID] = p
	return nil
}

func (s *Store) GetTaskEfficiency(_ context.Context, id timesheet.TaskID) (*performance.TaskEfficiency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.taskEff[id]
	if !ok {
		return nil, timesheet.PerformanceNotFound("task efficiency", string(id))
	}
	return &e, nil
}

func (s *Store) UpsertTaskEfficiency(_ context.Context, e performance.TaskEfficiency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskEff[e.TaskID] = e
	return nil
}

func (s *Store) TaskEfficiencies(_ context.Context, ids []timesheet.TaskID) ([]performance.TaskEfficiency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []performance.TaskEfficiency
	for _, id := range ids {
		if e, ok := s.taskEff[id]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (s *Store) GetEmployeePerformance(_ context.Context, user timesheet.UserID, week timesheet.Date) (*performance.EmployeePerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.employee[employeeKey{UserID: user, Week: week.String()}]
	if !ok {
		return nil, timesheet.PerformanceNotFound("employee performance", string(user)+"@"+week.String())
	}
	p.ProjectTimeAllocation = maps.Clone(p.ProjectTimeAllocation)
	return &p, nil
}

func (s *Store) UpsertEmployeePerformance(_ context.Context, p performance.EmployeePerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ProjectTimeAllocation = maps.Clone(p.ProjectTimeAllocation)
	s.employee[employeeKey{UserID: p.UserID, Week: p.WeekStart.String()}] = p
	return nil
}

func (s *Store) ListEmployeePerformance(_ context.Context, user timesheet.UserID) ([]performance.EmployeePerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []performance.EmployeePerformance
	for k, p := range s.employee {
		if k.UserID == user {
			p.ProjectTimeAllocation = maps.Clone(p.ProjectTimeAllocation)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out, nil
}
