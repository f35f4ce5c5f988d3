package performance

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/warp/timesheet-analytics/timesheet"
)

// StalledProjectThreshold is the number of stalled tasks above which a project
// shows up on the manager dashboard.
const StalledProjectThreshold = 3

// UnderutilizedRate is the weekly utilization (percent) below which a report
// counts as underutilized.
const UnderutilizedRate = 30.0

// ManagerSummary is the dashboard view over a manager's projects and reports.
type ManagerSummary struct {
	ManagerID            timesheet.UserID `json:"manager_id"`
	OverBudgetProjects   int              `json:"over_budget_projects"`
	StalledProjects      int              `json:"stalled_projects"`
	AverageTeamVelocity  float64          `json:"average_team_velocity"`
	UnderutilizedMembers int              `json:"underutilized_members"`
}

// SummaryCard is one dashboard tile.
type SummaryCard struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Stat    string `json:"stat"`
	Updated string `json:"updated"`
}

type Summary struct {
	UserID   timesheet.UserID  `json:"user_id"`
	Role     timesheet.Role    `json:"role"`
	Cards    []SummaryCard     `json:"cards"`
	Manager  *ManagerSummary   `json:"manager,omitempty"`
	Employee *EmployeeSnapshot `json:"employee,omitempty"`
}

// SummaryService builds dashboard summaries from stored derived records and the
// snapshot. It never writes.
type SummaryService struct {
	Directory timesheet.Directory
	Engine    *Engine
}

// Summary dispatches on the user's role: admins and managers get the manager
// view, everyone else their own snapshot.
func (s *SummaryService) Summary(ctx context.Context, id timesheet.UserID) (*Summary, error) {
	user, err := s.Engine.Source.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &Summary{UserID: id, Role: user.Role}
	if user.Role == timesheet.RoleManager || user.Role == timesheet.RoleAdmin {
		m, err := s.ManagerSummary(ctx, id)
		if err != nil {
			return nil, err
		}
		out.Manager = m
		out.Cards = m.Cards()
		return out, nil
	}

	snap, err := s.Engine.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	out.Employee = snap
	out.Cards = EmployeeCards(snap)
	return out, nil
}

// ManagerSummary aggregates the manager's stored project records and the last
// VelocityWindowWeeks of their reports' weekly records.
func (s *SummaryService) ManagerSummary(ctx context.Context, manager timesheet.UserID) (*ManagerSummary, error) {
	store := s.Engine.Store
	out := &ManagerSummary{ManagerID: manager}

	projects, err := s.Directory.ProjectsByManager(ctx, manager)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		perf, err := store.GetProjectPerformance(ctx, p.ID)
		if errors.Is(err, timesheet.ErrPerformanceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if perf.OverBudget {
			out.OverBudgetProjects++
		}
		if perf.StalledTasksCount > StalledProjectThreshold {
			out.StalledProjects++
		}
	}

	reports, err := s.Directory.UsersByManager(ctx, manager)
	if err != nil {
		return nil, err
	}
	since := s.Engine.today().AddWeeks(-VelocityWindowWeeks)
	var (
		velocity float64
		records  int
	)
	for _, u := range reports {
		weeks, err := store.ListEmployeePerformance(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		underutilized := false
		for _, w := range weeks {
			if w.WeekStart.Before(since) {
				continue
			}
			records++
			velocity += w.AverageTaskPerDay * timesheet.WorkingDaysPerWeek
			if w.UtilizationRate < UnderutilizedRate {
				underutilized = true
			}
		}
		if underutilized {
			out.UnderutilizedMembers++
		}
	}
	out.AverageTeamVelocity = round1(velocity / float64(max(records, 1)))
	return out, nil
}

func (m *ManagerSummary) Cards() []SummaryCard {
	return []SummaryCard{
		{ID: "budget", Label: "Over Budget Projects", Stat: fmt.Sprintf("%d projects", m.OverBudgetProjects), Updated: "Today"},
		{ID: "stalls", Label: "Projects with Stalled Tasks", Stat: fmt.Sprintf("%d projects", m.StalledProjects), Updated: "Today"},
		{ID: "velocity", Label: "Avg Team Velocity", Stat: formatFloat(m.AverageTeamVelocity) + " tasks/wk", Updated: "This Week"},
		{ID: "utilization", Label: "Underutilized Employees", Stat: fmt.Sprintf("%d team members", m.UnderutilizedMembers), Updated: "This Week"},
	}
}

func EmployeeCards(s *EmployeeSnapshot) []SummaryCard {
	return []SummaryCard{
		{ID: "personal_utilization", Label: "Your Utilization Rate", Stat: formatFloat(s.UtilizationRate) + "%", Updated: "This Week"},
		{ID: "context_switch", Label: "Context Switches", Stat: fmt.Sprintf("%d switches", s.ContextSwitchCount), Updated: "This Week"},
		{ID: "avg_tasks", Label: "Avg Tasks Per Day", Stat: formatFloat(s.AverageTaskPerDay) + " tasks", Updated: "This Week"},
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
