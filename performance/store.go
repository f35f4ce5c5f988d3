package performance

import (
	"context"

	"github.com/warp/timesheet-analytics/timesheet"
)

// Store persists derived records. Every Upsert fully replaces the record under
// its key and is atomic: on error the prior record is left intact.
//
// Getters return a *timesheet.NotFoundError wrapping ErrPerformanceNotFound when
// nothing has been computed for the key yet.
type Store interface {
	GetProjectPerformance(ctx context.Context, id timesheet.ProjectID) (*ProjectPerformance, error)
	UpsertProjectPerformance(ctx context.Context, p ProjectPerformance) error

	GetTaskEfficiency(ctx context.Context, id timesheet.TaskID) (*TaskEfficiency, error)
	UpsertTaskEfficiency(ctx context.Context, e TaskEfficiency) error

	// TaskEfficiencies returns the stored records for the given tasks, ordered by
	// task ID. Tasks never computed are skipped.
	TaskEfficiencies(ctx context.Context, ids []timesheet.TaskID) ([]TaskEfficiency, error)

	GetEmployeePerformance(ctx context.Context, user timesheet.UserID, week timesheet.Date) (*EmployeePerformance, error)
	UpsertEmployeePerformance(ctx context.Context, p EmployeePerformance) error

	// ListEmployeePerformance returns every stored week of the user, oldest first.
	ListEmployeePerformance(ctx context.Context, user timesheet.UserID) ([]EmployeePerformance, error)
}
