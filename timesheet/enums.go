package timesheet

import (
	"fmt"
	"strings"
)

// =============================================================================
// TASK STATUS
// =============================================================================

type TaskStatus string

const (
	StatusNotStarted TaskStatus = "Not Started"
	StatusInProgress TaskStatus = "In Progress"
	StatusCompleted  TaskStatus = "Completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseTaskStatus accepts the canonical values; an empty string means NotStarted.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if s == "" {
		return StatusNotStarted, nil
	}
	st := TaskStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("task status %q: %w", s, ErrInvalidTask)
	}
	return st, nil
}

// =============================================================================
// APPROVAL STATUS
// =============================================================================

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Pending"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalRejected ApprovalStatus = "Rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// =============================================================================
// CATEGORY - closed set, classifies logged time as admin or productive
// =============================================================================

type Category string

const (
	CategoryUnset Category = ""

	// Admin-type
	CategoryAdmin    Category = "Admin"
	CategoryTraining Category = "Training"
	CategoryMeeting  Category = "Meeting"
	CategoryResearch Category = "Research"

	// Productive
	CategoryDevelopment   Category = "Development"
	CategoryDesign        Category = "Design"
	CategoryTesting       Category = "Testing"
	CategoryReview        Category = "Review"
	CategorySupport       Category = "Support"
	CategoryDocumentation Category = "Documentation"
)

var categories = []Category{
	CategoryAdmin, CategoryTraining, CategoryMeeting, CategoryResearch,
	CategoryDevelopment, CategoryDesign, CategoryTesting, CategoryReview,
	CategorySupport, CategoryDocumentation,
}

// TimeType is the admin/productive split of logged time.
type TimeType string

const (
	TimeProductive TimeType = "productive"
	TimeAdmin      TimeType = "admin"
)

// TimeType classifies the category. Anything outside the admin set, including
// the unset category, is productive.
func (c Category) TimeType() TimeType {
	switch c {
	case CategoryAdmin, CategoryTraining, CategoryMeeting, CategoryResearch:
		return TimeAdmin
	default:
		return TimeProductive
	}
}

// ParseCategory maps user input onto the closed set. Matching is case-insensitive
// and blank input yields CategoryUnset; anything else is rejected so a typo can
// never silently turn admin time into productive time.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryUnset, nil
	}
	for _, c := range categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("category %q: %w", s, ErrUnknownCategory)
}

// Categories lists the accepted values.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}
