package changediff

import (
	"time"

	"github.com/taskpulse/project/internal/domain"
)

// Change is one field's value before and after a mutation.
type Change struct {
	Before any
	After  any
}

// Changes maps field name to its change. It is the exact TASK_UPDATED audit payload.
type Changes map[string]Change

func (c Changes) Empty() bool { return len(c) == 0 }

func (c Changes) Has(field string) bool {
	_, ok := c[field]
	return ok
}

// Before renders the before side as a field map.
func (c Changes) Before() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v.Before
	}
	return out
}

// After renders the after side as a field map.
func (c Changes) After() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v.After
	}
	return out
}

// Diff compares every mutable field of two task states.
func Diff(before, after domain.Task) Changes {
	return changesFor(before, Patch{
		Title:         &after.Title,
		Description:   after.Description,
		DueDate:       after.DueDate,
		Priority:      &after.Priority,
		Status:        &after.Status,
		AssignedUsers: &after.AssignedUsers,
	})
}

func changesFor(existing domain.Task, p Patch) Changes {
	out := Changes{}
	if p.Title != nil && *p.Title != existing.Title {
		out[FieldTitle] = Change{Before: existing.Title, After: *p.Title}
	}
	// an unset description and an empty one are different values
	if p.Description != nil && (existing.Description == nil || *p.Description != *existing.Description) {
		out[FieldDescription] = Change{Before: optString(existing.Description), After: *p.Description}
	}
	if p.DueDate != nil && (existing.DueDate == nil || !existing.DueDate.Equal(*p.DueDate)) {
		out[FieldDueDate] = Change{Before: optTime(existing.DueDate), After: p.DueDate.UTC()}
	}
	if p.Priority != nil && *p.Priority != existing.Priority {
		out[FieldPriority] = Change{Before: existing.Priority, After: *p.Priority}
	}
	if p.Status != nil && *p.Status != existing.Status {
		out[FieldStatus] = Change{Before: existing.Status, After: *p.Status}
	}
	if p.AssignedUsers != nil && !SameAssignees(existing.AssignedUsers, *p.AssignedUsers) {
		out[FieldAssignedUsers] = Change{
			Before: append([]domain.AssignedUser{}, existing.AssignedUsers...),
			After:  append([]domain.AssignedUser{}, (*p.AssignedUsers)...),
		}
	}
	return out
}

// SameAssignees compares two assignee lists as sets of {userId, username}.
func SameAssignees(a, b []domain.AssignedUser) bool {
	set := make(map[domain.AssignedUser]int, len(a))
	for _, u := range a {
		set[u]++
	}
	for _, u := range b {
		set[u]--
	}
	for _, n := range set {
		if n != 0 {
			return false
		}
	}
	return true
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
