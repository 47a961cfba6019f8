package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskPriority is the urgency of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

// IsValid checks if the priority is one of the allowed values.
func (p TaskPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// TaskStatus is the workflow position of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusReview     TaskStatus = "REVIEW"
	StatusDone       TaskStatus = "DONE"
)

// IsValid checks if the status is one of the allowed values.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	default:
		return false
	}
}

// AssignedUser is one member of a task's assignee set.
type AssignedUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Task is the current state of a tracked task.
type Task struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   *string        `json:"description,omitempty"`
	DueDate       *time.Time     `json:"dueDate,omitempty"`
	Priority      TaskPriority   `json:"priority"`
	Status        TaskStatus     `json:"status"`
	AuthorID      string         `json:"authorId"`
	AuthorName    string         `json:"authorName"`
	AssignedUsers []AssignedUser `json:"assignedUsers"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (t Task) Clone() Task {
	out := t
	if t.Description != nil {
		d := *t.Description
		out.Description = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	out.AssignedUsers = append([]AssignedUser(nil), t.AssignedUsers...)
	return out
}

// IsAssigned reports whether userID is in the assignee set.
func (t Task) IsAssigned(userID string) bool {
	for _, u := range t.AssignedUsers {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// Snapshot renders the creation audit payload.
func (t Task) Snapshot() map[string]any {
	snap := map[string]any{
		"id":            t.ID,
		"title":         t.Title,
		"status":        t.Status,
		"priority":      t.Priority,
		"assignedUsers": append([]AssignedUser{}, t.AssignedUsers...),
		"dueDate":       nil,
		"description":   nil,
	}
	if t.DueDate != nil {
		snap["dueDate"] = t.DueDate.UTC()
	}
	if t.Description != nil {
		snap["description"] = *t.Description
	}
	return snap
}

// TaskDetails is the read model returned by GetTaskDetails.
type TaskDetails struct {
	Task
	Audit []AuditRecord `json:"audit"`
}

// IsIdentifier reports whether s is a well-formed identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}
