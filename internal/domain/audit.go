package domain

import "time"

// AuditAction names the kind of change an audit record captures.
type AuditAction string

const (
	AuditTaskCreated  AuditAction = "TASK_CREATED"
	AuditTaskUpdated  AuditAction = "TASK_UPDATED"
	AuditCommentAdded AuditAction = "COMMENT_ADDED"
	AuditTaskDeleted  AuditAction = "TASK_DELETED"
)

// SystemActor is recorded when a mutation arrives without an actor.
const SystemActor = "system"

// AuditRecord is an immutable before/after entry for one task mutation.
// For TASK_UPDATED, Before and After hold only the fields that changed.
type AuditRecord struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"taskId"`
	Action    AuditAction    `json:"action"`
	Before    map[string]any `json:"before"`
	After     map[string]any `json:"after"`
	ActorID   string         `json:"actorId"`
	ActorName string         `json:"actorName"`
	CreatedAt time.Time      `json:"createdAt"`
}
