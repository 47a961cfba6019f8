package contracts

import "github.com/taskpulse/project/internal/domain"

// Event subjects on the TASK_EVENTS and NOTIFICATIONS streams.
const (
	SubjectTaskCreated          = "task.created"
	SubjectTaskUpdated          = "task.updated"
	SubjectCommentCreated       = "task.comment.created"
	SubjectNotificationDispatch = "notification.dispatch"
)

// Request/reply commands served over core NATS.
const (
	CmdCreateTask           = "createTask"
	CmdUpdateTask           = "updateTask"
	CmdDeleteTask           = "deleteTask"
	CmdGetTask              = "getTask"
	CmdGetTasks             = "getTasks"
	CmdCreateComment        = "createComment"
	CmdGetComments          = "getComments"
	CmdListNotifications    = "listNotifications"
	CmdMarkNotificationRead = "markNotificationRead"

	CmdTasksHealth         = "tasks-start"
	CmdNotificationsHealth = "notifications-start"
	CmdAuthHealth          = "auth-start"
)

// RPCSubject is the subject a command is served on.
func RPCSubject(command string) string {
	return "rpc." + command
}

// CreateTaskCommand carries a new task. Optional fields are nil when absent.
type CreateTaskCommand struct {
	Title         string                `json:"title"`
	Description   *string               `json:"description,omitempty"`
	DueDate       *string               `json:"dueDate,omitempty"`
	Priority      *string               `json:"priority,omitempty"`
	Status        *string               `json:"status,omitempty"`
	AuthorID      string                `json:"authorId"`
	AuthorName    string                `json:"authorName"`
	AssignedUsers []domain.AssignedUser `json:"assignedUsers,omitempty"`
}

// TaskPatch is a partial update; a nil field means "leave unchanged".
type TaskPatch struct {
	Title         *string                `json:"title,omitempty"`
	Description   *string                `json:"description,omitempty"`
	DueDate       *string                `json:"dueDate,omitempty"`
	Priority      *string                `json:"priority,omitempty"`
	Status        *string                `json:"status,omitempty"`
	AssignedUsers *[]domain.AssignedUser `json:"assignedUsers,omitempty"`
}

type UpdateTaskCommand struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actorId,omitempty"`
	ActorName string    `json:"actorName,omitempty"`
	Patch     TaskPatch `json:"patch"`
}

type DeleteTaskCommand struct {
	ID string `json:"id"`
}

type DeleteTaskResult struct {
	Deleted bool `json:"deleted"`
}

type GetTaskQuery struct {
	ID         string `json:"id"`
	AuditLimit int    `json:"auditLimit,omitempty"`
}

type ListTasksQuery struct {
	Page int `json:"page,omitempty"`
	Size int `json:"size,omitempty"`
}

type CreateCommentCommand struct {
	TaskID     string `json:"taskId"`
	Content    string `json:"content"`
	AuthorID   string `json:"authorId,omitempty"`
	AuthorName string `json:"authorName,omitempty"`
}

type ListCommentsQuery struct {
	TaskID string `json:"taskId"`
	Page   int    `json:"page,omitempty"`
	Size   int    `json:"size,omitempty"`
}

type ListNotificationsQuery struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit,omitempty"`
}

type MarkNotificationReadCommand struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

type MarkNotificationReadResult struct {
	Updated bool `json:"updated"`
}

// HealthReport is the structured reply of a service health command.
type HealthReport struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Env          map[string]bool   `json:"env,omitempty"`
}

const (
	StatusUp   = "up"
	StatusDown = "down"
)
