package changediff

import (
	"strings"
	"time"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
)

// Field names used as keys in Changes and in audit payloads.
const (
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldDueDate       = "dueDate"
	FieldPriority      = "priority"
	FieldStatus        = "status"
	FieldAssignedUsers = "assignedUsers"
)

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// Patch is a validated, normalized partial task. Nil fields are absent.
type Patch struct {
	Title         *string
	Description   *string
	DueDate       *time.Time
	Priority      *domain.TaskPriority
	Status        *domain.TaskStatus
	AssignedUsers *[]domain.AssignedUser
}

// Apply returns a copy of t with every present field of p written over it.
func (p Patch) Apply(t domain.Task) domain.Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		d := *p.Description
		out.Description = &d
	}
	if p.DueDate != nil {
		d := *p.DueDate
		out.DueDate = &d
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.AssignedUsers != nil {
		out.AssignedUsers = append([]domain.AssignedUser(nil), (*p.AssignedUsers)...)
	}
	return out
}

// Engine validates task input and computes field-level changes. It does no I/O.
type Engine struct {
	Now func() time.Time
}

func New() *Engine {
	return &Engine{Now: func() time.Time { return time.Now().UTC() }}
}

// ComputeAndValidate normalizes patch and checks it against task invariants.
// With existing == nil the patch is a creation and actor is the author; the
// returned Changes is then nil. Otherwise Changes holds exactly the present
// fields whose value differs from existing.
func (e *Engine) ComputeAndValidate(existing *domain.Task, patch contracts.TaskPatch, actor string) (Patch, Changes, error) {
	creating := existing == nil
	var out Patch

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return Patch{}, nil, domain.Invalid(domain.ReasonEmptyTitle, "title must not be empty")
		}
		out.Title = &title
	} else if creating {
		return Patch{}, nil, domain.Invalid(domain.ReasonEmptyTitle, "title is required")
	}

	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		out.Description = &desc
	}

	if patch.Priority != nil {
		p := domain.TaskPriority(*patch.Priority)
		if !p.IsValid() {
			return Patch{}, nil, domain.Invalid(domain.ReasonInvalidEnumValue, "priority %q is not one of LOW, MEDIUM, HIGH, URGENT", *patch.Priority)
		}
		out.Priority = &p
	}

	if patch.Status != nil {
		s := domain.TaskStatus(*patch.Status)
		if !s.IsValid() {
			return Patch{}, nil, domain.Invalid(domain.ReasonInvalidEnumValue, "status %q is not one of TODO, IN_PROGRESS, REVIEW, DONE", *patch.Status)
		}
		out.Status = &s
	}

	if patch.DueDate != nil {
		due, err := parseDate(*patch.DueDate)
		if err != nil {
			return Patch{}, nil, err
		}
		changed := creating || existing.DueDate == nil || !existing.DueDate.Equal(due)
		if changed && !due.After(e.Now()) {
			return Patch{}, nil, domain.Invalid(domain.ReasonDueDateNotFuture, "due date %s is not in the future", due.Format(time.RFC3339))
		}
		out.DueDate = &due
	}

	authorID := actor
	if !creating {
		authorID = existing.AuthorID
	} else if !domain.IsIdentifier(authorID) {
		return Patch{}, nil, domain.Invalid(domain.ReasonInvalidIdentifier, "author id %q is not a valid identifier", authorID)
	}

	if patch.AssignedUsers != nil {
		users, err := normalizeAssignees(*patch.AssignedUsers)
		if err != nil {
			return Patch{}, nil, err
		}
		out.AssignedUsers = &users
	}

	merged := out.AssignedUsers
	if merged == nil && !creating {
		merged = &existing.AssignedUsers
	}
	if merged != nil {
		if err := checkAssignees(*merged, authorID); err != nil {
			return Patch{}, nil, err
		}
	}

	if creating {
		return out, nil, nil
	}
	return out, changesFor(*existing, out), nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			// stored as timestamptz, which keeps microseconds
			return ts.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, domain.Invalid(domain.ReasonInvalidDate, "due date %q is not a valid date", raw)
}

func normalizeAssignees(in []domain.AssignedUser) ([]domain.AssignedUser, error) {
	out := make([]domain.AssignedUser, 0, len(in))
	for i, u := range in {
		id := strings.TrimSpace(u.UserID)
		name := strings.TrimSpace(u.Username)
		if id == "" || name == "" {
			return nil, domain.Invalid(domain.ReasonInvalidAssignee, "assignee %d needs both userId and username", i)
		}
		if !domain.IsIdentifier(id) {
			return nil, domain.Invalid(domain.ReasonInvalidAssignee, "assignee userId %q is not a valid identifier", id)
		}
		out = append(out, domain.AssignedUser{UserID: id, Username: name})
	}
	return out, nil
}

func checkAssignees(users []domain.AssignedUser, authorID string) error {
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, dup := seen[u.UserID]; dup {
			return domain.Invalid(domain.ReasonDuplicateAssignee, "user %s is assigned more than once", u.UserID)
		}
		seen[u.UserID] = struct{}{}
		if u.UserID == authorID {
			return domain.Invalid(domain.ReasonAuthorCannotBeAssigned, "author %s cannot be assigned to their own task", authorID)
		}
	}
	return nil
}

// NewTask builds the task a creation patch describes, applying defaults.
func NewTask(p Patch, id, authorID, authorName string, now time.Time) domain.Task {
	t := domain.Task{
		ID:            id,
		Priority:      domain.PriorityMedium,
		Status:        domain.StatusTodo,
		AuthorID:      authorID,
		AuthorName:    authorName,
		AssignedUsers: []domain.AssignedUser{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return p.Apply(t)
}
