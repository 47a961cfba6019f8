// Package recipients decides who is notified about a domain event.
package recipients

import (
	"sort"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
)

// Resolve returns the deduplicated, sorted user IDs that must be notified
// about ev. The acting user is never included.
//
//   - TaskCreated: every assignee.
//   - TaskUpdated: newly added assignees, plus the owner when the status moved.
//   - CommentCreated: the owner and every assignee.
func Resolve(ev contracts.DomainEvent) []string {
	set := map[string]struct{}{}
	add := func(id string) {
		if id != "" {
			set[id] = struct{}{}
		}
	}

	switch e := ev.(type) {
	case contracts.TaskCreated:
		for _, u := range e.Task.AssignedUsers {
			add(u.UserID)
		}
	case contracts.TaskUpdated:
		for _, id := range added(e.Before.AssignedUsers, e.After.AssignedUsers) {
			add(id)
		}
		if e.Before.Status != e.After.Status {
			add(e.Task.OwnerID)
		}
	case contracts.CommentCreated:
		add(e.Task.OwnerID)
		for _, u := range e.Task.AssignedUsers {
			add(u.UserID)
		}
	default:
		return nil
	}

	delete(set, ev.Actor())
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func added(before, after []domain.AssignedUser) []string {
	prev := make(map[string]struct{}, len(before))
	for _, u := range before {
		prev[u.UserID] = struct{}{}
	}
	var out []string
	for _, u := range after {
		if _, ok := prev[u.UserID]; !ok {
			out = append(out, u.UserID)
		}
	}
	return out
}

// NotificationType maps an event to the persisted notification type.
func NotificationType(ev contracts.DomainEvent) string {
	switch ev.(type) {
	case contracts.TaskCreated:
		return domain.NotificationTaskCreated
	case contracts.TaskUpdated:
		return domain.NotificationTaskUpdated
	case contracts.CommentCreated:
		return domain.NotificationCommentNew
	default:
		return ""
	}
}
