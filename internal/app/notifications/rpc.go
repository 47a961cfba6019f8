package notifications

import (
	"context"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/messaging"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Inbox is the read side of a user's notifications.
type Inbox struct {
	Store Store
}

func (i Inbox) List(ctx context.Context, q contracts.ListNotificationsQuery) ([]domain.NotificationRecord, error) {
	if !domain.IsIdentifier(q.UserID) {
		return nil, domain.Invalid(domain.ReasonInvalidIdentifier, "user id %q is not a valid identifier", q.UserID)
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return i.Store.ListForUser(ctx, q.UserID, limit)
}

func (i Inbox) MarkRead(ctx context.Context, cmd contracts.MarkNotificationReadCommand) (contracts.MarkNotificationReadResult, error) {
	if !domain.IsIdentifier(cmd.ID) {
		return contracts.MarkNotificationReadResult{}, domain.Invalid(domain.ReasonInvalidIdentifier, "notification id %q is not a valid identifier", cmd.ID)
	}
	if !domain.IsIdentifier(cmd.UserID) {
		return contracts.MarkNotificationReadResult{}, domain.Invalid(domain.ReasonInvalidIdentifier, "user id %q is not a valid identifier", cmd.UserID)
	}
	if err := i.Store.MarkRead(ctx, cmd.ID, cmd.UserID); err != nil {
		return contracts.MarkNotificationReadResult{}, err
	}
	return contracts.MarkNotificationReadResult{Updated: true}, nil
}

func (i Inbox) Handlers() map[string]messaging.HandlerFunc {
	return map[string]messaging.HandlerFunc{
		contracts.CmdListNotifications: messaging.Typed(func(ctx context.Context, q contracts.ListNotificationsQuery) (any, error) {
			return i.List(ctx, q)
		}),
		contracts.CmdMarkNotificationRead: messaging.Typed(func(ctx context.Context, cmd contracts.MarkNotificationReadCommand) (any, error) {
			return i.MarkRead(ctx, cmd)
		}),
	}
}
