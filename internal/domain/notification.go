package domain

import (
	"encoding/json"
	"time"
)

// Notification types persisted per recipient.
const (
	NotificationTaskCreated = "task:created"
	NotificationTaskUpdated = "task:updated"
	NotificationCommentNew  = "comment:new"
)

// NotificationRecord is one persisted notification for one recipient.
type NotificationRecord struct {
	ID              string          `json:"id"`
	EventID         string          `json:"eventId"`
	RecipientUserID string          `json:"userId"`
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload"`
	Read            bool            `json:"read"`
	CreatedAt       time.Time       `json:"createdAt"`
}
