package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/taskpulse/project/internal/domain"
)

var (
	ErrUnknownEventSubject = errors.New("unknown event subject")
	ErrInvalidEventPayload = errors.New("invalid event payload")
)

// DomainEvent is one of TaskCreated, TaskUpdated or CommentCreated.
type DomainEvent interface {
	Subject() string
	ID() string
	Actor() string
	domainEvent()
}

// TaskSummary is the slice of a task that recipient resolution reads.
type TaskSummary struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	OwnerID       string                `json:"ownerId"`
	OwnerName     string                `json:"ownerName"`
	AssignedUsers []domain.AssignedUser `json:"assignedUsers"`
}

func SummarizeTask(t domain.Task) TaskSummary {
	return TaskSummary{
		ID:            t.ID,
		Title:         t.Title,
		OwnerID:       t.AuthorID,
		OwnerName:     t.AuthorName,
		AssignedUsers: append([]domain.AssignedUser(nil), t.AssignedUsers...),
	}
}

// StatusAssignees is the before/after state broadcast on update.
type StatusAssignees struct {
	Status        domain.TaskStatus     `json:"status"`
	AssignedUsers []domain.AssignedUser `json:"assignedUsers"`
}

type CommentSummary struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type TaskCreated struct {
	EventID    string      `json:"eventId"`
	OccurredAt time.Time   `json:"occurredAt"`
	ActorID    string      `json:"actorId"`
	Task       TaskSummary `json:"task"`
}

type TaskUpdated struct {
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	ActorID    string          `json:"actorId"`
	ActorName  string          `json:"actorName"`
	Task       TaskSummary     `json:"task"`
	Before     StatusAssignees `json:"before"`
	After      StatusAssignees `json:"after"`
}

type CommentCreated struct {
	EventID    string         `json:"eventId"`
	OccurredAt time.Time      `json:"occurredAt"`
	ActorID    string         `json:"actorId"`
	ActorName  string         `json:"actorName"`
	Task       TaskSummary    `json:"task"`
	Comment    CommentSummary `json:"comment"`
}

func (TaskCreated) Subject() string    { return SubjectTaskCreated }
func (TaskUpdated) Subject() string    { return SubjectTaskUpdated }
func (CommentCreated) Subject() string { return SubjectCommentCreated }

func (e TaskCreated) ID() string    { return e.EventID }
func (e TaskUpdated) ID() string    { return e.EventID }
func (e CommentCreated) ID() string { return e.EventID }

func (e TaskCreated) Actor() string    { return e.ActorID }
func (e TaskUpdated) Actor() string    { return e.ActorID }
func (e CommentCreated) Actor() string { return e.ActorID }

func (TaskCreated) domainEvent()    {}
func (TaskUpdated) domainEvent()    {}
func (CommentCreated) domainEvent() {}

// DecodeEvent picks the event variant from the subject it arrived on.
func DecodeEvent(subject string, data []byte) (DomainEvent, error) {
	var (
		ev  DomainEvent
		err error
	)
	switch subject {
	case SubjectTaskCreated:
		var e TaskCreated
		err = json.Unmarshal(data, &e)
		ev = e
	case SubjectTaskUpdated:
		var e TaskUpdated
		err = json.Unmarshal(data, &e)
		ev = e
	case SubjectCommentCreated:
		var e CommentCreated
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventSubject, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEventPayload, err)
	}
	if ev.ID() == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrInvalidEventPayload)
	}
	return ev, nil
}

// DispatchMessage is the per-user delivery published on notification.dispatch.
type DispatchMessage struct {
	NotificationID string          `json:"notificationId"`
	UserID         string          `json:"userId"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
}
