package tasks

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskpulse/project/internal/app/audit"
	"github.com/taskpulse/project/internal/app/changediff"
	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/platform/metrics"
)

const (
	tracerName = "github.com/taskpulse/project/internal/app/tasks"

	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type TaskStore interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
	InsertTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, offset, limit int) ([]domain.Task, error)
	InsertComment(ctx context.Context, c domain.Comment) error
	ListComments(ctx context.Context, taskID string, offset, limit int) ([]domain.Comment, error)
}

type AuditTrail interface {
	Append(ctx context.Context, rec *domain.AuditRecord) error
	FindByTask(ctx context.Context, taskID string, limit int) ([]domain.AuditRecord, error)
}

// UnitOfWork commits the task and audit writes made inside fn together, or
// none of them.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tasks TaskStore, trail AuditTrail) error) error
}

// EventPublisher never reports failure to the caller.
type EventPublisher interface {
	PublishBestEffort(subject string, payload []byte)
}

// Service is the only writer of tasks, comments and their audit trail.
type Service struct {
	UoW       UnitOfWork
	Tasks     TaskStore
	Audit     AuditTrail
	Diff      *changediff.Engine
	Publisher EventPublisher
	Logger    log.FieldLogger
	Tracer    trace.Tracer
	Metrics   *metrics.Pipeline

	Now        func() time.Time
	NewID      func() string
	NewEventID func() string
}

func NewService(uow UnitOfWork, tasks TaskStore, trail AuditTrail, publisher EventPublisher, logger log.FieldLogger) *Service {
	s := &Service{
		UoW:        uow,
		Tasks:      tasks,
		Audit:      trail,
		Diff:       changediff.New(),
		Publisher:  publisher,
		Logger:     logger,
		Tracer:     otel.Tracer(tracerName),
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      domain.NewID,
		NewEventID: nuid.Next,
	}
	// Due-date checks use the service clock.
	s.Diff.Now = func() time.Time { return s.Now() }
	return s
}

// Create validates cmd, stores the task with its TASK_CREATED record and
// announces it. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, cmd contracts.CreateTaskCommand) (task domain.Task, err error) {
	ctx, span := s.startSpan(ctx, "tasks.Create", attribute.String("actor_id", cmd.AuthorID))
	defer func() { s.finish(span, "create", err) }()

	patch := contracts.TaskPatch{
		Title:       &cmd.Title,
		Description: cmd.Description,
		DueDate:     cmd.DueDate,
		Priority:    cmd.Priority,
		Status:      cmd.Status,
	}
	if cmd.AssignedUsers != nil {
		patch.AssignedUsers = &cmd.AssignedUsers
	}
	normalized, _, err := s.Diff.ComputeAndValidate(nil, patch, cmd.AuthorID)
	if err != nil {
		return domain.Task{}, err
	}

	now := s.Now()
	authorName := strings.TrimSpace(cmd.AuthorName)
	task = changediff.NewTask(normalized, s.NewID(), cmd.AuthorID, authorName, now)
	span.SetAttributes(attribute.String("task_id", task.ID))

	rec := domain.AuditRecord{
		ID:        s.NewID(),
		TaskID:    task.ID,
		Action:    domain.AuditTaskCreated,
		After:     task.Snapshot(),
		ActorID:   cmd.AuthorID,
		ActorName: authorName,
		CreatedAt: now,
	}
	err = s.UoW.InTx(ctx, func(ctx context.Context, tasks TaskStore, trail AuditTrail) error {
		if err := tasks.InsertTask(ctx, task); err != nil {
			return err
		}
		return trail.Append(ctx, &rec)
	})
	if err != nil {
		return domain.Task{}, err
	}

	s.publish(contracts.TaskCreated{
		EventID:    s.NewEventID(),
		OccurredAt: now,
		ActorID:    cmd.AuthorID,
		Task:       contracts.SummarizeTask(task),
	})
	s.Logger.WithFields(log.Fields{"task_id": task.ID, "actor_id": cmd.AuthorID, "assignees": len(task.AssignedUsers)}).Info("task created")
	return task, nil
}

// Update applies a partial change. A patch that changes nothing writes no
// audit record and publishes no event.
func (s *Service) Update(ctx context.Context, cmd contracts.UpdateTaskCommand) (details domain.TaskDetails, err error) {
	actorID, actorName := actorOrSystem(cmd.ActorID, cmd.ActorName)
	ctx, span := s.startSpan(ctx, "tasks.Update", attribute.String("task_id", cmd.ID), attribute.String("actor_id", actorID))
	defer func() { s.finish(span, "update", err) }()

	if err := checkTaskID(cmd.ID); err != nil {
		return domain.TaskDetails{}, err
	}

	var (
		before, after domain.Task
		changes       changediff.Changes
	)
	err = s.UoW.InTx(ctx, func(ctx context.Context, tasks TaskStore, trail AuditTrail) error {
		existing, err := tasks.GetTask(ctx, cmd.ID)
		if err != nil {
			return err
		}
		before, after = existing, existing

		normalized, preview, err := s.Diff.ComputeAndValidate(&existing, cmd.Patch, actorID)
		if err != nil {
			return err
		}
		if preview.Empty() {
			return nil
		}

		merged := normalized.Apply(existing)
		merged.UpdatedAt = s.Now()
		if err := tasks.UpdateTask(ctx, merged); err != nil {
			return err
		}
		// Diff against what the store holds now, not what we sent.
		if after, err = tasks.GetTask(ctx, cmd.ID); err != nil {
			return err
		}
		changes = changediff.Diff(existing, after)
		if changes.Empty() {
			return nil
		}
		return trail.Append(ctx, &domain.AuditRecord{
			ID:        s.NewID(),
			TaskID:    existing.ID,
			Action:    domain.AuditTaskUpdated,
			Before:    changes.Before(),
			After:     changes.After(),
			ActorID:   actorID,
			ActorName: actorName,
			CreatedAt: merged.UpdatedAt,
		})
	})
	if err != nil {
		return domain.TaskDetails{}, err
	}

	if !changes.Empty() {
		s.publish(contracts.TaskUpdated{
			EventID:    s.NewEventID(),
			OccurredAt: after.UpdatedAt,
			ActorID:    actorID,
			ActorName:  actorName,
			Task:       contracts.SummarizeTask(after),
			Before:     contracts.StatusAssignees{Status: before.Status, AssignedUsers: before.AssignedUsers},
			After:      contracts.StatusAssignees{Status: after.Status, AssignedUsers: after.AssignedUsers},
		})
		fields := make([]string, 0, len(changes))
		for k := range changes {
			fields = append(fields, k)
		}
		s.Logger.WithFields(log.Fields{"task_id": after.ID, "actor_id": actorID, "fields": fields}).Info("task updated")
	} else {
		s.Logger.WithFields(log.Fields{"task_id": after.ID, "actor_id": actorID}).Debug("task update changed nothing")
	}

	return domain.TaskDetails{Task: after, Audit: s.recentAudit(ctx, after.ID, audit.DefaultLimit)}, nil
}

// Delete removes a task and its comments. No audit record or event is produced.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "tasks.Delete", attribute.String("task_id", id))
	defer func() { s.finish(span, "delete", err) }()

	if err := checkTaskID(id); err != nil {
		return err
	}
	if _, err := s.Tasks.GetTask(ctx, id); err != nil {
		return err
	}
	if err := s.Tasks.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.Logger.WithField("task_id", id).Info("task deleted")
	return nil
}

// AddComment attaches a comment, records COMMENT_ADDED and announces it.
func (s *Service) AddComment(ctx context.Context, cmd contracts.CreateCommentCommand) (comment domain.Comment, err error) {
	actorID, actorName := actorOrSystem(cmd.AuthorID, cmd.AuthorName)
	ctx, span := s.startSpan(ctx, "tasks.AddComment", attribute.String("task_id", cmd.TaskID), attribute.String("actor_id", actorID))
	defer func() { s.finish(span, "comment", err) }()

	if err := checkTaskID(cmd.TaskID); err != nil {
		return domain.Comment{}, err
	}
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return domain.Comment{}, domain.Invalid(domain.ReasonEmptyComment, "comment content must not be empty")
	}

	now := s.Now()
	comment = domain.Comment{
		ID:         s.NewID(),
		TaskID:     cmd.TaskID,
		Content:    content,
		AuthorID:   actorID,
		AuthorName: actorName,
		CreatedAt:  now,
	}
	var task domain.Task
	err = s.UoW.InTx(ctx, func(ctx context.Context, tasks TaskStore, trail AuditTrail) error {
		var err error
		if task, err = tasks.GetTask(ctx, cmd.TaskID); err != nil {
			return err
		}
		if err := tasks.InsertComment(ctx, comment); err != nil {
			return err
		}
		return trail.Append(ctx, &domain.AuditRecord{
			ID:        s.NewID(),
			TaskID:    task.ID,
			Action:    domain.AuditCommentAdded,
			After:     map[string]any{"commentId": comment.ID},
			ActorID:   actorID,
			ActorName: actorName,
			CreatedAt: now,
		})
	})
	if err != nil {
		return domain.Comment{}, err
	}

	s.publish(contracts.CommentCreated{
		EventID:    s.NewEventID(),
		OccurredAt: now,
		ActorID:    actorID,
		ActorName:  actorName,
		Task:       contracts.SummarizeTask(task),
		Comment:    contracts.CommentSummary{ID: comment.ID, Content: comment.Content},
	})
	s.Logger.WithFields(log.Fields{"task_id": task.ID, "actor_id": actorID, "comment_id": comment.ID}).Info("comment added")
	return comment, nil
}

// GetTaskDetails returns the task with its most recent audit records.
func (s *Service) GetTaskDetails(ctx context.Context, id string, auditLimit int) (details domain.TaskDetails, err error) {
	ctx, span := s.startSpan(ctx, "tasks.GetDetails", attribute.String("task_id", id))
	defer func() { s.endSpan(span, err) }()

	if err := checkTaskID(id); err != nil {
		return domain.TaskDetails{}, err
	}
	task, err := s.Tasks.GetTask(ctx, id)
	if err != nil {
		return domain.TaskDetails{}, err
	}
	records, err := s.Audit.FindByTask(ctx, id, audit.ClampLimit(auditLimit))
	if err != nil {
		return domain.TaskDetails{}, err
	}
	return domain.TaskDetails{Task: task, Audit: records}, nil
}

// ListTasks pages through tasks, newest first.
func (s *Service) ListTasks(ctx context.Context, page, size int) ([]domain.Task, error) {
	offset, limit := Paginate(page, size)
	return s.Tasks.ListTasks(ctx, offset, limit)
}

// ListComments pages through a task's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, taskID string, page, size int) ([]domain.Comment, error) {
	if err := checkTaskID(taskID); err != nil {
		return nil, err
	}
	if _, err := s.Tasks.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	offset, limit := Paginate(page, size)
	return s.Tasks.ListComments(ctx, taskID, offset, limit)
}

// Paginate turns a 1-based page and size into offset and limit.
func Paginate(page, size int) (offset, limit int) {
	if page < 1 {
		page = DefaultPage
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return (page - 1) * size, size
}

func (s *Service) recentAudit(ctx context.Context, taskID string, limit int) []domain.AuditRecord {
	records, err := s.Audit.FindByTask(ctx, taskID, limit)
	if err != nil {
		s.Logger.WithError(err).WithField("task_id", taskID).Warn("loading recent audit failed")
		return []domain.AuditRecord{}
	}
	return records
}

func (s *Service) publish(ev contracts.DomainEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.Logger.WithError(err).WithField("subject", ev.Subject()).Error("encode domain event")
		return
	}
	s.Publisher.PublishBestEffort(ev.Subject(), payload)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.Classify(err).Kind))
	}
	span.End()
}

func (s *Service) finish(span trace.Span, op string, err error) {
	s.endSpan(span, err)
	if s.Metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(domain.Classify(err).Kind)
	}
	s.Metrics.Mutations.WithLabelValues(op, outcome).Inc()
}

func checkTaskID(id string) error {
	if !domain.IsIdentifier(id) {
		return domain.Invalid(domain.ReasonInvalidIdentifier, "task id %q is not a valid identifier", id)
	}
	return nil
}

func actorOrSystem(id, name string) (string, string) {
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if id == "" {
		return domain.SystemActor, domain.SystemActor
	}
	if name == "" {
		name = id
	}
	return id, name
}
