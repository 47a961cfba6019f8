package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskpulse/project/internal/app/audit"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/platform/database"
)

var taskColumns = []string{
	"id", "title", "description", "due_date", "priority", "status",
	"author_id", "author_name", "assigned_users", "created_at", "updated_at",
}

// PostgresStore persists tasks and comments.
type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	query, args, err := database.PSQL.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Task{}, fmt.Errorf("build query: %w", err)
	}
	task, err := scanTask(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Task{}, database.Wrap("get task "+id, err)
	}
	return task, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, task domain.Task) error {
	assigned, err := json.Marshal(task.AssignedUsers)
	if err != nil {
		return fmt.Errorf("encode assignees: %w", err)
	}
	query, args, err := database.PSQL.
		Insert("tasks").
		Columns(taskColumns...).
		Values(task.ID, task.Title, task.Description, task.DueDate, task.Priority, task.Status,
			task.AuthorID, task.AuthorName, assigned, task.CreatedAt, task.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return database.Wrap("insert task", err)
	}
	return nil
}

// UpdateTask overwrites every mutable column. Concurrent writers are not
// detected; the last write wins.
func (s *PostgresStore) UpdateTask(ctx context.Context, task domain.Task) error {
	assigned, err := json.Marshal(task.AssignedUsers)
	if err != nil {
		return fmt.Errorf("encode assignees: %w", err)
	}
	query, args, err := database.PSQL.
		Update("tasks").
		SetMap(map[string]any{
			"title":          task.Title,
			"description":    task.Description,
			"due_date":       task.DueDate,
			"priority":       task.Priority,
			"status":         task.Status,
			"assigned_users": assigned,
			"updated_at":     task.UpdatedAt,
		}).
		Where(sq.Eq{"id": task.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return database.Wrap("update task", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %s: %w", task.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteTask removes the task; comments go with it through the foreign key.
func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	query, args, err := database.PSQL.Delete("tasks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return database.Wrap("delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, offset, limit int) ([]domain.Task, error) {
	query, args, err := database.PSQL.
		Select(taskColumns...).
		From("tasks").
		OrderBy("created_at DESC", "id").
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Wrap("list tasks", err)
	}
	defer rows.Close()

	out := make([]domain.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate tasks", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, c domain.Comment) error {
	query, args, err := database.PSQL.
		Insert("comments").
		Columns("id", "task_id", "content", "author_id", "author_name", "created_at").
		Values(c.ID, c.TaskID, c.Content, c.AuthorID, c.AuthorName, c.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return database.Wrap("insert comment", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, taskID string, offset, limit int) ([]domain.Comment, error) {
	query, args, err := database.PSQL.
		Select("id", "task_id", "content", "author_id", "author_name", "created_at").
		From("comments").
		Where(sq.Eq{"task_id": taskID}).
		OrderBy("created_at ASC", "id").
		Offset(uint64(offset)).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Wrap("list comments", err)
	}
	defer rows.Close()

	out := make([]domain.Comment, 0, limit)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Content, &c.AuthorID, &c.AuthorName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate comments", err)
	}
	return out, nil
}

// Ping runs a cheap read against the tasks table.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM tasks)").Scan(&exists); err != nil {
		return database.Wrap("ping task store", err)
	}
	return nil
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		t        domain.Task
		assigned []byte
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.DueDate, &t.Priority, &t.Status,
		&t.AuthorID, &t.AuthorName, &assigned, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	t.AssignedUsers = []domain.AssignedUser{}
	if len(assigned) > 0 {
		if err := json.Unmarshal(assigned, &t.AssignedUsers); err != nil {
			return domain.Task{}, fmt.Errorf("decode assignees: %w", err)
		}
	}
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		t.DueDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

// PostgresUnitOfWork runs task and audit writes in one transaction.
type PostgresUnitOfWork struct {
	Pool *pgxpool.Pool
}

func (u PostgresUnitOfWork) InTx(ctx context.Context, fn func(ctx context.Context, tasks TaskStore, trail AuditTrail) error) error {
	var fnErr error
	err := pgx.BeginFunc(ctx, u.Pool, func(tx pgx.Tx) error {
		fnErr = fn(ctx, NewPostgresStore(tx), audit.NewPostgresTrail(tx))
		return fnErr
	})
	if err != nil && fnErr == nil {
		return database.Wrap("task transaction", err)
	}
	return err
}
