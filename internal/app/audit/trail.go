// Package audit stores the append-only change history of tasks.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/platform/database"
)

const (
	table        = "task_audit_logs"
	DefaultLimit = 5
	MaxLimit     = 100
)

var ErrInvalidRecord = errors.New("invalid audit record")

// PostgresTrail appends and reads audit records. Records are never updated.
type PostgresTrail struct {
	db database.DBTX
}

func NewPostgresTrail(db database.DBTX) *PostgresTrail {
	return &PostgresTrail{db: db}
}

// Append inserts rec and fills its ID and CreatedAt when empty.
func (t *PostgresTrail) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.TaskID == "" || rec.Action == "" {
		return ErrInvalidRecord
	}
	before, err := encodeSnapshot(rec.Before)
	if err != nil {
		return err
	}
	after, err := encodeSnapshot(rec.After)
	if err != nil {
		return err
	}

	cols := []string{"task_id", "action", "before", "after", "actor_id", "actor_name"}
	vals := []any{rec.TaskID, rec.Action, before, after, rec.ActorID, rec.ActorName}
	if rec.ID != "" {
		cols = append(cols, "id")
		vals = append(vals, rec.ID)
	}
	if !rec.CreatedAt.IsZero() {
		cols = append(cols, "created_at")
		vals = append(vals, rec.CreatedAt)
	}

	query, args, err := database.PSQL.
		Insert(table).
		Columns(cols...).
		Values(vals...).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := t.db.QueryRow(ctx, query, args...).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return database.Wrap("append audit record", err)
	}
	return nil
}

// FindByTask returns up to limit records for taskID, newest first.
func (t *PostgresTrail) FindByTask(ctx context.Context, taskID string, limit int) ([]domain.AuditRecord, error) {
	query, args, err := findByTaskQuery(taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Wrap("query audit records", err)
	}
	defer rows.Close()

	records := make([]domain.AuditRecord, 0, limit)
	for rows.Next() {
		var (
			rec           domain.AuditRecord
			before, after []byte
		)
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Action, &before, &after, &rec.ActorID, &rec.ActorName, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if rec.Before, err = decodeSnapshot(before); err != nil {
			return nil, err
		}
		if rec.After, err = decodeSnapshot(after); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate audit records", err)
	}
	return records, nil
}

// Ping runs a cheap read against the audit table.
func (t *PostgresTrail) Ping(ctx context.Context) error {
	var exists bool
	if err := t.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+")").Scan(&exists); err != nil {
		return database.Wrap("ping audit trail", err)
	}
	return nil
}

func findByTaskQuery(taskID string, limit int) (string, []any, error) {
	return database.PSQL.
		Select("id", "task_id", "action", "before", "after", "actor_id", "actor_name", "created_at").
		From(table).
		Where(sq.Eq{"task_id": taskID}).
		OrderBy("created_at DESC", "seq DESC").
		Limit(uint64(ClampLimit(limit))).
		ToSql()
}

// ClampLimit applies DefaultLimit to non-positive values and caps at MaxLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func encodeSnapshot(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode audit snapshot: %w", err)
	}
	return raw, nil
}

func decodeSnapshot(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode audit snapshot: %w", err)
	}
	return m, nil
}
