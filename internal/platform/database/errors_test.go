package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/taskpulse/project/internal/domain"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("noop", nil))
	assert.ErrorIs(t, Wrap("get task", pgx.ErrNoRows), domain.ErrNotFound)
	assert.ErrorIs(t, Wrap("insert", &pgconn.PgError{Code: "23505", ConstraintName: "notifications_event_user_key"}), domain.ErrConflict)
	assert.ErrorIs(t, Wrap("insert comment", &pgconn.PgError{Code: "23503"}), domain.ErrNotFound)
	assert.ErrorIs(t, Wrap("ping", context.DeadlineExceeded), domain.ErrUnavailable)

	plain := Wrap("query", errors.New("syntax error"))
	assert.NotErrorIs(t, plain, domain.ErrUnavailable)
	assert.Equal(t, "query: syntax error", plain.Error())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(Wrap("x", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestWrap_CallerMessageHidesDriverDetail(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    domain.Kind
		message string
	}{
		{
			name: "duplicate key",
			err: Wrap("insert task", &pgconn.PgError{
				Code: "23505", Message: `duplicate key value violates unique constraint "tasks_pkey"`,
				TableName: "tasks", ConstraintName: "tasks_pkey",
			}),
			kind:    domain.KindConflict,
			message: "insert task: conflict",
		},
		{
			name: "task deleted under a comment",
			err: Wrap("insert comment", &pgconn.PgError{
				Code: "23503", Message: `insert or update on table "comments" violates foreign key constraint "comments_task_id_fkey"`,
				TableName: "comments", ConstraintName: "comments_task_id_fkey",
			}),
			kind:    domain.KindNotFound,
			message: "insert comment: not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.Classify(fmt.Errorf("add comment: %w", tt.err))
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.message, got.Message)
			assert.NotContains(t, got.Message, "SQLSTATE")
			assert.NotContains(t, got.Message, "constraint")

			// operators still get the driver detail
			assert.Contains(t, tt.err.Error(), "SQLSTATE")
			assert.True(t, errors.As(tt.err, new(*pgconn.PgError)))
		})
	}
}
