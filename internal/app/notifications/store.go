package notifications

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/platform/database"
)

const table = "notifications"

var notificationColumns = []string{"id", "event_id", "user_id", "type", "payload", "read", "created_at"}

// PostgresStore owns the notifications table.
type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert stores rec unless a record for the same event and user exists.
// It reports whether a row was written.
func (s *PostgresStore) Insert(ctx context.Context, rec *domain.NotificationRecord) (bool, error) {
	query, args, err := insertQuery(rec)
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	if err := s.db.QueryRow(ctx, query, args...).Scan(&rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, database.Wrap("insert notification", err)
	}
	return true, nil
}

func insertQuery(rec *domain.NotificationRecord) (string, []any, error) {
	return database.PSQL.
		Insert(table).
		Columns("id", "event_id", "user_id", "type", "payload", "read").
		Values(rec.ID, rec.EventID, rec.RecipientUserID, rec.Type, []byte(rec.Payload), false).
		Suffix("ON CONFLICT (event_id, user_id) DO NOTHING RETURNING created_at").
		ToSql()
}

// ListForUser returns the user's most recent notifications first.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error) {
	query, args, err := database.PSQL.
		Select(notificationColumns...).
		From(table).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Wrap("list notifications", err)
	}
	defer rows.Close()

	out := make([]domain.NotificationRecord, 0, limit)
	for rows.Next() {
		var (
			rec     domain.NotificationRecord
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.RecipientUserID, &rec.Type, &payload, &rec.Read, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		rec.Payload = payload
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate notifications", err)
	}
	return out, nil
}

// MarkRead flags one of the user's notifications as read. Marking an
// already read notification succeeds.
func (s *PostgresStore) MarkRead(ctx context.Context, id, userID string) error {
	query, args, err := database.PSQL.
		Update(table).
		Set("read", true).
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return database.Wrap("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM notifications)").Scan(&exists); err != nil {
		return database.Wrap("ping notification store", err)
	}
	return nil
}
