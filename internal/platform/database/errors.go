package database

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskpulse/project/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// storeError tags a driver error with a domain kind. Error keeps the driver
// detail for logs; SafeMessage is what callers get to see.
type storeError struct {
	op    string
	kind  error
	cause error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.cause)
}

func (e *storeError) SafeMessage() string { return e.op + ": " + e.kind.Error() }

func (e *storeError) Unwrap() []error { return []error{e.kind, e.cause} }

// Wrap maps a store error onto the domain taxonomy, keeping the original
// error in the chain. op names the failing operation.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return &storeError{op: op, kind: domain.ErrConflict, cause: err}
		case foreignKeyViolation:
			return &storeError{op: op, kind: domain.ErrNotFound, cause: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
