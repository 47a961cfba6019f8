package contracts

import (
	"encoding/json"
	"errors"

	"github.com/taskpulse/project/internal/domain"
)

// Reply is the envelope every RPC handler answers with.
type Reply struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody is the structured error returned to RPC callers.
type ErrorBody struct {
	Kind    domain.Kind   `json:"kind"`
	Reason  domain.Reason `json:"reason,omitempty"`
	Message string        `json:"message"`
	Status  int           `json:"status"`
}

func NewErrorBody(err error) *ErrorBody {
	c := domain.Classify(err)
	return &ErrorBody{Kind: c.Kind, Reason: c.Reason, Message: c.Message, Status: c.Status}
}

// Err turns the body back into an error matching the domain sentinels.
func (b *ErrorBody) Err() error {
	if b == nil {
		return nil
	}
	switch b.Kind {
	case domain.KindValidation:
		return &domain.ValidationError{Reason: b.Reason, Message: b.Message}
	case domain.KindNotFound:
		return &remoteError{kind: domain.ErrNotFound, msg: b.Message}
	case domain.KindConflict:
		return &remoteError{kind: domain.ErrConflict, msg: b.Message}
	case domain.KindUnavailable:
		return &remoteError{kind: domain.ErrUnavailable, msg: b.Message}
	default:
		return errors.New(b.Message)
	}
}

type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.kind }
