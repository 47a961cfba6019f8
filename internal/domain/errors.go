package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("downstream unavailable")
)

// Reason identifies which input rule a ValidationError violated.
type Reason string

const (
	ReasonInvalidEnumValue       Reason = "InvalidEnumValue"
	ReasonInvalidAssignee        Reason = "InvalidAssignee"
	ReasonDuplicateAssignee      Reason = "DuplicateAssignee"
	ReasonAuthorCannotBeAssigned Reason = "AuthorCannotBeAssigned"
	ReasonInvalidIdentifier      Reason = "InvalidIdentifier"
	ReasonInvalidDate            Reason = "InvalidDate"
	ReasonDueDateNotFuture       Reason = "DueDateNotFuture"
	ReasonEmptyTitle             Reason = "EmptyTitle"
	ReasonEmptyComment           Reason = "EmptyComment"
)

// ValidationError is returned when caller input breaks a task invariant.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError with a formatted message.
func Invalid(reason Reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Kind is the caller-facing class of an error.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// Classified is the caller-safe rendering of an error.
type Classified struct {
	Kind    Kind
	Reason  Reason
	Message string
	Status  int
}

// Classify maps err onto the error taxonomy. Unknown errors become a generic
// internal error without leaking the underlying message.
func Classify(err error) Classified {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return Classified{Kind: KindValidation, Reason: verr.Reason, Message: verr.Message, Status: 400}
	case errors.Is(err, ErrValidation):
		return Classified{Kind: KindValidation, Message: err.Error(), Status: 400}
	case errors.Is(err, ErrNotFound):
		return Classified{Kind: KindNotFound, Message: safeMessage(err), Status: 404}
	case errors.Is(err, ErrConflict):
		return Classified{Kind: KindConflict, Message: safeMessage(err), Status: 409}
	case errors.Is(err, ErrUnavailable):
		return Classified{Kind: KindUnavailable, Message: "service unavailable", Status: 500}
	default:
		return Classified{Kind: KindInternal, Message: "internal error", Status: 500}
	}
}

// safeMessage prefers the caller-facing text of an error that carries store
// detail in its Error string.
func safeMessage(err error) string {
	var safe interface{ SafeMessage() string }
	if errors.As(err, &safe) {
		return safe.SafeMessage()
	}
	return err.Error()
}
