package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
		reason Reason
	}{
		{"validation", Invalid(ReasonDuplicateAssignee, "user %s listed twice", "u1"), KindValidation, 400, ReasonDuplicateAssignee},
		{"wrapped validation", fmt.Errorf("update: %w", Invalid(ReasonEmptyTitle, "title is required")), KindValidation, 400, ReasonEmptyTitle},
		{"not found", fmt.Errorf("task t1: %w", ErrNotFound), KindNotFound, 404, ""},
		{"conflict", fmt.Errorf("insert: %w", ErrConflict), KindConflict, 409, ""},
		{"unavailable", fmt.Errorf("db: %w", ErrUnavailable), KindUnavailable, 500, ""},
		{"unknown", errors.New("pq: connection refused at 10.0.0.3"), KindInternal, 500, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestClassify_DoesNotLeakInternalDetail(t *testing.T) {
	got := Classify(errors.New("pq: connection refused at 10.0.0.3"))
	assert.Equal(t, "internal error", got.Message)
}

type detailedError struct{ kind error }

func (e detailedError) Error() string       { return "insert: " + e.kind.Error() + `: constraint "x_pkey" (SQLSTATE 23505)` }
func (e detailedError) SafeMessage() string { return "insert: " + e.kind.Error() }
func (e detailedError) Unwrap() error       { return e.kind }

func TestClassify_UsesSafeMessageForStoreErrors(t *testing.T) {
	got := Classify(fmt.Errorf("create: %w", detailedError{kind: ErrConflict}))
	assert.Equal(t, KindConflict, got.Kind)
	assert.Equal(t, "insert: conflict", got.Message)

	got = Classify(detailedError{kind: ErrNotFound})
	assert.Equal(t, KindNotFound, got.Kind)
	assert.Equal(t, "insert: not found", got.Message)

	assert.Equal(t, "task t1: not found", Classify(fmt.Errorf("task t1: %w", ErrNotFound)).Message)
}

func TestValidationErrorIsErrValidation(t *testing.T) {
	err := Invalid(ReasonInvalidEnumValue, "priority %q", "NOW")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, `InvalidEnumValue: priority "NOW"`, err.Error())
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier(NewID()))
	assert.False(t, IsIdentifier(""))
	assert.False(t, IsIdentifier("user-1"))
}

func TestTaskClone_IsDeep(t *testing.T) {
	desc := "d"
	orig := Task{Description: &desc, AssignedUsers: []AssignedUser{{UserID: "b", Username: "bob"}}}
	c := orig.Clone()
	*c.Description = "changed"
	c.AssignedUsers[0].Username = "eve"
	assert.Equal(t, "d", *orig.Description)
	assert.Equal(t, "bob", orig.AssignedUsers[0].Username)
}
