package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskpulse/project/internal/domain"
)

func TestDecodeEvent_PicksVariantBySubject(t *testing.T) {
	payload, err := json.Marshal(TaskUpdated{
		EventID: "evt-1",
		ActorID: "actor",
		Task:    TaskSummary{ID: "t1", OwnerID: "owner"},
		Before:  StatusAssignees{Status: domain.StatusTodo},
		After:   StatusAssignees{Status: domain.StatusDone},
	})
	require.NoError(t, err)

	ev, err := DecodeEvent(SubjectTaskUpdated, payload)
	require.NoError(t, err)

	upd, ok := ev.(TaskUpdated)
	require.True(t, ok, "expected TaskUpdated, got %T", ev)
	assert.Equal(t, "evt-1", upd.ID())
	assert.Equal(t, "actor", upd.Actor())
	assert.Equal(t, domain.StatusDone, upd.After.Status)
	assert.Equal(t, SubjectTaskUpdated, upd.Subject())
}

func TestDecodeEvent_Errors(t *testing.T) {
	_, err := DecodeEvent("task.archived", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventSubject)

	_, err = DecodeEvent(SubjectTaskCreated, []byte(`{invalid`))
	assert.ErrorIs(t, err, ErrInvalidEventPayload)

	_, err = DecodeEvent(SubjectCommentCreated, []byte(`{"actorId":"a"}`))
	assert.ErrorIs(t, err, ErrInvalidEventPayload)
}

func TestErrorBody_KindSurvivesRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"validation", domain.Invalid(domain.ReasonAuthorCannotBeAssigned, "author u1 cannot be assigned"), domain.ErrValidation},
		{"not found", fmt.Errorf("task t1: %w", domain.ErrNotFound), domain.ErrNotFound},
		{"conflict", fmt.Errorf("insert: %w", domain.ErrConflict), domain.ErrConflict},
		{"unavailable", fmt.Errorf("db: %w", domain.ErrUnavailable), domain.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(Reply{Error: NewErrorBody(tt.err)})
			require.NoError(t, err)

			var reply Reply
			require.NoError(t, json.Unmarshal(raw, &reply))
			assert.ErrorIs(t, reply.Error.Err(), tt.want)
		})
	}
}

func TestErrorBody_ValidationReasonPreserved(t *testing.T) {
	body := NewErrorBody(domain.Invalid(domain.ReasonDuplicateAssignee, "user u2 listed twice"))
	assert.Equal(t, 400, body.Status)

	var verr *domain.ValidationError
	require.True(t, errors.As(body.Err(), &verr))
	assert.Equal(t, domain.ReasonDuplicateAssignee, verr.Reason)
	assert.Equal(t, "DuplicateAssignee: user u2 listed twice", verr.Error())
}

func TestErrorBody_NilIsNoError(t *testing.T) {
	var body *ErrorBody
	assert.NoError(t, body.Err())
}
