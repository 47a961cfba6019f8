package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/messaging"
)

func TestInbox_ListAndMarkRead(t *testing.T) {
	f := newFixture(t)
	subject, raw := encode(t, shipV1Created())
	require.NoError(t, f.dispatcher.Handle(context.Background(), subject, raw))
	inbox := Inbox{Store: f.store}

	list, err := inbox.List(context.Background(), contracts.ListNotificationsQuery{UserID: userB})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read)

	res, err := inbox.MarkRead(context.Background(), contracts.MarkNotificationReadCommand{ID: list[0].ID, UserID: userB})
	require.NoError(t, err)
	assert.True(t, res.Updated)

	list, _ = inbox.List(context.Background(), contracts.ListNotificationsQuery{UserID: userB})
	assert.True(t, list[0].Read)

	_, err = inbox.MarkRead(context.Background(), contracts.MarkNotificationReadCommand{ID: list[0].ID, UserID: userC})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInbox_RejectsBadIdentifiers(t *testing.T) {
	inbox := Inbox{Store: &memStore{}}

	_, err := inbox.List(context.Background(), contracts.ListNotificationsQuery{UserID: "bob"})
	assert.Equal(t, domain.ReasonInvalidIdentifier, domain.Classify(err).Reason)

	_, err = inbox.MarkRead(context.Background(), contracts.MarkNotificationReadCommand{ID: "1", UserID: userB})
	assert.Equal(t, domain.ReasonInvalidIdentifier, domain.Classify(err).Reason)
}

func TestInbox_HandlersOverEnvelope(t *testing.T) {
	f := newFixture(t)
	subject, raw := encode(t, shipV1Created())
	require.NoError(t, f.dispatcher.Handle(context.Background(), subject, raw))

	logger, _ := test.NewNullLogger()
	server := messaging.NewRPCServer(context.Background(), nil, "notifications", logger)
	handlers := Inbox{Store: f.store}.Handlers()

	req, _ := json.Marshal(contracts.ListNotificationsQuery{UserID: userB, Limit: 500})
	out := server.Dispatch(context.Background(), contracts.CmdListNotifications, req, handlers[contracts.CmdListNotifications])

	var reply contracts.Reply
	require.NoError(t, json.Unmarshal(out, &reply))
	require.Nil(t, reply.Error)
	var records []domain.NotificationRecord
	require.NoError(t, json.Unmarshal(reply.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, userB, records[0].RecipientUserID)
}

func TestInsertQuery_IgnoresDuplicates(t *testing.T) {
	query, args, err := insertQuery(&domain.NotificationRecord{
		ID:              "n1",
		EventID:         "e1",
		RecipientUserID: userB,
		Type:            domain.NotificationTaskCreated,
		Payload:         json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO notifications (id,event_id,user_id,type,payload,read) VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (event_id, user_id) DO NOTHING RETURNING created_at",
		query)
	assert.Len(t, args, 6)
}
