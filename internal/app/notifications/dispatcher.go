// Package notifications turns task domain events into per-user notification
// records and push deliveries.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/taskpulse/project/internal/app/recipients"
	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/messaging"
	"github.com/taskpulse/project/internal/platform/metrics"
)

type Store interface {
	Insert(ctx context.Context, rec *domain.NotificationRecord) (bool, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.NotificationRecord, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// Deduper is optional; without one the store's (event, user) uniqueness is
// the only guard against duplicates.
type Deduper interface {
	Seen(ctx context.Context, eventID, userID string) (bool, error)
	Mark(ctx context.Context, eventID, userID string) error
}

// Dispatcher is the sole writer of notification records.
type Dispatcher struct {
	Store     Store
	Dedupe    Deduper
	Publisher messaging.Publisher
	Logger    log.FieldLogger
	Metrics   *metrics.Pipeline
	NewID     func() string
}

func NewDispatcher(store Store, dedupe Deduper, publisher messaging.Publisher, logger log.FieldLogger) *Dispatcher {
	return &Dispatcher{
		Store:     store,
		Dedupe:    dedupe,
		Publisher: publisher,
		Logger:    logger,
		NewID:     domain.NewID,
	}
}

// Handle consumes one domain event. Recipients are handled concurrently and
// Handle returns only after every one of them finished. A malformed event is
// permanent; a failed persist for any recipient fails the whole event so it
// is redelivered.
func (d *Dispatcher) Handle(ctx context.Context, subject string, data []byte) error {
	ev, err := contracts.DecodeEvent(subject, data)
	if err != nil {
		return messaging.Permanent(err)
	}

	users := recipients.Resolve(ev)
	logger := d.Logger.WithFields(log.Fields{"event_id": ev.ID(), "subject": subject})
	if len(users) == 0 {
		logger.Debug("event has no recipients")
		return nil
	}

	notificationType := recipients.NotificationType(ev)
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, userID := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = d.deliver(ctx, logger.WithField("recipient", userID), ev.ID(), userID, notificationType, data)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("dispatch %s: %w", ev.ID(), err)
	}
	logger.WithField("recipients", len(users)).Info("event dispatched")
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, logger log.FieldLogger, eventID, userID, notificationType string, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliver to %s panicked: %v", userID, r)
		}
	}()

	if d.Dedupe != nil {
		seen, err := d.Dedupe.Seen(ctx, eventID, userID)
		switch {
		case err != nil:
			logger.WithError(err).Warn("dedupe unavailable, relying on store uniqueness")
		case seen:
			logger.Debug("recipient already notified")
			d.dedupeSkip()
			return nil
		}
	}

	rec := domain.NotificationRecord{
		ID:              d.NewID(),
		EventID:         eventID,
		RecipientUserID: userID,
		Type:            notificationType,
		Payload:         json.RawMessage(payload),
	}
	inserted, err := d.Store.Insert(ctx, &rec)
	if err != nil {
		logger.WithError(err).Error("persisting notification failed")
		return err
	}
	if d.Dedupe != nil {
		if err := d.Dedupe.Mark(ctx, eventID, userID); err != nil {
			logger.WithError(err).Warn("marking recipient notified failed")
		}
	}
	if !inserted {
		logger.Debug("notification already stored")
		d.dedupeSkip()
		return nil
	}
	if d.Metrics != nil {
		d.Metrics.Notifications.WithLabelValues(notificationType).Inc()
	}

	d.publish(logger, contracts.DispatchMessage{
		NotificationID: rec.ID,
		UserID:         userID,
		Type:           notificationType,
		Payload:        rec.Payload,
	})
	return nil
}

// publish makes one attempt; failures are logged and never returned.
func (d *Dispatcher) publish(logger log.FieldLogger, msg contracts.DispatchMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("dispatch publish panicked: %v", r)
		}
	}()
	raw, err := json.Marshal(msg)
	if err == nil {
		err = d.Publisher.Publish(contracts.SubjectNotificationDispatch, raw)
	}
	if err != nil {
		logger.WithError(err).WithField("subject", contracts.SubjectNotificationDispatch).Warn("dispatch publish dropped")
		if d.Metrics != nil {
			d.Metrics.PublishFailures.WithLabelValues(contracts.SubjectNotificationDispatch).Inc()
		}
	}
}

func (d *Dispatcher) dedupeSkip() {
	if d.Metrics != nil {
		d.Metrics.DedupeSkips.Inc()
	}
}
