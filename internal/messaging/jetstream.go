package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	TaskEventsStream    = "TASK_EVENTS"
	NotificationsStream = "NOTIFICATIONS"
)

// EnsureStreams creates (or validates) the two streams the pipeline needs:
// - task.>          domain events from the tasks service
// - notification.>  per-user deliveries from the dispatcher
func EnsureStreams(js nats.JetStreamContext) error {
	if err := ensureStream(js, TaskEventsStream, "task.>"); err != nil {
		return err
	}
	return ensureStream(js, NotificationsStream, "notification.>")
}

func ensureStream(js nats.JetStreamContext, name, subject string) error {
	if _, err := js.StreamInfo(name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, addErr := js.AddStream(&nats.StreamConfig{
			Name:      name,
			Subjects:  []string{subject},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			Replicas:  1,
		}); addErr != nil {
			return addErr
		}
	}
	return nil
}
