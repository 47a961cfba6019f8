package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering; the message is terminated.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// MessageHandler processes one JetStream message.
type MessageHandler func(ctx context.Context, subject string, data []byte) error

// Outcome is how a consumed message was settled.
type Outcome string

const (
	OutcomeAck  Outcome = "ack"
	OutcomeNak  Outcome = "nak"
	OutcomeTerm Outcome = "term"
)

// Settle maps a handler result to an acknowledgement.
func Settle(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case IsPermanent(err):
		return OutcomeTerm
	default:
		return OutcomeNak
	}
}

// ConsumerConfig describes a durable queue consumer.
type ConsumerConfig struct {
	Subject    string
	Durable    string
	AckWait    time.Duration
	MaxDeliver int
	// Timeout bounds one handler invocation.
	Timeout time.Duration
	// OnSettled is called after every message, for metrics.
	OnSettled func(subject string, outcome Outcome)
}

// Consume runs h for each message on cfg.Subject. A message is settled only
// after h returns: nil acks, a Permanent error terminates, anything else naks.
func Consume(ctx context.Context, js nats.JetStreamContext, cfg ConsumerConfig, logger log.FieldLogger, h MessageHandler) (*nats.Subscription, error) {
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return js.QueueSubscribe(cfg.Subject, cfg.Durable, func(msg *nats.Msg) {
		handleCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		err := h(handleCtx, msg.Subject, msg.Data)
		outcome := Settle(err)
		entry := logger.WithFields(log.Fields{"subject": msg.Subject, "outcome": outcome})
		switch outcome {
		case OutcomeAck:
			_ = msg.Ack()
		case OutcomeTerm:
			entry.WithError(err).Warn("discarding message")
			_ = msg.Term()
		case OutcomeNak:
			entry.WithError(err).Error("message handling failed, requesting redelivery")
			_ = msg.Nak()
		}
		if cfg.OnSettled != nil {
			cfg.OnSettled(msg.Subject, outcome)
		}
	}, nats.Durable(cfg.Durable), nats.ManualAck(), nats.AckWait(cfg.AckWait), nats.MaxDeliver(cfg.MaxDeliver), nats.DeliverAll())
}
