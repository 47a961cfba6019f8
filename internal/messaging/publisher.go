package messaging

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Publisher sends one message; implementations return the transport error.
type Publisher interface {
	Publish(subject string, payload []byte) error
}

// PublishFunc adapts a function to Publisher.
type PublishFunc func(subject string, payload []byte) error

func (f PublishFunc) Publish(subject string, payload []byte) error { return f(subject, payload) }

// BestEffortPublisher makes exactly one background publish attempt per call.
// Failures are logged and reported to OnFailure, never to the caller.
type BestEffortPublisher struct {
	Next      Publisher
	Logger    log.FieldLogger
	OnFailure func(subject string, err error)

	wg sync.WaitGroup
}

func NewBestEffortPublisher(next Publisher, logger log.FieldLogger) *BestEffortPublisher {
	return &BestEffortPublisher{Next: next, Logger: logger}
}

// PublishBestEffort returns immediately; the publish runs in its own goroutine.
func (p *BestEffortPublisher) PublishBestEffort(subject string, payload []byte) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.Logger.WithField("subject", subject).Errorf("publish panicked: %v", r)
			}
		}()
		if err := p.Next.Publish(subject, payload); err != nil {
			p.Logger.WithError(err).WithField("subject", subject).Warn("best-effort publish dropped")
			if p.OnFailure != nil {
				p.OnFailure(subject, err)
			}
		}
	}()
}

// Wait blocks until every in-flight publish has finished.
func (p *BestEffortPublisher) Wait() {
	p.wg.Wait()
}
