package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
)

const defaultMaxInFlight = 64

// HandlerFunc serves one command. The returned value becomes Reply.Data.
type HandlerFunc func(ctx context.Context, data []byte) (any, error)

// Typed decodes the request body into Req before calling fn.
func Typed[Req any](fn func(ctx context.Context, req Req) (any, error)) HandlerFunc {
	return func(ctx context.Context, data []byte) (any, error) {
		var req Req
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, fmt.Errorf("%w: malformed request: %v", domain.ErrValidation, err)
			}
		}
		return fn(ctx, req)
	}
}

// RPCServer answers request/reply commands on rpc.<command> subjects. All
// instances of a service share one queue group, so each request is served once.
type RPCServer struct {
	Conn    *nats.Conn
	Queue   string
	Logger  log.FieldLogger
	Observe func(command string, kind domain.Kind, took time.Duration)

	sem  chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
	subs []*nats.Subscription
	base context.Context
}

func NewRPCServer(ctx context.Context, conn *nats.Conn, queue string, logger log.FieldLogger) *RPCServer {
	return &RPCServer{
		Conn:   conn,
		Queue:  queue,
		Logger: logger,
		sem:    make(chan struct{}, defaultMaxInFlight),
		base:   ctx,
	}
}

// Handle subscribes h to the command's subject.
func (s *RPCServer) Handle(command string, h HandlerFunc) error {
	sub, err := s.Conn.QueueSubscribe(contracts.RPCSubject(command), s.Queue, func(msg *nats.Msg) {
		s.sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer func() {
				<-s.sem
				s.wg.Done()
			}()
			reply := s.Dispatch(s.base, command, msg.Data, h)
			if msg.Reply == "" {
				return
			}
			if err := msg.Respond(reply); err != nil {
				s.Logger.WithError(err).WithField("command", command).Warn("rpc respond failed")
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", command, err)
	}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

// Dispatch runs h and encodes the reply envelope. Panics and unclassified
// errors become an internal error body.
func (s *RPCServer) Dispatch(ctx context.Context, command string, data []byte, h HandlerFunc) (out []byte) {
	started := time.Now()
	kind := domain.Kind("ok")
	defer func() {
		if r := recover(); r != nil {
			s.Logger.WithField("command", command).Errorf("rpc handler panicked: %v", r)
			kind = domain.KindInternal
			out = encodeReply(contracts.Reply{Error: contracts.NewErrorBody(fmt.Errorf("panic: %v", r))})
		}
		if s.Observe != nil {
			s.Observe(command, kind, time.Since(started))
		}
	}()

	result, err := h(ctx, data)
	if err != nil {
		body := contracts.NewErrorBody(err)
		kind = body.Kind
		entry := s.Logger.WithError(err).WithFields(log.Fields{"command": command, "kind": body.Kind})
		if body.Kind == domain.KindInternal || body.Kind == domain.KindUnavailable {
			entry.Error("rpc command failed")
		} else {
			entry.Debug("rpc command rejected")
		}
		return encodeReply(contracts.Reply{Error: body})
	}

	raw, err := json.Marshal(result)
	if err != nil {
		kind = domain.KindInternal
		s.Logger.WithError(err).WithField("command", command).Error("rpc encode failed")
		return encodeReply(contracts.Reply{Error: contracts.NewErrorBody(err)})
	}
	return encodeReply(contracts.Reply{Data: raw})
}

func encodeReply(r contracts.Reply) []byte {
	raw, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"error":{"kind":"internal","message":"internal error","status":500}}`)
	}
	return raw
}

// Close unsubscribes and waits for in-flight requests.
func (s *RPCServer) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

// Requester is satisfied by *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// RPCClient calls commands served by an RPCServer.
type RPCClient struct {
	Conn    Requester
	Timeout time.Duration
}

func NewRPCClient(conn Requester, timeout time.Duration) *RPCClient {
	return &RPCClient{Conn: conn, Timeout: timeout}
}

// Call sends req to command and decodes the reply data into out (if non-nil).
// Error bodies come back as typed domain errors; transport failures wrap
// domain.ErrUnavailable.
func (c *RPCClient) Call(ctx context.Context, command string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", command, err)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	msg, err := c.Conn.RequestWithContext(ctx, contracts.RPCSubject(command), payload)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return fmt.Errorf("%s: %w: %w", command, domain.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", command, err)
	}

	var reply contracts.Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("decode %s reply: %w", command, err)
	}
	if reply.Error != nil {
		return reply.Error.Err()
	}
	if out != nil && len(reply.Data) > 0 {
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return fmt.Errorf("decode %s result: %w", command, err)
		}
	}
	return nil
}
