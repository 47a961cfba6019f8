package pushgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nuid"
	log "github.com/sirupsen/logrus"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/messaging"
	"github.com/taskpulse/project/internal/platform/auth"
	"github.com/taskpulse/project/internal/platform/metrics"
)

const (
	StreamPath       = "/notifications/stream"
	DefaultHeartbeat = 15 * time.Second
)

// Delivery outcomes reported to metrics.
const (
	OutcomeDelivered = "delivered"
	OutcomeOffline   = "offline"
	OutcomeDropped   = "dropped"
)

type Gateway struct {
	Registry  *Registry
	Tokens    auth.Manager
	Logger    log.FieldLogger
	Metrics   *metrics.Pipeline
	Heartbeat time.Duration
}

func New(tokens auth.Manager, logger log.FieldLogger) *Gateway {
	return &Gateway{
		Registry:  NewRegistry(),
		Tokens:    tokens,
		Logger:    logger,
		Heartbeat: DefaultHeartbeat,
	}
}

// Routes mounts the stream endpoint on r.
func (g *Gateway) Routes(r chi.Router) {
	r.Get(StreamPath, g.serveStream)
}

// HandleDispatch forwards one dispatch message. A recipient without an open
// stream is not an error; the message is dropped.
func (g *Gateway) HandleDispatch(_ context.Context, _ string, data []byte) error {
	var msg contracts.DispatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return messaging.Permanent(fmt.Errorf("decode dispatch message: %w", err))
	}
	if msg.UserID == "" {
		return messaging.Permanent(fmt.Errorf("dispatch message %s has no user", msg.NotificationID))
	}

	outcome := OutcomeDelivered
	if !g.Registry.Deliver(msg.UserID, data) {
		outcome = OutcomeOffline
		if g.Registry.Connected(msg.UserID) {
			outcome = OutcomeDropped
		}
	}
	g.Logger.WithFields(log.Fields{"recipient": msg.UserID, "notification_id": msg.NotificationID, "outcome": outcome}).Debug("dispatch handled")
	if g.Metrics != nil {
		g.Metrics.PushDeliveries.WithLabelValues(outcome).Inc()
	}
	return nil
}

func (g *Gateway) serveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return
	}
	claims, err := g.Tokens.Parse(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.Subject

	streamCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	streamID := nuid.Next()
	messages := g.Registry.Replace(userID, streamID, cancel)
	defer g.Registry.Release(userID, streamID)

	if g.Metrics != nil {
		g.Metrics.PushConnections.Inc()
		defer g.Metrics.PushConnections.Dec()
	}
	logger := g.Logger.WithFields(log.Fields{"recipient": userID, "stream_id": streamID})
	logger.Info("push stream opened")
	defer logger.Info("push stream closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := g.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-streamCtx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case payload := <-messages:
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
