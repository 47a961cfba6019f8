package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/taskpulse/project/internal/app/health"
	"github.com/taskpulse/project/internal/app/notifications"
	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/messaging"
	"github.com/taskpulse/project/internal/platform/cliflags"
	"github.com/taskpulse/project/internal/platform/database"
	"github.com/taskpulse/project/internal/platform/dbpool"
	"github.com/taskpulse/project/internal/platform/env"
	"github.com/taskpulse/project/internal/platform/metrics"
	"github.com/taskpulse/project/internal/platform/natsutil"
	"github.com/taskpulse/project/internal/platform/opshttp"
)

const (
	serviceName = "notifications-service"
	durable     = "notification-dispatcher"
)

func main() {
	app := &cli.App{
		Name:  serviceName,
		Usage: "turns task events into per-user notifications",
		Flags: append(cliflags.Service(env.DefaultNotifyOpsAddr),
			cliflags.Database(),
			cliflags.Redis(),
			&cli.DurationFlag{Name: "dedupe-ttl", Value: notifications.DefaultDedupeTTL, Usage: "how long a delivered (event, user) pair is remembered", EnvVars: []string{"DEDUPE_TTL"}},
			&cli.DurationFlag{Name: "ack-wait", Value: 30 * time.Second, Usage: "JetStream ack wait for task events", EnvVars: []string{"ACK_WAIT"}},
			&cli.IntFlag{Name: "max-deliver", Value: 10, Usage: "deliveries before a task event is given up", EnvVars: []string{"MAX_DELIVER"}},
		),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("notifications-service stopped")
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, logger := cliflags.Logger(c, serviceName)

	pool, err := dbpool.Connect(ctx, c.String(cliflags.DatabaseURL), 30*time.Second, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool, notifications.Migrations, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb, err := notifications.ParseRedisURL(c.String(cliflags.RedisURL))
	if err != nil {
		return err
	}
	defer rdb.Close()
	deduper := notifications.NewRedisDeduper(rdb)
	deduper.TTL = c.Duration("dedupe-ttl")

	client, err := natsutil.ConnectJetStreamWithRetry(c.String(cliflags.NATSURL), serviceName, c.Duration(cliflags.NATSTimeout))
	if err != nil {
		return err
	}
	defer client.Close()

	m := metrics.New()
	store := notifications.NewPostgresStore(pool)
	dispatcher := notifications.NewDispatcher(store, deduper, natsutil.JetStreamPublisher{JS: client.JS}, logger)
	dispatcher.Metrics = m

	sub, err := messaging.Consume(ctx, client.JS, messaging.ConsumerConfig{
		Subject:    "task.>",
		Durable:    durable,
		AckWait:    c.Duration("ack-wait"),
		MaxDeliver: c.Int("max-deliver"),
		OnSettled: func(subject string, outcome messaging.Outcome) {
			m.EventsConsumed.WithLabelValues(subject, string(outcome)).Inc()
		},
	}, logger, dispatcher.Handle)
	if err != nil {
		return fmt.Errorf("subscribe task events: %w", err)
	}
	defer func() { _ = sub.Drain() }()

	server := messaging.NewRPCServer(ctx, client.Conn, serviceName, logger)
	server.Observe = func(command string, kind domain.Kind, took time.Duration) {
		m.RPCDuration.WithLabelValues(command, string(kind)).Observe(took.Seconds())
	}
	for command, h := range (notifications.Inbox{Store: store}).Handlers() {
		if err := server.Handle(command, h); err != nil {
			return err
		}
	}
	probe := &health.Probe{
		Checks: map[string]health.Check{
			"notifications": store.Ping,
			"redis":         deduper.Ping,
		},
		RequiredEnv: []string{"NATS_URL", "DATABASE_URL", "REDIS_URL"},
		Logger:      logger,
	}
	if err := server.Handle(contracts.CmdNotificationsHealth, health.StatusHandler(probe)); err != nil {
		return err
	}
	logger.WithField("durable", durable).Info("dispatching task events")

	ready := func(ctx context.Context) error {
		if err := natsutil.Connected(client.Conn); err != nil {
			return err
		}
		return pool.Ping(ctx)
	}
	err = opshttp.Serve(ctx, logger, c.String(cliflags.OpsAddr), opshttp.NewRouter(ready, m.Handler()), c.Duration(cliflags.ShutdownTimeout))

	server.Close()
	logger.Info("notifications-service stopped")
	return err
}
