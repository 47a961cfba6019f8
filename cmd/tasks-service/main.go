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

	"github.com/taskpulse/project/internal/app/audit"
	"github.com/taskpulse/project/internal/app/health"
	"github.com/taskpulse/project/internal/app/tasks"
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

const serviceName = "tasks-service"

func main() {
	app := &cli.App{
		Name:   serviceName,
		Usage:  "owns tasks, comments and their audit trail",
		Flags:  append(cliflags.Service(env.DefaultTasksOpsAddr), cliflags.Database()),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("tasks-service stopped")
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
	if err := database.Migrate(ctx, pool, tasks.Migrations, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(c.String(cliflags.NATSURL), serviceName, c.Duration(cliflags.NATSTimeout))
	if err != nil {
		return err
	}
	defer client.Close()

	m := metrics.New()
	publisher := messaging.NewBestEffortPublisher(natsutil.JetStreamPublisher{JS: client.JS}, logger)
	publisher.OnFailure = func(subject string, _ error) {
		m.PublishFailures.WithLabelValues(subject).Inc()
	}

	store := tasks.NewPostgresStore(pool)
	trail := audit.NewPostgresTrail(pool)
	svc := tasks.NewService(tasks.PostgresUnitOfWork{Pool: pool}, store, trail, publisher, logger)
	svc.Metrics = m

	server := messaging.NewRPCServer(ctx, client.Conn, serviceName, logger)
	server.Observe = func(command string, kind domain.Kind, took time.Duration) {
		m.RPCDuration.WithLabelValues(command, string(kind)).Observe(took.Seconds())
	}
	if err := svc.Register(server); err != nil {
		return err
	}
	probe := &health.Probe{
		Checks: map[string]health.Check{
			"tasks":         store.Ping,
			"audits":        trail.Ping,
			"notifications": health.Remote(messaging.NewRPCClient(client.Conn, health.DefaultTimeout), contracts.CmdNotificationsHealth),
		},
		RequiredEnv: []string{"NATS_URL", "DATABASE_URL"},
		Logger:      logger,
	}
	if err := server.Handle(contracts.CmdTasksHealth, health.ReportHandler(probe)); err != nil {
		return err
	}
	logger.Info("tasks commands registered")

	ready := func(ctx context.Context) error {
		if err := natsutil.Connected(client.Conn); err != nil {
			return err
		}
		return pool.Ping(ctx)
	}
	err = opshttp.Serve(ctx, logger, c.String(cliflags.OpsAddr), opshttp.NewRouter(ready, m.Handler()), c.Duration(cliflags.ShutdownTimeout))

	server.Close()
	publisher.Wait()
	logger.Info("tasks-service stopped")
	return err
}
