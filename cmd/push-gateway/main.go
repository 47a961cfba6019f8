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

	"github.com/taskpulse/project/internal/app/pushgateway"
	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/messaging"
	"github.com/taskpulse/project/internal/platform/auth"
	"github.com/taskpulse/project/internal/platform/cliflags"
	"github.com/taskpulse/project/internal/platform/env"
	"github.com/taskpulse/project/internal/platform/metrics"
	"github.com/taskpulse/project/internal/platform/natsutil"
	"github.com/taskpulse/project/internal/platform/opshttp"
)

const serviceName = "push-gateway"

func main() {
	app := &cli.App{
		Name:  serviceName,
		Usage: "streams notification deliveries to connected users",
		Flags: append(cliflags.Service(env.DefaultPushGatewayAddr),
			&cli.StringFlag{Name: "jwt-secret", Value: "dev-insecure-change-me", Usage: "HS256 secret for stream tokens", EnvVars: []string{"JWT_SECRET"}},
			&cli.DurationFlag{Name: "heartbeat", Value: pushgateway.DefaultHeartbeat, Usage: "interval between stream keepalives", EnvVars: []string{"PUSH_HEARTBEAT"}},
		),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("push-gateway stopped")
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, logger := cliflags.Logger(c, serviceName)

	client, err := natsutil.ConnectJetStreamWithRetry(c.String(cliflags.NATSURL), serviceName, c.Duration(cliflags.NATSTimeout))
	if err != nil {
		return err
	}
	defer client.Close()

	m := metrics.New()
	gateway := pushgateway.New(auth.NewManager(c.String("jwt-secret"), time.Hour), logger)
	gateway.Metrics = m
	gateway.Heartbeat = c.Duration("heartbeat")

	// The registry is process-local, so this runs as a single replica.
	sub, err := messaging.Consume(ctx, client.JS, messaging.ConsumerConfig{
		Subject: contracts.SubjectNotificationDispatch,
		Durable: serviceName,
		Timeout: 5 * time.Second,
	}, logger, gateway.HandleDispatch)
	if err != nil {
		return fmt.Errorf("subscribe dispatch: %w", err)
	}
	defer func() { _ = sub.Drain() }()

	// Open streams only end when their context does; cancel them before the
	// HTTP server waits for handlers.
	go func() {
		<-ctx.Done()
		gateway.Registry.CloseAll()
	}()

	router := opshttp.NewRouter(func(context.Context) error { return natsutil.Connected(client.Conn) }, m.Handler())
	gateway.Routes(router)
	logger.WithField("path", pushgateway.StreamPath).Info("push gateway ready")
	return opshttp.Serve(ctx, logger, c.String(cliflags.OpsAddr), router, c.Duration(cliflags.ShutdownTimeout))
}
