// Package cliflags holds the flags every taskpulse binary shares.
package cliflags

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/taskpulse/project/internal/platform/env"
	"github.com/taskpulse/project/internal/platform/logging"
)

const (
	LogLevel        = "log-level"
	LogFormat       = "log-format"
	NATSURL         = "nats-url"
	NATSTimeout     = "nats-connect-timeout"
	DatabaseURL     = "database-url"
	RedisURL        = "redis-url"
	OpsAddr         = "ops-addr"
	ShutdownTimeout = "shutdown-timeout"
)

// Common returns the logging and NATS flags.
func Common() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: LogLevel, Value: "info", Usage: "log level (debug, info, warn, error)", EnvVars: []string{"LOG_LEVEL"}},
		&cli.StringFlag{Name: LogFormat, Value: "json", Usage: "log format (json, text)", EnvVars: []string{"LOG_FORMAT"}},
		&cli.StringFlag{Name: NATSURL, Value: env.DefaultNATSURL, Usage: "NATS server URL", EnvVars: []string{"NATS_URL"}},
		&cli.DurationFlag{Name: NATSTimeout, Value: 30 * time.Second, Usage: "how long to wait for NATS at startup", EnvVars: []string{"NATS_CONNECT_TIMEOUT"}},
	}
}

// Service adds the flags of a long-running process to Common.
func Service(opsAddr string) []cli.Flag {
	return append(Common(),
		&cli.StringFlag{Name: OpsAddr, Value: opsAddr, Usage: "address of the health and metrics server", EnvVars: []string{"OPS_ADDR"}},
		&cli.DurationFlag{Name: ShutdownTimeout, Value: 10 * time.Second, Usage: "graceful shutdown budget", EnvVars: []string{"SHUTDOWN_TIMEOUT"}},
	)
}

func Database() cli.Flag {
	return &cli.StringFlag{Name: DatabaseURL, Value: env.DefaultDatabaseURL, Usage: "PostgreSQL URL", EnvVars: []string{"DATABASE_URL"}}
}

func Redis() cli.Flag {
	return &cli.StringFlag{Name: RedisURL, Value: env.DefaultRedisURL, Usage: "Redis URL", EnvVars: []string{"REDIS_URL"}}
}

// Logger builds the process logger from the log flags and tags it with service.
func Logger(c *cli.Context, service string) (*log.Logger, log.FieldLogger) {
	base := logging.New(c.String(LogLevel), c.String(LogFormat))
	return base, logging.Service(base, service)
}
