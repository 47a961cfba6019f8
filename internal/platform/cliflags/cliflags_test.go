package cliflags

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/taskpulse/project/internal/platform/env"
)

func runWith(t *testing.T, flags []cli.Flag, args []string, check func(c *cli.Context)) {
	t.Helper()
	called := false
	app := &cli.App{
		Name:  "test",
		Flags: flags,
		Action: func(c *cli.Context) error {
			called = true
			check(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
	require.True(t, called)
}

func TestService_Defaults(t *testing.T) {
	flags := append(Service(":8080"), Database(), Redis())
	runWith(t, flags, nil, func(c *cli.Context) {
		assert.Equal(t, env.DefaultNATSURL, c.String(NATSURL))
		assert.Equal(t, env.DefaultDatabaseURL, c.String(DatabaseURL))
		assert.Equal(t, env.DefaultRedisURL, c.String(RedisURL))
		assert.Equal(t, ":8080", c.String(OpsAddr))
		assert.Equal(t, 10*time.Second, c.Duration(ShutdownTimeout))
		assert.Equal(t, 30*time.Second, c.Duration(NATSTimeout))
	})
}

func TestService_EnvAndArgs(t *testing.T) {
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("OPS_ADDR", ":9000")
	runWith(t, Service(":8080"), []string{"--" + OpsAddr, ":9100", "--" + ShutdownTimeout, "3s"}, func(c *cli.Context) {
		assert.Equal(t, "nats://bus:4222", c.String(NATSURL))
		assert.Equal(t, ":9100", c.String(OpsAddr), "arguments win over env")
		assert.Equal(t, 3*time.Second, c.Duration(ShutdownTimeout))
	})
}

func TestLogger(t *testing.T) {
	runWith(t, Common(), []string{"--" + LogLevel, "debug", "--" + LogFormat, "text"}, func(c *cli.Context) {
		base, scoped := Logger(c, "tasks-service")
		assert.Equal(t, log.DebugLevel, base.GetLevel())
		assert.IsType(t, &log.TextFormatter{}, base.Formatter)

		entry, ok := scoped.(*log.Entry)
		require.True(t, ok)
		assert.Equal(t, "tasks-service", entry.Data["service"])
	})
}
