package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/messaging"
	"github.com/taskpulse/project/internal/platform/auth"
	"github.com/taskpulse/project/internal/platform/cliflags"
)

var statuses = []string{"TODO", "IN_PROGRESS", "REVIEW", "DONE"}

type config struct {
	Users                   int
	Duration                time.Duration
	RampUp                  time.Duration
	ActionsPerUserPerSecond float64
	RequestTimeout          time.Duration
	MetricsAddr             string
	StreamURL               string
	JWTSecret               string
	EnableStreams           bool
}

type simulatedUser struct {
	Index int
	ID    string
	Name  string

	mu    sync.Mutex
	tasks []string
}

type runner struct {
	cfg    config
	rpc    *messaging.RPCClient
	users  []*simulatedUser
	tokens auth.Manager
	logger log.FieldLogger

	requestsSuccess atomic.Int64
	requestsError   atomic.Int64
	received        atomic.Int64
	activeStreams   atomic.Int64

	actions   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	streams   prometheus.Gauge
	delivered prometheus.Counter
}

func main() {
	app := &cli.App{
		Name:  "load-generator",
		Usage: "drive simulated users against the task commands",
		Flags: append(cliflags.Common(),
			&cli.IntFlag{Name: "users", Value: 200, EnvVars: []string{"LOADGEN_USERS"}},
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Minute, EnvVars: []string{"LOADGEN_DURATION"}},
			&cli.DurationFlag{Name: "ramp-up", Value: 30 * time.Second, EnvVars: []string{"LOADGEN_RAMP_UP"}},
			&cli.Float64Flag{Name: "rate", Value: 0.3, Usage: "actions per user per second", EnvVars: []string{"LOADGEN_ACTIONS_PER_USER_PER_SECOND"}},
			&cli.DurationFlag{Name: "request-timeout", Value: 10 * time.Second, EnvVars: []string{"LOADGEN_REQUEST_TIMEOUT"}},
			&cli.StringFlag{Name: "metrics-addr", Value: ":9099", EnvVars: []string{"LOADGEN_METRICS_ADDR"}},
			&cli.StringFlag{Name: "stream-url", Value: "http://localhost:8081/notifications/stream", EnvVars: []string{"LOADGEN_STREAM_URL"}},
			&cli.StringFlag{Name: "jwt-secret", Value: "dev-insecure-change-me", EnvVars: []string{"JWT_SECRET"}},
			&cli.BoolFlag{Name: "streams", Value: true, Usage: "hold a push stream open per user", EnvVars: []string{"LOADGEN_ENABLE_STREAMS"}},
		),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("load generator failed")
	}
}

func run(c *cli.Context) error {
	cfg := config{
		Users:                   c.Int("users"),
		Duration:                c.Duration("duration"),
		RampUp:                  c.Duration("ramp-up"),
		ActionsPerUserPerSecond: c.Float64("rate"),
		RequestTimeout:          c.Duration("request-timeout"),
		MetricsAddr:             c.String("metrics-addr"),
		StreamURL:               c.String("stream-url"),
		JWTSecret:               c.String("jwt-secret"),
		EnableStreams:           c.Bool("streams"),
	}
	if cfg.Users < 2 {
		return errors.New("at least two users are needed so tasks can be assigned")
	}
	_, logger := cliflags.Logger(c, "load-generator")

	baseCtx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	conn, err := nats.Connect(c.String(cliflags.NATSURL), nats.Name("load-generator"), nats.Timeout(c.Duration(cliflags.NATSTimeout)))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer conn.Close()

	r := newRunner(cfg, messaging.NewRPCClient(conn, cfg.RequestTimeout), logger)
	reg := prometheus.NewRegistry()
	reg.MustRegister(r.actions, r.latency, r.streams, r.delivered)
	go r.serveMetrics(ctx, reg)
	go r.logProgress(ctx)

	logger.WithFields(log.Fields{"users": cfg.Users, "duration": cfg.Duration, "streams": cfg.EnableStreams, "rate": cfg.ActionsPerUserPerSecond}).Info("load generator started")

	var wg sync.WaitGroup
	for _, u := range r.users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runUser(ctx, u)
		}()
	}
	<-ctx.Done()
	wg.Wait()

	logger.WithFields(log.Fields{
		"success_requests": r.requestsSuccess.Load(),
		"error_requests":   r.requestsError.Load(),
		"notifications":    r.received.Load(),
	}).Info("load test complete")
	return nil
}

func newRunner(cfg config, rpc *messaging.RPCClient, logger log.FieldLogger) *runner {
	users := make([]*simulatedUser, cfg.Users)
	for i := range users {
		users[i] = &simulatedUser{Index: i, ID: uuid.NewString(), Name: fmt.Sprintf("load-user-%d", i)}
	}
	return &runner{
		cfg:    cfg,
		rpc:    rpc,
		users:  users,
		tokens: auth.NewManager(cfg.JWTSecret, cfg.Duration+time.Hour),
		logger: logger,
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskpulse_loadgen_actions_total",
			Help: "User actions executed by the load generator.",
		}, []string{"action", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskpulse_loadgen_request_seconds",
			Help:    "Command round trip latency seen by the load generator.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskpulse_loadgen_open_streams",
			Help: "Push streams held open by simulated users.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskpulse_loadgen_notifications_received_total",
			Help: "Notifications received over push streams.",
		}),
	}
}

func (r *runner) runUser(ctx context.Context, user *simulatedUser) {
	if r.cfg.RampUp > 0 {
		delay := time.Duration(float64(r.cfg.RampUp) / float64(len(r.users)) * float64(user.Index))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	if r.cfg.EnableStreams {
		go r.runStreamLoop(ctx, user)
	}

	interval := time.Second
	if r.cfg.ActionsPerUserPerSecond > 0 {
		interval = time.Duration(float64(time.Second) / r.cfg.ActionsPerUserPerSecond)
		if interval < 25*time.Millisecond {
			interval = 25 * time.Millisecond
		}
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(user.Index*7)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(rng.Int63n(int64(interval)))):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runAction(ctx, user, rng)
		}
	}
}

func (r *runner) runAction(ctx context.Context, user *simulatedUser, rng *rand.Rand) {
	taskID, hasTask := user.randomTask(rng)
	choice := rng.Float64()
	switch {
	case !hasTask || choice < 0.40:
		r.createTask(ctx, user, rng)
	case choice < 0.75:
		r.updateTask(ctx, user, rng, taskID)
	case choice < 0.95:
		r.comment(ctx, user, rng, taskID)
	default:
		r.deleteTask(ctx, user, taskID)
	}
}

func (r *runner) call(ctx context.Context, action, command string, req, out any) error {
	started := time.Now()
	err := r.rpc.Call(ctx, command, req, out)
	r.latency.WithLabelValues(command).Observe(time.Since(started).Seconds())
	outcome := "success"
	if err != nil {
		outcome = string(domain.Classify(err).Kind)
		r.requestsError.Add(1)
		if ctx.Err() == nil {
			r.logger.WithError(err).WithField("action", action).Debug("action failed")
		}
	} else {
		r.requestsSuccess.Add(1)
	}
	r.actions.WithLabelValues(action, outcome).Inc()
	return err
}

func (r *runner) createTask(ctx context.Context, user *simulatedUser, rng *rand.Rand) {
	other := r.users[(user.Index+1+rng.Intn(len(r.users)-1))%len(r.users)]
	var task domain.Task
	err := r.call(ctx, "create", contracts.CmdCreateTask, contracts.CreateTaskCommand{
		Title:         fmt.Sprintf("Load task %d", rng.Intn(1_000_000)),
		AuthorID:      user.ID,
		AuthorName:    user.Name,
		AssignedUsers: []domain.AssignedUser{{UserID: other.ID, Username: other.Name}},
	}, &task)
	if err == nil {
		user.addTask(task.ID)
	}
}

func (r *runner) updateTask(ctx context.Context, user *simulatedUser, rng *rand.Rand, taskID string) {
	status := statuses[rng.Intn(len(statuses))]
	_ = r.call(ctx, "update", contracts.CmdUpdateTask, contracts.UpdateTaskCommand{
		ID:        taskID,
		ActorID:   user.ID,
		ActorName: user.Name,
		Patch:     contracts.TaskPatch{Status: &status},
	}, nil)
}

func (r *runner) comment(ctx context.Context, user *simulatedUser, rng *rand.Rand, taskID string) {
	_ = r.call(ctx, "comment", contracts.CmdCreateComment, contracts.CreateCommentCommand{
		TaskID:     taskID,
		Content:    fmt.Sprintf("progress note %d", rng.Intn(1000)),
		AuthorID:   user.ID,
		AuthorName: user.Name,
	}, nil)
}

func (r *runner) deleteTask(ctx context.Context, user *simulatedUser, taskID string) {
	err := r.call(ctx, "delete", contracts.CmdDeleteTask, contracts.DeleteTaskCommand{ID: taskID}, nil)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		user.removeTask(taskID)
	}
}

func (r *runner) runStreamLoop(ctx context.Context, user *simulatedUser) {
	for {
		if err := r.readStream(ctx, user); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).WithField("user", user.Name).Debug("push stream dropped")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *runner) readStream(ctx context.Context, user *simulatedUser) error {
	token, err := r.tokens.Sign(user.ID, user.Name)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.StreamURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected stream status %d", resp.StatusCode)
	}

	r.activeStreams.Add(1)
	r.streams.Inc()
	defer r.activeStreams.Add(-1)
	defer r.streams.Dec()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			r.received.Add(1)
			r.delivered.Inc()
		}
	}
	return scanner.Err()
}

func (r *runner) logProgress(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.WithFields(log.Fields{
				"success_requests": r.requestsSuccess.Load(),
				"error_requests":   r.requestsError.Load(),
				"open_streams":     r.activeStreams.Load(),
				"notifications":    r.received.Load(),
			}).Info("progress")
		}
	}
}

func (r *runner) serveMetrics(ctx context.Context, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	r.logger.WithField("addr", r.cfg.MetricsAddr).Info("metrics endpoint listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		r.logger.WithError(err).Warn("metrics server failed")
	}
}

func (u *simulatedUser) addTask(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tasks = append(u.tasks, id)
}

func (u *simulatedUser) randomTask(rng *rand.Rand) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.tasks) == 0 {
		return "", false
	}
	return u.tasks[rng.Intn(len(u.tasks))], true
}

func (u *simulatedUser) removeTask(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, existing := range u.tasks {
		if existing != id {
			continue
		}
		u.tasks[i] = u.tasks[len(u.tasks)-1]
		u.tasks = u.tasks[:len(u.tasks)-1]
		return
	}
}
