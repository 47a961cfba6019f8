// Package health aggregates dependency checks into up/down reports.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/messaging"
	"github.com/taskpulse/project/internal/platform/env"
)

const DefaultTimeout = 2 * time.Second

var ErrReportedDown = errors.New("dependency reported down")

// Check returns nil when the dependency is usable.
type Check func(ctx context.Context) error

// Probe runs every check concurrently, each under its own timeout. A check
// that fails, panics or overruns marks only its own dependency down.
type Probe struct {
	Checks      map[string]Check
	RequiredEnv []string
	Timeout     time.Duration
	Logger      log.FieldLogger
}

func (p *Probe) Run(ctx context.Context) contracts.HealthReport {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	names := make([]string, 0, len(p.Checks))
	for name := range p.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.runOne(ctx, name, p.Checks[name], timeout)
		}()
	}
	wg.Wait()

	report := contracts.HealthReport{
		Status:       contracts.StatusUp,
		Dependencies: make(map[string]string, len(names)),
	}
	for i, name := range names {
		report.Dependencies[name] = results[i]
		if results[i] != contracts.StatusUp {
			report.Status = contracts.StatusDown
		}
	}
	if len(p.RequiredEnv) > 0 {
		report.Env = env.Present(p.RequiredEnv...)
		for _, ok := range report.Env {
			if !ok {
				report.Status = contracts.StatusDown
			}
		}
	}
	return report
}

func (p *Probe) runOne(ctx context.Context, name string, check Check, timeout time.Duration) (status string) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("check panicked: %v", r)
			}
		}()
		done <- check(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if p.Logger != nil {
			p.Logger.WithError(err).WithField("dependency", name).Warn("health check failed")
		}
		return contracts.StatusDown
	}
	return contracts.StatusUp
}

// Remote checks a service through its health command. The reply may be a
// bare "up"/"down" string or a HealthReport.
func Remote(client *messaging.RPCClient, command string) Check {
	return func(ctx context.Context) error {
		var raw json.RawMessage
		if err := client.Call(ctx, command, struct{}{}, &raw); err != nil {
			return err
		}
		status, err := StatusOf(raw)
		if err != nil {
			return err
		}
		if status != contracts.StatusUp {
			return fmt.Errorf("%s: %w", command, ErrReportedDown)
		}
		return nil
	}
}

// StatusOf reads the overall status out of a health command reply.
func StatusOf(raw json.RawMessage) (string, error) {
	var status string
	if err := json.Unmarshal(raw, &status); err == nil {
		return status, nil
	}
	var report contracts.HealthReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return "", fmt.Errorf("decode health reply: %w", err)
	}
	return report.Status, nil
}

// ReportHandler serves a full HealthReport.
func ReportHandler(p *Probe) messaging.HandlerFunc {
	return func(ctx context.Context, _ []byte) (any, error) {
		return p.Run(ctx), nil
	}
}

// StatusHandler serves only the overall "up"/"down".
func StatusHandler(p *Probe) messaging.HandlerFunc {
	return func(ctx context.Context, _ []byte) (any, error) {
		return p.Run(ctx).Status, nil
	}
}
