// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package health runs periodic relay connection checks.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dephy-io/chat-controller/lib/clock"
)

// DefaultSchedule checks every ten seconds.
const DefaultSchedule = "@every 10s"

// DefaultCheckTimeout bounds one check.
const DefaultCheckTimeout = 5 * time.Second

// ErrUnhealthy is wrapped by the error Run returns after too many
// consecutive failures.
var ErrUnhealthy = errors.New("health: too many consecutive failures")

// Checker is checked on every tick. relay.Transport satisfies it.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// Config configures a Monitor.
type Config struct {
	// Schedule is a standard cron expression or descriptor such as
	// "@every 10s" (DefaultSchedule when empty).
	Schedule string

	// CheckTimeout bounds each check (DefaultCheckTimeout when zero).
	CheckTimeout time.Duration

	// MaxFailures makes Run fail after that many consecutive failed
	// checks. Zero keeps checking forever.
	MaxFailures int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Monitor calls a Checker on a schedule.
type Monitor struct {
	checker      Checker
	schedule     cron.Schedule
	checkTimeout time.Duration
	maxFailures  int
	clock        clock.Clock
	logger       *slog.Logger

	checks   atomic.Uint64
	failures atomic.Uint64
	healthy  atomic.Bool
}

// NewMonitor parses config.Schedule and returns a monitor for checker.
func NewMonitor(checker Checker, config Config) (*Monitor, error) {
	expression := config.Schedule
	if expression == "" {
		expression = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return nil, fmt.Errorf("parsing health schedule %q: %w", expression, err)
	}

	checkTimeout := config.CheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = DefaultCheckTimeout
	}
	monitorClock := config.Clock
	if monitorClock == nil {
		monitorClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	monitor := &Monitor{
		checker:      checker,
		schedule:     schedule,
		checkTimeout: checkTimeout,
		maxFailures:  config.MaxFailures,
		clock:        monitorClock,
		logger:       logger,
	}
	monitor.healthy.Store(true)
	return monitor, nil
}

// Run checks on every scheduled tick until ctx is cancelled (returning
// nil) or MaxFailures consecutive checks fail (returning an error
// wrapping ErrUnhealthy and the last check error).
func (monitor *Monitor) Run(ctx context.Context) error {
	consecutive := 0
	for {
		now := monitor.clock.Now()
		select {
		case <-ctx.Done():
			return nil
		case <-monitor.clock.After(monitor.schedule.Next(now).Sub(now)):
		}

		err := monitor.check(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			if consecutive > 0 {
				monitor.logger.Info("relay healthy again", "failed_checks", consecutive)
			}
			consecutive = 0
			continue
		}

		consecutive++
		monitor.logger.Warn("relay health check failed",
			"consecutive", consecutive,
			"max_failures", monitor.maxFailures,
			"error", err,
		)
		if monitor.maxFailures > 0 && consecutive >= monitor.maxFailures {
			return fmt.Errorf("%w (%d): %w", ErrUnhealthy, consecutive, err)
		}
	}
}

func (monitor *Monitor) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, monitor.checkTimeout)
	defer cancel()

	monitor.checks.Add(1)
	err := monitor.checker.CheckHealth(ctx)
	monitor.healthy.Store(err == nil)
	if err != nil {
		monitor.failures.Add(1)
	}
	return err
}

// Status reports the monitor's counters.
type Status struct {
	Healthy  bool   `json:"healthy"`
	Checks   uint64 `json:"checks"`
	Failures uint64 `json:"failures"`
}

// Status returns the result of the most recent check and the running
// totals. It is safe to call from any goroutine.
func (monitor *Monitor) Status() Status {
	return Status{
		Healthy:  monitor.healthy.Load(),
		Checks:   monitor.checks.Load(),
		Failures: monitor.failures.Load(),
	}
}
