// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that wait (the health monitor between checks, the
// completion gateway between retries) hold a Clock field. Production
// wiring passes Real(); tests pass Fake() and drive time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	monitor := health.NewMonitor(transport, health.Config{Clock: c, ...})
//	go monitor.Run(ctx)
//	c.WaitForTimers(1)          // the monitor is now waiting
//	c.Advance(10 * time.Second) // fire the check deterministically
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
