// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations the controller performs so that
// tests can drive them. Production code injects Real(); tests inject
// Fake().
//
// Code that would call time.Now, time.After or time.Sleep takes a
// Clock (usually as a struct field) instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Sleep blocks for d on clock, or until done is closed. It reports
// whether the full duration elapsed.
func Sleep(clock Clock, d time.Duration, done <-chan struct{}) bool {
	select {
	case <-clock.After(d):
		return true
	case <-done:
		return false
	}
}
