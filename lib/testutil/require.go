// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from channel within timeout or fails
// the test.
//
//	outcome := testutil.RequireReceive(t, outcomes, 5*time.Second, "waiting for outcome")
func RequireReceive[T any](t TB, channel <-chan T, timeout time.Duration, message string, args ...any) T {
	t.Helper()
	select {
	case value, ok := <-channel:
		if !ok {
			t.Fatalf("channel closed without a value: %s", fmt.Sprintf(message, args...))
		}
		return value
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v: %s", timeout, fmt.Sprintf(message, args...))
	}
	panic("unreachable")
}

// RequireClosed waits for channel to close (or deliver) within timeout
// or fails the test.
func RequireClosed[T any](t TB, channel <-chan T, timeout time.Duration, message string, args ...any) {
	t.Helper()
	select {
	case <-channel:
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v waiting for close: %s", timeout, fmt.Sprintf(message, args...))
	}
}
