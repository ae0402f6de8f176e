// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by tests across the module.
//
// Tests that wait on goroutines read through RequireReceive or
// RequireClosed instead of bare channel receives, so a regression
// fails with a message after a bounded wait instead of hanging the
// test binary.
package testutil
