// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conversation rebuilds chat contexts from relay events and
// decides when a user turn becomes a completion request.
//
// A [Machine] owns every conversation [Context]. Events are fed to
// [Machine.Observe] in delivery order by a single goroutine:
//
//   - NewChat registers a conversation id for the caller to subscribe
//     to.
//   - An Ask created before the machine's start time is history: it
//     extends the context without calling the backend. A later Ask is
//     a live turn: the machine reads the author's token balance, asks
//     the backend for at most min(balance, ceiling) tokens, publishes
//     the answer, writes the reduced balance, and appends the Ask.
//   - An Answer with finish_reason "stop" is appended. The machine's
//     own published answers come back through the subscription and
//     are appended this way, so a live turn's context ends up as Ask
//     followed by Answer.
//
// Contexts only grow. A turn that fails anywhere before its answer is
// published leaves the context exactly as it was.
package conversation
