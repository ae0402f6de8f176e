// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package router turns one relay subscription into a sequence of
// decoded messages.
//
// [Open] attaches a notification listener, then subscribes under a
// fresh subscription id, so no notification between the two is
// missed. [Stream.Next] blocks for the next delivery belonging to that
// id and ignores everything else on the shared notification stream.
// Content that fails to decode is logged and skipped. Event ids seen
// recently are remembered in a bounded window, so an event delivered
// twice (a replay after [Stream.Resubscribe] or a relay reconnect) is
// observed once.
//
// The end-of-stored-events marker is surfaced as a [Delivery] of kind
// [EndOfStored] for consumers that read a backlog and stop (the token
// ledger). It implies nothing about how individual events should be
// classified.
//
// A CLOSED for the stream's subscription, or a relay shutdown, ends
// the stream with a [*relay.FatalError]. The stream is not usable
// afterwards.
package router
