// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay is the controller's view of the nostr relay network.
//
// [Transport] is the narrow surface the orchestration packages depend
// on: send a subscription under a caller-chosen id, withdraw it,
// publish a signed event built from a [Draft], and listen to the
// notification stream. Notifications are broadcast: every [Listener]
// attached with [Transport.Listen] receives every notification for
// every subscription, and consumers filter by subscription id. Each
// listener has a bounded buffer. A listener whose buffer is full loses
// the notification (logged with a running drop count); a relay shutdown
// additionally closes every listener channel so that the terminal
// signal cannot be dropped.
//
// Two implementations exist. [Nostr] adapts a live go-nostr relay
// connection. [MemoryRelay] is an in-process relay used by tests and by
// local development: it stores every published event, replays matching
// stored events to new subscriptions followed by an end-of-stored
// marker, fans live events out to all connected clients, and can be
// told to close a subscription or shut down so that crash paths are
// testable.
//
// Subscription-closed and shutdown signals are unrecoverable for the
// consumer that owns the subscription. They surface as [*FatalError]
// values wrapping [ErrSubscriptionClosed] or [ErrShutdown]; the
// process is expected to exit and be restarted by its supervisor.
package relay
