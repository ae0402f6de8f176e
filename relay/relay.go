// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"slices"
	"time"
)

// DefaultNotificationBuffer is the listener capacity used when a
// transport is configured with a non-positive buffer size.
const DefaultNotificationBuffer = 4096

// Transport is a connection to the relay network under one signing
// identity.
type Transport interface {
	// PublicKey returns the hex public key events are signed with.
	PublicKey() string

	// Subscribe sends filter under subscriptionID. Subscribing again
	// with an id that is already active replaces its filter; the relay
	// replays stored events matching the new filter.
	Subscribe(ctx context.Context, subscriptionID string, filter Filter) error

	// Unsubscribe withdraws a subscription. Unknown ids are ignored.
	Unsubscribe(ctx context.Context, subscriptionID string) error

	// Publish signs and sends an event, returning it as accepted by
	// the relay.
	Publish(ctx context.Context, draft Draft) (Event, error)

	// Listen attaches a new notification listener. Callers must Close
	// the listener when done.
	Listen() *Listener

	// CheckHealth verifies the connection and reconnects when it has
	// dropped. A nil return means the relay is usable.
	CheckHealth(ctx context.Context) error

	// Close disconnects and shuts every listener down.
	Close() error
}

// Filter selects events for a subscription. Empty fields match
// everything. Every key in Tags must be matched by at least one of the
// event's tags with that name and one of the listed values.
type Filter struct {
	Kinds   []int
	Authors []string
	Since   time.Time
	Tags    map[string][]string
}

// Matches reports whether event satisfies the filter.
func (filter Filter) Matches(event Event) bool {
	if len(filter.Kinds) > 0 && !slices.Contains(filter.Kinds, event.Kind) {
		return false
	}
	if len(filter.Authors) > 0 && !slices.Contains(filter.Authors, event.PubKey) {
		return false
	}
	if !filter.Since.IsZero() && event.CreatedAt.Before(filter.Since) {
		return false
	}
	for name, values := range filter.Tags {
		if len(values) == 0 {
			continue
		}
		matched := false
		for _, tag := range event.Tags {
			if tag.Name() == name && slices.Contains(values, tag.Value()) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Draft is an unsigned event. The transport fills in the author,
// timestamp, id and signature.
type Draft struct {
	Kind    int
	Tags    Tags
	Content string
}

// NotificationKind distinguishes the relay messages a listener sees.
type NotificationKind int

const (
	// NotifyEvent carries an event delivered for a subscription.
	NotifyEvent NotificationKind = iota + 1

	// NotifyEndOfStored marks the end of the stored-event backlog for
	// a subscription. Events after it are live.
	NotifyEndOfStored

	// NotifyClosed reports that the relay closed a subscription.
	NotifyClosed

	// NotifyShutdown reports that the connection is gone. It is the
	// last notification a listener receives.
	NotifyShutdown
)

func (kind NotificationKind) String() string {
	switch kind {
	case NotifyEvent:
		return "event"
	case NotifyEndOfStored:
		return "eose"
	case NotifyClosed:
		return "closed"
	case NotifyShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Notification is one message from the relay.
type Notification struct {
	Kind           NotificationKind
	SubscriptionID string

	// Event is set for NotifyEvent.
	Event Event

	// Reason is the relay's message for NotifyClosed and NotifyShutdown.
	Reason string
}
