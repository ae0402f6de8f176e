// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dephy-io/chat-controller/lib/clock"
)

// Compile-time interface check.
var _ Transport = (*MemoryClient)(nil)

// MemoryRelay is an in-process relay. Clients obtained from Connect
// share its event store, so several controllers (or a controller and
// a test acting as users) can exchange events without a network.
type MemoryRelay struct {
	mutex   sync.Mutex
	clock   clock.Clock
	events  []Event
	clients map[*MemoryClient]struct{}
	stopped bool
	logger  *slog.Logger
}

// NewMemoryRelay creates an empty relay. Event timestamps come from
// clock, truncated to whole seconds like real relay timestamps.
func NewMemoryRelay(clock clock.Clock, logger *slog.Logger) *MemoryRelay {
	return &MemoryRelay{
		clock:   clock,
		clients: make(map[*MemoryClient]struct{}),
		logger:  logger,
	}
}

// Connect returns a client that signs as publicKey. buffer is the
// listener capacity (DefaultNotificationBuffer when <= 0).
func (r *MemoryRelay) Connect(publicKey string, buffer int) *MemoryClient {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	client := &MemoryClient{
		relay:         r,
		publicKey:     publicKey,
		hub:           newHub(buffer, r.logger.With("client", publicKey)),
		subscriptions: make(map[string]Filter),
	}
	if r.stopped {
		client.hub.shutdown("relay stopped")
		return client
	}
	r.clients[client] = struct{}{}
	return client
}

// Inject stores an event authored outside any client (a user, a peer
// controller) and delivers it to matching subscriptions. Missing
// CreatedAt defaults to the relay clock; a missing ID is computed.
func (r *MemoryRelay) Inject(event Event) Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.clock.Now()
	}
	event.CreatedAt = event.CreatedAt.Truncate(time.Second)
	if event.ID == "" {
		event.ID = eventID(event)
	}
	r.storeLocked(event)
	return event
}

// Events returns a copy of every stored event in arrival order.
func (r *MemoryRelay) Events() []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Event(nil), r.events...)
}

// Shutdown disconnects every client. Their listeners receive
// NotifyShutdown and are closed.
func (r *MemoryRelay) Shutdown(reason string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.stopped = true
	for client := range r.clients {
		client.hub.shutdown(reason)
	}
	clear(r.clients)
}

func (r *MemoryRelay) storeLocked(event Event) {
	r.events = append(r.events, event)
	for client := range r.clients {
		for subscriptionID, filter := range client.subscriptions {
			if filter.Matches(event) {
				client.hub.broadcast(Notification{
					Kind:           NotifyEvent,
					SubscriptionID: subscriptionID,
					Event:          event,
				})
			}
		}
	}
}

// MemoryClient is one connection to a MemoryRelay.
type MemoryClient struct {
	relay     *MemoryRelay
	publicKey string
	hub       *hub

	// Guarded by relay.mutex.
	subscriptions map[string]Filter
	healthError   error
}

// PublicKey returns the identity the client publishes as.
func (client *MemoryClient) PublicKey() string { return client.publicKey }

// Subscribe registers filter and replays matching stored events
// followed by NotifyEndOfStored.
func (client *MemoryClient) Subscribe(_ context.Context, subscriptionID string, filter Filter) error {
	r := client.relay
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped {
		return shutdownError("relay stopped")
	}

	client.subscriptions[subscriptionID] = filter
	for _, event := range r.events {
		if filter.Matches(event) {
			client.hub.broadcast(Notification{
				Kind:           NotifyEvent,
				SubscriptionID: subscriptionID,
				Event:          event,
			})
		}
	}
	client.hub.broadcast(Notification{Kind: NotifyEndOfStored, SubscriptionID: subscriptionID})
	return nil
}

// Unsubscribe withdraws a subscription.
func (client *MemoryClient) Unsubscribe(_ context.Context, subscriptionID string) error {
	client.relay.mutex.Lock()
	defer client.relay.mutex.Unlock()
	delete(client.subscriptions, subscriptionID)
	return nil
}

// Publish stores an event authored by this client.
func (client *MemoryClient) Publish(ctx context.Context, draft Draft) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	r := client.relay
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.stopped {
		return Event{}, shutdownError("relay stopped")
	}

	event := Event{
		PubKey:    client.publicKey,
		CreatedAt: r.clock.Now().Truncate(time.Second),
		Kind:      draft.Kind,
		Tags:      draft.Tags,
		Content:   draft.Content,
	}
	event.ID = eventID(event)
	r.storeLocked(event)
	return event, nil
}

// Listen attaches a notification listener.
func (client *MemoryClient) Listen() *Listener { return client.hub.listen() }

// CheckHealth returns the error set with SetHealthError.
func (client *MemoryClient) CheckHealth(context.Context) error {
	client.relay.mutex.Lock()
	defer client.relay.mutex.Unlock()
	return client.healthError
}

// SetHealthError makes subsequent CheckHealth calls fail with err (nil
// restores health).
func (client *MemoryClient) SetHealthError(err error) {
	client.relay.mutex.Lock()
	defer client.relay.mutex.Unlock()
	client.healthError = err
}

// CloseSubscription simulates the relay sending CLOSED for
// subscriptionID.
func (client *MemoryClient) CloseSubscription(subscriptionID, reason string) {
	client.relay.mutex.Lock()
	defer client.relay.mutex.Unlock()
	delete(client.subscriptions, subscriptionID)
	client.hub.broadcast(Notification{
		Kind:           NotifyClosed,
		SubscriptionID: subscriptionID,
		Reason:         reason,
	})
}

// Subscriptions returns the active subscription ids and filters.
func (client *MemoryClient) Subscriptions() map[string]Filter {
	client.relay.mutex.Lock()
	defer client.relay.mutex.Unlock()

	subscriptions := make(map[string]Filter, len(client.subscriptions))
	for id, filter := range client.subscriptions {
		subscriptions[id] = filter
	}
	return subscriptions
}

// Close disconnects the client.
func (client *MemoryClient) Close() error {
	r := client.relay
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.clients, client)
	client.hub.shutdown("client closed")
	return nil
}
