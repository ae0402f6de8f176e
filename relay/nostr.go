// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// Compile-time interface check.
var _ Transport = (*Nostr)(nil)

// NostrConfig configures a live relay connection.
type NostrConfig struct {
	// URL is the relay websocket address (ws:// or wss://).
	URL string

	// SecretKey is the hex secret key events are signed with.
	SecretKey string

	// NotificationBuffer is the per-listener capacity.
	NotificationBuffer int

	Logger *slog.Logger
}

// Nostr is a Transport over one go-nostr relay connection.
type Nostr struct {
	url       string
	secretKey string
	publicKey string
	hub       *hub
	logger    *slog.Logger

	mutex         sync.Mutex
	relay         *nostr.Relay
	subscriptions map[string]*nostrSubscription
	closed        bool
}

type nostrSubscription struct {
	subscription *nostr.Subscription
	filter       Filter
	cancel       context.CancelFunc
}

// DialNostr connects to the relay at config.URL.
func DialNostr(ctx context.Context, config NostrConfig) (*Nostr, error) {
	publicKey, err := nostr.GetPublicKey(config.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}

	connection, err := nostr.RelayConnect(ctx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to relay %s: %w", config.URL, err)
	}

	return &Nostr{
		url:           config.URL,
		secretKey:     config.SecretKey,
		publicKey:     publicKey,
		hub:           newHub(config.NotificationBuffer, config.Logger),
		logger:        config.Logger,
		relay:         connection,
		subscriptions: make(map[string]*nostrSubscription),
	}, nil
}

// PublicKey returns the hex public key derived from the secret key.
func (transport *Nostr) PublicKey() string { return transport.publicKey }

// Subscribe sends a REQ labelled with subscriptionID. An existing
// subscription with the same id is withdrawn first.
func (transport *Nostr) Subscribe(ctx context.Context, subscriptionID string, filter Filter) error {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if transport.closed {
		return shutdownError("transport closed")
	}
	return transport.subscribeLocked(ctx, subscriptionID, filter)
}

func (transport *Nostr) subscribeLocked(ctx context.Context, subscriptionID string, filter Filter) error {
	if existing, ok := transport.subscriptions[subscriptionID]; ok {
		existing.cancel()
		existing.subscription.Unsub()
		delete(transport.subscriptions, subscriptionID)
	}

	// The subscription outlives ctx: it lasts until Unsubscribe or
	// Close, so it gets its own context.
	subscriptionContext, cancel := context.WithCancel(context.Background())
	subscription, err := transport.relay.Subscribe(subscriptionContext,
		nostr.Filters{toNostrFilter(filter)}, nostr.WithLabel(subscriptionID))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribing %s: %w", subscriptionID, err)
	}

	transport.subscriptions[subscriptionID] = &nostrSubscription{
		subscription: subscription,
		filter:       filter,
		cancel:       cancel,
	}
	go transport.pump(subscriptionContext, subscriptionID, subscription)
	return nil
}

// pump forwards one go-nostr subscription into the notification hub.
func (transport *Nostr) pump(ctx context.Context, subscriptionID string, subscription *nostr.Subscription) {
	endOfStored := subscription.EndOfStoredEvents
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-subscription.Events:
			if !ok {
				return
			}
			transport.hub.broadcast(Notification{
				Kind:           NotifyEvent,
				SubscriptionID: subscriptionID,
				Event:          fromNostrEvent(event),
			})
		case <-endOfStored:
			// Closed once by go-nostr; stop selecting on it.
			endOfStored = nil
			transport.hub.broadcast(Notification{
				Kind:           NotifyEndOfStored,
				SubscriptionID: subscriptionID,
			})
		case reason := <-subscription.ClosedReason:
			transport.hub.broadcast(Notification{
				Kind:           NotifyClosed,
				SubscriptionID: subscriptionID,
				Reason:         reason,
			})
			return
		}
	}
}

// Unsubscribe sends CLOSE for subscriptionID.
func (transport *Nostr) Unsubscribe(_ context.Context, subscriptionID string) error {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	existing, ok := transport.subscriptions[subscriptionID]
	if !ok {
		return nil
	}
	existing.cancel()
	existing.subscription.Unsub()
	delete(transport.subscriptions, subscriptionID)
	return nil
}

// Publish signs draft and waits for the relay's OK.
func (transport *Nostr) Publish(ctx context.Context, draft Draft) (Event, error) {
	event := nostr.Event{
		PubKey:    transport.publicKey,
		CreatedAt: nostr.Now(),
		Kind:      draft.Kind,
		Tags:      toNostrTags(draft.Tags),
		Content:   draft.Content,
	}
	if err := event.Sign(transport.secretKey); err != nil {
		return Event{}, fmt.Errorf("signing event: %w", err)
	}

	transport.mutex.Lock()
	connection := transport.relay
	closed := transport.closed
	transport.mutex.Unlock()
	if closed {
		return Event{}, shutdownError("transport closed")
	}

	if err := connection.Publish(ctx, event); err != nil {
		return Event{}, fmt.Errorf("publishing event %s: %w", event.ID, err)
	}
	return fromNostrEvent(&event), nil
}

// Listen attaches a notification listener.
func (transport *Nostr) Listen() *Listener { return transport.hub.listen() }

// CheckHealth reconnects a dropped connection and re-sends every active
// subscription. The relay replays stored events for each; consumers
// drop the duplicates by event id.
func (transport *Nostr) CheckHealth(ctx context.Context) error {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if transport.closed {
		return shutdownError("transport closed")
	}
	if transport.relay.IsConnected() {
		return nil
	}

	transport.logger.Warn("relay disconnected, reconnecting", "url", transport.url)
	connection, err := nostr.RelayConnect(ctx, transport.url)
	if err != nil {
		return fmt.Errorf("reconnecting to relay %s: %w", transport.url, err)
	}
	transport.relay = connection

	previous := transport.subscriptions
	transport.subscriptions = make(map[string]*nostrSubscription, len(previous))
	for subscriptionID, existing := range previous {
		existing.cancel()
		if err := transport.subscribeLocked(ctx, subscriptionID, existing.filter); err != nil {
			return err
		}
	}
	transport.logger.Info("relay reconnected",
		"url", transport.url,
		"subscriptions", len(transport.subscriptions),
	)
	return nil
}

// Close tears down every subscription and the connection, then
// delivers NotifyShutdown to all listeners.
func (transport *Nostr) Close() error {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()

	if transport.closed {
		return nil
	}
	transport.closed = true
	for subscriptionID, existing := range transport.subscriptions {
		existing.cancel()
		existing.subscription.Unsub()
		delete(transport.subscriptions, subscriptionID)
	}
	err := transport.relay.Close()
	transport.hub.shutdown("transport closed")
	return err
}

func toNostrFilter(filter Filter) nostr.Filter {
	converted := nostr.Filter{
		Kinds:   filter.Kinds,
		Authors: filter.Authors,
	}
	if len(filter.Tags) > 0 {
		converted.Tags = make(nostr.TagMap, len(filter.Tags))
		for name, values := range filter.Tags {
			converted.Tags[name] = values
		}
	}
	if !filter.Since.IsZero() {
		since := nostr.Timestamp(filter.Since.Unix())
		converted.Since = &since
	}
	return converted
}

func toNostrTags(tags Tags) nostr.Tags {
	converted := make(nostr.Tags, 0, len(tags))
	for _, tag := range tags {
		converted = append(converted, nostr.Tag(tag))
	}
	return converted
}

func fromNostrEvent(event *nostr.Event) Event {
	tags := make(Tags, 0, len(event.Tags))
	for _, tag := range event.Tags {
		tags = append(tags, Tag(tag))
	}
	return Event{
		ID:        event.ID,
		PubKey:    event.PubKey,
		CreatedAt: time.Unix(int64(event.CreatedAt), 0),
		Kind:      event.Kind,
		Tags:      tags,
		Content:   event.Content,
		Sig:       event.Sig,
	}
}

// eventID computes the canonical nostr id (sha256 of the serialized
// event) for events that never went through a real relay.
func eventID(event Event) string {
	converted := nostr.Event{
		PubKey:    event.PubKey,
		CreatedAt: nostr.Timestamp(event.CreatedAt.Unix()),
		Kind:      event.Kind,
		Tags:      toNostrTags(event.Tags),
		Content:   event.Content,
	}
	return converted.GetID()
}
