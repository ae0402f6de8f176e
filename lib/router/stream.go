// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dephy-io/chat-controller/relay"
)

// Decoder parses event content into a message.
type Decoder[M any] func(content string) (M, error)

// DeliveryKind distinguishes what Next returned.
type DeliveryKind int

const (
	// Message carries a decoded event.
	Message DeliveryKind = iota + 1

	// EndOfStored marks the end of the relay's stored backlog for the
	// stream's current filter.
	EndOfStored
)

// Delivery is one item of a stream.
type Delivery[M any] struct {
	Kind DeliveryKind

	// Event and Message are set for Message deliveries.
	Event   relay.Event
	Message M
}

// Options configures a stream.
type Options struct {
	// Label prefixes the generated subscription id, for logs.
	Label string

	// DedupWindow is the number of event ids remembered
	// (DefaultDedupWindow when <= 0).
	DedupWindow int

	Logger *slog.Logger
}

// Stream is one logical subscription. It is not safe for concurrent
// use: one goroutine reads it.
type Stream[M any] struct {
	transport      relay.Transport
	listener       *relay.Listener
	subscriptionID string
	decode         Decoder[M]
	seen           *window
	logger         *slog.Logger
	fatal          error
}

// Open subscribes with filter and returns the stream reading it.
func Open[M any](ctx context.Context, transport relay.Transport, filter relay.Filter, decode Decoder[M], options Options) (*Stream[M], error) {
	subscriptionID := uuid.NewString()
	if options.Label != "" {
		subscriptionID = options.Label + "-" + subscriptionID
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	listener := transport.Listen()
	if err := transport.Subscribe(ctx, subscriptionID, filter); err != nil {
		listener.Close()
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	return &Stream[M]{
		transport:      transport,
		listener:       listener,
		subscriptionID: subscriptionID,
		decode:         decode,
		seen:           newWindow(options.DedupWindow),
		logger:         logger.With("subscription", subscriptionID),
	}, nil
}

// SubscriptionID returns the id the stream subscribed under.
func (stream *Stream[M]) SubscriptionID() string { return stream.subscriptionID }

// Next returns the next delivery for this stream. It returns a
// *relay.FatalError when the subscription is closed or the relay shuts
// down, and ctx.Err() when ctx ends first.
func (stream *Stream[M]) Next(ctx context.Context) (Delivery[M], error) {
	if stream.fatal != nil {
		return Delivery[M]{}, stream.fatal
	}

	for {
		var notification relay.Notification
		select {
		case <-ctx.Done():
			return Delivery[M]{}, ctx.Err()
		case received, ok := <-stream.listener.C():
			if !ok {
				stream.fatal = relay.ListenerClosedError()
				return Delivery[M]{}, stream.fatal
			}
			notification = received
		}

		if notification.Kind == relay.NotifyShutdown {
			stream.fatal = relay.FatalFromNotification(notification)
			stream.logger.Error("relay shut down", "reason", notification.Reason)
			return Delivery[M]{}, stream.fatal
		}
		if notification.SubscriptionID != stream.subscriptionID {
			continue
		}

		switch notification.Kind {
		case relay.NotifyClosed:
			stream.fatal = relay.FatalFromNotification(notification)
			stream.logger.Error("subscription closed by relay", "reason", notification.Reason)
			return Delivery[M]{}, stream.fatal

		case relay.NotifyEndOfStored:
			return Delivery[M]{Kind: EndOfStored}, nil

		case relay.NotifyEvent:
			event := notification.Event
			if !stream.seen.add(event.ID) {
				continue
			}
			message, err := stream.decode(event.Content)
			if err != nil {
				stream.logger.Warn("skipping undecodable event",
					"event", event.ID,
					"author", event.PubKey,
					"error", err,
				)
				continue
			}
			return Delivery[M]{Kind: Message, Event: event, Message: message}, nil
		}
	}
}

// Resubscribe replaces the stream's filter under the same subscription
// id. Stored events matching the new filter are replayed; those
// already seen are dropped.
func (stream *Stream[M]) Resubscribe(ctx context.Context, filter relay.Filter) error {
	if err := stream.transport.Subscribe(ctx, stream.subscriptionID, filter); err != nil {
		return fmt.Errorf("resubscribing %s: %w", stream.subscriptionID, err)
	}
	return nil
}

// Close unsubscribes and detaches the listener.
func (stream *Stream[M]) Close(ctx context.Context) error {
	defer stream.listener.Close()
	return stream.transport.Unsubscribe(ctx, stream.subscriptionID)
}
