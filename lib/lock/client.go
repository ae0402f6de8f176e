// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dephy-io/chat-controller/lib/protocol"
	"github.com/dephy-io/chat-controller/lib/router"
	"github.com/dephy-io/chat-controller/relay"
)

// DefaultSession is the session the deployed resource controller
// listens on.
const DefaultSession = "dephy-dsproxy-controller"

// Config addresses lock traffic.
type Config struct {
	// Session is the "s" tag of lock events.
	Session string

	// Mention is the "p" tag: the resource owner's public key.
	Mention string

	Logger *slog.Logger
}

func (config Config) withDefaults() Config {
	if config.Session == "" {
		config.Session = DefaultSession
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return config
}

// RequestParams describes one Request.
type RequestParams struct {
	ToStatus protocol.ResourceStatus
	Reason   protocol.StatusReason

	// InitialRequest is the 64-hex id of the event that started the
	// exchange. The answering Status carries it back.
	InitialRequest string

	// Payload is opaque to the protocol. The operator tool uses an
	// encoded protocol.LockPayload.
	Payload string
}

// Client publishes lock requests and waits for their answers.
type Client struct {
	transport relay.Transport
	config    Config
	logger    *slog.Logger
}

// NewClient creates a lock client.
func NewClient(transport relay.Transport, config Config) *Client {
	config = config.withDefaults()
	return &Client{
		transport: transport,
		config:    config,
		logger:    config.Logger.With("lock_session", config.Session),
	}
}

// Request publishes a Request and returns the published event.
func (client *Client) Request(ctx context.Context, params RequestParams) (relay.Event, error) {
	draft, err := protocol.NewDraft(client.config.Session, client.config.Mention, protocol.ProxyMessage{
		Request: &protocol.Request{
			ToStatus:       params.ToStatus,
			Reason:         params.Reason,
			InitialRequest: params.InitialRequest,
			Payload:        params.Payload,
		},
	})
	if err != nil {
		return relay.Event{}, fmt.Errorf("encoding lock request: %w", err)
	}
	event, err := client.transport.Publish(ctx, draft)
	if err != nil {
		return relay.Event{}, fmt.Errorf("publishing lock request: %w", err)
	}
	client.logger.Info("lock requested",
		"to_status", params.ToStatus,
		"reason", params.Reason,
		"initial_request", params.InitialRequest,
		"event", event.ID,
	)
	return event, nil
}

// AwaitStatus returns the first Status whose initial_request matches,
// including one already stored on the relay. It blocks until ctx ends.
func (client *Client) AwaitStatus(ctx context.Context, initialRequest string) (protocol.Status, error) {
	stream, err := client.open(ctx)
	if err != nil {
		return protocol.Status{}, err
	}
	defer stream.Close(context.WithoutCancel(ctx))
	return awaitStatus(ctx, stream, initialRequest)
}

// Exchange publishes a Request and waits for its Status. The stream is
// opened before publishing, so an answer cannot slip past.
func (client *Client) Exchange(ctx context.Context, params RequestParams) (protocol.Status, error) {
	stream, err := client.open(ctx)
	if err != nil {
		return protocol.Status{}, err
	}
	defer stream.Close(context.WithoutCancel(ctx))

	if _, err := client.Request(ctx, params); err != nil {
		return protocol.Status{}, err
	}
	return awaitStatus(ctx, stream, params.InitialRequest)
}

func (client *Client) open(ctx context.Context) (*router.Stream[protocol.ProxyMessage], error) {
	stream, err := router.Open(ctx, client.transport,
		protocol.SessionFilter(client.config.Session, client.config.Mention),
		protocol.DecodeProxy,
		router.Options{Label: "lock-client", Logger: client.logger})
	if err != nil {
		return nil, fmt.Errorf("opening lock stream: %w", err)
	}
	return stream, nil
}

func awaitStatus(ctx context.Context, stream *router.Stream[protocol.ProxyMessage], initialRequest string) (protocol.Status, error) {
	for {
		delivery, err := stream.Next(ctx)
		if err != nil {
			return protocol.Status{}, fmt.Errorf("waiting for status of %s: %w", initialRequest, err)
		}
		if delivery.Kind != router.Message {
			continue
		}
		status := delivery.Message.Status
		if status != nil && status.InitialRequest == initialRequest {
			return *status, nil
		}
	}
}
