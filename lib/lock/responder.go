// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dephy-io/chat-controller/lib/protocol"
	"github.com/dephy-io/chat-controller/lib/router"
	"github.com/dephy-io/chat-controller/relay"
)

// ResponderConfig configures a Responder.
type ResponderConfig struct {
	Config

	// AdminPubKey is the only author whose AdminRequest and Reset
	// requests are answered.
	AdminPubKey string

	// Initial is the status assumed before any Status is observed.
	// Zero means Available.
	Initial protocol.ResourceStatus
}

// Responder answers lock requests for one resource.
type Responder struct {
	transport relay.Transport
	config    ResponderConfig
	logger    *slog.Logger

	// observed is written only by the Run goroutine; Status reads it
	// from others.
	observed atomic.Uint32
	answered atomic.Uint64
}

// NewResponder creates a responder. Call Run to start answering.
func NewResponder(transport relay.Transport, config ResponderConfig) *Responder {
	config.Config = config.Config.withDefaults()
	if config.Initial == 0 {
		config.Initial = protocol.StatusAvailable
	}
	if config.Mention == "" {
		config.Mention = transport.PublicKey()
	}
	responder := &Responder{
		transport: transport,
		config:    config,
		logger:    config.Logger.With("lock_session", config.Session),
	}
	responder.observed.Store(uint32(config.Initial))
	return responder
}

// Status returns the last observed resource status.
func (responder *Responder) Status() protocol.ResourceStatus {
	return protocol.ResourceStatus(responder.observed.Load())
}

// Answered returns how many Status answers have been published.
func (responder *Responder) Answered() uint64 {
	return responder.answered.Load()
}

// Run consumes the session until ctx ends or the relay fails. Stored
// Status events update the observed status; stored Requests are not
// answered, only those arriving after the end of stored events. It
// returns nil on cancellation and a *relay.FatalError when the
// subscription is lost.
func (responder *Responder) Run(ctx context.Context) error {
	stream, err := router.Open(ctx, responder.transport,
		protocol.SessionFilter(responder.config.Session, responder.config.Mention),
		protocol.DecodeProxy,
		router.Options{Label: "lock", Logger: responder.logger})
	if err != nil {
		return fmt.Errorf("opening lock stream: %w", err)
	}
	defer stream.Close(context.WithoutCancel(ctx))

	responder.logger.Info("lock responder started",
		"mention", responder.config.Mention,
		"status", responder.Status(),
	)

	live := false
	for {
		delivery, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch {
		case delivery.Kind == router.EndOfStored:
			if !live {
				live = true
				responder.logger.Info("lock history replayed", "status", responder.Status())
			}
		case delivery.Message.Status != nil:
			responder.observe(delivery.Event, *delivery.Message.Status)
		case delivery.Message.Request != nil && live:
			answer, ok := responder.Decide(delivery.Event, *delivery.Message.Request)
			if !ok {
				continue
			}
			if err := responder.publish(ctx, answer); err != nil {
				if relay.IsFatal(err) {
					return err
				}
				responder.logger.Error("publishing lock status failed",
					"initial_request", answer.InitialRequest,
					"error", err,
				)
			}
		}
	}
}

// Decide applies a Request to the observed status and returns the
// Status to publish. It reports false when the request is not
// answered. The observed status is updated to the granted one.
func (responder *Responder) Decide(event relay.Event, request protocol.Request) (protocol.Status, bool) {
	logger := responder.logger.With(
		"event", event.ID,
		"author", event.PubKey,
		"to_status", request.ToStatus,
		"reason", request.Reason,
	)

	privileged := request.Reason == protocol.ReasonAdminRequest || request.Reason == protocol.ReasonReset
	if privileged && event.PubKey != responder.config.AdminPubKey {
		logger.Warn("ignoring privileged lock request from non-admin")
		return protocol.Status{}, false
	}

	answer := protocol.Status{
		Status:         request.ToStatus,
		Reason:         request.Reason,
		InitialRequest: request.InitialRequest,
		Payload:        request.Payload,
	}
	switch request.ToStatus {
	case protocol.StatusWorking:
		if responder.Status() == protocol.StatusWorking {
			answer.Reason = protocol.ReasonLockFailed
			logger.Info("lock already held")
			return answer, true
		}
	case protocol.StatusAvailable:
	default:
		logger.Warn("ignoring lock request for unknown status")
		return protocol.Status{}, false
	}

	responder.observed.Store(uint32(request.ToStatus))
	logger.Info("lock status changed", "status", request.ToStatus)
	return answer, true
}

func (responder *Responder) observe(event relay.Event, status protocol.Status) {
	if status.Status != protocol.StatusAvailable && status.Status != protocol.StatusWorking {
		return
	}
	previous := responder.Status()
	responder.observed.Store(uint32(status.Status))
	if previous != status.Status {
		responder.logger.Info("observed lock status",
			"status", status.Status,
			"reason", status.Reason,
			"author", event.PubKey,
			"initial_request", status.InitialRequest,
		)
	}
}

func (responder *Responder) publish(ctx context.Context, status protocol.Status) error {
	draft, err := protocol.NewDraft(responder.config.Session, responder.config.Mention,
		protocol.ProxyMessage{Status: &status})
	if err != nil {
		return fmt.Errorf("encoding lock status: %w", err)
	}
	if _, err := responder.transport.Publish(ctx, draft); err != nil {
		return err
	}
	responder.answered.Add(1)
	return nil
}
