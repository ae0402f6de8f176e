// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dephy-io/chat-controller/lib/clock"
	"github.com/dephy-io/chat-controller/lib/conversation"
	"github.com/dephy-io/chat-controller/lib/health"
	"github.com/dephy-io/chat-controller/lib/ledger"
	"github.com/dephy-io/chat-controller/lib/llm"
	"github.com/dephy-io/chat-controller/lib/lock"
	"github.com/dephy-io/chat-controller/lib/protocol"
	"github.com/dephy-io/chat-controller/lib/router"
	"github.com/dephy-io/chat-controller/lib/service"
	"github.com/dephy-io/chat-controller/relay"
)

// Config configures a Controller. Transport and Completer are
// required.
type Config struct {
	Transport relay.Transport
	Completer conversation.Completer

	// Ledger enforces token budgets. Nil means ledger.Disabled.
	Ledger conversation.Ledger

	// Session is the chat session tag.
	Session string

	// Conversations are subscribed in addition to the transport's
	// public key.
	Conversations []string

	// HistorySince bounds the replayed history. Zero replays
	// everything the relay stores.
	HistorySince time.Duration

	DedupWindow int

	Model            string
	MaxTokensCeiling uint32
	Sampling         llm.Sampling

	// Health configures the relay health monitor. Its Clock and Logger
	// default to the controller's.
	Health health.Config

	// Lock enables the lock responder when non-nil.
	Lock *lock.ResponderConfig

	// SocketPath enables the status socket when non-empty.
	SocketPath string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Controller owns the running components.
type Controller struct {
	transport    relay.Transport
	machine      *conversation.Machine
	monitor      *health.Monitor
	responder    *lock.Responder
	socket       *service.SocketServer
	session      string
	historySince time.Duration
	dedupWindow  int
	logger       *slog.Logger

	// Written by the conversation goroutine after every event, read by
	// socket handlers.
	statusMutex sync.Mutex
	snapshot    conversationSnapshot
}

// New assembles a controller from config. Nothing runs until Run.
func New(config Config) (*Controller, error) {
	if config.Transport == nil {
		return nil, errors.New("controller: transport is required")
	}
	if config.Completer == nil {
		return nil, errors.New("controller: completer is required")
	}
	if config.Session == "" {
		return nil, errors.New("controller: session is required")
	}

	controllerClock := config.Clock
	if controllerClock == nil {
		controllerClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ledgerClient := config.Ledger
	if ledgerClient == nil {
		ledgerClient = ledger.Disabled{}
	}

	healthConfig := config.Health
	if healthConfig.Clock == nil {
		healthConfig.Clock = controllerClock
	}
	if healthConfig.Logger == nil {
		healthConfig.Logger = logger.With("component", "health")
	}
	monitor, err := health.NewMonitor(config.Transport, healthConfig)
	if err != nil {
		return nil, err
	}

	machine := conversation.New(conversation.Config{
		Publisher:        config.Transport,
		Ledger:           ledgerClient,
		Completer:        config.Completer,
		Session:          config.Session,
		PublicKey:        config.Transport.PublicKey(),
		Conversations:    config.Conversations,
		Model:            config.Model,
		MaxTokensCeiling: config.MaxTokensCeiling,
		Sampling:         config.Sampling,
		StartedAt:        controllerClock.Now(),
		Logger:           logger.With("component", "conversation"),
	})

	controller := &Controller{
		transport:    config.Transport,
		machine:      machine,
		monitor:      monitor,
		session:      config.Session,
		historySince: config.HistorySince,
		dedupWindow:  config.DedupWindow,
		logger:       logger,
	}

	if config.Lock != nil {
		lockConfig := *config.Lock
		if lockConfig.Logger == nil {
			lockConfig.Logger = logger.With("component", "lock")
		}
		controller.responder = lock.NewResponder(config.Transport, lockConfig)
	}

	if config.SocketPath != "" {
		controller.socket = service.NewSocketServer(config.SocketPath, logger.With("component", "status"))
		controller.registerActions(controller.socket)
	}

	controller.updateSnapshot(false)
	return controller, nil
}

// StartedAt returns the history cutoff of the conversation machine.
func (controller *Controller) StartedAt() time.Time { return controller.machine.StartedAt() }

// Run starts every component and blocks until ctx is cancelled or one
// of them fails. A component failure cancels the others; the first
// failure is returned, so relay.IsFatal reports transport loss.
func (controller *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type exit struct {
		component string
		err       error
	}
	exits := make(chan exit, 4)
	running := 0
	start := func(component string, run func(context.Context) error) {
		running++
		go func() {
			exits <- exit{component: component, err: run(ctx)}
		}()
	}

	start("conversations", controller.runConversations)
	start("health", controller.monitor.Run)
	if controller.responder != nil {
		start("lock", controller.responder.Run)
	}
	if controller.socket != nil {
		start("status socket", controller.socket.Serve)
	}

	controller.logger.Info("controller running",
		"public_key", controller.transport.PublicKey(),
		"session", controller.session,
		"started_at", controller.StartedAt(),
		"components", running,
	)

	var first error
	for range running {
		exited := <-exits
		if exited.err != nil && first == nil {
			first = fmt.Errorf("%s: %w", exited.component, exited.err)
			controller.logger.Error("component failed, shutting down",
				"component", exited.component,
				"fatal", relay.IsFatal(exited.err),
				"error", exited.err,
			)
		}
		cancel()
	}
	return first
}

// mentions returns the p tags the conversation stream subscribes to,
// spelled exactly as configured or announced.
func (controller *Controller) mentions() []string {
	return controller.machine.Addresses()
}

func (controller *Controller) filter() relay.Filter {
	filter := protocol.SessionFilter(controller.session, controller.mentions()...)
	if controller.historySince > 0 {
		filter.Since = controller.StartedAt().Add(-controller.historySince)
	}
	return filter
}

// runConversations owns the machine. It returns nil when ctx ends and
// the fatal error otherwise.
func (controller *Controller) runConversations(ctx context.Context) error {
	stream, err := router.Open(ctx, controller.transport, controller.filter(), protocol.DecodeChat, router.Options{
		Label:       "chat",
		DedupWindow: controller.dedupWindow,
		Logger:      controller.logger,
	})
	if err != nil {
		return err
	}
	defer stream.Close(context.WithoutCancel(ctx))

	live := false
	for {
		delivery, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch delivery.Kind {
		case router.EndOfStored:
			if !live {
				live = true
				stats := controller.machine.Stats()
				controller.logger.Info("history replayed",
					"seeded", stats.Seeded,
					"folded", stats.Folded,
					"conversations", len(controller.machine.Snapshot()),
				)
			}

		case router.Message:
			outcome, err := controller.machine.Observe(ctx, delivery.Event, delivery.Message)
			if err != nil {
				return err
			}
			if outcome == conversation.OutcomeRegistered {
				mentions := controller.mentions()
				if err := stream.Resubscribe(ctx, controller.filter()); err != nil {
					return err
				}
				controller.logger.Info("subscription extended", "mentions", len(mentions))
			}
		}
		controller.updateSnapshot(live)
	}
}

