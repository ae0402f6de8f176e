// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/dephy-io/chat-controller/lib/conversation"
	"github.com/dephy-io/chat-controller/lib/health"
	"github.com/dephy-io/chat-controller/lib/service"
)

// Status is the reply to the "status" action.
type Status struct {
	PublicKey string `cbor:"public_key" json:"public_key"`
	Session   string `cbor:"session" json:"session"`

	// StartedAt is the history cutoff in Unix seconds.
	StartedAt int64 `cbor:"started_at" json:"started_at"`

	// Live is true once the stored history has been replayed.
	Live bool `cbor:"live" json:"live"`

	Mentions      []string               `cbor:"mentions" json:"mentions"`
	Conversations int                    `cbor:"conversations" json:"conversations"`
	Stats         conversation.Stats     `cbor:"stats" json:"stats"`
	Health        health.Status          `cbor:"health" json:"health"`
	Lock          *LockStatus            `cbor:"lock,omitempty" json:"lock,omitempty"`
	Contexts      []conversation.Summary `cbor:"contexts,omitempty" json:"contexts,omitempty"`
}

// LockStatus describes the lock responder.
type LockStatus struct {
	Resource string `cbor:"resource" json:"resource"`
	Answered uint64 `cbor:"answered" json:"answered"`
}

// conversationSnapshot is the machine state copied out of the
// conversation goroutine.
type conversationSnapshot struct {
	live     bool
	mentions []string
	stats    conversation.Stats
	contexts []conversation.Summary
}

func (controller *Controller) updateSnapshot(live bool) {
	snapshot := conversationSnapshot{
		live:     live,
		mentions: controller.mentions(),
		stats:    controller.machine.Stats(),
		contexts: controller.machine.Snapshot(),
	}
	controller.statusMutex.Lock()
	controller.snapshot = snapshot
	controller.statusMutex.Unlock()
}

// Status returns the controller's current state. Safe to call from any
// goroutine.
func (controller *Controller) Status() Status {
	controller.statusMutex.Lock()
	snapshot := controller.snapshot
	controller.statusMutex.Unlock()

	status := Status{
		PublicKey:     controller.transport.PublicKey(),
		Session:       controller.session,
		StartedAt:     controller.StartedAt().Unix(),
		Live:          snapshot.live,
		Mentions:      snapshot.mentions,
		Conversations: len(snapshot.contexts),
		Stats:         snapshot.stats,
		Health:        controller.monitor.Status(),
	}
	if controller.responder != nil {
		status.Lock = &LockStatus{
			Resource: controller.responder.Status().String(),
			Answered: controller.responder.Answered(),
		}
	}
	return status
}

// Conversation returns the summary of one context.
func (controller *Controller) Conversation(id string) (conversation.Summary, bool) {
	controller.statusMutex.Lock()
	defer controller.statusMutex.Unlock()

	normalized := conversation.NormalizeID(id)
	for _, summary := range controller.snapshot.contexts {
		if summary.ID == id || summary.ID == normalized {
			return summary, true
		}
	}
	return conversation.Summary{}, false
}

func (controller *Controller) registerActions(server *service.SocketServer) {
	server.Handle("status", controller.handleStatus)
	server.Handle("conversation", controller.handleConversation)
}

type statusRequest struct {
	// Contexts includes every context summary in the reply.
	Contexts bool `cbor:"contexts"`
}

func (controller *Controller) handleStatus(_ context.Context, call service.Request) (any, error) {
	var request statusRequest
	if err := call.Decode(&request); err != nil {
		return nil, err
	}
	status := controller.Status()
	if request.Contexts {
		controller.statusMutex.Lock()
		status.Contexts = controller.snapshot.contexts
		controller.statusMutex.Unlock()
	}
	return status, nil
}

type conversationRequest struct {
	ID string `cbor:"id"`
}

func (controller *Controller) handleConversation(_ context.Context, call service.Request) (any, error) {
	var request conversationRequest
	if err := call.Decode(&request); err != nil {
		return nil, err
	}
	if request.ID == "" {
		return nil, errors.New("missing required field: id")
	}
	summary, ok := controller.Conversation(request.ID)
	if !ok {
		return nil, fmt.Errorf("unknown conversation %q", request.ID)
	}
	return summary, nil
}
