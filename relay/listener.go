// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"log/slog"
	"sync"
)

// Listener receives every notification broadcast by its transport.
type Listener struct {
	channel chan Notification
	hub     *hub

	// Guarded by hub.mutex.
	closed  bool
	dropped uint64
}

// C returns the notification channel. It is closed when the listener
// is closed or the transport shuts down.
func (listener *Listener) C() <-chan Notification { return listener.channel }

// Dropped returns how many notifications were lost because the buffer
// was full.
func (listener *Listener) Dropped() uint64 {
	listener.hub.mutex.Lock()
	defer listener.hub.mutex.Unlock()
	return listener.dropped
}

// Close detaches the listener. Safe to call more than once.
func (listener *Listener) Close() {
	listener.hub.detach(listener)
}

// hub fans notifications out to listeners. Sends never block: a full
// listener loses the notification.
type hub struct {
	mutex     sync.Mutex
	capacity  int
	listeners map[*Listener]struct{}
	stopped   bool
	reason    string
	logger    *slog.Logger
}

func newHub(capacity int, logger *slog.Logger) *hub {
	if capacity <= 0 {
		capacity = DefaultNotificationBuffer
	}
	return &hub{
		capacity:  capacity,
		listeners: make(map[*Listener]struct{}),
		logger:    logger,
	}
}

func (h *hub) listen() *Listener {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	listener := &Listener{
		channel: make(chan Notification, h.capacity),
		hub:     h,
	}
	if h.stopped {
		listener.channel <- Notification{Kind: NotifyShutdown, Reason: h.reason}
		close(listener.channel)
		listener.closed = true
		return listener
	}
	h.listeners[listener] = struct{}{}
	return listener
}

func (h *hub) detach(listener *Listener) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if listener.closed {
		return
	}
	delete(h.listeners, listener)
	listener.closed = true
	close(listener.channel)
}

func (h *hub) broadcast(notification Notification) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for listener := range h.listeners {
		select {
		case listener.channel <- notification:
		default:
			listener.dropped++
			h.logger.Warn("notification buffer full, dropping",
				"kind", notification.Kind,
				"subscription", notification.SubscriptionID,
				"capacity", h.capacity,
				"dropped", listener.dropped,
			)
		}
	}
}

// shutdown delivers a final NotifyShutdown where there is room and
// closes every listener channel. Listeners attached afterwards see the
// shutdown immediately.
func (h *hub) shutdown(reason string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true
	h.reason = reason
	for listener := range h.listeners {
		select {
		case listener.channel <- Notification{Kind: NotifyShutdown, Reason: reason}:
		default:
		}
		listener.closed = true
		close(listener.channel)
	}
	clear(h.listeners)
}
