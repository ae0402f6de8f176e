// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrSubscriptionClosed is wrapped by a FatalError when the relay
	// closes a subscription its consumer still depends on.
	ErrSubscriptionClosed = errors.New("relay: subscription closed")

	// ErrShutdown is wrapped by a FatalError when the connection is
	// gone for good.
	ErrShutdown = errors.New("relay: shutdown")
)

// FatalError is an unrecoverable transport condition. Per-event
// problems are never reported this way.
//
//	var fatal *relay.FatalError
//	if errors.As(err, &fatal) {
//	    // exit and let the supervisor restart the process
//	}
type FatalError struct {
	// SubscriptionID is the affected subscription, empty for a
	// connection-wide shutdown.
	SubscriptionID string

	// Reason is the relay's explanation, if it gave one.
	Reason string

	// Err is ErrSubscriptionClosed or ErrShutdown.
	Err error
}

func (err *FatalError) Error() string {
	message := err.Err.Error()
	if err.SubscriptionID != "" {
		message = fmt.Sprintf("%s (subscription %s)", message, err.SubscriptionID)
	}
	if err.Reason != "" {
		message += ": " + err.Reason
	}
	return message
}

func (err *FatalError) Unwrap() error { return err.Err }

// IsFatal reports whether err carries a FatalError anywhere in its
// chain.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// closedError builds the FatalError for a closed subscription.
func closedError(subscriptionID, reason string) *FatalError {
	return &FatalError{SubscriptionID: subscriptionID, Reason: reason, Err: ErrSubscriptionClosed}
}

// shutdownError builds the FatalError for a lost connection.
func shutdownError(reason string) *FatalError {
	return &FatalError{Reason: reason, Err: ErrShutdown}
}

// FatalFromNotification converts a Closed or Shutdown notification to
// the matching FatalError. It returns nil for other kinds.
func FatalFromNotification(notification Notification) *FatalError {
	switch notification.Kind {
	case NotifyClosed:
		return closedError(notification.SubscriptionID, notification.Reason)
	case NotifyShutdown:
		return shutdownError(notification.Reason)
	default:
		return nil
	}
}

// ListenerClosedError is the FatalError for a listener channel that
// closed underneath its reader.
func ListenerClosedError() *FatalError {
	return shutdownError("notification channel closed")
}
