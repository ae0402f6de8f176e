// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller runs the chat controller: one conversation stream
// feeding a [conversation.Machine], a relay health monitor, and
// optionally a lock responder and a status socket.
//
// The conversation stream subscribes to the chat session for events
// addressed to the controller's public key, to the statically
// configured conversation ids, and to every id registered by a NewChat
// message. A registration extends the subscription in place, so the
// relay replays the new conversation's history into the same stream.
//
// [Controller.Run] returns the first fatal error of any component and
// stops the rest. Cancelling its context is a clean shutdown and
// returns nil.
package controller
