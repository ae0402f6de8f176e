// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dephy-io/chat-controller/relay"
)

// EventKind is the relay event kind every payload travels in.
const EventKind = 1573

// NewDraft encodes message as the content of an event tagged with
// session and addressed to mention.
func NewDraft(session, mention string, message json.Marshaler) (relay.Draft, error) {
	content, err := message.MarshalJSON()
	if err != nil {
		return relay.Draft{}, err
	}
	if session == "" || mention == "" {
		return relay.Draft{}, fmt.Errorf("protocol: draft needs a session and a mention")
	}
	return relay.Draft{
		Kind:    EventKind,
		Tags:    relay.AddressedTags(session, mention),
		Content: string(content),
	}, nil
}

// SessionFilter selects events of session addressed to any of
// mentions.
func SessionFilter(session string, mentions ...string) relay.Filter {
	return relay.Filter{
		Kinds: []int{EventKind},
		Tags: map[string][]string{
			relay.TagSession: {session},
			relay.TagMention: mentions,
		},
	}
}
