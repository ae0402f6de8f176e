// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "time"

// Tag names used for routing.
const (
	// TagSession scopes an event to one logical application session.
	TagSession = "s"

	// TagMention addresses an event to a party or conversation.
	TagMention = "p"
)

// Event is a signed relay event.
type Event struct {
	ID        string
	PubKey    string
	CreatedAt time.Time
	Kind      int
	Tags      Tags
	Content   string
	Sig       string
}

// Tag is one event tag: a name followed by values.
type Tag []string

// Name returns the tag name, or "" for an empty tag.
func (tag Tag) Name() string {
	if len(tag) == 0 {
		return ""
	}
	return tag[0]
}

// Value returns the first value, or "" when the tag has none.
func (tag Tag) Value() string {
	if len(tag) < 2 {
		return ""
	}
	return tag[1]
}

// Tags is an ordered tag list.
type Tags []Tag

// First returns the value of the first tag named name with a non-empty
// value.
func (tags Tags) First(name string) (string, bool) {
	for _, tag := range tags {
		if tag.Name() == name && tag.Value() != "" {
			return tag.Value(), true
		}
	}
	return "", false
}

// AddressedTags returns the session and mention tags every event of
// this system carries.
func AddressedTags(session, mention string) Tags {
	return Tags{
		{TagSession, session},
		{TagMention, mention},
	}
}

// ExtractMention returns the party or conversation an event is
// addressed to: the first non-empty "p" tag accepted by addressed. A
// nil addressed accepts any value.
func ExtractMention(event Event, addressed func(string) bool) (string, bool) {
	for _, tag := range event.Tags {
		if tag.Name() != TagMention || tag.Value() == "" {
			continue
		}
		if addressed == nil || addressed(tag.Value()) {
			return tag.Value(), true
		}
	}
	return "", false
}
