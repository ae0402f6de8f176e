// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import "fmt"

// Outcome is what Observe did with an event.
type Outcome int

const (
	// OutcomeRegistered: a NewChat added a conversation id.
	OutcomeRegistered Outcome = iota + 1

	// OutcomeSeeded: a historical Ask was appended without a
	// completion.
	OutcomeSeeded

	// OutcomeAnswered: a live Ask completed with finish_reason
	// "stop"; the answer and balance were published and the Ask
	// appended.
	OutcomeAnswered

	// OutcomePartial: a live Ask completed with another
	// finish_reason; the answer was published and nothing else
	// changed.
	OutcomePartial

	// OutcomeFolded: a "stop" Answer was appended.
	OutcomeFolded

	// OutcomeIgnored: the event required no action.
	OutcomeIgnored

	// OutcomeSkipped: the event was unusable (no mention).
	OutcomeSkipped

	// OutcomeDropped: a live turn failed; nothing was published and
	// the context is unchanged.
	OutcomeDropped
)

var outcomeNames = map[Outcome]string{
	OutcomeRegistered: "registered",
	OutcomeSeeded:     "seeded",
	OutcomeAnswered:   "answered",
	OutcomePartial:    "partial",
	OutcomeFolded:     "folded",
	OutcomeIgnored:    "ignored",
	OutcomeSkipped:    "skipped",
	OutcomeDropped:    "dropped",
}

func (outcome Outcome) String() string {
	if name, ok := outcomeNames[outcome]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(outcome))
}
