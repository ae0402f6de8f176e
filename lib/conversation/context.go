// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/dephy-io/chat-controller/lib/codec"
	"github.com/dephy-io/chat-controller/lib/llm"
)

// Entry is one turn of a conversation.
type Entry struct {
	Role    string  `json:"role"`
	Content *string `json:"content,omitempty"`
	Name    *string `json:"name,omitempty"`
}

// Message converts the entry to a completion request message.
func (entry Entry) Message() llm.Message {
	return llm.Message{Role: entry.Role, Content: entry.Content, Name: entry.Name}
}

// digestKey is the BLAKE3 key of the context digest chain: the ASCII
// domain name, zero-padded to 32 bytes.
var digestKey = [32]byte{
	'c', 'h', 'a', 't', '-', 'c', 'o', 'n', 't', 'r', 'o', 'l', 'l', 'e', 'r', '.',
	'c', 'o', 'n', 't', 'e', 'x', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Context is the ordered history of one conversation.
//
// Every append extends a hash chain: digest = H(previous digest ||
// CBOR(entry)), keyed with digestKey. Two instances that observed the
// same entries in the same order report the same Digest.
type Context struct {
	id      string
	entries []Entry
	digest  [32]byte
}

func newContext(id string) *Context {
	return &Context{id: id}
}

// ID returns the conversation id.
func (history *Context) ID() string { return history.id }

// Len returns the number of entries.
func (history *Context) Len() int { return len(history.entries) }

// Entries returns a copy of the entries in arrival order.
func (history *Context) Entries() []Entry {
	return append([]Entry(nil), history.entries...)
}

// Digest returns the hex hash chain head, or "" for an empty context.
func (history *Context) Digest() string {
	if len(history.entries) == 0 {
		return ""
	}
	return hex.EncodeToString(history.digest[:])
}

// Prompt returns the context followed by next, as request messages.
func (history *Context) Prompt(next Entry) []llm.Message {
	messages := make([]llm.Message, 0, len(history.entries)+1)
	for _, entry := range history.entries {
		messages = append(messages, entry.Message())
	}
	return append(messages, next.Message())
}

func (history *Context) append(entry Entry) {
	encoded, err := codec.Marshal(entry)
	if err != nil {
		// Entry holds only strings; encoding cannot fail.
		panic("conversation: encoding context entry: " + err.Error())
	}
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("conversation: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(history.digest[:])
	hasher.Write(encoded)
	copy(history.digest[:], hasher.Sum(nil))

	history.entries = append(history.entries, entry)
}

// Summary describes one context for status reporting.
type Summary struct {
	ID      string `json:"id"`
	Entries int    `json:"entries"`
	Digest  string `json:"digest,omitempty"`
}

func (history *Context) summary() Summary {
	return Summary{ID: history.id, Entries: len(history.entries), Digest: history.Digest()}
}
