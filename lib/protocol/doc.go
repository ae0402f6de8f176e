// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the payloads carried in relay event
// content and their JSON encoding.
//
// Every payload is an externally tagged union: a JSON object with
// exactly one key naming the variant, whose value holds the variant's
// fields.
//
//	{"NewChat":{"uuid":"..."}}
//	{"Ask":{"name":"alice","role":"user","content":"hi"}}
//	{"Anwser":{"finish_reason":"stop","role":"assistant","content":"hello"}}
//	{"Account":{"user":"<pubkey>","tokens":5000}}
//	{"Request":{"to_status":"Working","reason":"UserRequest","initial_request":"<event id>","payload":"..."}}
//	{"Status":{"status":"Working","reason":"LockFailed","initial_request":"<event id>","payload":"..."}}
//
// [ChatMessage] is the conversation union and [ProxyMessage] the
// union shared by the token ledger and the resource lock protocol. Go
// represents each union as a struct with one pointer field per
// variant; exactly one must be set to encode, and decoding sets
// exactly one.
//
// The answer variant is spelled "Anwser" on the wire by deployed
// peers. The encoder emits that spelling; the decoder accepts both it
// and "Answer".
//
// Decoding is strict about shape (one key, known variant, required
// fields present) and lenient about extra fields. Failures are
// [*DecodeError] values.
package protocol
