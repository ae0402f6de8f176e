// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type socketRequest struct {
	Action       string `cbor:"action"`
	Conversation string `cbor:"conversation,omitempty"`
}

type digestEntry struct {
	Role    string  `json:"role"`
	Content *string `json:"content,omitempty"`
}

func TestRoundtrip(t *testing.T) {
	original := socketRequest{Action: "conversation", Conversation: "c0ffee"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded socketRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip = %+v, want %+v", decoded, original)
	}
}

func TestDeterministic(t *testing.T) {
	first, err := Marshal(map[string]any{"role": "user", "content": "hi", "name": "alice"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(map[string]any{"name": "alice", "content": "hi", "role": "user"})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("map encoding not deterministic: %x vs %x", first, again)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	content := "hi"
	data, err := Marshal(digestEntry{Role: "user", Content: &content})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["role"] != "user" || decoded["content"] != "hi" {
		t.Errorf("decoded = %v, want json tag names", decoded)
	}

	withoutContent, err := Marshal(digestEntry{Role: "user"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded = nil
	if err := Unmarshal(withoutContent, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded["content"]; ok {
		t.Error("omitempty nil content was encoded")
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "status", "future": 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded socketRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Action != "status" {
		t.Errorf("Action = %q, want status", decoded.Action)
	}
}

func TestStream(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, action := range []string{"status", "conversation"} {
		if err := encoder.Encode(socketRequest{Action: action}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for _, want := range []string{"status", "conversation"} {
		var decoded socketRequest
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.Action != want {
			t.Errorf("Action = %q, want %q", decoded.Action, want)
		}
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	type envelope struct {
		OK   bool       `cbor:"ok"`
		Data RawMessage `cbor:"data,omitempty"`
	}
	inner, err := Marshal(map[string]int{"turns": 3})
	if err != nil {
		t.Fatalf("Marshal inner: %v", err)
	}
	data, err := Marshal(envelope{OK: true, Data: inner})
	if err != nil {
		t.Fatalf("Marshal envelope: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var payload map[string]int
	if err := Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("Unmarshal data: %v", err)
	}
	if payload["turns"] != 3 {
		t.Errorf("turns = %d, want 3", payload["turns"])
	}
}
