// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

const (
	testEventID = "5c83da77af1dec6d7289834998ad7aafbd9e2191396d75ec3cc27f5a77226f36"
	testUser    = "d041ea9854f2117b82452457c4e6d6593a96524027cd4032d2f40046deb78d93"
)

func stringPointer(value string) *string { return &value }

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func chatFixtures() map[string]ChatMessage {
	return map[string]ChatMessage{
		"chat_new_chat": {NewChat: &NewChat{UUID: "664385e1a27240d7bbcd2ca83212445e"}},
		"chat_ask":      {Ask: &Ask{Name: "alice", Role: "user", Content: stringPointer("What is a relay?")}},
		"chat_ask_without_content": {Ask: &Ask{Name: "alice", Role: "user"}},
		"chat_answer": {Answer: &Answer{
			FinishReason: FinishReasonStop,
			Role:         "assistant",
			Content:      stringPointer("A relay stores and forwards events."),
		}},
	}
}

func proxyFixtures() map[string]ProxyMessage {
	payload, _ := LockPayload{User: "alice", Nonce: 7}.Encode()
	return map[string]ProxyMessage{
		"proxy_account": {Account: &Account{User: testUser, Tokens: 5000}},
		"proxy_request": {Request: &Request{
			ToStatus:       StatusWorking,
			Reason:         ReasonUserRequest,
			InitialRequest: testEventID,
			Payload:        payload,
		}},
		"proxy_status": {Status: &Status{
			Status:         StatusWorking,
			Reason:         ReasonLockFailed,
			InitialRequest: testEventID,
		}},
	}
}

func TestChatWireFormat(t *testing.T) {
	golden := newGolden(t)
	for name, message := range chatFixtures() {
		t.Run(name, func(t *testing.T) {
			encoded, err := json.Marshal(message)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			golden.Assert(t, name, encoded)
		})
	}
}

func TestProxyWireFormat(t *testing.T) {
	golden := newGolden(t)
	for name, message := range proxyFixtures() {
		t.Run(name, func(t *testing.T) {
			encoded, err := json.Marshal(message)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			golden.Assert(t, name, encoded)
		})
	}
}

func TestChatRoundTrip(t *testing.T) {
	for name, message := range chatFixtures() {
		t.Run(name, func(t *testing.T) {
			encoded, err := json.Marshal(message)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			decoded, err := DecodeChat(string(encoded))
			if err != nil {
				t.Fatalf("DecodeChat(%s): %v", encoded, err)
			}
			if !reflect.DeepEqual(decoded, message) {
				t.Errorf("round trip = %+v, want %+v", decoded, message)
			}
		})
	}
}

func TestProxyRoundTrip(t *testing.T) {
	for name, message := range proxyFixtures() {
		t.Run(name, func(t *testing.T) {
			encoded, err := json.Marshal(message)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			decoded, err := DecodeProxy(string(encoded))
			if err != nil {
				t.Fatalf("DecodeProxy(%s): %v", encoded, err)
			}
			if !reflect.DeepEqual(decoded, message) {
				t.Errorf("round trip = %+v, want %+v", decoded, message)
			}
		})
	}
}

func TestDecodeAnswerSpellings(t *testing.T) {
	for _, tag := range []string{"Anwser", "Answer"} {
		message, err := DecodeChat(`{"` + tag + `":{"finish_reason":"length","role":"assistant","content":null}}`)
		if err != nil {
			t.Fatalf("DecodeChat(%s): %v", tag, err)
		}
		if message.Answer == nil || message.Answer.FinishReason != "length" || message.Answer.Content != nil {
			t.Errorf("%s decoded to %+v", tag, message)
		}
		if message.Variant() != TagAnswer {
			t.Errorf("Variant() = %q, want %q", message.Variant(), TagAnswer)
		}
	}
}

func TestDecodeAskWithoutContentField(t *testing.T) {
	message, err := DecodeChat(`{"Ask":{"name":"bob","role":"user"}}`)
	if err != nil {
		t.Fatalf("DecodeChat: %v", err)
	}
	if message.Ask == nil || message.Ask.Content != nil {
		t.Errorf("decoded %+v, want Ask with nil content", message)
	}
}

func TestDecodeChatRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"not json", `hello`, "not a JSON object"},
		{"truncated", `{"Ask":`, "not a JSON object"},
		{"empty content", ``, "not a JSON object"},
		{"array", `["Ask"]`, "not a JSON object"},
		{"empty object", `{}`, "exactly one variant"},
		{"two variants", `{"Ask":{"name":"a","role":"user"},"NewChat":{"uuid":"x"}}`, "exactly one variant"},
		{"unknown variant", `{"Shout":{}}`, "unknown variant"},
		{"missing role", `{"Ask":{"name":"a","content":"x"}}`, "missing field role"},
		{"missing finish_reason", `{"Anwser":{"role":"assistant","content":"x"}}`, "missing field finish_reason"},
		{"wrong type", `{"NewChat":{"uuid":5}}`, "invalid field"},
		{"body not object", `{"NewChat":"x"}`, "not an object"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DecodeChat(test.content)
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("DecodeChat(%s) = %v, want *DecodeError", test.content, err)
			}
			if !strings.Contains(err.Error(), test.reason) {
				t.Errorf("error %q does not mention %q", err, test.reason)
			}
		})
	}
}

func TestDecodeProxyRejectsMalformedContent(t *testing.T) {
	for _, content := range []string{``, `not json`, `{"Status":{`} {
		_, err := DecodeProxy(content)
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("DecodeProxy(%q) = %v, want *DecodeError", content, err)
		}
		if decodeErr.Union != "proxy" || decodeErr.Err == nil {
			t.Errorf("DecodeProxy(%q) = %+v, want a proxy error wrapping the cause", content, decodeErr)
		}
	}
}

func TestDecodeProxyEnums(t *testing.T) {
	numeric := `{"Status":{"status":2,"reason":5,"initial_request":"` + testEventID + `","payload":""}}`
	message, err := DecodeProxy(numeric)
	if err != nil {
		t.Fatalf("DecodeProxy(numeric): %v", err)
	}
	if message.Status.Status != StatusWorking || message.Status.Reason != ReasonLockFailed {
		t.Errorf("numeric enums decoded to %+v", message.Status)
	}

	for _, content := range []string{
		`{"Status":{"status":"Busy","reason":"Reset","initial_request":"` + testEventID + `","payload":""}}`,
		`{"Status":{"status":3,"reason":"Reset","initial_request":"` + testEventID + `","payload":""}}`,
		`{"Request":{"to_status":"Working","reason":"Whim","initial_request":"` + testEventID + `","payload":""}}`,
		`{"Request":{"to_status":"Working","reason":"Reset","initial_request":"abc","payload":""}}`,
		`{"Account":{"user":"alice","tokens":-1}}`,
		`{"Account":{"user":"alice"}}`,
	} {
		if _, err := DecodeProxy(content); err == nil {
			t.Errorf("DecodeProxy(%s) succeeded, want error", content)
		}
	}
}

func TestMarshalRequiresOneVariant(t *testing.T) {
	if _, err := json.Marshal(ChatMessage{}); err == nil {
		t.Error("marshaling an empty ChatMessage succeeded")
	}
	both := ProxyMessage{Account: &Account{}, Status: &Status{}}
	if _, err := json.Marshal(both); err == nil {
		t.Error("marshaling a ProxyMessage with two variants succeeded")
	}
	if _, err := json.Marshal(ProxyMessage{Status: &Status{Status: 9, Reason: ReasonReset}}); err == nil {
		t.Error("marshaling an out-of-range status succeeded")
	}
}

func TestLockPayloadRoundTrip(t *testing.T) {
	payload := LockPayload{User: testUser, Nonce: 1 << 40, RecoverInfo: "session-42"}
	encoded, err := payload.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeLockPayload(encoded)
	if err != nil {
		t.Fatalf("DecodeLockPayload: %v", err)
	}
	if decoded != payload {
		t.Errorf("round trip = %+v, want %+v", decoded, payload)
	}
	if _, err := DecodeLockPayload("not json"); err == nil {
		t.Error("DecodeLockPayload accepted garbage")
	}
}

func TestParseNames(t *testing.T) {
	for reason, name := range statusReasonNames {
		parsed, err := ParseStatusReason(name)
		if err != nil || parsed != reason {
			t.Errorf("ParseStatusReason(%q) = (%v, %v), want %v", name, parsed, err, reason)
		}
	}
	if _, err := ParseResourceStatus("Idle"); err == nil {
		t.Error("ParseResourceStatus accepted an unknown name")
	}
	if got := StatusReason(9).String(); got != "StatusReason(9)" {
		t.Errorf("String() = %q", got)
	}
}

func TestNewDraft(t *testing.T) {
	draft, err := NewDraft("chat-controller", "conversation", ChatMessage{NewChat: &NewChat{UUID: "x"}})
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if draft.Kind != EventKind {
		t.Errorf("Kind = %d, want %d", draft.Kind, EventKind)
	}
	if session, _ := draft.Tags.First("s"); session != "chat-controller" {
		t.Errorf("session tag = %q", session)
	}
	if mention, _ := draft.Tags.First("p"); mention != "conversation" {
		t.Errorf("mention tag = %q", mention)
	}
	if draft.Content != `{"NewChat":{"uuid":"x"}}` {
		t.Errorf("Content = %s", draft.Content)
	}

	if _, err := NewDraft("", "conversation", ChatMessage{NewChat: &NewChat{}}); err == nil {
		t.Error("NewDraft accepted an empty session")
	}
}
