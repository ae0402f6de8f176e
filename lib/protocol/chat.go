// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Chat variant tags.
const (
	TagNewChat = "NewChat"
	TagAsk     = "Ask"

	// TagAnswer is the spelling deployed peers use for the answer
	// variant. TagAnswerCorrected is accepted on decode.
	TagAnswer          = "Anwser"
	TagAnswerCorrected = "Answer"
)

// FinishReasonStop is the finish_reason of a completion that ended
// naturally. Only such answers become conversation history.
const FinishReasonStop = "stop"

// ChatMessage is the conversation union. Exactly one field is set.
type ChatMessage struct {
	NewChat *NewChat
	Ask     *Ask
	Answer  *Answer
}

// NewChat announces a conversation id for the controller to track.
type NewChat struct {
	UUID string `json:"uuid"`
}

// Ask is one user turn.
type Ask struct {
	Name    string  `json:"name"`
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// Answer is one model turn. Content is nil when the backend returned
// no message content.
type Answer struct {
	FinishReason string  `json:"finish_reason"`
	Role         string  `json:"role"`
	Content      *string `json:"content"`
}

// Variant returns the wire tag of the set variant, or "" if none is
// set.
func (message ChatMessage) Variant() string {
	switch {
	case message.NewChat != nil:
		return TagNewChat
	case message.Ask != nil:
		return TagAsk
	case message.Answer != nil:
		return TagAnswer
	default:
		return ""
	}
}

// MarshalJSON encodes the set variant.
func (message ChatMessage) MarshalJSON() ([]byte, error) {
	if count := countSet(message.NewChat != nil, message.Ask != nil, message.Answer != nil); count != 1 {
		return nil, fmt.Errorf("protocol: chat message must have exactly one variant set, has %d", count)
	}
	switch {
	case message.NewChat != nil:
		return encodeVariant(TagNewChat, message.NewChat)
	case message.Ask != nil:
		return encodeVariant(TagAsk, message.Ask)
	default:
		return encodeVariant(TagAnswer, message.Answer)
	}
}

// UnmarshalJSON decodes one variant. The receiver is reset first.
func (message *ChatMessage) UnmarshalJSON(data []byte) error {
	*message = ChatMessage{}

	tag, body, err := splitVariant("chat", data)
	if err != nil {
		return err
	}

	switch tag {
	case TagNewChat:
		var variant NewChat
		if err := decodeBody("chat", tag, body, &variant, "uuid"); err != nil {
			return err
		}
		message.NewChat = &variant
	case TagAsk:
		var variant Ask
		if err := decodeBody("chat", tag, body, &variant, "name", "role"); err != nil {
			return err
		}
		message.Ask = &variant
	case TagAnswer, TagAnswerCorrected:
		var variant Answer
		if err := decodeBody("chat", tag, body, &variant, "finish_reason", "role"); err != nil {
			return err
		}
		message.Answer = &variant
	default:
		return &DecodeError{Union: "chat", Variant: tag, Reason: "unknown variant"}
	}
	return nil
}

// DecodeChat parses relay event content as a ChatMessage.
func DecodeChat(content string) (ChatMessage, error) {
	var message ChatMessage
	if err := decodeContent("chat", content, &message); err != nil {
		return ChatMessage{}, err
	}
	return message, nil
}
