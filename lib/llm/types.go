// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import "encoding/json"

// Message is one prompt entry.
type Message struct {
	Role    string  `json:"role"`
	Content *string `json:"content,omitempty"`
	Name    *string `json:"name,omitempty"`
}

// ResponseFormat selects plain text, a JSON object, or output
// conforming to a JSON schema.
type ResponseFormat struct {
	// Type is "text", "json_object" or "json_schema".
	Type string `json:"type"`

	// JSONSchema is required when Type is "json_schema".
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ChatCompletionRequest is the backend request body.
type ChatCompletionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens uint32    `json:"max_tokens"`

	Sampling
}

// Sampling holds the optional generation parameters, passed through
// unmodified when set.
type Sampling struct {
	Temperature       *float32         `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP              *float32         `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	TopK              *uint32          `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	MinP              *float32         `json:"min_p,omitempty" yaml:"min_p,omitempty"`
	N                 *uint32          `json:"n,omitempty" yaml:"n,omitempty"`
	Stream            *bool            `json:"stream,omitempty" yaml:"-"`
	Stop              []string         `json:"stop,omitempty" yaml:"stop,omitempty"`
	PresencePenalty   *float32         `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
	FrequencyPenalty  *float32         `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	RepetitionPenalty *float32         `json:"repetition_penalty,omitempty" yaml:"repetition_penalty,omitempty"`
	LogitBias         map[string]int32 `json:"logit_bias,omitempty" yaml:"logit_bias,omitempty"`
	Logprobs          *bool            `json:"logprobs,omitempty" yaml:"logprobs,omitempty"`
	TopLogprobs       *uint32          `json:"top_logprobs,omitempty" yaml:"top_logprobs,omitempty"`
	ResponseFormat    *ResponseFormat  `json:"response_format,omitempty" yaml:"-"`
	Seed              *uint32          `json:"seed,omitempty" yaml:"seed,omitempty"`
	User              *string          `json:"user,omitempty" yaml:"user,omitempty"`
}

// ChatCompletionResponse is the backend response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created uint64   `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one generated alternative.
type Choice struct {
	Index        uint32        `json:"index"`
	Message      AnswerMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// AnswerMessage is the generated message of a choice.
type AnswerMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// TotalTokens returns usage.total_tokens, or zero when the backend
// reported no usage.
func (response *ChatCompletionResponse) TotalTokens() uint32 {
	if response.Usage == nil {
		return 0
	}
	return response.Usage.TotalTokens
}
