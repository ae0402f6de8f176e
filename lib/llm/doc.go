// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm is the completion gateway: a client for OpenAI-compatible
// chat completion backends.
//
// [Gateway.Complete] POSTs a [ChatCompletionRequest] to
// {base_url}/chat/completions with bearer authentication and returns
// the decoded [ChatCompletionResponse]. The request is forwarded as
// given. In particular max_tokens is not clamped here; budgeting is the
// caller's decision. Optional sampling parameters are pointers and are
// omitted from the wire request when nil.
//
// Every failure is a [*GatewayError] whose Kind says whether the
// request never got a response, got a non-success status (the body is
// kept as text), or got a body that would not decode. Retries are off
// unless configured; when enabled, transport failures and 429/5xx
// responses are retried with exponential backoff on the injected
// clock.
package llm
