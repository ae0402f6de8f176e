// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dephy-io/chat-controller/lib/clock"
)

// DefaultBaseURL is the OpenAI-compatible endpoint the controller was
// deployed against.
const DefaultBaseURL = "https://api.ppinfra.com/v3/openai"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 * 1024

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// BaseURL is the API root; "/chat/completions" is appended.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each attempt when HTTPClient is nil.
	Timeout time.Duration

	// Retries is the number of additional attempts after a retryable
	// failure. Zero disables retrying.
	Retries int

	// RetryBackoff is the delay before the first retry; it doubles on
	// each further retry.
	RetryBackoff time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Gateway sends completion requests to one backend.
type Gateway struct {
	httpClient   *http.Client
	endpoint     string
	apiKey       string
	retries      int
	retryBackoff time.Duration
	clock        clock.Clock
	logger       *slog.Logger
}

// NewGateway creates a gateway from config.
func NewGateway(config GatewayConfig) *Gateway {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	gatewayClock := config.Clock
	if gatewayClock == nil {
		gatewayClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		httpClient:   httpClient,
		endpoint:     strings.TrimRight(baseURL, "/") + "/chat/completions",
		apiKey:       config.APIKey,
		retries:      max(config.Retries, 0),
		retryBackoff: config.RetryBackoff,
		clock:        gatewayClock,
		logger:       logger,
	}
}

// Complete sends request and returns the backend's completion. All
// failures are *GatewayError.
func (gateway *Gateway) Complete(ctx context.Context, request ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, &GatewayError{Kind: FailureTransport, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	delay := gateway.retryBackoff
	for attempt := 1; ; attempt++ {
		response, err := gateway.send(ctx, body)
		if err == nil {
			return response, nil
		}

		var gatewayErr *GatewayError
		errors.As(err, &gatewayErr)
		gatewayErr.Attempts = attempt

		if attempt > gateway.retries || !gatewayErr.Retryable() || ctx.Err() != nil {
			return nil, gatewayErr
		}

		gateway.logger.Warn("completion attempt failed, retrying",
			"attempt", attempt,
			"retries", gateway.retries,
			"delay", delay,
			"error", gatewayErr,
		)
		select {
		case <-gateway.clock.After(delay):
		case <-ctx.Done():
			return nil, &GatewayError{Kind: FailureTransport, Attempts: attempt, Err: ctx.Err()}
		}
		delay *= 2
	}
}

// send makes one attempt.
func (gateway *Gateway) send(ctx context.Context, body []byte) (*ChatCompletionResponse, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, gateway.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Kind: FailureTransport, Err: fmt.Errorf("creating request: %w", err)}
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+gateway.apiKey)

	httpResponse, err := gateway.httpClient.Do(httpRequest)
	if err != nil {
		return nil, &GatewayError{Kind: FailureTransport, Err: err}
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(httpResponse.Body, maxErrorBody))
		return nil, &GatewayError{
			Kind:       FailureStatus,
			StatusCode: httpResponse.StatusCode,
			Body:       string(errorBody),
		}
	}

	var response ChatCompletionResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&response); err != nil {
		return nil, &GatewayError{Kind: FailureDecode, Err: err}
	}
	return &response, nil
}
