// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"fmt"
	"net/http"
)

// FailureKind classifies a GatewayError.
type FailureKind int

const (
	// FailureTransport: the request could not be sent or no response
	// arrived.
	FailureTransport FailureKind = iota + 1

	// FailureStatus: the backend answered with a non-success status.
	FailureStatus

	// FailureDecode: the response body was not a valid completion.
	FailureDecode
)

func (kind FailureKind) String() string {
	switch kind {
	case FailureTransport:
		return "transport"
	case FailureStatus:
		return "status"
	case FailureDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// GatewayError is the single error type returned by Gateway.Complete.
type GatewayError struct {
	Kind FailureKind

	// StatusCode and Body are set for FailureStatus.
	StatusCode int
	Body       string

	// Attempts is how many requests were made.
	Attempts int

	Err error
}

func (err *GatewayError) Error() string {
	switch err.Kind {
	case FailureStatus:
		return fmt.Sprintf("llm: request failed with status %d: %s", err.StatusCode, err.Body)
	case FailureDecode:
		return fmt.Sprintf("llm: decoding response: %v", err.Err)
	default:
		return fmt.Sprintf("llm: sending request: %v", err.Err)
	}
}

func (err *GatewayError) Unwrap() error { return err.Err }

// Retryable reports whether another attempt could succeed: transport
// failures, rate limiting, and server errors.
func (err *GatewayError) Retryable() bool {
	switch err.Kind {
	case FailureTransport:
		return true
	case FailureStatus:
		return err.StatusCode == http.StatusTooManyRequests || err.StatusCode >= 500
	default:
		return false
	}
}
