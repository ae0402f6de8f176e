// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/hex"
	"fmt"
)

// Proxy variant tags.
const (
	TagRequest = "Request"
	TagStatus  = "Status"
	TagAccount = "Account"
)

// ProxyMessage is the union spoken on the resource controller session:
// lock requests and statuses, and token ledger accounts. Exactly one
// field is set.
type ProxyMessage struct {
	Request *Request
	Status  *Status
	Account *Account
}

// Request asks for the resource to move to ToStatus. InitialRequest is
// the id of the event that triggered the exchange.
type Request struct {
	ToStatus       ResourceStatus `json:"to_status"`
	Reason         StatusReason   `json:"reason"`
	InitialRequest string         `json:"initial_request"`
	Payload        string         `json:"payload"`
}

// Status reports the resource state resulting from, or current at,
// the exchange identified by InitialRequest.
type Status struct {
	Status         ResourceStatus `json:"status"`
	Reason         StatusReason   `json:"reason"`
	InitialRequest string         `json:"initial_request"`
	Payload        string         `json:"payload"`
}

// Account is a user's remaining token balance.
type Account struct {
	User   string `json:"user"`
	Tokens uint32 `json:"tokens"`
}

// Variant returns the wire tag of the set variant, or "" if none is
// set.
func (message ProxyMessage) Variant() string {
	switch {
	case message.Request != nil:
		return TagRequest
	case message.Status != nil:
		return TagStatus
	case message.Account != nil:
		return TagAccount
	default:
		return ""
	}
}

// MarshalJSON encodes the set variant.
func (message ProxyMessage) MarshalJSON() ([]byte, error) {
	if count := countSet(message.Request != nil, message.Status != nil, message.Account != nil); count != 1 {
		return nil, fmt.Errorf("protocol: proxy message must have exactly one variant set, has %d", count)
	}
	switch {
	case message.Request != nil:
		return encodeVariant(TagRequest, message.Request)
	case message.Status != nil:
		return encodeVariant(TagStatus, message.Status)
	default:
		return encodeVariant(TagAccount, message.Account)
	}
}

// UnmarshalJSON decodes one variant. The receiver is reset first.
func (message *ProxyMessage) UnmarshalJSON(data []byte) error {
	*message = ProxyMessage{}

	tag, body, err := splitVariant("proxy", data)
	if err != nil {
		return err
	}

	switch tag {
	case TagRequest:
		var variant Request
		if err := decodeBody("proxy", tag, body, &variant, "to_status", "reason", "initial_request", "payload"); err != nil {
			return err
		}
		if err := checkEventID(tag, variant.InitialRequest); err != nil {
			return err
		}
		message.Request = &variant
	case TagStatus:
		var variant Status
		if err := decodeBody("proxy", tag, body, &variant, "status", "reason", "initial_request", "payload"); err != nil {
			return err
		}
		if err := checkEventID(tag, variant.InitialRequest); err != nil {
			return err
		}
		message.Status = &variant
	case TagAccount:
		var variant Account
		if err := decodeBody("proxy", tag, body, &variant, "user", "tokens"); err != nil {
			return err
		}
		message.Account = &variant
	default:
		return &DecodeError{Union: "proxy", Variant: tag, Reason: "unknown variant"}
	}
	return nil
}

// DecodeProxy parses relay event content as a ProxyMessage.
func DecodeProxy(content string) (ProxyMessage, error) {
	var message ProxyMessage
	if err := decodeContent("proxy", content, &message); err != nil {
		return ProxyMessage{}, err
	}
	return message, nil
}

// checkEventID requires a 32-byte hex event id.
func checkEventID(tag, id string) error {
	decoded, err := hex.DecodeString(id)
	if err != nil || len(decoded) != 32 {
		return &DecodeError{Union: "proxy", Variant: tag, Reason: "initial_request is not a 32-byte hex event id", Err: err}
	}
	return nil
}
