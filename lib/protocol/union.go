// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError reports content that is not a valid payload.
type DecodeError struct {
	// Union is the union being decoded ("chat" or "proxy").
	Union string

	// Variant is the variant tag, when one was found.
	Variant string

	Reason string
	Err    error
}

func (err *DecodeError) Error() string {
	message := "protocol: decoding " + err.Union + " message"
	if err.Variant != "" {
		message += " " + err.Variant
	}
	message += ": " + err.Reason
	if err.Err != nil {
		message += ": " + err.Err.Error()
	}
	return message
}

func (err *DecodeError) Unwrap() error { return err.Err }

// decodeContent unmarshals relay event content into a union. The JSON
// decoder rejects malformed input before the union's UnmarshalJSON
// runs, so those errors are wrapped here.
func decodeContent(union, content string, into json.Unmarshaler) error {
	err := json.Unmarshal([]byte(content), into)
	if err == nil {
		return nil
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return err
	}
	return &DecodeError{Union: union, Reason: "not a JSON object", Err: err}
}

// encodeVariant writes {"<tag>": value}.
func encodeVariant(tag string, value any) ([]byte, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("protocol: encoding %s: %w", tag, err)
	}
	name, _ := json.Marshal(tag)

	var buffer bytes.Buffer
	buffer.Grow(len(name) + len(body) + 3)
	buffer.WriteByte('{')
	buffer.Write(name)
	buffer.WriteByte(':')
	buffer.Write(body)
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// splitVariant parses {"<tag>": {...}} and returns the tag and the raw
// body.
func splitVariant(union string, data []byte) (string, json.RawMessage, error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return "", nil, &DecodeError{Union: union, Reason: "not a JSON object", Err: err}
	}
	if len(object) != 1 {
		return "", nil, &DecodeError{Union: union, Reason: fmt.Sprintf("want exactly one variant key, got %d", len(object))}
	}
	for tag, body := range object {
		return tag, body, nil
	}
	panic("unreachable")
}

// decodeBody unmarshals a variant body into target after checking
// that every required field is present.
func decodeBody(union, tag string, body json.RawMessage, target any, required ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return &DecodeError{Union: union, Variant: tag, Reason: "variant body is not an object", Err: err}
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return &DecodeError{Union: union, Variant: tag, Reason: "missing field " + name}
		}
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &DecodeError{Union: union, Variant: tag, Reason: "invalid field", Err: err}
	}
	return nil
}

// countSet returns how many of the variant pointers are non-nil.
func countSet(set ...bool) int {
	count := 0
	for _, ok := range set {
		if ok {
			count++
		}
	}
	return count
}
