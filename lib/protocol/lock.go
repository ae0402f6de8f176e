// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// ResourceStatus is the state of the shared resource.
type ResourceStatus uint8

const (
	StatusAvailable ResourceStatus = 1
	StatusWorking   ResourceStatus = 2
)

var resourceStatusNames = map[ResourceStatus]string{
	StatusAvailable: "Available",
	StatusWorking:   "Working",
}

func (status ResourceStatus) String() string {
	if name, ok := resourceStatusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("ResourceStatus(%d)", uint8(status))
}

// MarshalJSON encodes the status by name.
func (status ResourceStatus) MarshalJSON() ([]byte, error) {
	name, ok := resourceStatusNames[status]
	if !ok {
		return nil, fmt.Errorf("protocol: invalid resource status %d", uint8(status))
	}
	return json.Marshal(name)
}

// UnmarshalJSON accepts the name or the numeric discriminant.
func (status *ResourceStatus) UnmarshalJSON(data []byte) error {
	value, err := decodeEnum(data, resourceStatusNames)
	if err != nil {
		return fmt.Errorf("resource status: %w", err)
	}
	*status = value
	return nil
}

// StatusReason explains a Request or Status. ReasonLockFailed marks a
// Working request answered while the resource was already Working; it
// is informational only.
type StatusReason uint8

const (
	ReasonUserRequest   StatusReason = 1
	ReasonAdminRequest  StatusReason = 2
	ReasonUserBehaviour StatusReason = 3
	ReasonReset         StatusReason = 4
	ReasonLockFailed    StatusReason = 5
)

var statusReasonNames = map[StatusReason]string{
	ReasonUserRequest:   "UserRequest",
	ReasonAdminRequest:  "AdminRequest",
	ReasonUserBehaviour: "UserBehaviour",
	ReasonReset:         "Reset",
	ReasonLockFailed:    "LockFailed",
}

func (reason StatusReason) String() string {
	if name, ok := statusReasonNames[reason]; ok {
		return name
	}
	return fmt.Sprintf("StatusReason(%d)", uint8(reason))
}

// MarshalJSON encodes the reason by name.
func (reason StatusReason) MarshalJSON() ([]byte, error) {
	name, ok := statusReasonNames[reason]
	if !ok {
		return nil, fmt.Errorf("protocol: invalid status reason %d", uint8(reason))
	}
	return json.Marshal(name)
}

// UnmarshalJSON accepts the name or the numeric discriminant.
func (reason *StatusReason) UnmarshalJSON(data []byte) error {
	value, err := decodeEnum(data, statusReasonNames)
	if err != nil {
		return fmt.Errorf("status reason: %w", err)
	}
	*reason = value
	return nil
}

// ParseStatusReason maps a name to its reason.
func ParseStatusReason(name string) (StatusReason, error) {
	for reason, candidate := range statusReasonNames {
		if candidate == name {
			return reason, nil
		}
	}
	return 0, fmt.Errorf("unknown status reason %q", name)
}

// ParseResourceStatus maps a name to its status.
func ParseResourceStatus(name string) (ResourceStatus, error) {
	for status, candidate := range resourceStatusNames {
		if candidate == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown resource status %q", name)
}

func decodeEnum[E ~uint8](data []byte, names map[E]string) (E, error) {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		for value, candidate := range names {
			if candidate == name {
				return value, nil
			}
		}
		return 0, fmt.Errorf("unknown name %q", name)
	}

	var number uint8
	if err := json.Unmarshal(data, &number); err != nil {
		return 0, fmt.Errorf("want a name or a number, got %s", data)
	}
	if _, ok := names[E(number)]; !ok {
		return 0, fmt.Errorf("unknown discriminant %d", number)
	}
	return E(number), nil
}

// LockPayload is the conventional content of Request and Status
// payloads: the user on whose behalf the resource is taken, a nonce
// distinguishing attempts, and opaque data needed to recover the
// session.
type LockPayload struct {
	User        string `json:"user"`
	Nonce       uint64 `json:"nonce"`
	RecoverInfo string `json:"recover_info"`
}

// Encode returns the payload as the JSON string carried in a Request
// or Status.
func (payload LockPayload) Encode() (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("protocol: encoding lock payload: %w", err)
	}
	return string(data), nil
}

// DecodeLockPayload parses a Request or Status payload.
func DecodeLockPayload(payload string) (LockPayload, error) {
	var decoded LockPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return LockPayload{}, fmt.Errorf("protocol: decoding lock payload: %w", err)
	}
	return decoded, nil
}
