// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the controller's CBOR configuration.
//
// Relay payloads are JSON because peers on the network expect JSON.
// Everything local to one machine uses CBOR: the status socket
// protocol between the daemon and chat-lockctl, and the canonical
// entry encoding hashed into conversation digests. Encoding is
// deterministic, so the same value always produces the same bytes and
// therefore the same digest on every instance.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types carry `json` tags when they also appear in JSON output (the
// CBOR library falls back to them), and `cbor` tags when they are only
// ever CBOR. A field never has both.
package codec
