// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger reads and writes per-user token balances kept as
// Account events on a shared relay session.
//
// The ledger has no server. A balance is whatever the most recent
// Account event for the user says: [Client.FetchBalance] replays the
// session's stored events and keeps the last value seen, and
// [Client.UpdateBalance] appends a new one. Two controllers that fetch
// the same balance, spend from it, and write back will lose one of the
// updates. Callers that need stronger guarantees must serialise access
// themselves, for example through the lock protocol.
package ledger
