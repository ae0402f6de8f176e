// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lock speaks the advisory resource lock protocol: parties
// publish Request messages asking a shared resource to become Working
// or Available, and whoever owns the resource answers with a Status
// message carrying the same initial_request id.
//
// [Client] is the requesting side. [Responder] is the owning side: it
// tracks the last status it observed on the session (its own answers
// and other parties' Status broadcasts) and answers each live Request
// from that view.
//
// Nothing arbitrates between responders. Two responders that have both
// observed Available grant the same Working request, and a LockFailed
// status only reports that the resource was already held. The lock is
// a coordination hint, not mutual exclusion.
package lock
