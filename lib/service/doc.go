// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service is the controller's local control socket: a CBOR
// request/response protocol on a Unix socket, one request per
// connection.
//
// A request is a CBOR map with an "action" field plus action-specific
// fields. The response is always a [Response] envelope:
//
//	{ok: true, data: <cbor>}     // success, data optional
//	{ok: false, error: "..."}    // failure
//
// The daemon registers its actions with [SocketServer.Handle] and runs
// [SocketServer.Serve]; operator tools use [Client.Call]. Access is
// controlled by the socket file's permissions.
package service
