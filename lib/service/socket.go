// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dephy-io/chat-controller/lib/codec"
)

const (
	// connectionTimeout bounds reading the request and writing the
	// reply on one connection.
	connectionTimeout = 10 * time.Second

	// maxRequestSize bounds one request. Status queries carry a
	// handful of short fields.
	maxRequestSize = 16 * 1024
)

// Request is one decoded request. Action selects the handler; the
// remaining fields are read with Decode.
type Request struct {
	Action string
	raw    codec.RawMessage
}

// Decode unmarshals the request's fields into into. Fields the target
// does not name are ignored, "action" included.
func (request Request) Decode(into any) error {
	if err := codec.Unmarshal(request.raw, into); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// ActionFunc answers one action. A nil result produces {ok: true}
// without data.
type ActionFunc func(ctx context.Context, request Request) (any, error)

// Response is the envelope of every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer answers status queries on a Unix socket, one request
// per connection.
type SocketServer struct {
	socketPath string
	actions    map[string]ActionFunc
	logger     *slog.Logger

	connections sync.WaitGroup
}

// NewSocketServer creates a server for socketPath. Register actions
// with Handle before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		actions:    make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers handler for action. It panics on a duplicate
// registration.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.actions[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.actions[action] = handler
}

// Serve accepts connections until ctx is cancelled, waits for the
// open ones, and returns nil. The socket is created mode 0600 over any
// stale file and removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer os.Remove(s.socketPath)
	defer listener.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("restricting socket %s: %w", s.socketPath, err)
	}
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("status socket listening", "path", s.socketPath, "actions", len(s.actions))
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			s.serveConnection(ctx, conn)
		}()
	}
	s.connections.Wait()
	return nil
}

func (s *SocketServer) serveConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connectionTimeout))

	var raw codec.RawMessage
	err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw)
	if errors.Is(err, io.EOF) {
		// Connected and closed without a request.
		return
	}

	var response Response
	if err != nil {
		response = failure(fmt.Sprintf("invalid request: %v", err))
	} else {
		response = s.dispatch(ctx, raw)
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}

// dispatch runs the handler named by raw's "action" field and builds
// the reply.
func (s *SocketServer) dispatch(ctx context.Context, raw codec.RawMessage) Response {
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		return failure(fmt.Sprintf("invalid request: %v", err))
	}
	if header.Action == "" {
		return failure("missing required field: action")
	}
	handler, exists := s.actions[header.Action]
	if !exists {
		return failure(fmt.Sprintf("unknown action %q", header.Action))
	}

	result, err := handler(ctx, Request{Action: header.Action, raw: raw})
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		return failure(err.Error())
	}
	if result == nil {
		return Response{OK: true}
	}
	data, err := codec.Marshal(result)
	if err != nil {
		return failure(fmt.Sprintf("internal: encoding %s reply: %v", header.Action, err))
	}
	return Response{OK: true, Data: data}
}

func failure(message string) Response {
	return Response{OK: false, Error: message}
}
