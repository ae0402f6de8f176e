// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/dephy-io/chat-controller/lib/lock"
	"github.com/dephy-io/chat-controller/lib/process"
	"github.com/dephy-io/chat-controller/lib/protocol"
	"github.com/dephy-io/chat-controller/relay"
)

type requestFlags struct {
	relayURL       string
	keyFile        string
	session        string
	resource       string
	toStatus       string
	reason         string
	initialRequest string
	user           string
	recoverInfo    string
	timeout        time.Duration
}

func parseRequestFlags(args []string) (requestFlags, error) {
	var options requestFlags
	flagSet := pflag.NewFlagSet(binaryName+" request", pflag.ContinueOnError)
	flagSet.StringVar(&options.relayURL, "relay", "", "relay websocket URL (required)")
	flagSet.StringVar(&options.keyFile, "key-file", "data/lockctl.key", "secret key file, generated if missing")
	flagSet.StringVar(&options.session, "session", lock.DefaultSession, "lock session tag")
	flagSet.StringVar(&options.resource, "resource", "", "public key of the resource, hex or npub (required)")
	flagSet.StringVar(&options.toStatus, "to-status", "Working", "requested status: Available or Working")
	flagSet.StringVar(&options.reason, "reason", "UserRequest", "UserRequest, AdminRequest, UserBehaviour or Reset")
	flagSet.StringVar(&options.initialRequest, "initial-request", "", "64-hex exchange id (default: random)")
	flagSet.StringVar(&options.user, "user", "", "payload user")
	flagSet.StringVar(&options.recoverInfo, "recover-info", "", "payload recover_info")
	flagSet.DurationVar(&options.timeout, "timeout", 30*time.Second, "how long to wait for the Status")

	if err := flagSet.Parse(args); err != nil {
		return requestFlags{}, process.Usage("%v", err)
	}
	if flagSet.NArg() > 0 {
		return requestFlags{}, process.Usage("unexpected argument: %s", flagSet.Arg(0))
	}
	if options.relayURL == "" {
		return requestFlags{}, process.Usage("--relay is required")
	}
	resource, err := relay.ParsePublicKey(options.resource)
	if err != nil {
		return requestFlags{}, process.Usage("--resource: %v", err)
	}
	options.resource = resource
	return options, nil
}

// params converts the flags into lock request parameters. nonceSource
// seeds the default exchange id and the payload nonce.
func (options requestFlags) params(nonceSource uuid.UUID) (lock.RequestParams, error) {
	toStatus, err := protocol.ParseResourceStatus(options.toStatus)
	if err != nil {
		return lock.RequestParams{}, process.Usage("--to-status: %v", err)
	}
	reason, err := protocol.ParseStatusReason(options.reason)
	if err != nil {
		return lock.RequestParams{}, process.Usage("--reason: %v", err)
	}

	initialRequest := options.initialRequest
	if initialRequest == "" {
		digest := blake3.Sum256([]byte(nonceSource.String()))
		initialRequest = hex.EncodeToString(digest[:])
	}

	payload, err := protocol.LockPayload{
		User:        options.user,
		Nonce:       binary.BigEndian.Uint64(nonceSource[:8]),
		RecoverInfo: options.recoverInfo,
	}.Encode()
	if err != nil {
		return lock.RequestParams{}, err
	}

	return lock.RequestParams{
		ToStatus:       toStatus,
		Reason:         reason,
		InitialRequest: initialRequest,
		Payload:        payload,
	}, nil
}

func runRequest(args []string, stdout io.Writer) error {
	options, err := parseRequestFlags(args)
	if err != nil {
		return err
	}
	params, err := options.params(uuid.New())
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()

	identity, err := relay.LoadOrGenerateKey(options.keyFile)
	if err != nil {
		return err
	}
	transport, err := relay.DialNostr(ctx, relay.NostrConfig{
		URL:       options.relayURL,
		SecretKey: identity.SecretKey,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer transport.Close()

	client := lock.NewClient(transport, lock.Config{
		Session: options.session,
		Mention: options.resource,
		Logger:  logger,
	})
	status, err := client.Exchange(ctx, params)
	if err != nil {
		return fmt.Errorf("lock request %s: %w", params.InitialRequest, err)
	}
	return printStatus(stdout, status)
}

// printStatus writes status as indented JSON, with a decoded payload
// when it follows the LockPayload convention.
func printStatus(w io.Writer, status protocol.Status) error {
	output := struct {
		protocol.Status
		Decoded *protocol.LockPayload `json:"decoded_payload,omitempty"`
	}{Status: status}
	if payload, err := protocol.DecodeLockPayload(status.Payload); err == nil {
		output.Decoded = &payload
	}
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
