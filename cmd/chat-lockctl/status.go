// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/dephy-io/chat-controller/lib/controller"
	"github.com/dephy-io/chat-controller/lib/conversation"
	"github.com/dephy-io/chat-controller/lib/process"
	"github.com/dephy-io/chat-controller/lib/service"
)

const callTimeout = 10 * time.Second

func socketFlags(name string, args []string) (*pflag.FlagSet, string, bool, error) {
	var socketPath string
	var contexts bool
	flagSet := pflag.NewFlagSet(binaryName+" "+name, pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", "", "controller status socket (required)")
	if name == "status" {
		flagSet.BoolVar(&contexts, "contexts", false, "include every conversation summary")
	}
	if err := flagSet.Parse(args); err != nil {
		return nil, "", false, process.Usage("%v", err)
	}
	if socketPath == "" {
		return nil, "", false, process.Usage("--socket is required")
	}
	return flagSet, socketPath, contexts, nil
}

func runStatus(args []string, stdout io.Writer) error {
	flagSet, socketPath, contexts, err := socketFlags("status", args)
	if err != nil {
		return err
	}
	if flagSet.NArg() > 0 {
		return process.Usage("unexpected argument: %s", flagSet.Arg(0))
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var status controller.Status
	fields := map[string]any{"contexts": contexts}
	if err := service.NewClient(socketPath).Call(ctx, "status", fields, &status); err != nil {
		return err
	}
	return printJSON(stdout, status)
}

func runConversation(args []string, stdout io.Writer) error {
	flagSet, socketPath, _, err := socketFlags("conversation", args)
	if err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return process.Usage("usage: %s conversation --socket <path> <id>", binaryName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var summary conversation.Summary
	fields := map[string]any{"id": flagSet.Arg(0)}
	if err := service.NewClient(socketPath).Call(ctx, "conversation", fields, &summary); err != nil {
		return err
	}
	return printJSON(stdout, summary)
}

func printJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
