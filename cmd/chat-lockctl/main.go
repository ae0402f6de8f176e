// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// chat-lockctl is the operator tool for the resource lock protocol and
// the controller's status socket.
//
//	chat-lockctl request --relay wss://relay.example.org --resource <pubkey> --to-status Working
//	chat-lockctl status --socket /run/chat-controller/status.sock
//	chat-lockctl conversation --socket /run/chat-controller/status.sock <id>
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dephy-io/chat-controller/lib/process"
	"github.com/dephy-io/chat-controller/lib/version"
)

const binaryName = "chat-lockctl"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return process.Usage("missing subcommand")
	}

	switch args[0] {
	case "--version", "version":
		version.Fprint(stdout, binaryName)
		return nil
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	case "request":
		return runRequest(args[1:], stdout)
	case "status":
		return runStatus(args[1:], stdout)
	case "conversation":
		return runConversation(args[1:], stdout)
	default:
		printUsage(os.Stderr)
		return process.Usage("unknown subcommand %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: %s <subcommand> [flags]

Subcommands:
  request       publish a lock Request and wait for the resource's Status
  status        query a controller's status socket
  conversation  show one conversation context from a status socket
  version       print version information

Run "%s <subcommand> --help" for the flags of a subcommand.
`, binaryName, binaryName)
}
