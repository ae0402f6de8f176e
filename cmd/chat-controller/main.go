// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// chat-controller answers chat messages published on a nostr relay
// with completions from an OpenAI-compatible backend, charging each
// user's token balance on the relay-side ledger.
//
// Configuration is read from --config, or the file named by
// CHAT_CONTROLLER_CONFIG, or built from defaults and flags alone. The
// flags below override the file. The process exits non-zero when the
// relay connection is lost for good; run it under a supervisor that
// restarts it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dephy-io/chat-controller/lib/config"
	"github.com/dephy-io/chat-controller/lib/controller"
	"github.com/dephy-io/chat-controller/lib/health"
	"github.com/dephy-io/chat-controller/lib/ledger"
	"github.com/dephy-io/chat-controller/lib/llm"
	"github.com/dephy-io/chat-controller/lib/lock"
	"github.com/dephy-io/chat-controller/lib/process"
	"github.com/dephy-io/chat-controller/lib/version"
	"github.com/dephy-io/chat-controller/relay"
)

const binaryName = "chat-controller"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type flags struct {
	configPath  string
	relayURL    string
	keyFile     string
	adminPubKey string
	apiKey      string
	logLevel    string
	socketPath  string
}

func run() error {
	var options flags
	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	flagSet.StringVar(&options.configPath, "config", "", "path to the config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&options.relayURL, "nostr-relay", "", "relay websocket URL (overrides relay.url)")
	flagSet.StringVar(&options.keyFile, "key-file", "", "secret key file, generated if missing (overrides identity.key_file)")
	flagSet.StringVar(&options.adminPubKey, "admin-pubkey", "", "operator public key, hex or npub (overrides identity.admin_pubkey)")
	flagSet.StringVar(&options.apiKey, "api-key", "", "completion API key (overrides completion.api_key)")
	flagSet.StringVar(&options.logLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")
	flagSet.StringVar(&options.socketPath, "status-socket", "", "status socket path (overrides status.socket_path)")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print(binaryName)
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return process.Usage("%v", err)
	}
	if args := flagSet.Args(); len(args) > 0 {
		return process.Usage("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(options)
	if err != nil {
		return err
	}

	logger := slog.New(cfg.Logging.NewHandler(os.Stderr))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	identity, err := relay.LoadOrGenerateKey(cfg.Identity.KeyFile)
	if err != nil {
		return err
	}

	logger.Info("starting",
		"version", version.Info(),
		"relay", cfg.Relay.URL,
		"public_key", identity.PublicKey,
		"admin", cfg.Identity.AdminPubKey,
		"session", cfg.Chat.Session,
		"model", cfg.Completion.Model,
		"ledger", cfg.Ledger.Enabled,
		"lock", cfg.Lock.Enabled,
	)

	transport, err := relay.DialNostr(ctx, relay.NostrConfig{
		URL:                cfg.Relay.URL,
		SecretKey:          identity.SecretKey,
		NotificationBuffer: cfg.Relay.NotificationBuffer,
		Logger:             logger.With("component", "relay"),
	})
	if err != nil {
		return err
	}
	defer transport.Close()

	chatController, err := controller.New(buildControllerConfig(cfg, transport, logger))
	if err != nil {
		return err
	}

	if err := chatController.Run(ctx); err != nil {
		return fmt.Errorf("controller stopped: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

// loadConfig reads the config file, applies flag overrides and
// validates the result.
func loadConfig(options flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case options.configPath != "":
		cfg, err = config.LoadFile(options.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if options.relayURL != "" {
		cfg.Relay.URL = options.relayURL
	}
	if options.keyFile != "" {
		cfg.Identity.KeyFile = options.keyFile
	}
	if options.adminPubKey != "" {
		cfg.Identity.AdminPubKey = options.adminPubKey
	}
	if options.apiKey != "" {
		cfg.Completion.APIKey = options.apiKey
	}
	if options.logLevel != "" {
		cfg.Logging.Level = options.logLevel
	}
	if options.socketPath != "" {
		cfg.Status.SocketPath = options.socketPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, process.Usage("invalid configuration:\n%v", err)
	}
	return cfg, nil
}

func buildControllerConfig(cfg *config.Config, transport relay.Transport, logger *slog.Logger) controller.Config {
	gateway := llm.NewGateway(llm.GatewayConfig{
		BaseURL:      cfg.Completion.BaseURL,
		APIKey:       cfg.Completion.APIKey,
		Timeout:      cfg.Completion.Timeout.Std(),
		Retries:      cfg.Completion.Retries,
		RetryBackoff: cfg.Completion.RetryBackoff.Std(),
		Logger:       logger.With("component", "llm"),
	})

	controllerConfig := controller.Config{
		Transport:        transport,
		Completer:        gateway,
		Session:          cfg.Chat.Session,
		Conversations:    cfg.Chat.Conversations,
		HistorySince:     cfg.Chat.HistorySince.Std(),
		DedupWindow:      cfg.Chat.DedupWindow,
		Model:            cfg.Completion.Model,
		MaxTokensCeiling: cfg.Completion.MaxTokensCeiling,
		Sampling:         cfg.Completion.Sampling,
		Health: health.Config{
			Schedule:    cfg.Relay.HealthCheck,
			MaxFailures: cfg.Relay.MaxHealthFailures,
		},
		SocketPath: cfg.Status.SocketPath,
		Logger:     logger,
	}

	if cfg.Ledger.Enabled {
		controllerConfig.Ledger = ledger.New(transport, ledger.Config{
			Session: cfg.Ledger.Session,
			Mention: cfg.Ledger.Mention,
			Logger:  logger.With("component", "ledger"),
		})
	}

	if cfg.Lock.Enabled {
		controllerConfig.Lock = &lock.ResponderConfig{
			Config: lock.Config{
				Session: cfg.Lock.Session,
				Mention: cfg.Lock.Mention,
			},
			AdminPubKey: cfg.Identity.AdminPubKey,
		}
	}
	return controllerConfig
}
