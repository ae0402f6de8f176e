// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr/nip19"
)

const (
	testAdmin   = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"
	testLedger  = "d041ea9854f2117b82452457c4e6d6593a96524027cd4032d2f40046deb78d93"
	testRelay   = "wss://relay.example.org"
	testAPIKey  = "sk-test"
	minimalYAML = `
relay:
  url: wss://relay.example.org
identity:
  admin_pubkey: 7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e
completion:
  api_key: sk-test
`
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func validConfig() *Config {
	cfg := Default()
	cfg.Relay.URL = testRelay
	cfg.Identity.AdminPubKey = testAdmin
	cfg.Completion.APIKey = testAPIKey
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Chat.Session != "chat-controller" {
		t.Errorf("expected chat.session=chat-controller, got %s", cfg.Chat.Session)
	}
	if cfg.Completion.Model != "deepseek/deepseek-r1/community" {
		t.Errorf("expected default model, got %s", cfg.Completion.Model)
	}
	if cfg.Completion.MaxTokensCeiling != 30000 {
		t.Errorf("expected max_tokens_ceiling=30000, got %d", cfg.Completion.MaxTokensCeiling)
	}
	if cfg.Completion.Timeout.Std() != 120*time.Second {
		t.Errorf("expected timeout=120s, got %s", cfg.Completion.Timeout.Std())
	}
	if !cfg.Ledger.Enabled {
		t.Error("expected ledger enabled by default")
	}
	if cfg.Ledger.Mention != testLedger {
		t.Errorf("expected default ledger mention, got %s", cfg.Ledger.Mention)
	}
	if cfg.Lock.Enabled {
		t.Error("expected lock responder disabled by default")
	}
	if cfg.Relay.NotificationBuffer != 4096 {
		t.Errorf("expected notification_buffer=4096, got %d", cfg.Relay.NotificationBuffer)
	}
	if cfg.Identity.KeyFile != filepath.Join("data", "key") {
		t.Errorf("expected key_file=data/key, got %s", cfg.Identity.KeyFile)
	}
}

func TestLoad_RequiresEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CHAT_CONTROLLER_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "CHAT_CONTROLLER_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithEnvironmentVariable(t *testing.T) {
	t.Setenv(EnvironmentVariable, writeConfig(t, "controller.yaml", minimalYAML))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Relay.URL != testRelay {
		t.Errorf("expected relay.url=%s, got %s", testRelay, cfg.Relay.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestLoadFile_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, "controller.yaml", `
relay:
  url: wss://relay.example.org
chat:
  session: other-session
  conversations: [alpha, beta]
  history_since: 24h
completion:
  api_key: sk-test
  model: other/model
  temperature: 0.5
  stop: ["END"]
  retries: 2
  retry_backoff: 500ms
ledger:
  enabled: false
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Chat.Session != "other-session" {
		t.Errorf("expected chat.session=other-session, got %s", cfg.Chat.Session)
	}
	if len(cfg.Chat.Conversations) != 2 || cfg.Chat.Conversations[1] != "beta" {
		t.Errorf("unexpected conversations: %v", cfg.Chat.Conversations)
	}
	if cfg.Chat.HistorySince.Std() != 24*time.Hour {
		t.Errorf("expected history_since=24h, got %s", cfg.Chat.HistorySince.Std())
	}
	if cfg.Completion.Model != "other/model" {
		t.Errorf("expected model=other/model, got %s", cfg.Completion.Model)
	}
	if cfg.Completion.Temperature == nil || *cfg.Completion.Temperature != 0.5 {
		t.Errorf("expected inline temperature=0.5, got %v", cfg.Completion.Temperature)
	}
	if len(cfg.Completion.Stop) != 1 || cfg.Completion.Stop[0] != "END" {
		t.Errorf("expected inline stop=[END], got %v", cfg.Completion.Stop)
	}
	if cfg.Completion.TopP != nil {
		t.Errorf("expected unset top_p to stay nil, got %v", *cfg.Completion.TopP)
	}
	if cfg.Completion.Retries != 2 || cfg.Completion.RetryBackoff.Std() != 500*time.Millisecond {
		t.Errorf("unexpected retry settings: %d %s", cfg.Completion.Retries, cfg.Completion.RetryBackoff.Std())
	}
	if cfg.Ledger.Enabled {
		t.Error("expected ledger.enabled=false")
	}

	// Unspecified sections keep their defaults.
	if cfg.Completion.MaxTokensCeiling != 30000 {
		t.Errorf("expected default max_tokens_ceiling, got %d", cfg.Completion.MaxTokensCeiling)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected default logging.format, got %s", cfg.Logging.Format)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "controller.jsonc", `{
  // Relay the controller listens on.
  "relay": {"url": "wss://relay.example.org"},
  "identity": {"admin_pubkey": "`+testAdmin+`"},
  "completion": {
    "api_key": "sk-test",
    "timeout": "30s", /* shorter than the default */
    "top_k": 40,
  },
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Completion.Timeout.Std() != 30*time.Second {
		t.Errorf("expected timeout=30s, got %s", cfg.Completion.Timeout.Std())
	}
	if cfg.Completion.TopK == nil || *cfg.Completion.TopK != 40 {
		t.Errorf("expected top_k=40, got %v", cfg.Completion.TopK)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "bad.yaml", "completion:\n  timeout: soon\n")
	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected error to name the line, got %v", err)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("TEST_VAR", "/custom/path")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "/custom/path"},
		{"${TEST_VAR}/sub", "/custom/path/sub"},
		{"${UNSET_VAR:-/default}", "/default"},
		{"${EMPTY_VAR:-/default}", "/default"},
		{"${TEST_VAR:-/default}", "/custom/path"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"${TEST_VAR}:${UNSET_VAR:-x}", "/custom/path:x"},
	}

	for _, tt := range tests {
		result := expandVars(tt.input)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, expected %q", tt.input, result, tt.expected)
		}
	}
}

func TestLoadFile_ExpandsSecretFields(t *testing.T) {
	t.Setenv("CONTROLLER_API_KEY", "sk-from-env")
	t.Setenv("CONTROLLER_STATE", "/var/lib/controller")

	path := writeConfig(t, "controller.yaml", `
completion:
  api_key: ${CONTROLLER_API_KEY}
  model: ${CONTROLLER_API_KEY}
identity:
  key_file: ${CONTROLLER_STATE}/key
status:
  socket_path: ${CONTROLLER_SOCKET:-/run/controller.sock}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Completion.APIKey != "sk-from-env" {
		t.Errorf("expected api_key from env, got %s", cfg.Completion.APIKey)
	}
	if cfg.Identity.KeyFile != "/var/lib/controller/key" {
		t.Errorf("expected expanded key_file, got %s", cfg.Identity.KeyFile)
	}
	if cfg.Status.SocketPath != "/run/controller.sock" {
		t.Errorf("expected default socket_path, got %s", cfg.Status.SocketPath)
	}
	// Only the listed fields are expanded.
	if cfg.Completion.Model != "${CONTROLLER_API_KEY}" {
		t.Errorf("expected model to stay literal, got %s", cfg.Completion.Model)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config failed validation: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"missing relay url", func(c *Config) { c.Relay.URL = "" }, "relay.url is required"},
		{"http relay url", func(c *Config) { c.Relay.URL = "https://relay.example.org" }, "relay.url must be"},
		{"bad health schedule", func(c *Config) { c.Relay.HealthCheck = "sometimes" }, "relay.health_check"},
		{"missing admin", func(c *Config) { c.Identity.AdminPubKey = "" }, "identity.admin_pubkey"},
		{"short admin", func(c *Config) { c.Identity.AdminPubKey = "abcd" }, "identity.admin_pubkey"},
		{"missing api key", func(c *Config) { c.Completion.APIKey = "" }, "completion.api_key is required"},
		{"zero ceiling", func(c *Config) { c.Completion.MaxTokensCeiling = 0 }, "completion.max_tokens_ceiling"},
		{"negative retries", func(c *Config) { c.Completion.Retries = -1 }, "completion.retries"},
		{"bad ledger mention", func(c *Config) { c.Ledger.Mention = "nope" }, "ledger.mention"},
		{"empty conversation", func(c *Config) { c.Chat.Conversations = []string{"a", " "} }, "chat.conversations[1]"},
		{"bad lock mention", func(c *Config) { c.Lock.Enabled = true; c.Lock.Mention = "nope" }, "lock.mention"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}
	for _, want := range []string{"relay.url", "identity.admin_pubkey", "completion.api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestValidate_DisabledSectionsSkipChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.Enabled = false
	cfg.Ledger.Mention = "not a key"
	cfg.Lock.Mention = "not a key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected disabled sections to be ignored, got %v", err)
	}
}

func TestValidate_CanonicalizesKeys(t *testing.T) {
	npub, err := nip19.EncodePublicKey(testAdmin)
	if err != nil {
		t.Fatalf("encoding npub: %v", err)
	}

	cfg := validConfig()
	cfg.Identity.AdminPubKey = npub
	cfg.Ledger.Mention = strings.ToUpper(testLedger)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if cfg.Identity.AdminPubKey != testAdmin {
		t.Errorf("expected admin key in hex, got %s", cfg.Identity.AdminPubKey)
	}
	if cfg.Ledger.Mention != testLedger {
		t.Errorf("expected lowercase ledger mention, got %s", cfg.Ledger.Mention)
	}
}

func TestLoggingHandler(t *testing.T) {
	var output bytes.Buffer
	logging := LoggingConfig{Level: "warn", Format: "text"}
	handler := logging.NewHandler(&output)

	if handler.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("expected debug to be disabled at warn level")
	}

	logger := slog.New(handler)
	logger.Warn("relay disconnected", "url", testRelay)
	if !strings.Contains(output.String(), "msg=\"relay disconnected\"") {
		t.Errorf("expected text output, got %q", output.String())
	}

	output.Reset()
	logger = slog.New(LoggingConfig{Level: "debug", Format: "json"}.NewHandler(&output))
	logger.Debug("fetched balance")
	if !strings.HasPrefix(output.String(), "{") {
		t.Errorf("expected json output, got %q", output.String())
	}
}
