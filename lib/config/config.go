// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/dephy-io/chat-controller/lib/llm"
	"github.com/dephy-io/chat-controller/relay"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "CHAT_CONTROLLER_CONFIG"

// Config is the controller configuration.
type Config struct {
	Relay      RelayConfig      `yaml:"relay"`
	Identity   IdentityConfig   `yaml:"identity"`
	Chat       ChatConfig       `yaml:"chat"`
	Completion CompletionConfig `yaml:"completion"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Lock       LockConfig       `yaml:"lock"`
	Status     StatusConfig     `yaml:"status"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RelayConfig configures the relay connection.
type RelayConfig struct {
	// URL is the relay websocket address. Required.
	URL string `yaml:"url"`

	// NotificationBuffer is the capacity of each notification
	// listener.
	NotificationBuffer int `yaml:"notification_buffer"`

	// HealthCheck is the cron schedule of connection checks.
	HealthCheck string `yaml:"health_check"`

	// MaxHealthFailures exits the process after that many consecutive
	// failed checks. Zero never gives up.
	MaxHealthFailures int `yaml:"max_health_failures"`
}

// IdentityConfig configures keys.
type IdentityConfig struct {
	// KeyFile holds the controller's secret key, generated on first
	// start.
	KeyFile string `yaml:"key_file"`

	// AdminPubKey is the operator key, hex or npub. Required.
	AdminPubKey string `yaml:"admin_pubkey"`
}

// ChatConfig configures the conversation session.
type ChatConfig struct {
	Session string `yaml:"session"`

	// Conversations are subscribed in addition to the controller's own
	// public key and any id registered by NewChat.
	Conversations []string `yaml:"conversations"`

	// HistorySince limits the replayed history to events newer than
	// start time minus this duration. Zero replays everything.
	HistorySince Duration `yaml:"history_since"`

	// DedupWindow is the number of event ids remembered per stream.
	DedupWindow int `yaml:"dedup_window"`
}

// CompletionConfig configures the completion backend.
type CompletionConfig struct {
	BaseURL string `yaml:"base_url"`

	// APIKey is required. Usually "${SOME_ENV_VAR}".
	APIKey string `yaml:"api_key"`

	Model            string   `yaml:"model"`
	MaxTokensCeiling uint32   `yaml:"max_tokens_ceiling"`
	Timeout          Duration `yaml:"timeout"`
	Retries          int      `yaml:"retries"`
	RetryBackoff     Duration `yaml:"retry_backoff"`

	// Sampling parameters sit directly in the completion section.
	llm.Sampling `yaml:",inline"`
}

// LedgerConfig configures token budgets.
type LedgerConfig struct {
	// Enabled enforces budgets. When false every user gets the
	// ceiling and nothing is written.
	Enabled bool   `yaml:"enabled"`
	Session string `yaml:"session"`

	// Mention is the resource controller's public key.
	Mention string `yaml:"mention"`
}

// LockConfig configures the lock responder.
type LockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Session string `yaml:"session"`

	// Mention is the resource key requests are addressed to. Empty
	// means the controller's own public key.
	Mention string `yaml:"mention"`
}

// StatusConfig configures the control socket.
type StatusConfig struct {
	// SocketPath enables the socket when non-empty.
	SocketPath string `yaml:"socket_path"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`
}

// Duration is a time.Duration written as a string such as "120s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string. An empty string is zero.
func (duration *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	if text == "" {
		*duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*duration = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (duration Duration) MarshalYAML() (any, error) {
	return time.Duration(duration).String(), nil
}

// Std returns the duration as a time.Duration.
func (duration Duration) Std() time.Duration { return time.Duration(duration) }

// Default returns the configuration every file is applied on top of.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			NotificationBuffer: relay.DefaultNotificationBuffer,
			HealthCheck:        "@every 10s",
		},
		Identity: IdentityConfig{
			KeyFile: filepath.Join("data", "key"),
		},
		Chat: ChatConfig{
			Session:     "chat-controller",
			DedupWindow: 8192,
		},
		Completion: CompletionConfig{
			BaseURL:          llm.DefaultBaseURL,
			Model:            "deepseek/deepseek-r1/community",
			MaxTokensCeiling: 30000,
			Timeout:          Duration(120 * time.Second),
			RetryBackoff:     Duration(time.Second),
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Session: "dephy-dsproxy-controller",
			Mention: "d041ea9854f2117b82452457c4e6d6593a96524027cd4032d2f40046deb78d93",
		},
		Lock: LockConfig{
			Session: "dephy-dsproxy-controller",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads the file named by CHAT_CONTROLLER_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads path over Default and expands variables. It does not
// validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document decodes
		// through the same field names.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Completion.APIKey = expandVars(c.Completion.APIKey)
	c.Identity.KeyFile = expandVars(c.Identity.KeyFile)
	c.Status.SocketPath = expandVars(c.Status.SocketPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} from the
// environment. An unset or empty variable without a default expands
// to "".
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem at once. On success the public key
// fields are rewritten in hex.
func (c *Config) Validate() error {
	var errs []error

	if c.Relay.URL == "" {
		errs = append(errs, errors.New("relay.url is required"))
	} else if parsed, err := url.Parse(c.Relay.URL); err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("relay.url must be a ws:// or wss:// URL, got %q", c.Relay.URL))
	}
	if c.Relay.NotificationBuffer <= 0 {
		errs = append(errs, errors.New("relay.notification_buffer must be positive"))
	}
	if _, err := cron.ParseStandard(c.Relay.HealthCheck); err != nil {
		errs = append(errs, fmt.Errorf("relay.health_check: %w", err))
	}
	if c.Relay.MaxHealthFailures < 0 {
		errs = append(errs, errors.New("relay.max_health_failures must not be negative"))
	}

	if c.Identity.KeyFile == "" {
		errs = append(errs, errors.New("identity.key_file is required"))
	}
	adminPubKey, err := relay.ParsePublicKey(c.Identity.AdminPubKey)
	if err != nil {
		errs = append(errs, fmt.Errorf("identity.admin_pubkey: %w", err))
	}

	if c.Chat.Session == "" {
		errs = append(errs, errors.New("chat.session is required"))
	}
	for index, conversation := range c.Chat.Conversations {
		if strings.TrimSpace(conversation) == "" {
			errs = append(errs, fmt.Errorf("chat.conversations[%d] is empty", index))
		}
	}
	if c.Chat.HistorySince < 0 {
		errs = append(errs, errors.New("chat.history_since must not be negative"))
	}
	if c.Chat.DedupWindow <= 0 {
		errs = append(errs, errors.New("chat.dedup_window must be positive"))
	}

	if c.Completion.BaseURL == "" {
		errs = append(errs, errors.New("completion.base_url is required"))
	}
	if c.Completion.APIKey == "" {
		errs = append(errs, errors.New("completion.api_key is required"))
	}
	if c.Completion.Model == "" {
		errs = append(errs, errors.New("completion.model is required"))
	}
	if c.Completion.MaxTokensCeiling == 0 {
		errs = append(errs, errors.New("completion.max_tokens_ceiling must be positive"))
	}
	if c.Completion.Timeout <= 0 {
		errs = append(errs, errors.New("completion.timeout must be positive"))
	}
	if c.Completion.Retries < 0 {
		errs = append(errs, errors.New("completion.retries must not be negative"))
	}

	var ledgerMention string
	if c.Ledger.Enabled {
		if c.Ledger.Session == "" {
			errs = append(errs, errors.New("ledger.session is required when the ledger is enabled"))
		}
		ledgerMention, err = relay.ParsePublicKey(c.Ledger.Mention)
		if err != nil {
			errs = append(errs, fmt.Errorf("ledger.mention: %w", err))
		}
	}

	var lockMention string
	if c.Lock.Enabled {
		if c.Lock.Session == "" {
			errs = append(errs, errors.New("lock.session is required when the lock responder is enabled"))
		}
		if c.Lock.Mention != "" {
			lockMention, err = relay.ParsePublicKey(c.Lock.Mention)
			if err != nil {
				errs = append(errs, fmt.Errorf("lock.mention: %w", err))
			}
		}
	}

	if _, err := c.Logging.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Identity.AdminPubKey = adminPubKey
	if ledgerMention != "" {
		c.Ledger.Mention = ledgerMention
	}
	if lockMention != "" {
		c.Lock.Mention = lockMention
	}
	return nil
}

func (logging LoggingConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", logging.Level)
	}
	return level, nil
}

// NewHandler builds the slog handler described by the config, writing
// to w. Call it after Validate.
func (logging LoggingConfig) NewHandler(w io.Writer) slog.Handler {
	level, err := logging.level()
	if err != nil {
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}
	if logging.Format == "text" {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}
