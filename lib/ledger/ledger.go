// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dephy-io/chat-controller/lib/protocol"
	"github.com/dephy-io/chat-controller/lib/router"
	"github.com/dephy-io/chat-controller/relay"
)

// DefaultSession is the session the deployed resource controller keeps
// accounts on.
const DefaultSession = "dephy-dsproxy-controller"

// DefaultMention is the public key of the deployed resource
// controller. Account events are addressed to it.
const DefaultMention = "d041ea9854f2117b82452457c4e6d6593a96524027cd4032d2f40046deb78d93"

// DefaultFetchTimeout bounds a balance replay when Config.FetchTimeout
// is zero.
const DefaultFetchTimeout = 30 * time.Second

// ErrDisabled is returned by [Disabled.UpdateBalance]. Callers treat it
// as "nothing to record", not as a failure.
var ErrDisabled = errors.New("ledger: disabled")

// Config configures a Client.
type Config struct {
	// Session is the "s" tag of account events.
	Session string

	// Mention is the "p" tag of account events.
	Mention string

	// FetchTimeout bounds one FetchBalance replay.
	FetchTimeout time.Duration

	Logger *slog.Logger
}

// Client reads and writes balances through a relay transport. It is
// safe for concurrent use; each fetch opens its own subscription.
type Client struct {
	transport    relay.Transport
	session      string
	mention      string
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// New creates a ledger client publishing and reading through
// transport.
func New(transport relay.Transport, config Config) *Client {
	session := config.Session
	if session == "" {
		session = DefaultSession
	}
	mention := config.Mention
	if mention == "" {
		mention = DefaultMention
	}
	fetchTimeout := config.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport:    transport,
		session:      session,
		mention:      mention,
		fetchTimeout: fetchTimeout,
		logger:       logger.With("ledger_session", session),
	}
}

// FetchBalance replays the stored account events and returns the last
// balance recorded for user, or 0 when there is none. Events arriving
// after the end of stored events are not waited for.
func (client *Client) FetchBalance(ctx context.Context, user string) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, client.fetchTimeout)
	defer cancel()

	stream, err := router.Open(ctx, client.transport,
		protocol.SessionFilter(client.session, client.mention),
		protocol.DecodeProxy,
		router.Options{Label: "ledger", Logger: client.logger})
	if err != nil {
		return 0, fmt.Errorf("fetching balance for %s: %w", user, err)
	}
	defer stream.Close(context.WithoutCancel(ctx))

	var balance uint32
	var records int
	for {
		delivery, err := stream.Next(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetching balance for %s: %w", user, err)
		}
		if delivery.Kind == router.EndOfStored {
			break
		}
		account := delivery.Message.Account
		if account == nil || account.User != user {
			continue
		}
		balance = account.Tokens
		records++
	}

	client.logger.Debug("balance fetched",
		"user", user,
		"tokens", balance,
		"records", records,
	)
	return balance, nil
}

// UpdateBalance publishes tokens as the new balance of user.
func (client *Client) UpdateBalance(ctx context.Context, user string, tokens uint32) error {
	draft, err := protocol.NewDraft(client.session, client.mention, protocol.ProxyMessage{
		Account: &protocol.Account{User: user, Tokens: tokens},
	})
	if err != nil {
		return fmt.Errorf("encoding balance update: %w", err)
	}
	event, err := client.transport.Publish(ctx, draft)
	if err != nil {
		return fmt.Errorf("publishing balance for %s: %w", user, err)
	}
	client.logger.Info("balance updated",
		"user", user,
		"tokens", tokens,
		"event", event.ID,
	)
	return nil
}

// Disabled stands in for a ledger when budgets are not enforced. Every
// user has an unlimited balance and updates are discarded.
type Disabled struct{}

// FetchBalance always returns the largest representable balance.
func (Disabled) FetchBalance(context.Context, string) (uint32, error) {
	return math.MaxUint32, nil
}

// UpdateBalance records nothing and returns ErrDisabled.
func (Disabled) UpdateBalance(context.Context, string, uint32) error {
	return ErrDisabled
}

// Spend returns balance minus used, floored at zero.
func Spend(balance, used uint32) uint32 {
	if used >= balance {
		return 0
	}
	return balance - used
}
