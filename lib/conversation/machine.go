// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dephy-io/chat-controller/lib/ledger"
	"github.com/dephy-io/chat-controller/lib/llm"
	"github.com/dephy-io/chat-controller/lib/protocol"
	"github.com/dephy-io/chat-controller/relay"
)

// DefaultMaxTokensCeiling caps max_tokens regardless of balance.
const DefaultMaxTokensCeiling = 30000

// Publisher publishes events. relay.Transport satisfies it.
type Publisher interface {
	Publish(ctx context.Context, draft relay.Draft) (relay.Event, error)
}

// Ledger reads and writes token balances. *ledger.Client and
// ledger.Disabled satisfy it.
type Ledger interface {
	FetchBalance(ctx context.Context, user string) (uint32, error)
	UpdateBalance(ctx context.Context, user string, tokens uint32) error
}

// Completer runs one completion. *llm.Gateway satisfies it.
type Completer interface {
	Complete(ctx context.Context, request llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
}

// Config configures a Machine. Publisher, Ledger and Completer are
// required.
type Config struct {
	Publisher Publisher
	Ledger    Ledger
	Completer Completer

	// Session is the "s" tag of published answers.
	Session string

	// PublicKey is the controller's own key. Asks addressed to it are
	// kept in a separate context per author.
	PublicKey string

	// Conversations are static conversation ids answered alongside the
	// public key and registered ids.
	Conversations []string

	// Model is the backend model id sent with every request.
	Model string

	// MaxTokensCeiling caps max_tokens (DefaultMaxTokensCeiling when
	// zero).
	MaxTokensCeiling uint32

	// Sampling is copied into every request.
	Sampling llm.Sampling

	// StartedAt separates history from live turns. Asks created
	// strictly before it only seed context. It is truncated to whole
	// seconds, the resolution of relay timestamps.
	StartedAt time.Time

	Logger *slog.Logger
}

// Machine holds every conversation context and processes turns. It is
// not safe for concurrent use: the goroutine reading the event stream
// owns it.
type Machine struct {
	publisher Publisher
	ledger    Ledger
	completer Completer
	session   string
	publicKey string
	model     string
	ceiling   uint32
	sampling  llm.Sampling
	startedAt time.Time
	logger    *slog.Logger

	contexts   map[string]*Context
	addresses  []string
	registered []string
	stats      Stats
}

// Stats counts outcomes since the machine started.
type Stats struct {
	Registered uint64 `json:"registered"`
	Seeded     uint64 `json:"seeded"`
	Answered   uint64 `json:"answered"`
	Partial    uint64 `json:"partial"`
	Folded     uint64 `json:"folded"`
	Ignored    uint64 `json:"ignored"`
	Skipped    uint64 `json:"skipped"`
	Dropped    uint64 `json:"dropped"`
}

func (stats *Stats) record(outcome Outcome) {
	switch outcome {
	case OutcomeRegistered:
		stats.Registered++
	case OutcomeSeeded:
		stats.Seeded++
	case OutcomeAnswered:
		stats.Answered++
	case OutcomePartial:
		stats.Partial++
	case OutcomeFolded:
		stats.Folded++
	case OutcomeIgnored:
		stats.Ignored++
	case OutcomeSkipped:
		stats.Skipped++
	case OutcomeDropped:
		stats.Dropped++
	}
}

// New creates a machine with no contexts.
func New(config Config) *Machine {
	ceiling := config.MaxTokensCeiling
	if ceiling == 0 {
		ceiling = DefaultMaxTokensCeiling
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var addresses []string
	for _, address := range append([]string{config.PublicKey}, config.Conversations...) {
		if address != "" && !slices.Contains(addresses, address) {
			addresses = append(addresses, address)
		}
	}
	return &Machine{
		publisher: config.Publisher,
		ledger:    config.Ledger,
		completer: config.Completer,
		session:   config.Session,
		publicKey: config.PublicKey,
		model:     config.Model,
		ceiling:   ceiling,
		sampling:  config.Sampling,
		startedAt: config.StartedAt.Truncate(time.Second),
		logger:    logger,
		contexts:  make(map[string]*Context),
		addresses: addresses,
	}
}

// StartedAt returns the history cutoff.
func (machine *Machine) StartedAt() time.Time { return machine.startedAt }

// Register starts answering a conversation id. The id is kept exactly
// as announced, since peers tag their events with that spelling. It
// reports false if the id is empty or already addressed.
func (machine *Machine) Register(id string) bool {
	if id == "" || slices.Contains(machine.addresses, id) {
		return false
	}
	machine.addresses = append(machine.addresses, id)
	machine.registered = append(machine.registered, id)
	machine.contextFor(NormalizeID(id))
	return true
}

// Addresses returns every mention the machine answers: the public key,
// the static conversations, then registered ids in registration order.
func (machine *Machine) Addresses() []string {
	return slices.Clone(machine.addresses)
}

// Registered returns the registered conversation ids in registration
// order.
func (machine *Machine) Registered() []string {
	return slices.Clone(machine.registered)
}

// Context returns the context of id, or nil if nothing was observed
// for it. UUID ids match in any spelling.
func (machine *Machine) Context(id string) *Context {
	return machine.contexts[NormalizeID(id)]
}

// Snapshot summarises every context, sorted by id.
func (machine *Machine) Snapshot() []Summary {
	summaries := make([]Summary, 0, len(machine.contexts))
	for _, history := range machine.contexts {
		summaries = append(summaries, history.summary())
	}
	slices.SortFunc(summaries, func(a, b Summary) int { return strings.Compare(a.ID, b.ID) })
	return summaries
}

// Stats returns the outcome counters.
func (machine *Machine) Stats() Stats { return machine.stats }

// Observe applies one decoded event. The returned error is non-nil
// only for transport-fatal conditions (*relay.FatalError); every
// per-turn failure is logged and reported as OutcomeDropped.
func (machine *Machine) Observe(ctx context.Context, event relay.Event, message protocol.ChatMessage) (Outcome, error) {
	outcome, err := machine.observe(ctx, event, message)
	machine.stats.record(outcome)
	return outcome, err
}

func (machine *Machine) observe(ctx context.Context, event relay.Event, message protocol.ChatMessage) (Outcome, error) {
	switch {
	case message.NewChat != nil:
		return machine.observeNewChat(event, *message.NewChat), nil
	case message.Ask != nil:
		return machine.observeAsk(ctx, event, *message.Ask)
	case message.Answer != nil:
		return machine.observeAnswer(event, *message.Answer), nil
	default:
		return OutcomeIgnored, nil
	}
}

func (machine *Machine) observeNewChat(event relay.Event, newChat protocol.NewChat) Outcome {
	if !machine.Register(newChat.UUID) {
		machine.logger.Debug("conversation already registered",
			"conversation", newChat.UUID,
			"event", event.ID,
		)
		return OutcomeIgnored
	}
	machine.logger.Info("conversation registered",
		"conversation", newChat.UUID,
		"author", event.PubKey,
		"event", event.ID,
	)
	return OutcomeRegistered
}

func (machine *Machine) observeAnswer(event relay.Event, answer protocol.Answer) Outcome {
	if answer.FinishReason != protocol.FinishReasonStop {
		return OutcomeIgnored
	}
	target, ok := machine.route(event, false)
	if !ok {
		machine.logger.Warn("answer has no conversation mention", "event", event.ID)
		return OutcomeSkipped
	}
	conversationID := target.contextID
	history := machine.contextFor(conversationID)
	history.append(Entry{Role: answer.Role, Content: answer.Content})
	machine.logger.Debug("answer folded",
		"conversation", conversationID,
		"event", event.ID,
		"entries", history.Len(),
	)
	return OutcomeFolded
}

func (machine *Machine) observeAsk(ctx context.Context, event relay.Event, ask protocol.Ask) (Outcome, error) {
	target, ok := machine.route(event, true)
	if !ok {
		machine.logger.Warn("ask is not addressed to this controller, skipping",
			"event", event.ID,
			"author", event.PubKey,
		)
		return OutcomeSkipped, nil
	}
	conversationID := target.contextID

	entry := Entry{Role: ask.Role, Content: ask.Content, Name: &ask.Name}
	history := machine.contextFor(conversationID)

	if event.CreatedAt.Before(machine.startedAt) {
		history.append(entry)
		return OutcomeSeeded, nil
	}

	logger := machine.logger.With(
		"conversation", conversationID,
		"event", event.ID,
		"user", event.PubKey,
	)

	balance, err := machine.ledger.FetchBalance(ctx, event.PubKey)
	if err != nil {
		if relay.IsFatal(err) {
			return OutcomeDropped, err
		}
		logger.Error("fetching balance failed, dropping turn", "error", err)
		return OutcomeDropped, nil
	}
	maxTokens := min(balance, machine.ceiling)

	response, err := machine.completer.Complete(ctx, llm.ChatCompletionRequest{
		Model:     machine.model,
		Messages:  history.Prompt(entry),
		MaxTokens: maxTokens,
		Sampling:  machine.sampling,
	})
	if err != nil {
		logger.Error("completion failed, dropping turn",
			"max_tokens", maxTokens,
			"error", err,
		)
		return OutcomeDropped, nil
	}
	if len(response.Choices) == 0 {
		logger.Error("completion returned no choices, dropping turn", "response", response.ID)
		return OutcomeDropped, nil
	}
	choice := response.Choices[0]

	answer := protocol.ChatMessage{Answer: &protocol.Answer{
		FinishReason: choice.FinishReason,
		Role:         choice.Message.Role,
		Content:      choice.Message.Content,
	}}
	draft, err := protocol.NewDraft(machine.session, target.mention, answer)
	if err != nil {
		logger.Error("encoding answer failed, dropping turn", "error", err)
		return OutcomeDropped, nil
	}
	if target.requester != "" {
		draft.Tags = append(draft.Tags, relay.Tag{relay.TagMention, target.requester})
	}
	published, err := machine.publisher.Publish(ctx, draft)
	if err != nil {
		if relay.IsFatal(err) {
			return OutcomeDropped, err
		}
		logger.Error("publishing answer failed, dropping turn", "error", err)
		return OutcomeDropped, nil
	}

	usedTokens := response.TotalTokens()
	logger.Info("answer published",
		"answer", published.ID,
		"finish_reason", choice.FinishReason,
		"max_tokens", maxTokens,
		"total_tokens", usedTokens,
	)

	if choice.FinishReason != protocol.FinishReasonStop {
		return OutcomePartial, nil
	}

	var fatal error
	remaining := ledger.Spend(balance, usedTokens)
	if err := machine.ledger.UpdateBalance(ctx, event.PubKey, remaining); err != nil && !errors.Is(err, ledger.ErrDisabled) {
		if relay.IsFatal(err) {
			fatal = err
		} else {
			logger.Error("updating balance failed",
				"balance", balance,
				"remaining", remaining,
				"error", err,
			)
		}
	}

	history.append(entry)
	if fatal != nil {
		return OutcomeAnswered, fmt.Errorf("updating balance: %w", fatal)
	}
	return OutcomeAnswered, nil
}

// destination says where an event belongs. mention is the p tag the
// event was delivered for and the answer is addressed to. contextID is
// the normalized conversation id, or the requester's key for events
// addressed to the controller itself.
type destination struct {
	mention   string
	contextID string
	requester string
}

// route resolves event against the addressed set. The first p tag
// the machine answers is the mention, whatever its position. Asks to
// the public key are keyed by their author; answers to the public key
// carry the requester as a further p tag.
func (machine *Machine) route(event relay.Event, isAsk bool) (destination, bool) {
	mention, ok := relay.ExtractMention(event, func(value string) bool {
		return slices.Contains(machine.addresses, value)
	})
	if !ok {
		return destination{}, false
	}
	if mention != machine.publicKey {
		return destination{mention: mention, contextID: NormalizeID(mention)}, true
	}

	if isAsk {
		return destination{mention: mention, contextID: event.PubKey, requester: event.PubKey}, true
	}
	for _, tag := range event.Tags {
		if tag.Name() == relay.TagMention && tag.Value() != "" && tag.Value() != mention {
			return destination{mention: mention, contextID: tag.Value(), requester: tag.Value()}, true
		}
	}
	return destination{}, false
}

func (machine *Machine) contextFor(id string) *Context {
	history, ok := machine.contexts[id]
	if !ok {
		history = newContext(id)
		machine.contexts[id] = history
	}
	return history
}

// NormalizeID returns id in canonical lowercase UUID form when it
// parses as a UUID, and unchanged otherwise.
func NormalizeID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}
