// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dephy-io/chat-controller/lib/clock"
	"github.com/dephy-io/chat-controller/lib/protocol"
	"github.com/dephy-io/chat-controller/relay"
)

const session = "chat-controller"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRelay() *relay.MemoryRelay {
	return relay.NewMemoryRelay(clock.Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)), testLogger())
}

func openChat(t *testing.T, transport relay.Transport, mentions ...string) *Stream[protocol.ChatMessage] {
	t.Helper()
	stream, err := Open(context.Background(), transport, protocol.SessionFilter(session, mentions...),
		protocol.DecodeChat, Options{Label: "chat", Logger: testLogger()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { stream.Close(context.Background()) })
	return stream
}

func next(t *testing.T, stream *Stream[protocol.ChatMessage]) Delivery[protocol.ChatMessage] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	delivery, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return delivery
}

func injectChat(memory *relay.MemoryRelay, mention, content string) relay.Event {
	return memory.Inject(relay.Event{
		PubKey:  "user",
		Kind:    protocol.EventKind,
		Tags:    relay.AddressedTags(session, mention),
		Content: content,
	})
}

func TestStreamDecodesAndSkipsMalformed(t *testing.T) {
	memory := newRelay()
	injectChat(memory, "room", `{"NewChat":{"uuid":"a"}}`)
	injectChat(memory, "room", `this is not json`)
	injectChat(memory, "room", `{"Ask":{"name":"u","role":"user","content":"hi"}}`)

	stream := openChat(t, memory.Connect("controller", 0), "room")

	first := next(t, stream)
	if first.Kind != Message || first.Message.NewChat == nil {
		t.Fatalf("first delivery = %+v, want NewChat", first)
	}
	second := next(t, stream)
	if second.Kind != Message || second.Message.Ask == nil {
		t.Fatalf("second delivery = %+v, want Ask (malformed skipped)", second)
	}
	if second.Event.PubKey != "user" {
		t.Errorf("event author = %q, want user", second.Event.PubKey)
	}
	if eose := next(t, stream); eose.Kind != EndOfStored {
		t.Fatalf("third delivery kind = %v, want EndOfStored", eose.Kind)
	}
}

func TestStreamIgnoresOtherSubscriptions(t *testing.T) {
	memory := newRelay()
	controller := memory.Connect("controller", 0)

	ours := openChat(t, controller, "ours")
	openChat(t, controller, "theirs")
	next(t, ours) // eose

	injectChat(memory, "theirs", `{"NewChat":{"uuid":"theirs"}}`)
	injectChat(memory, "ours", `{"NewChat":{"uuid":"ours"}}`)

	delivery := next(t, ours)
	if delivery.Message.NewChat == nil || delivery.Message.NewChat.UUID != "ours" {
		t.Errorf("got %+v, want only our subscription's event", delivery.Message)
	}
}

func TestStreamDeduplicatesReplay(t *testing.T) {
	memory := newRelay()
	injectChat(memory, "a", `{"NewChat":{"uuid":"one"}}`)
	stream := openChat(t, memory.Connect("controller", 0), "a")

	next(t, stream) // NewChat one
	next(t, stream) // eose

	injectChat(memory, "b", `{"NewChat":{"uuid":"two"}}`)
	if err := stream.Resubscribe(context.Background(), protocol.SessionFilter(session, "a", "b")); err != nil {
		t.Fatalf("Resubscribe: %v", err)
	}

	// "one" is replayed but already seen; only "two" is new.
	delivery := next(t, stream)
	if delivery.Message.NewChat == nil || delivery.Message.NewChat.UUID != "two" {
		t.Fatalf("got %+v, want NewChat two", delivery.Message)
	}
	if eose := next(t, stream); eose.Kind != EndOfStored {
		t.Fatalf("got %v, want EndOfStored", eose.Kind)
	}
}

func TestStreamClosedIsFatal(t *testing.T) {
	memory := newRelay()
	controller := memory.Connect("controller", 0)
	stream := openChat(t, controller, "a")
	next(t, stream) // eose

	controller.CloseSubscription(stream.SubscriptionID(), "error: shutting down")

	_, err := stream.Next(context.Background())
	if !errors.Is(err, relay.ErrSubscriptionClosed) {
		t.Fatalf("Next = %v, want ErrSubscriptionClosed", err)
	}
	var fatal *relay.FatalError
	if !errors.As(err, &fatal) || fatal.SubscriptionID != stream.SubscriptionID() {
		t.Errorf("fatal error = %+v, want subscription %s", fatal, stream.SubscriptionID())
	}

	// Sticky.
	if _, again := stream.Next(context.Background()); !errors.Is(again, relay.ErrSubscriptionClosed) {
		t.Errorf("second Next = %v, want the same fatal error", again)
	}
}

func TestStreamOtherClosedIgnored(t *testing.T) {
	memory := newRelay()
	controller := memory.Connect("controller", 0)
	stream := openChat(t, controller, "a")
	next(t, stream) // eose

	controller.CloseSubscription("somebody-else", "closed")
	injectChat(memory, "a", `{"NewChat":{"uuid":"still-alive"}}`)

	if delivery := next(t, stream); delivery.Message.NewChat == nil {
		t.Fatalf("got %+v, want the live event", delivery)
	}
}

func TestStreamShutdownIsFatal(t *testing.T) {
	memory := newRelay()
	stream := openChat(t, memory.Connect("controller", 0), "a")
	next(t, stream) // eose

	memory.Shutdown("relay restarting")

	_, err := stream.Next(context.Background())
	if !errors.Is(err, relay.ErrShutdown) {
		t.Fatalf("Next = %v, want ErrShutdown", err)
	}
	if !strings.Contains(err.Error(), "relay restarting") {
		t.Errorf("error %q lacks the relay reason", err)
	}
}

func TestStreamContextCancel(t *testing.T) {
	memory := newRelay()
	stream := openChat(t, memory.Connect("controller", 0), "a")
	next(t, stream) // eose

	ctx, cancel := context.WithCancel(context.Background())
	var wait sync.WaitGroup
	wait.Add(1)
	var err error
	go func() {
		defer wait.Done()
		_, err = stream.Next(ctx)
	}()
	cancel()
	wait.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Next = %v, want context.Canceled", err)
	}
}

func TestStreamCloseUnsubscribes(t *testing.T) {
	memory := newRelay()
	controller := memory.Connect("controller", 0)
	stream, err := Open(context.Background(), controller, protocol.SessionFilter(session, "a"),
		protocol.DecodeChat, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := controller.Subscriptions()[stream.SubscriptionID()]; !ok {
		t.Fatal("subscription not registered")
	}
	if err := stream.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := controller.Subscriptions()[stream.SubscriptionID()]; ok {
		t.Error("subscription still registered after Close")
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := newWindow(2)
	for _, id := range []string{"a", "b"} {
		if !w.add(id) {
			t.Fatalf("add(%s) = false on first sight", id)
		}
	}
	if w.add("a") {
		t.Error("add(a) = true for a remembered id")
	}
	w.add("c") // evicts a
	if !w.add("a") {
		t.Error("add(a) = false after eviction")
	}
	if w.add("c") {
		t.Error("add(c) = true for a remembered id")
	}
}
