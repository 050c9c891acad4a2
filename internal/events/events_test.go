// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package events

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/metrics"
	"github.com/tomtom215/couchrelay/internal/relay"
)

func init() {
	logging.SetLogger(zerolog.New(io.Discard))
}

const testTopic = "couchrelay.rooms"

func testEvent(kind relay.LifecycleKind, code string) relay.LifecycleEvent {
	return relay.LifecycleEvent{
		Kind:         kind,
		SessionCode:  relay.SessionCode(code),
		At:           time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC),
		Participants: 2,
	}
}

func newTestMemoryPublisher(t *testing.T) (*Publisher, <-chan *message.Message) {
	t.Helper()
	cfg := PublisherConfig{
		Backend: BackendMemory,
		Topic:   testTopic,
		Breaker: DefaultCircuitBreakerConfig("test"),
	}
	p, err := NewPublisher(cfg, nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	msgs, err := p.Subscriber().Subscribe(ctx, testTopic)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	return p, msgs
}

func receive(t *testing.T, msgs <-chan *message.Message) relay.LifecycleEvent {
	t.Helper()
	select {
	case msg := <-msgs:
		msg.Ack()
		var ev relay.LifecycleEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got := msg.Metadata.Get("event"); got != string(ev.Kind) {
			t.Errorf("metadata event = %q, want %q", got, ev.Kind)
		}
		if msg.Metadata.Get("Nats-Msg-Id") != msg.UUID {
			t.Error("Nats-Msg-Id should default to the message UUID")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return relay.LifecycleEvent{}
	}
}

func TestNotifier_QueuesAndDrops(t *testing.T) {
	n := NewNotifier(2)
	before := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("dropped"))

	n.Notify(testEvent(relay.LifecycleCreated, "AAAAAA"))
	n.Notify(testEvent(relay.LifecycleCreated, "BBBBBB"))
	n.Notify(testEvent(relay.LifecycleCreated, "CCCCCC"))

	if n.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", n.Pending())
	}
	if n.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", n.Dropped())
	}
	if got := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("dropped")) - before; got != 1 {
		t.Errorf("dropped metric delta = %v, want 1", got)
	}
}

func TestNotifier_DefaultSize(t *testing.T) {
	if n := NewNotifier(0); cap(n.queue) != 1024 {
		t.Errorf("cap = %d, want 1024", cap(n.queue))
	}
}

func TestNewPublisher_Backends(t *testing.T) {
	p, err := NewPublisher(PublisherConfig{Backend: BackendNone}, nil)
	if err != nil || p != nil {
		t.Errorf("none backend = %v, %v; want nil, nil", p, err)
	}

	if _, err := NewPublisher(PublisherConfig{Backend: "kafka"}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestPublisher_Memory(t *testing.T) {
	p, msgs := newTestMemoryPublisher(t)

	want := testEvent(relay.LifecycleClosed, "ABC123")
	want.Reason = "idle"
	if err := p.PublishEvent(context.Background(), want); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}

	got := receive(t, msgs)
	if got.Kind != want.Kind || got.SessionCode != want.SessionCode || got.Reason != "idle" {
		t.Errorf("event = %+v, want %+v", got, want)
	}
	if !got.At.Equal(want.At) {
		t.Errorf("At = %v, want %v", got.At, want.At)
	}
	if p.Topic() != testTopic {
		t.Errorf("Topic() = %q", p.Topic())
	}
	if p.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %q, want closed", p.BreakerState())
	}
}

func TestPublisher_Closed(t *testing.T) {
	p, _ := newTestMemoryPublisher(t)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err := p.PublishEvent(context.Background(), testEvent(relay.LifecycleCreated, "ABC123"))
	if !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("PublishEvent() after Close = %v, want ErrPublisherClosed", err)
	}
}

func TestPublisher_PrepareRunsOnce(t *testing.T) {
	p, msgs := newTestMemoryPublisher(t)

	calls := 0
	fail := true
	p.prepare = func(context.Context) error {
		calls++
		if fail {
			return errors.New("stream unavailable")
		}
		return nil
	}

	if err := p.PublishEvent(context.Background(), testEvent(relay.LifecycleCreated, "AAAAAA")); err == nil {
		t.Fatal("expected prepare error")
	}
	fail = false
	for i := 0; i < 2; i++ {
		if err := p.PublishEvent(context.Background(), testEvent(relay.LifecycleCreated, "AAAAAA")); err != nil {
			t.Fatalf("PublishEvent() error = %v", err)
		}
		receive(t, msgs)
	}
	if calls != 2 {
		t.Errorf("prepare calls = %d, want 2", calls)
	}
}

func TestCircuitBreaker_Opens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "open-test",
		MaxRequests:      1,
		Interval:         time.Second,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	})
	if cb.Name() != "open-test" {
		t.Errorf("Name() = %q", cb.Name())
	}

	fail := func() (interface{}, error) { return nil, errors.New("fail") }
	_, _ = cb.Execute(fail)
	_, _ = cb.Execute(fail)

	if got := CircuitBreakerState(cb); got != "open" {
		t.Fatalf("state = %q, want open", got)
	}
	if _, err := cb.Execute(fail); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Execute() on open breaker = %v, want ErrOpenState", err)
	}
}

func TestForwarder_PublishesQueuedEvents(t *testing.T) {
	p, msgs := newTestMemoryPublisher(t)
	n := NewNotifier(8)
	f := NewForwarder(n, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Serve(ctx) }()

	before := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("published"))
	n.Notify(testEvent(relay.LifecycleCreated, "AAAAAA"))
	n.Notify(testEvent(relay.LifecycleClosed, "AAAAAA"))

	// gochannel delivers each message on its own goroutine, so order is not asserted.
	kinds := map[relay.LifecycleKind]bool{}
	kinds[receive(t, msgs).Kind] = true
	kinds[receive(t, msgs).Kind] = true
	if !kinds[relay.LifecycleCreated] || !kinds[relay.LifecycleClosed] {
		t.Errorf("received kinds = %v, want created and closed", kinds)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if got := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("published")) - before; got != 2 {
		t.Errorf("published delta = %v, want 2", got)
	}
	if f.String() != "events-forwarder" {
		t.Errorf("String() = %q", f.String())
	}
}

func TestForwarder_DrainsOnShutdown(t *testing.T) {
	p, msgs := newTestMemoryPublisher(t)
	n := NewNotifier(8)
	n.Notify(testEvent(relay.LifecycleClosed, "ZZZZZZ"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewForwarder(n, p).Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}

	if got := receive(t, msgs); got.SessionCode != "ZZZZZZ" {
		t.Errorf("drained event = %+v", got)
	}
	if n.Pending() != 0 {
		t.Errorf("Pending() = %d after drain", n.Pending())
	}
}

func TestForwarder_CountsFailures(t *testing.T) {
	p, _ := newTestMemoryPublisher(t)
	_ = p.Close()
	n := NewNotifier(1)
	f := NewForwarder(n, p)

	before := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("failed"))
	f.forward(context.Background(), testEvent(relay.LifecycleCreated, "AAAAAA"))
	if got := testutil.ToFloat64(metrics.EventsPublished.WithLabelValues("failed")) - before; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
}

func TestStreamName(t *testing.T) {
	tests := map[string]string{
		"couchrelay.rooms": "COUCHRELAY_ROOMS",
		"rooms":            "ROOMS",
		"a.*.b.>":          "A___B__",
	}
	for in, want := range tests {
		if got := StreamName(in); got != want {
			t.Errorf("StreamName(%q) = %q, want %q", in, got, want)
		}
	}
}
