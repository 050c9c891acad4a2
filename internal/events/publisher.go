// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/couchrelay/internal/relay"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// Publisher wraps a Watermill publisher with circuit breaker protection.
type Publisher struct {
	publisher      message.Publisher
	subscriber     message.Subscriber // memory backend only
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	topic          string

	// prepare runs once before the first successful publish (stream setup).
	prepare  func(ctx context.Context) error
	prepared bool

	closers []func() error
	mu      sync.Mutex
	closed  bool
}

// NewPublisher creates the publisher for cfg.Backend. It returns (nil, nil)
// for the "none" backend.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	var (
		p   *Publisher
		err error
	)
	switch cfg.Backend {
	case BackendNone, "":
		return nil, nil
	case BackendMemory:
		p = newMemoryPublisher(logger)
	case BackendNATS:
		p, err = newNATSPublisher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	p.topic = cfg.Topic
	p.circuitBreaker = NewCircuitBreaker(cfg.Breaker)
	return p, nil
}

// newMemoryPublisher publishes onto an in-process Watermill channel. Events
// reach whatever subscribed through Subscriber; with no subscriber they are
// discarded.
func newMemoryPublisher(logger watermill.LoggerAdapter) *Publisher {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return &Publisher{
		publisher:  ch,
		subscriber: ch,
		closers:    []func() error{ch.Close},
	}
}

func newNATSPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("couchrelay-events"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // Stream is created by EnsureStream
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	// A second connection manages the stream through the jetstream API.
	nc, err := natsgo.Connect(cfg.URL, natsOpts...)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		_ = pub.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream := cfg.Stream
	return &Publisher{
		publisher: pub,
		prepare: func(ctx context.Context) error {
			return EnsureStream(ctx, js, stream)
		},
		closers: []func() error{pub.Close, func() error { nc.Close(); return nil }},
	}, nil
}

// Subscriber returns the in-process subscriber of the memory backend, or nil.
func (p *Publisher) Subscriber() message.Subscriber {
	return p.subscriber
}

// Topic returns the topic events are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// BreakerState returns the circuit breaker state.
func (p *Publisher) BreakerState() string {
	return CircuitBreakerState(p.circuitBreaker)
}

// Publish sends msg with circuit breaker protection. The message UUID is
// used as Nats-Msg-Id for deduplication if not already set.
func (p *Publisher) Publish(ctx context.Context, msg *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	_, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		if p.prepare != nil && !p.prepared {
			if err := p.prepare(ctx); err != nil {
				return nil, err
			}
			p.prepared = true
		}
		return nil, p.publisher.Publish(p.topic, msg)
	})
	return err
}

// PublishEvent serializes and publishes a lifecycle event.
func (p *Publisher) PublishEvent(ctx context.Context, ev relay.LifecycleEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("event", string(ev.Kind))
	msg.Metadata.Set("session_code", string(ev.SessionCode))
	msg.SetContext(ctx)

	return p.Publish(ctx, msg)
}

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
