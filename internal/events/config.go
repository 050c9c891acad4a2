// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package events

import (
	"strings"
	"time"
)

// Backend names accepted by NewPublisher.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	Backend          string
	Topic            string
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
	Stream           StreamConfig
	Breaker          CircuitBreakerConfig
}

// DefaultPublisherConfig returns production defaults for a NATS publisher on topic.
func DefaultPublisherConfig(url, topic string) PublisherConfig {
	return PublisherConfig{
		Backend:          BackendNATS,
		Topic:            topic,
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
		Stream:           DefaultStreamConfig(topic),
		Breaker:          DefaultCircuitBreakerConfig("events-publisher"),
	}
}

// StreamConfig describes the JetStream stream lifecycle events land in.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	DuplicateWindow time.Duration
}

// DefaultStreamConfig returns the stream for topic. JetStream stream names
// cannot contain dots, so "couchrelay.rooms" becomes "COUCHRELAY_ROOMS".
func DefaultStreamConfig(topic string) StreamConfig {
	return StreamConfig{
		Name:            StreamName(topic),
		Subjects:        []string{topic},
		MaxAge:          24 * time.Hour,
		MaxBytes:        -1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// StreamName derives a valid JetStream stream name from a subject.
func StreamName(topic string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return strings.ToUpper(r.Replace(topic))
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// ServerConfig holds embedded NATS server settings.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns defaults for the embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   64 << 20, // 64MB
		JetStreamMaxStore: 1 << 30,  // 1GB
	}
}
