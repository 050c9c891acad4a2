// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package websocket

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/couchrelay/internal/logging"
	"github.com/tomtom215/couchrelay/internal/metrics"
	"github.com/tomtom215/couchrelay/internal/relay"
)

// Config holds the per-connection transport policy.
type Config struct {
	// SendQueue is the capacity of the outbound queue.
	SendQueue int

	// MaxFrameBytes is the largest inbound frame accepted. Larger frames close
	// the connection with 1009.
	MaxFrameBytes int64

	// PingInterval is how often the server pings the client.
	PingInterval time.Duration

	// HeartbeatTimeout is the read deadline. Any inbound frame or pong resets it.
	HeartbeatTimeout time.Duration

	// WriteWait bounds every single write.
	WriteWait time.Duration

	// RatePerSecond and RateBurst shape the inbound token bucket.
	RatePerSecond float64
	RateBurst     int

	// StrikeBudget is how many consecutive decode or rate failures are
	// answered with an error before the connection is closed.
	StrikeBudget int
}

// DefaultConfig returns the transport policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		SendQueue:        512,
		MaxFrameBytes:    64 * 1024,
		PingInterval:     20 * time.Second,
		HeartbeatTimeout: 40 * time.Second,
		WriteWait:        10 * time.Second,
		RatePerSecond:    30,
		RateBurst:        60,
		StrikeBudget:     5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendQueue <= 0 {
		c.SendQueue = d.SendQueue
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 2 * c.PingInterval
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = d.RatePerSecond
	}
	if c.RateBurst <= 0 {
		c.RateBurst = d.RateBurst
	}
	if c.StrikeBudget < 0 {
		c.StrikeBudget = 0
	}
	return c
}

// Session is the room a connection reports to once admitted.
type Session interface {
	Route(participantID, connID string, f *relay.Frame) error
	Detach(participantID, connID string, explicit bool)
}

// Disconnect reasons recorded in relay_disconnects_total.
const (
	DisconnectClientLeft       = "client_left"
	DisconnectClientGone       = "client_gone"
	DisconnectHeartbeatTimeout = "heartbeat_timeout"
	DisconnectFrameTooLarge    = "frame_too_large"
	DisconnectStrikes          = "strikes"
	DisconnectServerClose      = "server_close"
	DisconnectWriteError       = "write_error"
)

// clientIDCounter generates unique, monotonically increasing connection IDs.
var clientIDCounter atomic.Uint64

// Client is a middleman between one websocket connection and its room. It
// implements relay.Sender: the room pushes envelopes with Enqueue, and the
// write pump drains them in FIFO order.
type Client struct {
	id      uint64
	connID  string
	hub     *Hub
	conn    *websocket.Conn
	cfg     Config
	send    chan *relay.Envelope
	limiter *rate.Limiter
	logger  zerolog.Logger

	// Set by Attach before the read pump starts and owned by it afterwards.
	session       Session
	participantID string
	readLogger    zerolog.Logger
	strikes       int

	mu         sync.Mutex
	closed     bool
	closeCode  int
	closeText  string
	detachOnce sync.Once
	done       chan struct{}
}

// NewClient wraps conn. Call Start before handing the client to a room so
// the welcome and any replay are written while admission completes.
func NewClient(hub *Hub, conn *websocket.Conn, cfg Config) *Client {
	cfg = cfg.withDefaults()
	id := clientIDCounter.Add(1)
	connID := "c" + strconv.FormatUint(id, 10)
	return &Client{
		id:      id,
		connID:  connID,
		hub:     hub,
		conn:    conn,
		cfg:     cfg,
		send:    make(chan *relay.Envelope, cfg.SendQueue),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		logger:  logging.WithComponent("connection").With().Str("conn_id", connID).Logger(),
		done:    make(chan struct{}),
	}
}

// ID returns the connection ID.
func (c *Client) ID() string {
	return c.connID
}

// Enqueue queues env for writing without blocking.
func (c *Client) Enqueue(env *relay.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return relay.ErrConnectionClosed
	}
	select {
	case c.send <- env:
		return nil
	default:
		return relay.ErrBackpressure
	}
}

// Close asks the write pump to flush what is queued, send a close frame with
// code and shut the connection. Only the first call has an effect.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeText = reason
	close(c.send)
}

// Done is closed once both the connection and its write pump have stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Start registers the client with the hub and starts the write pump.
func (c *Client) Start() {
	if c.hub != nil {
		c.hub.Register(c)
	}
	go c.writePump()
}

// Attach binds the admitted participant and starts the read pump.
func (c *Client) Attach(s Session, participantID string) {
	c.session = s
	c.participantID = participantID
	c.readLogger = c.logger.With().Str("participant_id", participantID).Logger()
	go c.readPump()
}

// Reject answers a handshake that lost a race with the room: the client
// gets an error envelope and a policy close.
func (c *Client) Reject(err error) {
	_ = c.Enqueue(relay.ErrorEnvelope(err, time.Now()))
	c.Close(relay.ClosePolicy, relay.ErrorCode(err))
}

// readPump pumps frames from the websocket connection to the room. It owns
// the Detach report for the connection.
func (c *Client) readPump() {
	reason := DisconnectClientGone
	explicit := false
	defer func() {
		c.detach(reason, explicit)
		c.Close(relay.CloseGoingAway, reason)
	}()

	c.conn.SetReadLimit(c.cfg.MaxFrameBytes)
	if err := c.refreshDeadline(); err != nil {
		c.readLogger.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.refreshDeadline()
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			reason, explicit = classifyReadError(err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.readLogger.Debug().Err(err).Msg("unexpected websocket close error")
			}
			if reason == DisconnectFrameTooLarge {
				c.Close(relay.CloseTooBig, "frame too large")
			}
			return
		}
		if err := c.refreshDeadline(); err != nil {
			return
		}

		if stop := c.handleFrame(data); stop != "" {
			reason = stop
			return
		}
	}
}

// handleFrame polices, decodes and routes one inbound frame. It returns a
// disconnect reason when the connection must stop reading.
func (c *Client) handleFrame(data []byte) string {
	if c.isClosed() {
		return DisconnectServerClose
	}
	if !c.limiter.Allow() {
		return c.strike(relay.ErrRateLimited, relay.CloseTryAgain)
	}
	f, err := relay.DecodeFrame(data)
	if err != nil {
		return c.strike(err, relay.ClosePolicy)
	}
	c.strikes = 0

	if err := c.session.Route(c.participantID, c.connID, f); err != nil {
		if errors.Is(err, relay.ErrRoomClosing) || errors.Is(err, relay.ErrNotParticipant) {
			return DisconnectServerClose
		}
		c.readLogger.Debug().Err(err).Str("type", string(f.Type)).Msg("Frame rejected by room")
	}
	return ""
}

func (c *Client) strike(err error, closeCode int) string {
	c.strikes++
	metrics.RecordFrameError(relay.ErrorCode(err))
	_ = c.Enqueue(relay.ErrorEnvelope(err, time.Now()))

	if c.strikes > c.cfg.StrikeBudget {
		c.readLogger.Warn().
			Err(err).
			Int("strikes", c.strikes).
			Msg("Strike budget exhausted, closing connection")
		c.Close(closeCode, relay.ErrorCode(err))
		return DisconnectStrikes
	}
	return ""
}

func (c *Client) refreshDeadline() error {
	return c.conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
}

// detach reports the disconnect to the room exactly once.
func (c *Client) detach(reason string, explicit bool) {
	c.detachOnce.Do(func() {
		metrics.RecordDisconnect(reason)
		if c.session == nil {
			return
		}
		c.session.Detach(c.participantID, c.connID, explicit)
		c.readLogger.Debug().
			Str("reason", reason).
			Bool("explicit", explicit).
			Msg("Connection detached")
	})
}

func classifyReadError(err error) (reason string, explicit bool) {
	var closeErr *websocket.CloseError
	var netErr net.Error
	switch {
	case errors.As(err, &closeErr):
		if closeErr.Code == websocket.CloseNormalClosure {
			return DisconnectClientLeft, true
		}
		return DisconnectClientGone, false
	case errors.Is(err, websocket.ErrReadLimit):
		return DisconnectFrameTooLarge, false
	case errors.As(err, &netErr) && netErr.Timeout():
		return DisconnectHeartbeatTimeout, false
	default:
		return DisconnectClientGone, false
	}
}

// writePump pumps envelopes from the send queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close(relay.CloseGoingAway, DisconnectWriteError)
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
		if c.hub != nil {
			c.hub.Unregister(c)
		}
		close(c.done)
	}()

	for {
		select {
		case env, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Debug().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				c.writeClose()
				return
			}

			data, err := json.Marshal(env)
			if err != nil {
				c.logger.Error().Err(err).Str("type", string(env.Type)).Msg("failed to encode envelope")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("failed to write envelope")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Debug().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeClose() {
	c.mu.Lock()
	code, text := c.closeCode, c.closeText
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, text)
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		c.logger.Debug().Err(err).Msg("failed to write close message")
	}
}
