// Package transport wraps the persistent websocket connection to the portal
// notification server. It owns reconnection, idempotent room joins, and
// handle-based topic subscriptions. Connection loss is never surfaced to
// subscribers; any signal missed during an outage is compensated by the
// snapshot fetch the sync layer performs on every (re)subscription.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned when an operation is attempted on a closed channel.
var ErrClosed = errors.New("transport: channel closed")

// joinEvent is the outbound event name for room membership.
const joinEvent = "join-role"

// Envelope is the wire format in both directions. Inbound Data is delivered
// to subscribers as raw bytes; its shape carries no contract.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// joinPayload is the outbound body of a join-role event.
type joinPayload struct {
	Role     string `json:"role"`
	Identity string `json:"identity,omitempty"`
}

// Handler receives the raw payload of a push signal. Handlers must treat the
// payload as a wake-up only and never rely on its contents.
type Handler func(payload []byte)

// Handle identifies one active (topic, handler) registration.
type Handle struct {
	ID    string
	Topic string
}

// Zero reports whether the handle was never issued.
func (h Handle) Zero() bool { return h.ID == "" }

// Config holds the channel's connection settings.
type Config struct {
	// URL is the websocket endpoint.
	URL string

	// MaxAttempts bounds consecutive reconnection retries. Zero means 10.
	MaxAttempts int

	// RetryDelay is the fixed delay between reconnection attempts.
	// Zero means 2s.
	RetryDelay time.Duration

	Logger *zap.Logger
}

// Channel is a persistent bidirectional connection to the notification
// server with automatic reconnection.
type Channel struct {
	url         string
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string]map[string]Handler
	joins  map[string]joinPayload
	closed bool

	writeMu sync.Mutex
}

// New creates an unconnected Channel.
func New(cfg Config) *Channel {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Channel{
		url:         cfg.URL,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      cfg.Logger,
		subs:        make(map[string]map[string]Handler),
		joins:       make(map[string]joinPayload),
	}
}

// Connect establishes the connection and starts the read loop. It retries up
// to MaxAttempts before giving up. Once connected, later connection loss is
// handled internally.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("transport connected", zap.String("url", c.url))
	go c.readLoop(conn)
	return nil
}

// dial attempts the websocket handshake with bounded retries.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		c.logger.Warn("transport dial failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return nil, lastErr
}

// JoinRoom emits a join signal for the scope's room. Repeated calls with the
// same arguments are no-ops, so the server never accumulates duplicate
// memberships. The join is recorded before sending and replayed after every
// reconnect; a send failure here is therefore logged, not returned.
func (c *Channel) JoinRoom(role, identity string) error {
	p := joinPayload{Role: role, Identity: identity}
	key := p.Role + "|" + p.Identity

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, already := c.joins[key]; already {
		c.mu.Unlock()
		return nil
	}
	c.joins[key] = p
	c.mu.Unlock()

	if err := c.send(joinEvent, p); err != nil {
		c.logger.Warn("join-role send failed, will replay on reconnect",
			zap.String("role", role), zap.Error(err))
	}
	return nil
}

// LeaveRooms forgets all recorded joins. Used on scope teardown so the next
// scope starts from a clean membership set.
func (c *Channel) LeaveRooms() {
	c.mu.Lock()
	c.joins = make(map[string]joinPayload)
	c.mu.Unlock()
}

// Subscribe registers a handler for a topic and returns the handle that
// removes it. Each call registers exactly one handler.
func (c *Channel) Subscribe(topic string, fn Handler) Handle {
	h := Handle{ID: uuid.NewString(), Topic: topic}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Handle{}
	}
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[string]Handler)
	}
	c.subs[topic][h.ID] = fn
	return h
}

// Unsubscribe removes the registration behind the handle. Unknown or zero
// handles are no-ops.
func (c *Channel) Unsubscribe(h Handle) {
	if h.Zero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if subs, ok := c.subs[h.Topic]; ok {
		delete(subs, h.ID)
		if len(subs) == 0 {
			delete(c.subs, h.Topic)
		}
	}
}

// Close tears the connection down permanently.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// send writes one envelope, serializing writers.
func (c *Channel) send(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(Envelope{Event: event, Data: body})
}

// readLoop consumes inbound envelopes until the connection drops, then hands
// off to the reconnect path. It exits when the channel is closed.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			c.logger.Info("transport connection lost", zap.Error(err))
			c.reconnect()
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// Not an envelope; nothing to dispatch.
			continue
		}
		c.dispatch(env)
	}
}

// dispatch fans an inbound envelope out to the topic's handlers. Handlers
// are copied under the lock and invoked outside it.
func (c *Channel) dispatch(env Envelope) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs[env.Event]))
	for _, fn := range c.subs[env.Event] {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(env.Data)
	}
}

// reconnect re-establishes the connection and replays recorded room joins.
// If all attempts fail the channel stays down; a later Connect can revive it.
func (c *Channel) reconnect() {
	conn, err := c.dial(context.Background())
	if err != nil {
		c.logger.Error("transport reconnect exhausted", zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	joins := make([]joinPayload, 0, len(c.joins))
	for _, p := range c.joins {
		joins = append(joins, p)
	}
	c.mu.Unlock()

	c.logger.Info("transport reconnected", zap.String("url", c.url))
	for _, p := range joins {
		if err := c.send(joinEvent, p); err != nil {
			c.logger.Warn("join replay failed", zap.String("role", p.Role), zap.Error(err))
		}
	}

	go c.readLoop(conn)
}
