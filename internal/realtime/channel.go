// Package realtime keeps a websocket to the notifications server open and
// turns its events into query cache invalidations.
//
// The channel never carries authoritative data. Losing it only means cached
// queries stay stale until the next reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/notifications"
	"github.com/bissquit/notify-agent/internal/querycache"
	"github.com/bissquit/notify-agent/internal/subscriptions"
)

// DefaultReconnectDelay is the fixed delay between a close and the next dial.
const DefaultReconnectDelay = 3 * time.Second

// Invalidator receives invalidation signals.
type Invalidator interface {
	Invalidate(prefix querycache.Key) int
}

// Config contains realtime channel configuration.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
}

// Status is a snapshot of the channel for diagnostics.
type Status struct {
	State       State      `json:"state"`
	URL         string     `json:"url"`
	Reconnects  int        `json:"reconnects"`
	Events      int        `json:"events"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Channel is the realtime sync state machine:
//
//	Disconnected -> Connecting   on Start and on every reconnect timer
//	Connecting   -> Connected    on a successful dial
//	Connecting   -> Disconnected on a failed dial, arming one reconnect timer
//	Connected    -> Disconnected on close, arming one reconnect timer
//	any          -> Inert        on Stop
//
// Every dial gets a generation number; callbacks from an older generation
// or arriving after Stop are ignored.
type Channel struct {
	config Config
	dialer Dialer
	cache  Invalidator
	clock  Clock
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	gen         uint64
	conn        Conn
	cancelDial  context.CancelFunc
	timer       Timer
	reconnects  int
	events      int
	lastEventAt time.Time
	lastError   string
}

// New creates a new realtime channel in the Disconnected state.
func New(config Config, dialer Dialer, cache Invalidator, logger *slog.Logger) *Channel {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	channelState.Set(float64(StateDisconnected))
	return &Channel{
		config: config,
		dialer: dialer,
		cache:  cache,
		clock:  systemClock{},
		logger: logger.With("component", "realtime"),
		state:  StateDisconnected,
	}
}

// Start begins connecting. It is a no-op unless the channel is
// Disconnected with no reconnect pending.
func (c *Channel) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisconnected || c.timer != nil {
		return
	}
	c.connectLocked()
}

// Stop cancels any pending reconnect, closes the live connection and makes
// the channel inert. Stop is idempotent.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.state == StateInert {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateInert)
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Info("realtime channel stopped")
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a diagnostic snapshot.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:      c.state,
		URL:        c.config.URL,
		Reconnects: c.reconnects,
		Events:     c.events,
		LastError:  c.lastError,
	}
	if !c.lastEventAt.IsZero() {
		t := c.lastEventAt
		s.LastEventAt = &t
	}
	return s
}

func (c *Channel) connectLocked() {
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.setStateLocked(StateConnecting)

	go c.dial(ctx, cancel, gen)
}

func (c *Channel) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	conn, err := c.dialer.Dial(ctx, c.config.URL)
	cancel()

	c.mu.Lock()
	if c.state == StateInert || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		c.lastError = err.Error()
		c.setStateLocked(StateDisconnected)
		c.scheduleLocked()
		c.mu.Unlock()
		c.logger.Warn("realtime dial failed", "error", err, "retry_in", c.config.ReconnectDelay)
		return
	}

	c.conn = conn
	c.lastError = ""
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("realtime channel connected", "url", c.config.URL)
	c.read(conn, gen)
}

// read pumps messages until the connection ends. A transport error ends
// the connection and is reported once, as its close.
func (c *Channel) read(conn Conn, gen uint64) {
	defer func() { _ = conn.Close() }()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.closed(gen, err)
			return
		}
		c.handle(gen, data)
	}
}

func (c *Channel) closed(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateInert || gen != c.gen {
		return
	}
	c.conn = nil
	c.lastError = err.Error()
	c.setStateLocked(StateDisconnected)
	c.scheduleLocked()
	c.logger.Info("realtime channel closed", "error", err, "retry_in", c.config.ReconnectDelay)
}

// scheduleLocked arms the reconnect timer unless one is already pending.
func (c *Channel) scheduleLocked() {
	if c.timer != nil {
		return
	}
	c.reconnects++
	reconnectsTotal.Inc()
	c.timer = c.clock.AfterFunc(c.config.ReconnectDelay, c.fire)
}

func (c *Channel) fire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timer = nil
	if c.state != StateDisconnected {
		return
	}
	c.connectLocked()
}

func (c *Channel) handle(gen uint64, data []byte) {
	c.mu.Lock()
	live := c.state == StateConnected && gen == c.gen
	c.mu.Unlock()
	if !live {
		return
	}

	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		eventsTotal.WithLabelValues("malformed").Inc()
		c.logger.Debug("dropping malformed realtime payload", "error", err)
		return
	}
	if !ev.Type.IsValid() {
		eventsTotal.WithLabelValues("unknown").Inc()
		c.logger.Debug("ignoring realtime event", "type", ev.Type)
		return
	}
	eventsTotal.WithLabelValues(string(ev.Type)).Inc()

	c.mu.Lock()
	c.events++
	c.lastEventAt = c.clock.Now()
	c.mu.Unlock()

	c.cache.Invalidate(notifications.ListKey)
	c.cache.Invalidate(notifications.CountKey)
	c.cache.Invalidate(subscriptions.ListKey)
}

func (c *Channel) setStateLocked(s State) {
	c.state = s
	channelState.Set(float64(s))
}
