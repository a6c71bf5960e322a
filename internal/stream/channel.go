package stream

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Phase describes the channel's connection state machine.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds configuration for a room event channel.
type Config struct {
	// BaseURL is the REST base URL; the websocket URL is derived from it
	// by swapping the scheme (http -> ws, https -> wss).
	BaseURL string

	HandshakeTimeout time.Duration
	// ReconnectDelay is the fixed wait between a connection failure and
	// the next attempt. There is no retry cap: a live room favors
	// availability, reconnection runs until Close.
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	FrameBuffer    int

	// Clock defaults to the real clock; tests inject a fake one.
	Clock clockwork.Clock
}

// DefaultConfig returns the default channel configuration for a REST base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		HandshakeTimeout: 10 * time.Second,
		ReconnectDelay:   5 * time.Second,
		WriteTimeout:     10 * time.Second,
		FrameBuffer:      64,
	}
}

// Channel owns one logical websocket connection to a single room. It masks
// transient transport failures from consumers: failures and peer closes
// schedule a reconnect (at most one pending at a time) until Close is
// called, which is terminal for the current room.
type Channel struct {
	cfg    Config
	clock  clockwork.Clock
	dialer *websocket.Dialer

	frames chan Frame
	phases chan Phase

	mu          sync.Mutex
	room        string
	url         string
	displayName string
	conn        *websocket.Conn
	connecting  bool
	userClosed  bool
	gen         int // bumped on every Open/Close; stale goroutines check it
	retry       *pendingRetry
}

type pendingRetry struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// NewChannel creates a channel. It does not connect until Open is called.
func NewChannel(cfg Config) *Channel {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 64
	}
	return &Channel{
		cfg:   cfg,
		clock: clock,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		frames: make(chan Frame, cfg.FrameBuffer),
		phases: make(chan Phase, 16),
	}
}

// Frames returns the raw inbound event stream.
func (c *Channel) Frames() <-chan Frame { return c.frames }

// Phases returns the connection phase stream.
func (c *Channel) Phases() <-chan Phase { return c.phases }

// Open begins connecting to a room. Non-blocking; progress is observable
// through the phase stream. Calling Open while already open to the same
// room is a no-op; a different room code tears down the old connection
// first. Open after Close starts a fresh connection lifecycle.
func (c *Channel) Open(roomCode, authToken, displayName string) error {
	u, err := streamURL(c.cfg.BaseURL, roomCode, authToken, displayName)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.userClosed && c.room == roomCode && (c.conn != nil || c.connecting) {
		c.mu.Unlock()
		return nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.stopRetryLocked()
	c.userClosed = false
	c.room = roomCode
	c.url = u
	c.displayName = displayName
	c.gen++
	gen := c.gen
	c.connecting = true
	c.mu.Unlock()

	go c.connect(gen)
	return nil
}

// Close terminates the connection permanently. No reconnection is attempted
// afterwards until the owner calls Open again.
func (c *Channel) Close() {
	c.mu.Lock()
	c.userClosed = true
	c.connecting = false
	c.gen++
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "user closed")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
		conn.Close()
	}
	c.emitPhase(PhaseDisconnected)
}

func (c *Channel) connect(gen int) {
	c.mu.Lock()
	if c.userClosed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	u := c.url
	room := c.room
	c.mu.Unlock()

	// Only now is it safe to announce progress: a Close racing the retry
	// would otherwise see Connecting after its terminal Disconnected.
	c.emitPhase(PhaseConnecting)

	attemptID := uuid.New().String()[:8]
	log.Debug().Str("attempt_id", attemptID).Str("url", u).Msg("connecting to room stream")

	conn, _, err := c.dialer.Dial(u, nil)

	c.mu.Lock()
	if c.userClosed || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("attempt_id", attemptID).Msg("room stream connection failed")
		c.emitPhase(PhaseDisconnected)
		c.scheduleRetry(gen)
		return
	}
	c.conn = conn
	c.stopRetryLocked()
	c.mu.Unlock()

	log.Info().Str("attempt_id", attemptID).Str("room", room).Msg("room stream connected")
	c.emitPhase(PhaseConnected)

	go c.readLoop(conn, gen, room)
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int, room string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("room", room).Msg("room stream read error")
			}
			break
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Str("room", room).Msg("dropping malformed frame")
			continue
		}
		select {
		case c.frames <- f:
		default:
			log.Warn().Str("event", f.Event).Msg("frame buffer full, dropping event")
		}
	}

	conn.Close()

	c.mu.Lock()
	if c.userClosed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	c.emitPhase(PhaseDisconnected)
	c.scheduleRetry(gen)
}

// scheduleRetry arms the reconnect timer. A retry already pending is never
// duplicated by a second failure signal.
func (c *Channel) scheduleRetry(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userClosed || gen != c.gen || c.retry != nil {
		return
	}

	r := &pendingRetry{
		timer:  c.clock.NewTimer(c.cfg.ReconnectDelay),
		cancel: make(chan struct{}),
	}
	c.retry = r
	c.connecting = true
	log.Debug().Dur("delay", c.cfg.ReconnectDelay).Str("room", c.room).Msg("reconnect scheduled")

	go func() {
		select {
		case <-r.timer.Chan():
		case <-r.cancel:
			return
		}
		c.mu.Lock()
		if c.retry != r {
			c.mu.Unlock()
			return
		}
		c.retry = nil
		if c.userClosed || gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.connect(gen)
	}()
}

// stopRetryLocked cancels a pending retry. Follows the stop-and-drain
// pattern from the time.Timer.Stop documentation. Caller holds c.mu.
func (c *Channel) stopRetryLocked() {
	if c.retry == nil {
		return
	}
	close(c.retry.cancel)
	if !c.retry.timer.Stop() {
		select {
		case <-c.retry.timer.Chan():
		default:
		}
	}
	c.retry = nil
}

// emitPhase publishes a phase transition without blocking; when the buffer
// is full the oldest phase is evicted so the latest transition wins.
func (c *Channel) emitPhase(p Phase) {
	select {
	case c.phases <- p:
	default:
		select {
		case <-c.phases:
		default:
		}
		select {
		case c.phases <- p:
		default:
		}
	}
}

// streamURL derives the websocket URL for a room from the REST base URL.
func streamURL(baseURL, roomCode, authToken, displayName string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	q := url.Values{}
	q.Set("room", roomCode)
	q.Set("token", authToken)
	q.Set("name", displayName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
