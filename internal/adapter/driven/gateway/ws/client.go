package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 15 * time.Second
)

type ClientConfig struct {
	URL        string
	UserID     domain.UserID
	WriteWait  time.Duration
	PongWait   time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

type callSubscriber struct {
	user    domain.UserID
	handler func(domain.Envelope)
}

// Client is the user side of the relay connection. Call envelopes and events
// share one websocket, which is re-dialed after any loss. Nothing sent while
// disconnected is queued or replayed.
type Client struct {
	cfg ClientConfig
	log zerolog.Logger

	connected atomic.Bool

	mu     sync.Mutex
	writer *threadSafeWriter

	subsMu sync.RWMutex
	calls  map[int]callSubscriber
	events map[int]func(domain.Event)
	status map[int]func(domain.ChannelStatus)
	nextID int
}

var (
	_ port.SignalingChannel = (*Client)(nil)
	_ port.EventChannel     = (*Client)(nil)
)

func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:    cfg,
		log:    log.With().Str("user_id", cfg.UserID.String()).Str("relay", cfg.URL).Logger(),
		calls:  make(map[int]callSubscriber),
		events: make(map[int]func(domain.Event)),
		status: make(map[int]func(domain.ChannelStatus)),
	}
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run keeps the connection up until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.MinBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	for {
		up, err := c.session(ctx, endpoint)
		if ctx.Err() != nil {
			return nil
		}
		if up {
			b.Reset()
		}
		wait := b.NextBackOff()
		c.log.Warn().Err(err).Dur("retry_in", wait).Msg("Relay connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", c.cfg.UserID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// session dials once and reads until the connection drops. It reports
// whether the dial succeeded.
func (c *Client) session(ctx context.Context, endpoint string) (bool, error) {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, err
	}
	w := &threadSafeWriter{conn: conn, writeWait: c.cfg.WriteWait}

	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info().Msg("Connected to relay")
	c.notifyStatus(domain.ChannelConnected)

	done := make(chan struct{})
	defer func() {
		close(done)
		c.mu.Lock()
		c.writer = nil
		c.mu.Unlock()
		c.connected.Store(false)
		_ = conn.Close()
		c.notifyStatus(domain.ChannelDisconnected)
	}()

	go func() {
		ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				w.CloseNormal()
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := w.Ping(); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f Frame) {
	switch f.NS {
	case NamespaceCall:
		env, err := f.DecodeEnvelope()
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping invalid envelope")
			return
		}
		c.subsMu.RLock()
		handlers := make([]func(domain.Envelope), 0, len(c.calls))
		for _, s := range c.calls {
			if s.user == env.To {
				handlers = append(handlers, s.handler)
			}
		}
		c.subsMu.RUnlock()
		for _, h := range handlers {
			h(env)
		}

	case NamespaceEvent:
		ev, err := f.DecodeEvent()
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping invalid event")
			return
		}
		c.subsMu.RLock()
		handlers := make([]func(domain.Event), 0, len(c.events))
		for _, h := range c.events {
			handlers = append(handlers, h)
		}
		c.subsMu.RUnlock()
		for _, h := range handlers {
			h(ev)
		}

	default:
		c.log.Warn().Str("ns", f.NS).Msg("Unknown frame namespace")
	}
}

func (c *Client) notifyStatus(s domain.ChannelStatus) {
	c.subsMu.RLock()
	handlers := make([]func(domain.ChannelStatus), 0, len(c.status))
	for _, h := range c.status {
		handlers = append(handlers, h)
	}
	c.subsMu.RUnlock()
	for _, h := range handlers {
		h(s)
	}
}

func (c *Client) Send(ctx context.Context, env domain.Envelope) error {
	if err := c.write(ctx, CallFrame(env)); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrSignalingDelivery, env.Type, err)
	}
	return nil
}

func (c *Client) SendEvent(ctx context.Context, ev domain.Event) error {
	return c.write(ctx, EventFrame(ev))
}

func (c *Client) write(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w == nil {
		return domain.ErrNotConnected
	}
	return w.WriteJSON(f)
}

func (c *Client) Subscribe(userID domain.UserID, handler func(domain.Envelope)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextID
	c.nextID++
	c.calls[id] = callSubscriber{user: userID, handler: handler}
	return func() {
		c.subsMu.Lock()
		delete(c.calls, id)
		c.subsMu.Unlock()
	}
}

func (c *Client) SubscribeEvents(handler func(domain.Event)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextID
	c.nextID++
	c.events[id] = handler
	return func() {
		c.subsMu.Lock()
		delete(c.events, id)
		c.subsMu.Unlock()
	}
}

func (c *Client) SubscribeStatus(handler func(domain.ChannelStatus)) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextID
	c.nextID++
	c.status[id] = handler
	return func() {
		c.subsMu.Lock()
		delete(c.status, id)
		c.subsMu.Unlock()
	}
}
