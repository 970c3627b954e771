package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWriteWait  = 10 * time.Second
	DefaultPongWait   = 60 * time.Second
	DefaultSendBuffer = 256
	maxMessageSize    = 64 * 1024
)

var ErrSlowConsumer = errors.New("connection send buffer full")

// Conn is a user's registered connection on the relay.
type Conn interface {
	User() domain.UserID
	Enqueue(f Frame) error
	Close() error
}

// threadSafeWriter serializes writes on a websocket connection.
type threadSafeWriter struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	writeWait time.Duration
}

func (w *threadSafeWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeWait)); err != nil {
		return err
	}
	return w.conn.WriteJSON(v)
}

func (w *threadSafeWriter) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeWait))
}

func (w *threadSafeWriter) CloseNormal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(w.writeWait))
}

type PeerConfig struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	SendBuffer int
}

func (c PeerConfig) withDefaults() PeerConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	return c
}

// Peer is the relay side of a client websocket.
type Peer struct {
	user   domain.UserID
	conn   *websocket.Conn
	writer *threadSafeWriter
	cfg    PeerConfig
	log    zerolog.Logger

	send      chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

var _ Conn = (*Peer)(nil)

func NewPeer(user domain.UserID, conn *websocket.Conn, cfg PeerConfig) *Peer {
	cfg = cfg.withDefaults()
	return &Peer{
		user:   user,
		conn:   conn,
		writer: &threadSafeWriter{conn: conn, writeWait: cfg.WriteWait},
		cfg:    cfg,
		log:    log.With().Str("user_id", user.String()).Logger(),
		send:   make(chan Frame, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (p *Peer) User() domain.UserID {
	return p.user
}

// Enqueue hands f to the write pump without blocking.
func (p *Peer) Enqueue(f Frame) error {
	select {
	case <-p.done:
		return domain.ErrNotConnected
	default:
	}
	select {
	case p.send <- f:
		return nil
	case <-p.done:
		return domain.ErrNotConnected
	default:
		return ErrSlowConsumer
	}
}

func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.writer.CloseNormal()
		_ = p.conn.Close()
	})
	return nil
}

// WritePump writes queued frames and keeps the connection alive with pings
// until the peer is closed.
func (p *Peer) WritePump() {
	ticker := time.NewTicker(p.cfg.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case f := <-p.send:
			if err := p.writer.WriteJSON(f); err != nil {
				p.log.Debug().Err(err).Msg("Write failed, closing connection")
				_ = p.Close()
				return
			}
		case <-ticker.C:
			if err := p.writer.Ping(); err != nil {
				p.log.Debug().Err(err).Msg("Ping failed, closing connection")
				_ = p.Close()
				return
			}
		}
	}
}

// ReadLoop decodes frames and hands them to handle until the connection
// drops. Malformed frames are skipped.
func (p *Peer) ReadLoop(handle func(Frame)) error {
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(p.cfg.PongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(p.cfg.PongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				p.log.Warn().Err(err).Msg("Unexpected close error")
			}
			return err
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			p.log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		handle(f)
	}
}
