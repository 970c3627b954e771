package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// Hub routes frames between connected users. It implements port.Gateway.
type Hub struct {
	mu         sync.RWMutex
	clients    map[domain.UserID]Conn
	register   chan Conn
	unregister chan Conn
	done       chan struct{}
}

var _ port.Gateway = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]Conn),
		register:   make(chan Conn),
		unregister: make(chan Conn),
		done:       make(chan struct{}),
	}
}

// SendCallSignal forwards env to its recipient. An invite for a user that
// is not connected is answered on their behalf with an unavailable decline.
func (h *Hub) SendCallSignal(ctx context.Context, env domain.Envelope) error {
	h.mu.RLock()
	target, ok := h.clients[env.To]
	h.mu.RUnlock()

	l := log.With().
		Str("type", string(env.Type)).
		Str("call_id", env.CallID.String()).
		Str("from", env.From.String()).
		Str("to", env.To.String()).
		Logger()

	if !ok {
		if env.Type == domain.EnvelopeInvite {
			l.Info().Msg("Invite for offline user, bouncing")
			return h.SendCallSignal(ctx, env.Reply(domain.EnvelopeDecline, domain.Payload{Reason: domain.ReasonUnavailable}))
		}
		l.Debug().Msg("Recipient offline, dropping envelope")
		return fmt.Errorf("%w: %s", domain.ErrNotConnected, env.To)
	}

	if err := target.Enqueue(CallFrame(env)); err != nil {
		l.Warn().Err(err).Msg("Failed to forward envelope")
		return err
	}
	l.Debug().Msg("Envelope forwarded")
	return nil
}

func (h *Hub) SendEvent(ctx context.Context, to domain.UserID, ev domain.Event) error {
	h.mu.RLock()
	target, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotConnected, to)
	}
	return target.Enqueue(EventFrame(ev))
}

// BroadcastEvent delivers ev to every connected user except its sender.
func (h *Hub) BroadcastEvent(ctx context.Context, ev domain.Event) error {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.clients))
	for user, c := range h.clients {
		if user != ev.From {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	f := EventFrame(ev)
	for _, c := range targets {
		if err := c.Enqueue(f); err != nil {
			log.Error().Err(err).Str("user_id", c.User().String()).Msg("Error broadcasting event")
		}
	}
	return nil
}

// Online reports whether user has a registered connection.
func (h *Hub) Online(user domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[user]
	return ok
}

func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for user, c := range h.clients {
				_ = c.Close()
				delete(h.clients, user)
			}
			h.mu.Unlock()
			log.Info().Msg("Hub stopped, all clients disconnected")
			return nil

		case c := <-h.register:
			h.mu.Lock()
			prev := h.clients[c.User()]
			h.clients[c.User()] = c
			count := len(h.clients)
			h.mu.Unlock()
			if prev != nil && prev != c {
				_ = prev.Close()
				log.Info().Str("user_id", c.User().String()).Msg("Replaced older connection")
			}
			log.Info().Int("count", count).Str("user_id", c.User().String()).Msg("Client registered")

		case c := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[c.User()]
			if ok && current == c {
				delete(h.clients, c.User())
			}
			count := len(h.clients)
			h.mu.Unlock()
			_ = c.Close()
			if ok && current == c {
				log.Info().Int("count", count).Str("user_id", c.User().String()).Msg("Client unregistered")
			}
		}
	}
}

// Register fails once the hub has stopped.
func (h *Hub) Register(c Conn) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return domain.ErrLinkClosed
	}
}

func (h *Hub) Unregister(c Conn) {
	select {
	case h.unregister <- c:
	case <-h.done:
		_ = c.Close()
	}
}
