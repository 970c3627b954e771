package http

import (
	"net/http"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the web client is served from a fixed host
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades a user's connection and routes its frames. The user is
// identified by the user_id query parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.URL.Query().Get("user_id"))
	if user == "" {
		http.Error(w, "missing user_id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	peer := ws.NewPeer(user, conn, h.Peer)
	l := log.With().Str("user_id", user.String()).Logger()

	if err := h.Hub.Register(peer); err != nil {
		l.Warn().Err(err).Msg("Hub not running, rejecting client")
		_ = peer.Close()
		return
	}
	l.Info().Msg("New client connected")
	go peer.WritePump()

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Hub.Unregister(peer)
	}()

	ctx := r.Context()
	_ = peer.ReadLoop(func(f ws.Frame) {
		switch f.NS {
		case ws.NamespaceCall:
			env, err := f.DecodeEnvelope()
			if err != nil {
				l.Warn().Err(err).Msg("Invalid call frame")
				return
			}
			env.From = user
			if err := h.Hub.SendCallSignal(ctx, env); err != nil {
				l.Debug().Err(err).Str("type", string(env.Type)).Msg("Call signal not delivered")
			}

		case ws.NamespaceEvent:
			ev, err := f.DecodeEvent()
			if err != nil {
				l.Warn().Err(err).Msg("Invalid event frame")
				return
			}
			ev.From = user
			if err := h.ChatService.Handle(ctx, ev); err != nil {
				l.Error().Err(err).Msg("Failed to process event")
			}

		default:
			l.Warn().Str("ns", f.NS).Msg("Unknown frame namespace")
		}
	})
}
