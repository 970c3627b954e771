package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	ChatService *service.ChatService
	Hub         *ws.Hub
	StaticDir   string
	Peer        ws.PeerConfig
}

func NewHandler(chatService *service.ChatService, hub *ws.Hub, staticDir string, peer ws.PeerConfig) *Handler {
	return &Handler{
		ChatService: chatService,
		Hub:         hub,
		StaticDir:   staticDir,
		Peer:        peer,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/ws", h.ServeWS)
	r.Get("/api/rooms/{roomID}/events", h.RoomHistory)
	r.Get("/api/users/{userID}/presence", h.Presence)

	if h.StaticDir != "" {
		fs := http.FileServer(http.Dir(h.StaticDir))
		r.Handle("/*", fs)
	}

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) RoomHistory(w http.ResponseWriter, r *http.Request) {
	roomID, err := domain.ParseRoomID(chi.URLParam(r, "roomID"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	events, err := h.ChatService.History(r.Context(), roomID, limit)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("Failed to load room history")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]*ws.EventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, ws.EventFrame(ev).Event)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(chi.URLParam(r, "userID"))
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": user,
		"online":  h.Hub.Online(user),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
