package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

const DefaultHistoryLimit = 50

// ChatService relays chat, typing and live-comment events between users
// connected to the relay.
type ChatService struct {
	repo    port.EventRepository
	gateway port.Gateway
	now     func() time.Time
}

func NewChatService(repo port.EventRepository, gateway port.Gateway) *ChatService {
	return &ChatService{
		repo:    repo,
		gateway: gateway,
		now:     time.Now,
	}
}

// Handle validates ev, stores it when it belongs in room history and
// delivers it to its recipient, or to everyone when it has none.
func (s *ChatService) Handle(ctx context.Context, ev domain.Event) error {
	if ev.ID == (domain.EventID{}) {
		ev.ID = domain.NewEventID()
	}
	ev.SentAt = s.now().UTC()

	if err := ev.Validate(); err != nil {
		return err
	}

	if ev.Persistent() && !ev.RoomID.IsZero() {
		if err := s.repo.Save(ctx, ev); err != nil {
			return fmt.Errorf("save event: %w", err)
		}
	}

	log.Debug().
		Str("event_id", ev.ID.String()).
		Str("type", string(ev.Type)).
		Str("from", ev.From.String()).
		Str("to", ev.To.String()).
		Msg("Relaying event")

	if ev.To != "" {
		return s.gateway.SendEvent(ctx, ev.To, ev)
	}
	return s.gateway.BroadcastEvent(ctx, ev)
}

func (s *ChatService) History(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.repo.ListByRoom(ctx, roomID, limit)
}
