package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type EventRepository interface {
	Save(ctx context.Context, ev domain.Event) error
	ListByRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Event, error)
}
