package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// EventRepository keeps room history in memory, bounded per room.
type EventRepository struct {
	mu      sync.RWMutex
	perRoom int
	rooms   map[domain.RoomID][]domain.Event
}

func NewEventRepository(perRoom int) *EventRepository {
	if perRoom <= 0 {
		perRoom = 500
	}
	return &EventRepository{
		perRoom: perRoom,
		rooms:   make(map[domain.RoomID][]domain.Event),
	}
}

func (r *EventRepository) Save(ctx context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := append(r.rooms[ev.RoomID], ev)
	if len(events) > r.perRoom {
		events = append([]domain.Event(nil), events[len(events)-r.perRoom:]...)
	}
	r.rooms[ev.RoomID] = events
	return nil
}

// ListByRoom returns the latest limit events of the room, oldest first.
func (r *EventRepository) ListByRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.rooms[roomID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]domain.Event(nil), events...), nil
}
