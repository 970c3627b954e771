package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *fakeRepo) Save(ctx context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRepo) ListByRoom(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.events {
		if ev.RoomID == roomID {
			out = append(out, ev)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	direct    map[domain.UserID][]domain.Event
	broadcast []domain.Event
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{direct: make(map[domain.UserID][]domain.Event)}
}

func (g *fakeGateway) SendCallSignal(ctx context.Context, env domain.Envelope) error {
	return nil
}

func (g *fakeGateway) SendEvent(ctx context.Context, to domain.UserID, ev domain.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.direct[to] = append(g.direct[to], ev)
	return nil
}

func (g *fakeGateway) BroadcastEvent(ctx context.Context, ev domain.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcast = append(g.broadcast, ev)
	return nil
}

func TestChatBroadcastsAndStoresRoomMessages(t *testing.T) {
	repo := &fakeRepo{}
	gw := newFakeGateway()
	svc := NewChatService(repo, gw)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	room := domain.NewRoomID()
	err := svc.Handle(context.Background(), domain.Event{Type: domain.EventChat, RoomID: room, From: "alice", Content: "hi"})
	require.NoError(t, err)

	require.Len(t, gw.broadcast, 1)
	assert.Equal(t, fixed, gw.broadcast[0].SentAt)
	assert.NotEqual(t, domain.EventID{}, gw.broadcast[0].ID)

	history, err := svc.History(context.Background(), room, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
}

func TestTypingIsDeliveredButNotStored(t *testing.T) {
	repo := &fakeRepo{}
	gw := newFakeGateway()
	svc := NewChatService(repo, gw)

	room := domain.NewRoomID()
	require.NoError(t, svc.Handle(context.Background(), domain.Event{Type: domain.EventTyping, RoomID: room, From: "alice", To: "bob"}))

	assert.Len(t, gw.direct["bob"], 1)
	assert.Empty(t, gw.broadcast)
	assert.Empty(t, repo.events)
}

func TestInvalidEventsAreRejected(t *testing.T) {
	repo := &fakeRepo{}
	gw := newFakeGateway()
	svc := NewChatService(repo, gw)

	err := svc.Handle(context.Background(), domain.Event{Type: domain.EventChat, RoomID: domain.NewRoomID(), From: "alice"})
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	err = svc.Handle(context.Background(), domain.Event{Type: domain.EventLiveComment, From: "alice", Content: "wow"})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	assert.Empty(t, gw.broadcast)
	assert.Empty(t, repo.events)
}

func TestStoreFailureStopsDelivery(t *testing.T) {
	repo := &fakeRepo{err: errors.New("disk full")}
	gw := newFakeGateway()
	svc := NewChatService(repo, gw)

	err := svc.Handle(context.Background(), domain.Event{Type: domain.EventChat, RoomID: domain.NewRoomID(), From: "alice", Content: "hi"})
	assert.Error(t, err)
	assert.Empty(t, gw.broadcast)
}
