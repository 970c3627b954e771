package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yacall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func newRelay(t *testing.T) (*httptest.Server, *ws.Hub) {
	t.Helper()
	hub := ws.NewHub()
	chat := service.NewChatService(memory.NewEventRepository(0), hub)
	h := NewHandler(chat, hub, "", ws.PeerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, hub
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type inbox struct {
	mu        sync.Mutex
	envelopes []domain.Envelope
	events    []domain.Event
	statuses  []domain.ChannelStatus
}

func (b *inbox) envelopeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.envelopes)
}

func (b *inbox) lastEnvelope() domain.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.envelopes[len(b.envelopes)-1]
}

func (b *inbox) eventCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *inbox) statusLog() []domain.ChannelStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.ChannelStatus(nil), b.statuses...)
}

func connect(t *testing.T, srv *httptest.Server, user domain.UserID) (*ws.Client, *inbox) {
	t.Helper()
	c := ws.NewClient(ws.ClientConfig{
		URL:        wsURL(srv),
		UserID:     user,
		MinBackoff: 20 * time.Millisecond,
		MaxBackoff: 100 * time.Millisecond,
	})
	box := &inbox{}
	c.Subscribe(user, func(env domain.Envelope) {
		box.mu.Lock()
		box.envelopes = append(box.envelopes, env)
		box.mu.Unlock()
	})
	c.SubscribeEvents(func(ev domain.Event) {
		box.mu.Lock()
		box.events = append(box.events, ev)
		box.mu.Unlock()
	})
	c.SubscribeStatus(func(s domain.ChannelStatus) {
		box.mu.Lock()
		box.statuses = append(box.statuses, s)
		box.mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, c.Connected, waitFor, tick)
	return c, box
}

func TestServeWSRequiresUser(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRelayForwardsEnvelopesWithSenderIdentity(t *testing.T) {
	srv, hub := newRelay(t)
	alice, _ := connect(t, srv, "alice")
	_, bobBox := connect(t, srv, "bob")
	require.Eventually(t, func() bool { return hub.Online("alice") && hub.Online("bob") }, waitFor, tick)

	forged := domain.NewEnvelope(domain.EnvelopeInvite, domain.NewCallID(), "mallory", "bob", domain.Payload{MediaKind: domain.MediaAudioVideo})
	require.NoError(t, alice.Send(context.Background(), forged))

	require.Eventually(t, func() bool { return bobBox.envelopeCount() == 1 }, waitFor, tick)
	got := bobBox.lastEnvelope()
	assert.Equal(t, domain.EnvelopeInvite, got.Type)
	assert.Equal(t, domain.UserID("alice"), got.From)
	assert.Equal(t, forged.CallID, got.CallID)
	assert.Equal(t, domain.MediaAudioVideo, got.Payload.MediaKind)
}

func TestRelayBouncesInviteToOfflineUser(t *testing.T) {
	srv, hub := newRelay(t)
	alice, aliceBox := connect(t, srv, "alice")
	require.Eventually(t, func() bool { return hub.Online("alice") }, waitFor, tick)

	invite := domain.NewEnvelope(domain.EnvelopeInvite, domain.NewCallID(), "alice", "nobody", domain.Payload{MediaKind: domain.MediaAudio})
	require.NoError(t, alice.Send(context.Background(), invite))

	require.Eventually(t, func() bool { return aliceBox.envelopeCount() == 1 }, waitFor, tick)
	got := aliceBox.lastEnvelope()
	assert.Equal(t, domain.EnvelopeDecline, got.Type)
	assert.Equal(t, domain.ReasonUnavailable, got.Payload.Reason)
}

func TestChatEventsAreBroadcastAndStored(t *testing.T) {
	srv, hub := newRelay(t)
	alice, _ := connect(t, srv, "alice")
	_, bobBox := connect(t, srv, "bob")
	require.Eventually(t, func() bool { return hub.Online("alice") && hub.Online("bob") }, waitFor, tick)

	room := domain.NewRoomID()
	ev, err := domain.NewEvent(domain.EventChat, "alice", room, "", "hello", time.Now())
	require.NoError(t, err)
	require.NoError(t, alice.SendEvent(context.Background(), *ev))

	require.Eventually(t, func() bool { return bobBox.eventCount() == 1 }, waitFor, tick)

	resp, err := http.Get(srv.URL + "/api/rooms/" + room.String() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history []ws.EventDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "alice", history[0].From)

	bad, err := http.Get(srv.URL + "/api/rooms/not-a-room/events")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestClientReconnectsAfterLoss(t *testing.T) {
	srv, hub := newRelay(t)
	_, box := connect(t, srv, "alice")
	require.Eventually(t, func() bool { return hub.Online("alice") }, waitFor, tick)

	// A second login for the same user evicts the client's connection.
	intruder, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?user_id=alice", nil)
	require.NoError(t, err)
	defer intruder.Close()

	require.Eventually(t, func() bool {
		log := box.statusLog()
		return len(log) >= 3 && log[len(log)-1] == domain.ChannelConnected
	}, waitFor, tick)
	log := box.statusLog()
	assert.Equal(t, []domain.ChannelStatus{domain.ChannelConnected, domain.ChannelDisconnected, domain.ChannelConnected}, log[:3])
}

func TestSendWhileDisconnectedFails(t *testing.T) {
	c := ws.NewClient(ws.ClientConfig{URL: "ws://127.0.0.1:1/ws", UserID: "alice"})

	err := c.Send(context.Background(), domain.NewEnvelope(domain.EnvelopeHangup, domain.NewCallID(), "alice", "bob", domain.Payload{}))
	assert.ErrorIs(t, err, domain.ErrSignalingDelivery)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestPresence(t *testing.T) {
	srv, hub := newRelay(t)
	connect(t, srv, "alice")
	require.Eventually(t, func() bool { return hub.Online("alice") }, waitFor, tick)

	for user, want := range map[string]bool{"alice": true, "bob": false} {
		resp, err := http.Get(srv.URL + "/api/users/" + user + "/presence")
		require.NoError(t, err)

		var body struct {
			UserID string `json:"user_id"`
			Online bool   `json:"online"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()

		assert.Equal(t, user, body.UserID)
		assert.Equal(t, want, body.Online, user)
	}
}
