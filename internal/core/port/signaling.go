package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// SignalingChannel carries call-control envelopes between users through the relay.
// Delivery is at-most-once and nothing is replayed after a reconnect.
type SignalingChannel interface {
	Send(ctx context.Context, env domain.Envelope) error
	Subscribe(userID domain.UserID, handler func(domain.Envelope)) (unsubscribe func())
	SubscribeStatus(handler func(domain.ChannelStatus)) (unsubscribe func())
}

// EventChannel shares the signaling connection for chat, typing and live comments.
type EventChannel interface {
	SendEvent(ctx context.Context, ev domain.Event) error
	SubscribeEvents(handler func(domain.Event)) (unsubscribe func())
}
