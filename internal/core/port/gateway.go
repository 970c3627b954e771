package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// Gateway is the relay-side delivery surface for connected clients.
type Gateway interface {
	SendCallSignal(ctx context.Context, env domain.Envelope) error
	SendEvent(ctx context.Context, to domain.UserID, ev domain.Event) error
	BroadcastEvent(ctx context.Context, ev domain.Event) error
}
