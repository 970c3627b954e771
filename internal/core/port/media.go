package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// MediaSource is the sole owner of capture devices.
// Acquire fails with domain.ErrMediaAccessDenied or domain.ErrDeviceUnavailable.
type MediaSource interface {
	Acquire(ctx context.Context, kind domain.MediaKind) (LocalMedia, error)
}

type LocalMedia interface {
	Tracks() []LocalTrack
	// Stop releases the capture devices. Safe to call more than once.
	Stop() error
}

type LocalTrack interface {
	ID() string
	TrackKind() domain.TrackKind
}
