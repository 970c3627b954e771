//go:build !linux

package devices

import (
	"context"
	"fmt"
	"runtime"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/webrtc/v4"
)

// Capture has no device drivers on this platform; every open fails.
type Capture struct{}

var _ Opener = (*Capture)(nil)

func NewCapture(cfg Config) (*Capture, error) {
	return &Capture{}, nil
}

func (c *Capture) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (c *Capture) Open(ctx context.Context, kind domain.MediaKind) ([]port.LocalTrack, func() error, error) {
	return nil, nil, fmt.Errorf("%w: no capture drivers on %s", domain.ErrDeviceUnavailable, runtime.GOOS)
}
