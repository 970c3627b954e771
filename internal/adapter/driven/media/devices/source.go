package devices

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

type Config struct {
	MaxWidth     int
	MaxHeight    int
	VideoBitrate int
}

func (c Config) withDefaults() Config {
	if c.MaxWidth <= 0 {
		c.MaxWidth = 640
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = 480
	}
	if c.VideoBitrate <= 0 {
		c.VideoBitrate = 1_500_000
	}
	return c
}

// Opener opens the capture devices needed for kind and returns their tracks
// and a function releasing them.
type Opener interface {
	Open(ctx context.Context, kind domain.MediaKind) ([]port.LocalTrack, func() error, error)
}

// Source hands out capture devices to one holder at a time. Acquiring again
// releases whatever the previous holder still had open.
type Source struct {
	opener Opener

	mu     sync.Mutex
	active *capture
}

var _ port.MediaSource = (*Source)(nil)

func NewSource(opener Opener) *Source {
	return &Source{opener: opener}
}

func (s *Source) Acquire(ctx context.Context, kind domain.MediaKind) (port.LocalMedia, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: media kind %q", domain.ErrDeviceUnavailable, kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()
	if prev != nil {
		log.Warn().Msg("Capture devices still held, releasing previous capture")
		_ = prev.Stop()
	}

	tracks, stop, err := s.opener.Open(ctx, kind)
	if err != nil {
		return nil, mapCaptureError(err)
	}
	c := &capture{source: s, tracks: tracks, stop: stop}

	for _, want := range kind.Tracks() {
		if !c.has(want) {
			_ = c.Stop()
			return nil, fmt.Errorf("%w: no %s track captured", domain.ErrDeviceUnavailable, want)
		}
	}

	s.mu.Lock()
	s.active = c
	s.mu.Unlock()

	log.Info().Str("kind", string(kind)).Int("tracks", len(tracks)).Msg("Local media captured")
	return c, nil
}

func (s *Source) release(c *capture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == c {
		s.active = nil
	}
}

func mapCaptureError(err error) error {
	switch {
	case errors.Is(err, domain.ErrMediaAccessDenied), errors.Is(err, domain.ErrDeviceUnavailable):
		return err
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %w", domain.ErrMediaAccessDenied, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
}

type capture struct {
	source *Source
	tracks []port.LocalTrack
	stop   func() error
	once   sync.Once
	err    error
}

func (c *capture) Tracks() []port.LocalTrack {
	return c.tracks
}

func (c *capture) Stop() error {
	c.once.Do(func() {
		if c.stop != nil {
			c.err = c.stop()
		}
		c.source.release(c)
		log.Debug().Int("tracks", len(c.tracks)).Msg("Local media released")
	})
	return c.err
}

func (c *capture) has(kind domain.TrackKind) bool {
	for _, t := range c.tracks {
		if t.TrackKind() == kind {
			return true
		}
	}
	return false
}
