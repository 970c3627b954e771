package main

import (
	"context"
	"errors"
	"io"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

type rtpReader interface {
	MimeType() string
	ReadRTP() (*rtp.Packet, error)
}

// watch logs call updates, answers incoming calls when autoAccept is set and
// drains every remote track.
func watch(ctx context.Context, calls *service.CallService, updates <-chan service.CallUpdate, autoAccept bool) {
	var last domain.CallState
	draining := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			s := u.Session
			l := log.With().
				Str("call_id", s.ID.String()).
				Str("remote", s.RemoteUserID.String()).
				Logger()

			if s.State != last {
				ev := l.Info().Str("state", string(s.State)).Str("media", string(s.MediaKind))
				if u.Local != nil && !u.Local.Stopped() {
					ev = ev.Str("captured", string(u.Local.Kind())).Int("local_tracks", len(u.Local.Tracks()))
				}
				if s.State == domain.StateEnded {
					ev = ev.Str("reason", string(s.EndReason))
					if s.ConnectedAt != nil && s.EndedAt != nil {
						ev = ev.Dur("duration", s.EndedAt.Sub(*s.ConnectedAt))
					}
				}
				ev.Msg("Call state")
				last = s.State

				if s.State == domain.StateIncoming && autoAccept {
					go func(id domain.CallID) {
						if err := calls.AcceptCall(ctx, id); err != nil {
							log.Error().Err(err).Str("call_id", id.String()).Msg("Auto-accept failed")
						}
					}(s.ID)
				}
			}

			for _, t := range u.Remote {
				if draining[t.ID()] {
					continue
				}
				draining[t.ID()] = true
				go drain(t)
			}
			if s.State == domain.StateEnded {
				draining = make(map[string]bool)
			}
		}
	}
}

func drain(t port.RemoteTrack) {
	r, ok := t.(rtpReader)
	if !ok {
		return
	}
	l := log.With().
		Str("track_id", t.ID()).
		Str("kind", string(t.TrackKind())).
		Str("codec", r.MimeType()).
		Logger()
	l.Info().Msg("Receiving remote track")

	var packets, bytes int
	for {
		p, err := r.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.Debug().Err(err).Msg("Remote track read stopped")
			}
			break
		}
		packets++
		bytes += len(p.Payload)
		if packets%1000 == 0 {
			l.Debug().Int("packets", packets).Int("bytes", bytes).Msg("Remote track progress")
		}
	}
	l.Info().Int("packets", packets).Int("bytes", bytes).Msg("Remote track ended")
}
