//go:build linux

package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Capture opens the camera and microphone through pion/mediadevices and
// encodes them with VP8 and Opus.
type Capture struct {
	cfg      Config
	selector *mediadevices.CodecSelector
}

var _ Opener = (*Capture)(nil)

func NewCapture(cfg Config) (*Capture, error) {
	cfg = cfg.withDefaults()

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = cfg.VideoBitrate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &Capture{
		cfg: cfg,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// RegisterCodecs limits the media engine to the codecs the encoders produce.
func (c *Capture) RegisterCodecs(m *webrtc.MediaEngine) error {
	c.selector.Populate(m)
	return nil
}

func (c *Capture) Open(ctx context.Context, kind domain.MediaKind) ([]port.LocalTrack, func() error, error) {
	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		return nil, nil, errors.New("no media devices found")
	}
	for _, d := range devices {
		log.Debug().Str("label", d.Label).Str("device_id", d.DeviceID).Msg("Media device")
	}

	constraints := mediadevices.MediaStreamConstraints{
		Codec: c.selector,
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
	}
	if kind == domain.MediaAudioVideo {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// raw formats only, MJPEG nodes produce frames the VP8 encoder rejects
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: c.cfg.MaxWidth}
			mc.Height = prop.IntRanged{Max: c.cfg.MaxHeight}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, nil, fmt.Errorf("get user media (%s): %w", kind, err)
	}

	raw := stream.GetTracks()
	tracks := make([]port.LocalTrack, 0, len(raw))
	for _, t := range raw {
		t := t
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("track_id", t.ID()).Msg("Local track ended")
			}
		})
		tracks = append(tracks, localTrack{track: t})
	}

	stop := func() error {
		var errs []error
		for _, t := range raw {
			if err := t.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return tracks, stop, nil
}

type localTrack struct {
	track mediadevices.Track
}

func (t localTrack) ID() string {
	return t.track.ID()
}

func (t localTrack) TrackKind() domain.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.TrackVideo
	}
	return domain.TrackAudio
}

func (t localTrack) TrackLocal() webrtc.TrackLocal {
	return t.track
}
