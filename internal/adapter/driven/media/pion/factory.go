package pion

import (
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDisconnectedTimeout = 5 * time.Second
	DefaultFailedTimeout       = 25 * time.Second
	DefaultKeepaliveInterval   = 2 * time.Second
	DefaultPLIInterval         = 3 * time.Second
)

var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

type Config struct {
	ICEServers          []string
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepaliveInterval   time.Duration
	PLIInterval         time.Duration
	// IncludeLoopback gathers 127.0.0.1 candidates, useful on a single host.
	IncludeLoopback bool
}

// CodecSetup registers the codecs the local capture pipeline can produce.
type CodecSetup func(m *webrtc.MediaEngine) error

// Factory builds peer connections from one shared webrtc.API.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ port.PeerFactory = (*Factory)(nil)

func NewFactory(cfg Config, codecs CodecSetup) (*Factory, error) {
	if cfg.DisconnectedTimeout <= 0 {
		cfg.DisconnectedTimeout = DefaultDisconnectedTimeout
	}
	if cfg.FailedTimeout <= 0 {
		cfg.FailedTimeout = DefaultFailedTimeout
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.PLIInterval <= 0 {
		cfg.PLIInterval = DefaultPLIInterval
	}
	if codecs == nil {
		codecs = func(m *webrtc.MediaEngine) error { return m.RegisterDefaultCodecs() }
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := codecs(mediaEngine); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(cfg.PLIInterval))
	if err != nil {
		return nil, fmt.Errorf("pli interceptor: %w", err)
	}
	interceptorRegistry.Add(pli)
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepaliveInterval)
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	log.Debug().
		Strs("ice_servers", cfg.ICEServers).
		Dur("ice_disconnected_timeout", cfg.DisconnectedTimeout).
		Dur("ice_failed_timeout", cfg.FailedTimeout).
		Msg("WebRTC API ready")

	return &Factory{
		api:    api,
		config: webrtc.Configuration{ICEServers: servers},
	}, nil
}

func (f *Factory) NewPeerConnection(observer port.PeerObserver) (port.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	return newPeerConn(pc, observer), nil
}
