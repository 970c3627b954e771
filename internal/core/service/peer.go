package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type PeerEventType int

const (
	PeerLocalCandidate PeerEventType = iota
	PeerRemoteStream
	PeerLinkFailed
)

func (t PeerEventType) String() string {
	switch t {
	case PeerLocalCandidate:
		return "local-candidate"
	case PeerRemoteStream:
		return "remote-stream"
	case PeerLinkFailed:
		return "link-failed"
	}
	return "unknown"
}

type PeerEvent struct {
	Type      PeerEventType
	Candidate domain.ICECandidate
	Track     port.RemoteTrack
	State     domain.LinkState
}

const peerEventBuffer = 128

// PeerManager owns the local media and the peer link of a single call.
// Negotiation results are reported on Events until Teardown.
type PeerManager struct {
	callID  domain.CallID
	source  port.MediaSource
	factory port.PeerFactory
	log     zerolog.Logger

	// negMu serializes SDP and candidate operations on the link.
	negMu sync.Mutex

	mu              sync.Mutex
	media           *LocalMediaHandle
	pc              port.PeerConnection
	senders         map[domain.TrackKind][]port.TrackSender
	remote          *domain.SessionDescription
	pending         candidateQueue
	remoteTracks    []port.RemoteTrack
	streamAnnounced bool
	closed          bool

	events chan PeerEvent
	done   chan struct{}
}

func NewPeerManager(callID domain.CallID, source port.MediaSource, factory port.PeerFactory) *PeerManager {
	return &PeerManager{
		callID:  callID,
		source:  source,
		factory: factory,
		log:     log.With().Str("call_id", callID.String()).Logger(),
		senders: make(map[domain.TrackKind][]port.TrackSender),
		events:  make(chan PeerEvent, peerEventBuffer),
		done:    make(chan struct{}),
	}
}

func (pm *PeerManager) Events() <-chan PeerEvent {
	return pm.events
}

// Done is closed by Teardown.
func (pm *PeerManager) Done() <-chan struct{} {
	return pm.done
}

// AcquireLocalMedia captures devices for kind, releasing any handle held before.
func (pm *PeerManager) AcquireLocalMedia(ctx context.Context, kind domain.MediaKind) (*LocalMediaHandle, error) {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return nil, domain.ErrLinkClosed
	}
	prev := pm.media
	pm.media = nil
	pm.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(); err != nil {
			pm.log.Warn().Err(err).Msg("Failed to release previous local media")
		}
	}

	media, err := pm.source.Acquire(ctx, kind)
	if err != nil {
		return nil, err
	}
	h := newLocalMediaHandle(kind, media)

	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		_ = h.Stop()
		return nil, domain.ErrLinkClosed
	}
	raced := pm.media
	pm.media = h
	pm.mu.Unlock()

	if raced != nil {
		_ = raced.Stop()
	}
	pm.log.Debug().Str("kind", string(kind)).Int("tracks", len(h.Tracks())).Msg("Local media acquired")
	return h, nil
}

// CreateLink builds the peer connection and attaches the local tracks.
// Local ICE candidates are emitted as PeerLocalCandidate events as soon as
// they are discovered.
func (pm *PeerManager) CreateLink(remoteUserID domain.UserID) error {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return domain.ErrLinkClosed
	}
	if pm.pc != nil {
		pm.mu.Unlock()
		return fmt.Errorf("%w: link already exists", domain.ErrInvalidNegotiationState)
	}
	pm.mu.Unlock()

	pc, err := pm.factory.NewPeerConnection(pm)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		_ = pc.Close()
		return domain.ErrLinkClosed
	}
	pm.pc = pc
	media := pm.media
	pm.mu.Unlock()

	if media != nil {
		for _, t := range media.Tracks() {
			sender, err := pc.AddTrack(t)
			if err != nil {
				return fmt.Errorf("add %s track: %w", t.TrackKind(), err)
			}
			if !media.Enabled(t.TrackKind()) {
				if err := sender.Detach(); err != nil {
					pm.log.Warn().Err(err).Str("kind", string(t.TrackKind())).Msg("Failed to detach disabled track")
				}
			}
			pm.mu.Lock()
			pm.senders[t.TrackKind()] = append(pm.senders[t.TrackKind()], sender)
			pm.mu.Unlock()
		}
	}

	pm.log.Debug().Str("remote_user_id", remoteUserID.String()).Msg("Peer link created")
	return nil
}

func (pm *PeerManager) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	return pm.createLocal(ctx, domain.SDPOffer)
}

// CreateAnswer requires a remote offer to have been applied.
func (pm *PeerManager) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	return pm.createLocal(ctx, domain.SDPAnswer)
}

func (pm *PeerManager) createLocal(ctx context.Context, typ domain.SDPType) (domain.SessionDescription, error) {
	pm.negMu.Lock()
	defer pm.negMu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}

	pm.mu.Lock()
	closed, pc, remote := pm.closed, pm.pc, pm.remote
	pm.mu.Unlock()

	if closed {
		return domain.SessionDescription{}, domain.ErrLinkClosed
	}
	if pc == nil {
		return domain.SessionDescription{}, fmt.Errorf("%w: no link", domain.ErrInvalidNegotiationState)
	}

	var (
		desc domain.SessionDescription
		err  error
	)
	switch typ {
	case domain.SDPOffer:
		if remote != nil {
			return desc, fmt.Errorf("%w: remote description already set", domain.ErrInvalidNegotiationState)
		}
		desc, err = pc.CreateOffer()
	case domain.SDPAnswer:
		if remote == nil || remote.Type != domain.SDPOffer {
			return desc, fmt.Errorf("%w: answer requires a remote offer", domain.ErrInvalidNegotiationState)
		}
		desc, err = pc.CreateAnswer()
	}
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create %s: %w", typ, err)
	}
	if err := pc.SetLocalDescription(desc); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local %s: %w", typ, err)
	}
	return desc, nil
}

// ApplyRemoteDescription sets the remote description and flushes candidates
// buffered while it was missing, in arrival order.
func (pm *PeerManager) ApplyRemoteDescription(desc domain.SessionDescription) error {
	pm.negMu.Lock()
	defer pm.negMu.Unlock()

	pm.mu.Lock()
	closed, pc, remote := pm.closed, pm.pc, pm.remote
	pm.mu.Unlock()

	if closed {
		return domain.ErrLinkClosed
	}
	if pc == nil {
		return fmt.Errorf("%w: no link", domain.ErrInvalidNegotiationState)
	}
	if remote != nil {
		return fmt.Errorf("%w: remote description already set", domain.ErrInvalidNegotiationState)
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}

	pm.mu.Lock()
	d := desc
	pm.remote = &d
	queued := pm.pending.drain()
	pm.mu.Unlock()

	if len(queued) > 0 {
		pm.log.Debug().Int("count", len(queued)).Msg("Flushing buffered remote candidates")
	}
	for _, c := range queued {
		pm.addCandidate(pc, c)
	}
	return nil
}

// ApplyRemoteCandidate applies c, or buffers it until the remote description
// is known. Invalid candidates are logged and dropped.
func (pm *PeerManager) ApplyRemoteCandidate(c domain.ICECandidate) error {
	pm.negMu.Lock()
	defer pm.negMu.Unlock()

	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return domain.ErrLinkClosed
	}
	if pm.remote == nil {
		pm.pending.push(c)
		n := pm.pending.len()
		pm.mu.Unlock()
		pm.log.Debug().Int("buffered", n).Msg("Remote candidate buffered")
		return nil
	}
	pc := pm.pc
	pm.mu.Unlock()

	pm.addCandidate(pc, c)
	return nil
}

func (pm *PeerManager) addCandidate(pc port.PeerConnection, c domain.ICECandidate) {
	if err := pc.AddICECandidate(c); err != nil {
		pm.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Ignoring invalid remote candidate")
	}
}

// SetTrackEnabled flips a local track on or off without renegotiation.
func (pm *PeerManager) SetTrackEnabled(kind domain.TrackKind, on bool) error {
	pm.mu.Lock()
	media := pm.media
	senders := append([]port.TrackSender(nil), pm.senders[kind]...)
	closed := pm.closed
	pm.mu.Unlock()

	if closed {
		return domain.ErrLinkClosed
	}
	if media == nil || !media.Has(kind) {
		return fmt.Errorf("%w: no local %s track", domain.ErrInvalidState, kind)
	}
	media.setEnabled(kind, on)

	for _, s := range senders {
		var err error
		if on {
			err = s.Attach()
		} else {
			err = s.Detach()
		}
		if err != nil {
			return fmt.Errorf("toggle %s sender: %w", kind, err)
		}
	}
	return nil
}

func (pm *PeerManager) LocalMedia() *LocalMediaHandle {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.media
}

func (pm *PeerManager) RemoteTracks() []port.RemoteTrack {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return append([]port.RemoteTrack(nil), pm.remoteTracks...)
}

// Teardown stops local media, closes the link and drops buffered candidates.
// It may be called any number of times from any state.
func (pm *PeerManager) Teardown() {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return
	}
	pm.closed = true
	media, pc := pm.media, pm.pc
	pm.media = nil
	pm.pc = nil
	pm.senders = make(map[domain.TrackKind][]port.TrackSender)
	pm.pending.clear()
	pm.remoteTracks = nil
	close(pm.done)
	pm.mu.Unlock()

	if media != nil {
		if err := media.Stop(); err != nil {
			pm.log.Warn().Err(err).Msg("Failed to stop local media")
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			pm.log.Warn().Err(err).Msg("Failed to close peer connection")
		}
	}
	pm.log.Debug().Msg("Peer manager torn down")
}

// OnLocalCandidate implements port.PeerObserver.
func (pm *PeerManager) OnLocalCandidate(c domain.ICECandidate) {
	select {
	case pm.events <- PeerEvent{Type: PeerLocalCandidate, Candidate: c}:
	case <-pm.done:
	default:
		pm.log.Warn().Str("candidate", c.Candidate).Msg("Peer event buffer full, dropping local candidate")
	}
}

// OnRemoteTrack implements port.PeerObserver.
func (pm *PeerManager) OnRemoteTrack(t port.RemoteTrack) {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return
	}
	pm.remoteTracks = append(pm.remoteTracks, t)
	first := !pm.streamAnnounced
	pm.streamAnnounced = true
	pm.mu.Unlock()

	pm.log.Debug().Str("kind", string(t.TrackKind())).Str("track_id", t.ID()).Msg("Remote track received")
	if first {
		pm.emit(PeerEvent{Type: PeerRemoteStream, Track: t})
	}
}

// OnConnectionState implements port.PeerObserver.
func (pm *PeerManager) OnConnectionState(s domain.LinkState) {
	pm.log.Debug().Str("link_state", string(s)).Msg("Peer link state changed")
	if s == domain.LinkFailed {
		pm.emit(PeerEvent{Type: PeerLinkFailed, State: s})
	}
}

func (pm *PeerManager) emit(ev PeerEvent) {
	select {
	case pm.events <- ev:
	case <-pm.done:
	}
}
