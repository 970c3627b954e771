package pion

import (
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TrackLocalProvider is implemented by local tracks that pion can send.
type TrackLocalProvider interface {
	TrackLocal() webrtc.TrackLocal
}

type peerConn struct {
	pc  *webrtc.PeerConnection
	obs port.PeerObserver
}

func newPeerConn(pc *webrtc.PeerConnection, obs port.PeerObserver) *peerConn {
	p := &peerConn{pc: pc, obs: obs}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		obs.OnLocalCandidate(fromCandidateInit(c.ToJSON()))
	})

	pc.OnTrack(func(t *webrtc.TrackRemote, r *webrtc.RTPReceiver) {
		log.Debug().
			Str("kind", t.Kind().String()).
			Str("codec", t.Codec().MimeType).
			Uint32("ssrc", uint32(t.SSRC())).
			Msg("Remote track received")

		if t.Kind() == webrtc.RTPCodecTypeVideo {
			// ask for a keyframe right away; the interval interceptor covers the rest
			if err := pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(t.SSRC())},
			}); err != nil {
				log.Debug().Err(err).Msg("Initial PLI failed")
			}
		}
		obs.OnRemoteTrack(&RemoteTrack{track: t, receiver: r})
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		obs.OnConnectionState(linkState(s))
	})

	return p
}

func (p *peerConn) AddTrack(t port.LocalTrack) (port.TrackSender, error) {
	provider, ok := t.(TrackLocalProvider)
	if !ok {
		return nil, fmt.Errorf("track %s cannot be sent by pion", t.ID())
	}
	local := provider.TrackLocal()
	sender, err := p.pc.AddTrack(local)
	if err != nil {
		return nil, err
	}

	// Read incoming RTCP so interceptors keep working.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	return &trackSender{sender: sender, track: local}, nil
}

func (p *peerConn) CreateOffer() (domain.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromSessionDescription(offer), nil
}

func (p *peerConn) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	return fromSessionDescription(answer), nil
}

func (p *peerConn) SetLocalDescription(desc domain.SessionDescription) error {
	return p.pc.SetLocalDescription(toSessionDescription(desc))
}

func (p *peerConn) SetRemoteDescription(desc domain.SessionDescription) error {
	return p.pc.SetRemoteDescription(toSessionDescription(desc))
}

func (p *peerConn) AddICECandidate(c domain.ICECandidate) error {
	return p.pc.AddICECandidate(toCandidateInit(c))
}

func (p *peerConn) Close() error {
	return p.pc.Close()
}

type trackSender struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
}

func (s *trackSender) Detach() error {
	return s.sender.ReplaceTrack(nil)
}

func (s *trackSender) Attach() error {
	return s.sender.ReplaceTrack(s.track)
}

// RemoteTrack is a track received from the peer. Media can be pulled with
// ReadRTP until the link closes.
type RemoteTrack struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
}

var _ port.RemoteTrack = (*RemoteTrack)(nil)

func (t *RemoteTrack) ID() string {
	return t.track.ID()
}

func (t *RemoteTrack) StreamID() string {
	return t.track.StreamID()
}

func (t *RemoteTrack) TrackKind() domain.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.TrackVideo
	}
	return domain.TrackAudio
}

func (t *RemoteTrack) MimeType() string {
	return t.track.Codec().MimeType
}

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	return pkt, err
}

func linkState(s webrtc.PeerConnectionState) domain.LinkState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.LinkConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.LinkFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.LinkClosed
	}
	return domain.LinkNew
}

func fromSessionDescription(d webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPType(d.Type.String()), SDP: d.SDP}
}

func toSessionDescription(d domain.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(d.Type)), SDP: d.SDP}
}

func fromCandidateInit(c webrtc.ICECandidateInit) domain.ICECandidate {
	return domain.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toCandidateInit(c domain.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
