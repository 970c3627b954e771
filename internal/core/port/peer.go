package port

import "github.com/Wyydra/yacall/internal/core/domain"

// PeerObserver receives the asynchronous notifications of a PeerConnection.
type PeerObserver interface {
	OnLocalCandidate(c domain.ICECandidate)
	OnRemoteTrack(t RemoteTrack)
	OnConnectionState(s domain.LinkState)
}

type PeerFactory interface {
	NewPeerConnection(observer PeerObserver) (PeerConnection, error)
}

type PeerConnection interface {
	AddTrack(t LocalTrack) (TrackSender, error)
	CreateOffer() (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	AddICECandidate(c domain.ICECandidate) error
	Close() error
}

// TrackSender controls whether a local track is currently sent to the peer.
type TrackSender interface {
	Detach() error
	Attach() error
}

type RemoteTrack interface {
	ID() string
	StreamID() string
	TrackKind() domain.TrackKind
}
