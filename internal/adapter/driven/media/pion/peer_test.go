package pion

import (
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleTrack struct {
	track *webrtc.TrackLocalStaticSample
}

func (t sampleTrack) ID() string                    { return t.track.ID() }
func (t sampleTrack) TrackKind() domain.TrackKind   { return domain.TrackAudio }
func (t sampleTrack) TrackLocal() webrtc.TrackLocal { return t.track }

type bareTrack struct{}

func (bareTrack) ID() string                  { return "bare" }
func (bareTrack) TrackKind() domain.TrackKind { return domain.TrackAudio }

type recorder struct {
	mu         sync.Mutex
	candidates []domain.ICECandidate
	tracks     []port.RemoteTrack
	states     []domain.LinkState
	onCand     func(domain.ICECandidate)
}

func (r *recorder) OnLocalCandidate(c domain.ICECandidate) {
	r.mu.Lock()
	r.candidates = append(r.candidates, c)
	fn := r.onCand
	r.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (r *recorder) OnRemoteTrack(t port.RemoteTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = append(r.tracks, t)
}

func (r *recorder) OnConnectionState(s domain.LinkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

// forwardTo applies gathered and future candidates to pc.
func (r *recorder) forwardTo(pc port.PeerConnection) {
	r.mu.Lock()
	pending := append([]domain.ICECandidate(nil), r.candidates...)
	r.onCand = func(c domain.ICECandidate) { _ = pc.AddICECandidate(c) }
	r.mu.Unlock()
	for _, c := range pending {
		_ = pc.AddICECandidate(c)
	}
}

func (r *recorder) hasState(s domain.LinkState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.states {
		if st == s {
			return true
		}
	}
	return false
}

func (r *recorder) trackCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks)
}

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	f, err := NewFactory(Config{ICEServers: []string{}, IncludeLoopback: true}, nil)
	require.NoError(t, err)
	return f
}

func TestLoopbackCall(t *testing.T) {
	f := newTestFactory(t)

	callerObs, calleeObs := &recorder{}, &recorder{}
	caller, err := f.NewPeerConnection(callerObs)
	require.NoError(t, err)
	defer caller.Close()
	callee, err := f.NewPeerConnection(calleeObs)
	require.NoError(t, err)
	defer callee.Close()

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "caller")
	require.NoError(t, err)
	sender, err := caller.AddTrack(sampleTrack{track: audio})
	require.NoError(t, err)

	offer, err := caller.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, domain.SDPOffer, offer.Type)
	require.NoError(t, caller.SetLocalDescription(offer))

	require.NoError(t, callee.SetRemoteDescription(offer))
	answer, err := callee.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, domain.SDPAnswer, answer.Type)
	require.NoError(t, callee.SetLocalDescription(answer))
	require.NoError(t, caller.SetRemoteDescription(answer))

	callerObs.forwardTo(callee)
	calleeObs.forwardTo(caller)

	require.Eventually(t, func() bool {
		return callerObs.hasState(domain.LinkConnected) && calleeObs.hasState(domain.LinkConnected)
	}, 10*time.Second, 20*time.Millisecond)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = audio.WriteSample(media.Sample{Data: []byte{0xf8, 0xff, 0xfe}, Duration: 20 * time.Millisecond})
			}
		}
	}()

	require.Eventually(t, func() bool { return calleeObs.trackCount() == 1 }, 10*time.Second, 20*time.Millisecond)
	calleeObs.mu.Lock()
	remote := calleeObs.tracks[0]
	calleeObs.mu.Unlock()
	assert.Equal(t, domain.TrackAudio, remote.TrackKind())
	assert.Equal(t, "caller", remote.StreamID())

	pkt, err := remote.(*RemoteTrack).ReadRTP()
	require.NoError(t, err)
	assert.NotZero(t, pkt.SSRC)

	require.NoError(t, sender.Detach())
	require.NoError(t, sender.Attach())

	require.NoError(t, caller.Close())
	require.Eventually(t, func() bool { return callerObs.hasState(domain.LinkClosed) }, 5*time.Second, 20*time.Millisecond)
}

func TestAddTrackNeedsPionTrack(t *testing.T) {
	f := newTestFactory(t)
	pc, err := f.NewPeerConnection(&recorder{})
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.AddTrack(bareTrack{})
	assert.Error(t, err)
}

func TestAnswerWithoutOfferFails(t *testing.T) {
	f := newTestFactory(t)
	pc, err := f.NewPeerConnection(&recorder{})
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.CreateAnswer()
	assert.Error(t, err)
	assert.Error(t, pc.SetRemoteDescription(domain.SessionDescription{Type: domain.SDPOffer, SDP: "garbage"}))
}

func TestLinkStateMapping(t *testing.T) {
	assert.Equal(t, domain.LinkFailed, linkState(webrtc.PeerConnectionStateFailed))
	assert.Equal(t, domain.LinkConnected, linkState(webrtc.PeerConnectionStateConnected))
	assert.Equal(t, domain.LinkClosed, linkState(webrtc.PeerConnectionStateClosed))
	assert.Equal(t, domain.LinkNew, linkState(webrtc.PeerConnectionStateNew))
}

func TestCandidateConversion(t *testing.T) {
	mid := "0"
	var idx uint16 = 0
	c := domain.ICECandidate{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}
	assert.Equal(t, c, fromCandidateInit(toCandidateInit(c)))
}
