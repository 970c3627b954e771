package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"go.uber.org/atomic"
)

// fakeNet delivers envelopes synchronously between fakeSignal endpoints.
type fakeNet struct {
	mu    sync.Mutex
	peers map[domain.UserID]*fakeSignal
}

func newFakeNet() *fakeNet {
	return &fakeNet{peers: make(map[domain.UserID]*fakeSignal)}
}

func (n *fakeNet) join(user domain.UserID) *fakeSignal {
	s := &fakeSignal{
		net:      n,
		user:     user,
		handlers: make(map[int]func(domain.Envelope)),
		status:   make(map[int]func(domain.ChannelStatus)),
		failures: make(map[domain.EnvelopeType]int),
		attempts: make(map[domain.EnvelopeType]int),
	}
	n.mu.Lock()
	n.peers[user] = s
	n.mu.Unlock()
	return s
}

func (n *fakeNet) deliver(env domain.Envelope) {
	n.mu.Lock()
	peer := n.peers[env.To]
	n.mu.Unlock()
	if peer != nil {
		peer.dispatch(env)
	}
}

type fakeSignal struct {
	net  *fakeNet
	user domain.UserID

	mu       sync.Mutex
	handlers map[int]func(domain.Envelope)
	status   map[int]func(domain.ChannelStatus)
	next     int
	failures map[domain.EnvelopeType]int
	attempts map[domain.EnvelopeType]int
	sent     []domain.Envelope
}

var _ port.SignalingChannel = (*fakeSignal)(nil)

func (s *fakeSignal) Send(ctx context.Context, env domain.Envelope) error {
	s.mu.Lock()
	s.attempts[env.Type]++
	if n := s.failures[env.Type]; n != 0 {
		if n > 0 {
			s.failures[env.Type]--
		}
		s.mu.Unlock()
		return domain.ErrNotConnected
	}
	s.sent = append(s.sent, env)
	s.mu.Unlock()

	s.net.deliver(env)
	return nil
}

func (s *fakeSignal) Subscribe(userID domain.UserID, handler func(domain.Envelope)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.handlers[id] = handler
	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

func (s *fakeSignal) SubscribeStatus(handler func(domain.ChannelStatus)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.status[id] = handler
	return func() {
		s.mu.Lock()
		delete(s.status, id)
		s.mu.Unlock()
	}
}

func (s *fakeSignal) dispatch(env domain.Envelope) {
	s.mu.Lock()
	handlers := make([]func(domain.Envelope), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(env)
	}
}

func (s *fakeSignal) setStatus(st domain.ChannelStatus) {
	s.mu.Lock()
	handlers := make([]func(domain.ChannelStatus), 0, len(s.status))
	for _, h := range s.status {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(st)
	}
}

func (s *fakeSignal) subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers) > 0 && len(s.status) > 0
}

// failNext makes the next n sends of t fail. A negative n fails forever.
func (s *fakeSignal) failNext(t domain.EnvelopeType, n int) {
	s.mu.Lock()
	s.failures[t] = n
	s.mu.Unlock()
}

func (s *fakeSignal) attemptsOf(t domain.EnvelopeType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[t]
}

func (s *fakeSignal) sentTypes() []domain.EnvelopeType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EnvelopeType, len(s.sent))
	for i, env := range s.sent {
		out[i] = env.Type
	}
	return out
}

type fakeTrack struct {
	id   string
	kind domain.TrackKind
}

func (t fakeTrack) ID() string                  { return t.id }
func (t fakeTrack) StreamID() string            { return "stream-" + t.id }
func (t fakeTrack) TrackKind() domain.TrackKind { return t.kind }

type fakeMedia struct {
	tracks []port.LocalTrack
	stops  atomic.Int32
}

func (m *fakeMedia) Tracks() []port.LocalTrack { return m.tracks }

func (m *fakeMedia) Stop() error {
	m.stops.Inc()
	return nil
}

func (m *fakeMedia) stopped() bool {
	return m.stops.Load() > 0
}

type fakeSource struct {
	mu       sync.Mutex
	err      error
	acquired []*fakeMedia
}

func (s *fakeSource) Acquire(ctx context.Context, kind domain.MediaKind) (port.LocalMedia, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	m := &fakeMedia{}
	for _, k := range kind.Tracks() {
		m.tracks = append(m.tracks, fakeTrack{id: fmt.Sprintf("%s-%d", k, len(s.acquired)), kind: k})
	}
	s.acquired = append(s.acquired, m)
	return m, nil
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeSource) last() *fakeMedia {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.acquired) == 0 {
		return nil
	}
	return s.acquired[len(s.acquired)-1]
}

type fakeSender struct {
	attached atomic.Bool
}

func (s *fakeSender) Detach() error {
	s.attached.Store(false)
	return nil
}

func (s *fakeSender) Attach() error {
	s.attached.Store(true)
	return nil
}

var errBadCandidate = errors.New("malformed candidate")

// fakePC reports a remote track once both descriptions are set and emits its
// configured local candidates when the local description is applied.
type fakePC struct {
	obs  port.PeerObserver
	emit []string

	mu           sync.Mutex
	local        *domain.SessionDescription
	remote       *domain.SessionDescription
	candidates   []domain.ICECandidate
	senders      []*fakeSender
	closed       bool
	connected    bool
	setRemoteErr error
}

func (pc *fakePC) AddTrack(t port.LocalTrack) (port.TrackSender, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	s := &fakeSender{}
	s.attached.Store(true)
	pc.senders = append(pc.senders, s)
	return s, nil
}

func (pc *fakePC) CreateOffer() (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: "v=0 offer"}, nil
}

func (pc *fakePC) CreateAnswer() (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: "v=0 answer"}, nil
}

func (pc *fakePC) SetLocalDescription(desc domain.SessionDescription) error {
	pc.mu.Lock()
	pc.local = &desc
	pc.mu.Unlock()
	for _, c := range pc.emit {
		pc.obs.OnLocalCandidate(domain.ICECandidate{Candidate: c})
	}
	pc.maybeConnect()
	return nil
}

func (pc *fakePC) SetRemoteDescription(desc domain.SessionDescription) error {
	pc.mu.Lock()
	if pc.setRemoteErr != nil {
		pc.mu.Unlock()
		return pc.setRemoteErr
	}
	pc.remote = &desc
	pc.mu.Unlock()
	pc.maybeConnect()
	return nil
}

func (pc *fakePC) maybeConnect() {
	pc.mu.Lock()
	ready := pc.local != nil && pc.remote != nil && !pc.connected && !pc.closed
	if ready {
		pc.connected = true
	}
	pc.mu.Unlock()
	if ready {
		go pc.obs.OnRemoteTrack(fakeTrack{id: "remote-audio", kind: domain.TrackAudio})
	}
}

func (pc *fakePC) AddICECandidate(c domain.ICECandidate) error {
	if c.Candidate == "bad" {
		return errBadCandidate
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.candidates = append(pc.candidates, c)
	return nil
}

func (pc *fakePC) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.closed = true
	return nil
}

func (pc *fakePC) appliedCandidates() []string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := make([]string, len(pc.candidates))
	for i, c := range pc.candidates {
		out[i] = c.Candidate
	}
	return out
}

func (pc *fakePC) isClosed() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.closed
}

func (pc *fakePC) sender(i int) *fakeSender {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.senders[i]
}

type fakeFactory struct {
	emit []string

	mu  sync.Mutex
	pcs []*fakePC
}

func (f *fakeFactory) NewPeerConnection(obs port.PeerObserver) (port.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc := &fakePC{obs: obs, emit: f.emit}
	f.pcs = append(f.pcs, pc)
	return pc, nil
}

func (f *fakeFactory) last() *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pcs) == 0 {
		return nil
	}
	return f.pcs[len(f.pcs)-1]
}
