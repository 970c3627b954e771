package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CallUpdate is published on every session change for rendering.
type CallUpdate struct {
	Session domain.CallSession
	Local   *LocalMediaHandle
	Remote  []port.RemoteTrack
}

type activeCall struct {
	session *domain.CallSession
	peer    *PeerManager
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	offer      *domain.SessionDescription
	answered   bool
	remoteUp   bool
	inviteSent bool

	// outbound candidates wait here until the remote side knows the call
	signalReady bool
	outbox      []domain.ICECandidate

	ringTimer  *clock.Timer
	graceTimer *clock.Timer
	graceGen   int
}

// CallService is the call state machine of one logged-in client. It owns at
// most one live CallSession at a time.
type CallService struct {
	self      domain.UserID
	signaling port.SignalingChannel
	source    port.MediaSource
	factory   port.PeerFactory
	opts      options

	mu        sync.Mutex
	current   *activeCall
	connected bool

	subsMu  sync.Mutex
	subs    map[int]chan CallUpdate
	nextSub int

	wg sync.WaitGroup
}

func NewCallService(self domain.UserID, signaling port.SignalingChannel, source port.MediaSource, factory port.PeerFactory, opts ...Option) *CallService {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &CallService{
		self:      self,
		signaling: signaling,
		source:    source,
		factory:   factory,
		opts:      o,
		connected: true,
		subs:      make(map[int]chan CallUpdate),
	}
}

// Run listens for envelopes and channel status until ctx is done, then hangs
// up any live call.
func (s *CallService) Run(ctx context.Context) error {
	unsubscribe := s.signaling.Subscribe(s.self, s.handleEnvelope)
	unwatch := s.signaling.SubscribeStatus(s.onStatus)
	log.Info().Str("user_id", s.self.String()).Msg("Call service started")

	<-ctx.Done()

	unsubscribe()
	unwatch()

	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c != nil {
		s.endLocal(c, domain.ReasonLocalHangup)
	}
	s.wg.Wait()
	log.Info().Msg("Call service stopped")
	return nil
}

// Subscribe returns a stream of call updates. Slow readers miss updates
// rather than block the state machine.
func (s *CallService) Subscribe() (<-chan CallUpdate, func()) {
	ch := make(chan CallUpdate, s.opts.updateBuffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subsMu.Unlock()
		})
	}
}

// Current returns the latest session, ended or not.
func (s *CallService) Current() (domain.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.CallSession{}, false
	}
	return *s.current.session, true
}

func (s *CallService) StartCall(ctx context.Context, remote domain.UserID, kind domain.MediaKind) (domain.CallSession, error) {
	if remote == "" || remote == s.self {
		return domain.CallSession{}, fmt.Errorf("%w: %q", domain.ErrInvalidPeer, remote)
	}
	if !kind.Valid() {
		return domain.CallSession{}, fmt.Errorf("%w: media kind %q", domain.ErrInvalidState, kind)
	}

	s.mu.Lock()
	if s.current != nil && s.current.session.Live() {
		s.mu.Unlock()
		return domain.CallSession{}, domain.ErrCallInProgress
	}
	session := domain.NewCallSession(domain.NewCallID(), s.self, remote, domain.DirectionOutgoing, kind, s.now())
	c := s.newCallLocked(session)
	if err := s.transitionLocked(c, domain.StateOutgoing); err != nil {
		s.mu.Unlock()
		return domain.CallSession{}, err
	}
	c.ringTimer = s.opts.clock.AfterFunc(s.opts.ringTimeout, func() {
		s.endLocal(c, domain.ReasonNoAnswer, domain.StateOutgoing)
	})
	s.mu.Unlock()

	if err := s.dial(ctx, c); err != nil {
		if s.fail(c, err) {
			return s.snapshot(c), err
		}
		return s.snapshot(c), domain.ErrCallEnded
	}
	return s.snapshot(c), nil
}

func (s *CallService) dial(ctx context.Context, c *activeCall) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	session := s.snapshot(c)
	if _, err := c.peer.AcquireLocalMedia(ctx, session.MediaKind); err != nil {
		return err
	}
	s.publish(c)

	if err := c.peer.CreateLink(session.RemoteUserID); err != nil {
		return err
	}
	offer, err := c.peer.CreateOffer(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !c.session.Live() {
		s.mu.Unlock()
		return domain.ErrCallEnded
	}
	c.inviteSent = true
	s.mu.Unlock()

	if err := s.send(ctx, s.envelope(c, domain.EnvelopeInvite, domain.Payload{MediaKind: session.MediaKind})); err != nil {
		return err
	}
	if err := s.send(ctx, s.envelope(c, domain.EnvelopeOffer, domain.Payload{Description: &offer})); err != nil {
		return err
	}
	s.releaseOutbox(ctx, c)
	return nil
}

// AcceptCall answers a ringing incoming call.
func (s *CallService) AcceptCall(ctx context.Context, callID domain.CallID) error {
	s.mu.Lock()
	c, err := s.lookupLocked(callID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if c.session.State != domain.StateIncoming {
		s.mu.Unlock()
		return fmt.Errorf("%w: accept in %s", domain.ErrInvalidState, c.session.State)
	}
	if c.offer == nil {
		s.mu.Unlock()
		return domain.ErrOfferPending
	}
	offer := *c.offer
	stopTimer(&c.ringTimer)
	if err := s.transitionLocked(c, domain.StateConnecting); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.answer(ctx, c, offer); err != nil {
		if s.fail(c, err) {
			return err
		}
		return domain.ErrCallEnded
	}
	return nil
}

func (s *CallService) answer(ctx context.Context, c *activeCall, offer domain.SessionDescription) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	session := s.snapshot(c)
	if err := s.send(ctx, s.envelope(c, domain.EnvelopeAccept, domain.Payload{})); err != nil {
		return err
	}
	if _, err := c.peer.AcquireLocalMedia(ctx, session.MediaKind); err != nil {
		return err
	}
	s.publish(c)

	if err := c.peer.CreateLink(session.RemoteUserID); err != nil {
		return err
	}
	if err := c.peer.ApplyRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := c.peer.CreateAnswer(ctx)
	if err != nil {
		return err
	}
	return s.send(ctx, s.envelope(c, domain.EnvelopeAnswer, domain.Payload{Description: &answer}))
}

// DeclineCall rejects a ringing incoming call. Declining an ended call is a no-op.
func (s *CallService) DeclineCall(ctx context.Context, callID domain.CallID) error {
	s.mu.Lock()
	c, err := s.lookupLocked(callID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	state := c.session.State
	s.mu.Unlock()

	switch state {
	case domain.StateEnded:
		return nil
	case domain.StateIncoming:
		s.endLocal(c, domain.ReasonDeclined, domain.StateIncoming)
		return nil
	}
	return fmt.Errorf("%w: decline in %s", domain.ErrInvalidState, state)
}

// Hangup ends the call from any live state. Local media stops before the
// peer is notified; hanging up an ended call is a no-op.
func (s *CallService) Hangup(ctx context.Context, callID domain.CallID) error {
	s.mu.Lock()
	c, err := s.lookupLocked(callID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	state := c.session.State
	s.mu.Unlock()

	switch state {
	case domain.StateEnded:
		return nil
	case domain.StateOutgoing:
		s.endLocal(c, domain.ReasonCancelled)
	case domain.StateIncoming:
		s.endLocal(c, domain.ReasonDeclined)
	default:
		s.endLocal(c, domain.ReasonLocalHangup)
	}
	return nil
}

// ToggleMute flips the microphone and returns whether it is now muted.
func (s *CallService) ToggleMute(callID domain.CallID) (bool, error) {
	on, err := s.toggle(callID, domain.TrackAudio)
	if err != nil {
		return false, err
	}
	return !on, nil
}

// ToggleCamera flips the camera and returns whether it is now off.
func (s *CallService) ToggleCamera(callID domain.CallID) (bool, error) {
	on, err := s.toggle(callID, domain.TrackVideo)
	if err != nil {
		return false, err
	}
	return !on, nil
}

func (s *CallService) toggle(callID domain.CallID, kind domain.TrackKind) (bool, error) {
	s.mu.Lock()
	c, err := s.lookupLocked(callID)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if !c.session.InMedia() {
		state := c.session.State
		s.mu.Unlock()
		return false, fmt.Errorf("%w: toggle %s in %s", domain.ErrInvalidState, kind, state)
	}
	media := c.peer.LocalMedia()
	s.mu.Unlock()

	if media == nil {
		return false, fmt.Errorf("%w: local media not ready", domain.ErrInvalidState)
	}
	on := !media.Enabled(kind)
	if err := c.peer.SetTrackEnabled(kind, on); err != nil {
		return false, err
	}

	s.mu.Lock()
	if kind == domain.TrackAudio {
		c.session.Muted = !on
	} else {
		c.session.CameraOff = !on
	}
	s.publishLocked(c)
	s.mu.Unlock()

	c.log.Info().Str("kind", string(kind)).Bool("enabled", on).Msg("Local track toggled")
	return on, nil
}

func (s *CallService) handleEnvelope(env domain.Envelope) {
	if env.To != s.self {
		return
	}
	switch env.Type {
	case domain.EnvelopeInvite:
		s.onInvite(env)
	case domain.EnvelopeOffer:
		s.onOffer(env)
	case domain.EnvelopeAnswer:
		s.onAnswer(env)
	case domain.EnvelopeCandidate:
		s.onRemoteCandidate(env)
	case domain.EnvelopeAccept:
		s.onAccept(env)
	case domain.EnvelopeDecline:
		reason := env.Payload.Reason
		if reason == "" {
			reason = domain.ReasonDeclined
		}
		s.onRemoteEnd(env, reason)
	case domain.EnvelopeHangup:
		s.onRemoteEnd(env, domain.ReasonRemoteHangup)
	default:
		log.Warn().Str("type", string(env.Type)).Msg("Unknown envelope type")
	}
}

func (s *CallService) onInvite(env domain.Envelope) {
	l := log.With().Str("call_id", env.CallID.String()).Str("remote_user_id", env.From.String()).Logger()
	if !env.Payload.MediaKind.Valid() {
		l.Warn().Str("kind", string(env.Payload.MediaKind)).Msg("Ignoring invite with invalid media kind")
		return
	}

	s.mu.Lock()
	if cur := s.current; cur != nil && cur.session.Live() {
		duplicate := cur.session.ID == env.CallID
		s.mu.Unlock()
		if duplicate {
			l.Debug().Msg("Duplicate invite ignored")
			return
		}
		l.Info().Msg("Busy, declining second invite")
		s.notify(env.Reply(domain.EnvelopeDecline, domain.Payload{Reason: domain.ReasonBusy}))
		return
	}

	session := domain.NewCallSession(env.CallID, s.self, env.From, domain.DirectionIncoming, env.Payload.MediaKind, s.now())
	c := s.newCallLocked(session)
	c.signalReady = true
	if err := s.transitionLocked(c, domain.StateIncoming); err != nil {
		s.mu.Unlock()
		l.Error().Err(err).Msg("Cannot ring incoming call")
		return
	}
	c.ringTimer = s.opts.clock.AfterFunc(s.opts.ringTimeout, func() {
		s.endLocal(c, domain.ReasonNoAnswer, domain.StateIncoming)
	})
	s.mu.Unlock()
}

func (s *CallService) onOffer(env domain.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.matchLocked(env)
	if c == nil {
		return
	}
	desc := env.Payload.Description
	switch {
	case c.session.Direction != domain.DirectionIncoming:
		c.log.Warn().Msg("Offer received on an outgoing call")
	case c.session.State != domain.StateIncoming:
		c.log.Warn().Str("state", string(c.session.State)).Msg("Renegotiation is not supported, offer ignored")
	case desc == nil || desc.Type != domain.SDPOffer:
		c.log.Warn().Msg("Offer envelope without an offer description")
	default:
		d := *desc
		c.offer = &d
	}
}

func (s *CallService) onAnswer(env domain.Envelope) {
	s.mu.Lock()
	c := s.matchLocked(env)
	if c == nil {
		s.mu.Unlock()
		return
	}
	desc := env.Payload.Description
	if c.session.Direction != domain.DirectionOutgoing || c.session.State != domain.StateOutgoing || c.answered {
		c.log.Warn().Str("state", string(c.session.State)).Msg("Unexpected answer ignored")
		s.mu.Unlock()
		return
	}
	if desc == nil || desc.Type != domain.SDPAnswer {
		c.log.Warn().Msg("Answer envelope without an answer description")
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := c.peer.ApplyRemoteDescription(*desc); err != nil {
		s.fail(c, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.session.Live() {
		return
	}
	c.answered = true
	stopTimer(&c.ringTimer)
	if c.remoteUp {
		s.activateLocked(c)
	}
}

func (s *CallService) onRemoteCandidate(env domain.Envelope) {
	s.mu.Lock()
	c := s.matchLocked(env)
	s.mu.Unlock()
	if c == nil || env.Payload.Candidate == nil {
		return
	}
	if err := c.peer.ApplyRemoteCandidate(*env.Payload.Candidate); err != nil {
		c.log.Debug().Err(err).Msg("Remote candidate dropped")
	}
}

func (s *CallService) onAccept(env domain.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.matchLocked(env)
	if c == nil || c.session.State != domain.StateOutgoing {
		return
	}
	// the answer must still arrive within a ring period
	stopTimer(&c.ringTimer)
	c.ringTimer = s.opts.clock.AfterFunc(s.opts.ringTimeout, func() {
		s.endLocal(c, domain.ReasonNoAnswer, domain.StateOutgoing)
	})
	c.log.Info().Msg("Remote accepted, waiting for answer")
}

func (s *CallService) onRemoteEnd(env domain.Envelope, reason domain.EndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.matchLocked(env)
	if c == nil {
		return
	}
	s.finishLocked(c, reason)
}

func (s *CallService) onRemoteStream(c *activeCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.session.Live() {
		return
	}
	c.remoteUp = true
	switch c.session.State {
	case domain.StateOutgoing:
		if c.answered {
			s.activateLocked(c)
			return
		}
	case domain.StateConnecting:
		s.activateLocked(c)
		return
	}
	s.publishLocked(c)
}

func (s *CallService) onStatus(status domain.ChannelStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = status == domain.ChannelConnected
	c := s.current
	if c == nil || !c.session.Live() {
		return
	}
	if s.connected {
		if c.graceTimer != nil {
			c.log.Info().Msg("Signaling channel restored")
		}
		stopTimer(&c.graceTimer)
		return
	}
	s.armGraceLocked(c)
}

func (s *CallService) armGraceLocked(c *activeCall) {
	if s.connected || !c.session.InMedia() || c.graceTimer != nil {
		return
	}
	c.graceGen++
	gen := c.graceGen
	c.log.Warn().Dur("grace", s.opts.disconnectGrace).Msg("Signaling channel lost during call")
	c.graceTimer = s.opts.clock.AfterFunc(s.opts.disconnectGrace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c.graceTimer == nil || c.graceGen != gen || s.connected {
			return
		}
		s.finishLocked(c, domain.ReasonRemoteDisconnected)
	})
}

func (s *CallService) activateLocked(c *activeCall) {
	if err := s.transitionLocked(c, domain.StateActive); err != nil {
		c.log.Error().Err(err).Msg("Cannot activate call")
	}
}

// endLocal ends c for a local reason and notifies the peer in the background.
// When states are given, c is only ended while in one of them.
func (s *CallService) endLocal(c *activeCall, reason domain.EndReason, states ...domain.CallState) bool {
	s.mu.Lock()
	if len(states) > 0 && !hasState(states, c.session.State) {
		s.mu.Unlock()
		return false
	}
	env, notify := s.notificationLocked(c, reason)
	ended := s.finishLocked(c, reason)
	s.mu.Unlock()

	if ended && notify {
		s.notify(env)
	}
	return ended
}

func (s *CallService) notificationLocked(c *activeCall, reason domain.EndReason) (domain.Envelope, bool) {
	switch {
	case !c.session.Live():
		return domain.Envelope{}, false
	case c.session.Direction == domain.DirectionIncoming && c.session.State == domain.StateIncoming:
		return s.envelope(c, domain.EnvelopeDecline, domain.Payload{Reason: reason}), true
	case c.session.Direction == domain.DirectionOutgoing && !c.inviteSent:
		return domain.Envelope{}, false
	}
	return s.envelope(c, domain.EnvelopeHangup, domain.Payload{Reason: reason}), true
}

// finishLocked is the only way into StateEnded. It tears the peer down once.
func (s *CallService) finishLocked(c *activeCall, reason domain.EndReason) bool {
	if !c.session.End(reason, s.now()) {
		return false
	}
	stopTimer(&c.ringTimer)
	stopTimer(&c.graceTimer)
	c.cancel()
	c.outbox = nil
	c.peer.Teardown()

	c.log.Info().Str("state", string(domain.StateEnded)).Str("reason", string(reason)).Msg("Call ended")
	s.publishLocked(c)
	return true
}

// fail ends c after a negotiation error. It reports false when the call had
// already ended for another reason.
func (s *CallService) fail(c *activeCall, err error) bool {
	s.mu.Lock()
	live := c.session.Live()
	s.mu.Unlock()
	if !live {
		return false
	}

	reason := reasonFor(err)
	if errors.Is(err, domain.ErrInvalidNegotiationState) {
		c.log.Error().Err(err).Msg("Negotiation guard violated")
	} else {
		c.log.Warn().Err(err).Str("reason", string(reason)).Msg("Call failed")
	}
	return s.endLocal(c, reason)
}

func reasonFor(err error) domain.EndReason {
	switch {
	case errors.Is(err, domain.ErrMediaAccessDenied):
		return domain.ReasonMediaDenied
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return domain.ReasonDeviceUnavailable
	case errors.Is(err, domain.ErrSignalingDelivery):
		return domain.ReasonSignalingFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonCancelled
	}
	return domain.ReasonNegotiationFailed
}

func (s *CallService) transitionLocked(c *activeCall, to domain.CallState) error {
	if err := c.session.Transition(to, s.now()); err != nil {
		return err
	}
	c.log.Info().Str("state", string(to)).Msg("Call state changed")
	if c.session.InMedia() {
		s.armGraceLocked(c)
	}
	s.publishLocked(c)
	return nil
}

func (s *CallService) newCallLocked(session *domain.CallSession) *activeCall {
	ctx, cancel := context.WithCancel(context.Background())
	c := &activeCall{
		session: session,
		peer:    NewPeerManager(session.ID, s.source, s.factory),
		log: log.With().
			Str("call_id", session.ID.String()).
			Str("remote_user_id", session.RemoteUserID.String()).
			Str("direction", string(session.Direction)).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.current = c

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump(c)
	}()
	return c
}

// pump forwards peer events of c until it is torn down.
func (s *CallService) pump(c *activeCall) {
	for {
		select {
		case <-c.peer.Done():
			return
		case ev := <-c.peer.Events():
			switch ev.Type {
			case PeerLocalCandidate:
				s.sendCandidate(c, ev.Candidate)
			case PeerRemoteStream:
				s.onRemoteStream(c)
			case PeerLinkFailed:
				s.endLocal(c, domain.ReasonLinkFailed)
			}
		}
	}
}

func (s *CallService) sendCandidate(c *activeCall, cand domain.ICECandidate) {
	s.mu.Lock()
	if !c.session.Live() {
		s.mu.Unlock()
		return
	}
	if !c.signalReady {
		c.outbox = append(c.outbox, cand)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.send(c.ctx, s.envelope(c, domain.EnvelopeCandidate, domain.Payload{Candidate: &cand})); err != nil {
		c.log.Debug().Err(err).Msg("Local candidate dropped")
	}
}

// releaseOutbox sends the candidates gathered before the offer went out.
func (s *CallService) releaseOutbox(ctx context.Context, c *activeCall) {
	s.mu.Lock()
	c.signalReady = true
	queued := c.outbox
	c.outbox = nil
	s.mu.Unlock()

	for _, cand := range queued {
		cand := cand
		if err := s.send(ctx, s.envelope(c, domain.EnvelopeCandidate, domain.Payload{Candidate: &cand})); err != nil {
			c.log.Debug().Err(err).Msg("Local candidate dropped")
		}
	}
}

// send delivers env, retrying once after the configured delay.
func (s *CallService) send(ctx context.Context, env domain.Envelope) error {
	err := s.signaling.Send(ctx, env)
	if err == nil {
		return nil
	}
	ev := log.Warn()
	if !env.Type.Critical() {
		ev = log.Debug()
	}
	ev.Err(err).Str("type", string(env.Type)).Str("call_id", env.CallID.String()).Msg("Envelope send failed, retrying once")

	if d := s.opts.sendRetryDelay; d > 0 {
		select {
		case <-s.opts.clock.After(d):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", domain.ErrSignalingDelivery, env.Type, ctx.Err())
		}
	}
	if err := s.signaling.Send(ctx, env); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrSignalingDelivery, env.Type, err)
	}
	return nil
}

// notify sends a best-effort envelope without blocking the caller.
func (s *CallService) notify(env domain.Envelope) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.send(context.Background(), env); err != nil {
			log.Warn().Err(err).Str("type", string(env.Type)).Str("call_id", env.CallID.String()).Msg("Peer notification lost")
		}
	}()
}

func (s *CallService) envelope(c *activeCall, t domain.EnvelopeType, payload domain.Payload) domain.Envelope {
	return domain.NewEnvelope(t, c.session.ID, s.self, c.session.RemoteUserID, payload)
}

func (s *CallService) lookupLocked(callID domain.CallID) (*activeCall, error) {
	if s.current == nil || s.current.session.ID != callID {
		return nil, domain.ErrCallNotFound
	}
	return s.current, nil
}

func (s *CallService) matchLocked(env domain.Envelope) *activeCall {
	c := s.current
	if c == nil || c.session.ID != env.CallID || c.session.RemoteUserID != env.From {
		return nil
	}
	return c
}

func (s *CallService) publish(c *activeCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(c)
}

func (s *CallService) publishLocked(c *activeCall) {
	u := CallUpdate{
		Session: *c.session,
		Local:   c.peer.LocalMedia(),
		Remote:  c.peer.RemoteTracks(),
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			log.Warn().Str("call_id", u.Session.ID.String()).Msg("Call update subscriber is slow, dropping update")
		}
	}
}

func (s *CallService) snapshot(c *activeCall) domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *c.session
}

func (s *CallService) now() time.Time {
	return s.opts.clock.Now()
}

func hasState(states []domain.CallState, st domain.CallState) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}

func stopTimer(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
