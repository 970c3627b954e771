package domain

import (
	"fmt"
	"time"
)

type CallState string

const (
	StateIdle       CallState = "idle"
	StateOutgoing   CallState = "outgoing"
	StateIncoming   CallState = "incoming"
	StateConnecting CallState = "connecting"
	StateActive     CallState = "active"
	StateEnded      CallState = "ended"
)

// transitions lists every edge of the call lifecycle. Anything else is rejected.
var transitions = map[CallState][]CallState{
	StateIdle:       {StateOutgoing, StateIncoming},
	StateOutgoing:   {StateActive, StateEnded},
	StateIncoming:   {StateConnecting, StateEnded},
	StateConnecting: {StateActive, StateEnded},
	StateActive:     {StateEnded},
}

func CanTransition(from, to CallState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

type MediaKind string

const (
	MediaAudio      MediaKind = "audio"
	MediaAudioVideo MediaKind = "audio+video"
)

func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaAudioVideo
}

// Tracks returns the track kinds a capture of this media kind is made of.
func (k MediaKind) Tracks() []TrackKind {
	if k == MediaAudioVideo {
		return []TrackKind{TrackAudio, TrackVideo}
	}
	return []TrackKind{TrackAudio}
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

type EndReason string

const (
	ReasonLocalHangup        EndReason = "local-hangup"
	ReasonCancelled          EndReason = "cancelled"
	ReasonDeclined           EndReason = "declined"
	ReasonBusy               EndReason = "busy"
	ReasonUnavailable        EndReason = "unavailable"
	ReasonNoAnswer           EndReason = "no-answer"
	ReasonRemoteHangup       EndReason = "remote-hangup"
	ReasonRemoteDisconnected EndReason = "remote-disconnected"
	ReasonMediaDenied        EndReason = "media-denied"
	ReasonDeviceUnavailable  EndReason = "device-unavailable"
	ReasonNegotiationFailed  EndReason = "negotiation-failed"
	ReasonSignalingFailed    EndReason = "signaling-failed"
	ReasonLinkFailed         EndReason = "link-failed"
)

// CallSession is the lifecycle record of one call between two users.
// A session never leaves StateEnded; a later call needs a new session.
type CallSession struct {
	ID           CallID
	LocalUserID  UserID
	RemoteUserID UserID
	Direction    Direction
	State        CallState
	MediaKind    MediaKind
	StartedAt    time.Time
	ConnectedAt  *time.Time
	EndedAt      *time.Time
	EndReason    EndReason
	Muted        bool
	CameraOff    bool
}

func NewCallSession(id CallID, local, remote UserID, dir Direction, kind MediaKind, now time.Time) *CallSession {
	return &CallSession{
		ID:           id,
		LocalUserID:  local,
		RemoteUserID: remote,
		Direction:    dir,
		State:        StateIdle,
		MediaKind:    kind,
		StartedAt:    now,
		CameraOff:    kind == MediaAudio,
	}
}

// Transition moves the session to the next state. Entering StateActive stamps
// ConnectedAt; use End to enter StateEnded.
func (s *CallSession) Transition(to CallState, now time.Time) error {
	if to == StateEnded {
		return fmt.Errorf("%w: use End to terminate a call", ErrInvalidTransition)
	}
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	s.State = to
	if to == StateActive {
		t := now
		s.ConnectedAt = &t
	}
	return nil
}

// End terminates the session. It reports false when the session had already ended.
func (s *CallSession) End(reason EndReason, now time.Time) bool {
	if s.State == StateEnded {
		return false
	}
	s.State = StateEnded
	s.EndReason = reason
	t := now
	s.EndedAt = &t
	return true
}

func (s *CallSession) Live() bool {
	return s.State != StateEnded
}

// InMedia reports whether local media toggles are allowed.
func (s *CallSession) InMedia() bool {
	return s.State == StateConnecting || s.State == StateActive
}

func (s *CallSession) Duration(now time.Time) time.Duration {
	if s.ConnectedAt == nil {
		return 0
	}
	if s.EndedAt != nil {
		return s.EndedAt.Sub(*s.ConnectedAt)
	}
	return now.Sub(*s.ConnectedAt)
}
