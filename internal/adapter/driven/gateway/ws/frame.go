package ws

import (
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
)

const (
	NamespaceCall  = "call"
	NamespaceEvent = "event"
)

// Frame is the single JSON message shape on the relay connection. Exactly
// one of Call and Event is set, matching NS.
type Frame struct {
	NS    string       `json:"ns"`
	Call  *EnvelopeDTO `json:"call,omitempty"`
	Event *EventDTO    `json:"event,omitempty"`
}

type DescriptionDTO struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type CandidateDTO struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type EnvelopeDTO struct {
	Type      string          `json:"type"`
	CallID    string          `json:"callId"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to"`
	MediaKind string          `json:"mediaKind,omitempty"`
	SDP       *DescriptionDTO `json:"sdp,omitempty"`
	Candidate *CandidateDTO   `json:"candidate,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

type EventDTO struct {
	ID      string    `json:"id,omitempty"`
	Type    string    `json:"type"`
	RoomID  string    `json:"roomId,omitempty"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Content string    `json:"content,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

func CallFrame(env domain.Envelope) Frame {
	dto := &EnvelopeDTO{
		Type:      string(env.Type),
		CallID:    env.CallID.String(),
		From:      env.From.String(),
		To:        env.To.String(),
		MediaKind: string(env.Payload.MediaKind),
		Reason:    string(env.Payload.Reason),
	}
	if d := env.Payload.Description; d != nil {
		dto.SDP = &DescriptionDTO{Type: string(d.Type), SDP: d.SDP}
	}
	if c := env.Payload.Candidate; c != nil {
		dto.Candidate = &CandidateDTO{
			Candidate:        c.Candidate,
			SDPMid:           c.SDPMid,
			SDPMLineIndex:    c.SDPMLineIndex,
			UsernameFragment: c.UsernameFragment,
		}
	}
	return Frame{NS: NamespaceCall, Call: dto}
}

func EventFrame(ev domain.Event) Frame {
	dto := &EventDTO{
		ID:      ev.ID.String(),
		Type:    string(ev.Type),
		From:    ev.From.String(),
		To:      ev.To.String(),
		Content: ev.Content,
		SentAt:  ev.SentAt,
	}
	if !ev.RoomID.IsZero() {
		dto.RoomID = ev.RoomID.String()
	}
	return Frame{NS: NamespaceEvent, Event: dto}
}

// DecodeEnvelope decodes a call frame.
func (f Frame) DecodeEnvelope() (domain.Envelope, error) {
	if f.NS != NamespaceCall || f.Call == nil {
		return domain.Envelope{}, fmt.Errorf("frame %q is not a call frame", f.NS)
	}
	d := f.Call

	t := domain.EnvelopeType(d.Type)
	if !t.Valid() {
		return domain.Envelope{}, fmt.Errorf("unknown envelope type %q", d.Type)
	}
	callID, err := domain.ParseCallID(d.CallID)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("call id: %w", err)
	}
	if d.To == "" {
		return domain.Envelope{}, fmt.Errorf("%s envelope without recipient", t)
	}

	payload := domain.Payload{
		MediaKind: domain.MediaKind(d.MediaKind),
		Reason:    domain.EndReason(d.Reason),
	}
	if d.SDP != nil {
		payload.Description = &domain.SessionDescription{Type: domain.SDPType(d.SDP.Type), SDP: d.SDP.SDP}
	}
	if d.Candidate != nil {
		payload.Candidate = &domain.ICECandidate{
			Candidate:        d.Candidate.Candidate,
			SDPMid:           d.Candidate.SDPMid,
			SDPMLineIndex:    d.Candidate.SDPMLineIndex,
			UsernameFragment: d.Candidate.UsernameFragment,
		}
	}
	return domain.NewEnvelope(t, callID, domain.UserID(d.From), domain.UserID(d.To), payload), nil
}

// DecodeEvent decodes an event frame. Validation is left to the chat service.
func (f Frame) DecodeEvent() (domain.Event, error) {
	if f.NS != NamespaceEvent || f.Event == nil {
		return domain.Event{}, fmt.Errorf("frame %q is not an event frame", f.NS)
	}
	d := f.Event

	ev := domain.Event{
		Type:    domain.EventType(d.Type),
		From:    domain.UserID(d.From),
		To:      domain.UserID(d.To),
		Content: d.Content,
		SentAt:  d.SentAt,
	}
	if d.ID != "" {
		id, err := domain.ParseEventID(d.ID)
		if err != nil {
			return domain.Event{}, fmt.Errorf("event id: %w", err)
		}
		ev.ID = id
	}
	if d.RoomID != "" {
		id, err := domain.ParseRoomID(d.RoomID)
		if err != nil {
			return domain.Event{}, fmt.Errorf("room id: %w", err)
		}
		ev.RoomID = id
	}
	return ev, nil
}
