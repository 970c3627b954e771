package domain

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventChat        EventType = "chat"
	EventTyping      EventType = "typing"
	EventLiveComment EventType = "live-comment"
)

// Event travels on the same relay connection as call envelopes, in its own namespace.
type Event struct {
	ID      EventID
	Type    EventType
	RoomID  RoomID
	From    UserID
	To      UserID
	Content string
	SentAt  time.Time
}

func NewEvent(t EventType, from UserID, roomID RoomID, to UserID, content string, now time.Time) (*Event, error) {
	ev := &Event{
		ID:      NewEventID(),
		Type:    t,
		RoomID:  roomID,
		From:    from,
		To:      to,
		Content: content,
		SentAt:  now,
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func (e *Event) Validate() error {
	switch e.Type {
	case EventChat, EventLiveComment:
		if e.Content == "" {
			return ErrEmptyContent
		}
	case EventTyping:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.To == "" && e.RoomID.IsZero() {
		return fmt.Errorf("%w: needs a room or a recipient", ErrInvalidEvent)
	}
	return nil
}

// Persistent reports whether the event belongs in room history.
func (e *Event) Persistent() bool {
	return e.Type != EventTyping
}
