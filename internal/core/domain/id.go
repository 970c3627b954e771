package domain

import (
	"github.com/google/uuid"
)

// UserID is the relay-level handle of a logged-in user.
type UserID string

type CallID uuid.UUID
type RoomID uuid.UUID
type EventID uuid.UUID

func NewCallID() CallID {
	return CallID(uuid.New())
}

func ParseCallID(s string) (CallID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return CallID{}, err
	}
	return CallID(id), nil
}

func NewRoomID() RoomID {
	return RoomID(uuid.New())
}

func ParseRoomID(s string) (RoomID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RoomID{}, err
	}
	return RoomID(id), nil
}

func NewEventID() EventID {
	return EventID(uuid.New())
}

func (id UserID) String() string {
	return string(id)
}

func (id CallID) String() string {
	return uuid.UUID(id).String()
}

func (id CallID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id RoomID) String() string {
	return uuid.UUID(id).String()
}

func (id RoomID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id EventID) String() string {
	return uuid.UUID(id).String()
}

func ParseEventID(s string) (EventID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return EventID{}, err
	}
	return EventID(id), nil
}
