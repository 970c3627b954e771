package domain

import "errors"

var (
	ErrMediaAccessDenied       = errors.New("media access denied")
	ErrDeviceUnavailable       = errors.New("media device unavailable")
	ErrInvalidNegotiationState = errors.New("invalid negotiation state")
	ErrSignalingDelivery       = errors.New("signaling delivery failed")
	ErrRemoteDisconnected      = errors.New("remote peer disconnected")

	ErrCallInProgress    = errors.New("another call is in progress")
	ErrCallNotFound      = errors.New("call not found")
	ErrCallEnded         = errors.New("call already ended")
	ErrInvalidTransition = errors.New("invalid call state transition")
	ErrInvalidState      = errors.New("operation not valid in current call state")
	ErrOfferPending      = errors.New("remote offer not received yet")
	ErrInvalidPeer       = errors.New("invalid remote user")

	ErrNotConnected = errors.New("signaling channel not connected")
	ErrLinkClosed   = errors.New("peer link closed")

	ErrEmptyContent = errors.New("event content cannot be empty")
	ErrInvalidEvent = errors.New("invalid event")
)
