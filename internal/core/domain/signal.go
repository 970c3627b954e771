package domain

type EnvelopeType string

const (
	EnvelopeInvite    EnvelopeType = "invite"
	EnvelopeOffer     EnvelopeType = "offer"
	EnvelopeAnswer    EnvelopeType = "answer"
	EnvelopeCandidate EnvelopeType = "ice-candidate"
	EnvelopeAccept    EnvelopeType = "accept"
	EnvelopeDecline   EnvelopeType = "decline"
	EnvelopeHangup    EnvelopeType = "hangup"
)

func (t EnvelopeType) Valid() bool {
	switch t {
	case EnvelopeInvite, EnvelopeOffer, EnvelopeAnswer, EnvelopeCandidate,
		EnvelopeAccept, EnvelopeDecline, EnvelopeHangup:
		return true
	}
	return false
}

// Critical reports whether losing the message breaks the call.
// A lost candidate is tolerated, everything else is not.
func (t EnvelopeType) Critical() bool {
	return t != EnvelopeCandidate
}

type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

type SessionDescription struct {
	Type SDPType
	SDP  string
}

type ICECandidate struct {
	Candidate        string
	SDPMid           *string
	SDPMLineIndex    *uint16
	UsernameFragment *string
}

type Payload struct {
	MediaKind   MediaKind
	Description *SessionDescription
	Candidate   *ICECandidate
	Reason      EndReason
}

// Envelope is one call-control message between two users.
type Envelope struct {
	Type    EnvelopeType
	CallID  CallID
	From    UserID
	To      UserID
	Payload Payload
}

func NewEnvelope(t EnvelopeType, callID CallID, from, to UserID, payload Payload) Envelope {
	return Envelope{
		Type:    t,
		CallID:  callID,
		From:    from,
		To:      to,
		Payload: payload,
	}
}

// Reply builds an envelope back to the sender of e, from its recipient.
func (e Envelope) Reply(t EnvelopeType, payload Payload) Envelope {
	return NewEnvelope(t, e.CallID, e.To, e.From, payload)
}

type ChannelStatus string

const (
	ChannelConnected    ChannelStatus = "connected"
	ChannelDisconnected ChannelStatus = "disconnected"
)

type LinkState string

const (
	LinkNew          LinkState = "new"
	LinkConnecting   LinkState = "connecting"
	LinkConnected    LinkState = "connected"
	LinkDisconnected LinkState = "disconnected"
	LinkFailed       LinkState = "failed"
	LinkClosed       LinkState = "closed"
)
