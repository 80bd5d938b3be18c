package domain

import (
	"errors"
	"time"
)

var (
	ErrCallNotFound       = errors.New("call not found")
	ErrCallExists         = errors.New("call already exists")
	ErrAlreadyAnswered    = errors.New("call already answered")
	ErrNoOffer            = errors.New("call has no offer")
	ErrInvalidDescription = errors.New("invalid session description")
	ErrInvalidSide        = errors.New("invalid candidate side")
)

type CallID string

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription is one half of the offer/answer handshake.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// Offer is the initiator's description together with who sent it.
type Offer struct {
	From UserID `json:"from"`
	SessionDescription
}

// Validate checks that an offer carries an offer-typed, non-empty description.
func (o Offer) Validate() error {
	if o.Type != SDPTypeOffer || o.SDP == "" {
		return ErrInvalidDescription
	}
	return nil
}

// ValidateAnswer checks that d is an answer-typed, non-empty description.
func ValidateAnswer(d SessionDescription) error {
	if d.Type != SDPTypeAnswer || d.SDP == "" {
		return ErrInvalidDescription
	}
	return nil
}

// Call is the relay record shared by both peers. Offer is nil until the
// initiator writes it; Answer is nil until the joiner writes it.
type Call struct {
	ID        CallID              `json:"id"`
	Callee    UserID              `json:"callee"`
	Offer     *Offer              `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Clone returns a deep copy so snapshots handed to subscribers never alias
// store state.
func (c *Call) Clone() *Call {
	out := *c
	if c.Offer != nil {
		o := *c.Offer
		out.Offer = &o
	}
	if c.Answer != nil {
		a := *c.Answer
		out.Answer = &a
	}
	return &out
}

// CallEvent is one snapshot delivered to a call subscriber. Deleted events
// carry no record and are always the last event of a subscription.
type CallEvent struct {
	Call    *Call `json:"call,omitempty"`
	Deleted bool  `json:"deleted,omitempty"`
}
