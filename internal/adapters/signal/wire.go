package signal

import (
	"errors"

	"github.com/dkeye/callrelay/internal/domain"
)

// Request types sent by peers.
const (
	TypeCreateCall      = "create_call"
	TypeGetCall         = "get_call"
	TypeSetOffer        = "set_offer"
	TypeSetAnswer       = "set_answer"
	TypeAddCandidate    = "add_candidate"
	TypeDeleteCall      = "delete_call"
	TypeWatchCall       = "watch_call"
	TypeWatchCandidates = "watch_candidates"
	TypeUnwatch         = "unwatch"
	TypePing            = "ping"
)

// Reply and event types sent by the server. Events carry the req_id of the
// watch request that opened the subscription.
const (
	TypeResult         = "result"
	TypeError          = "error"
	TypePong           = "pong"
	TypeCallEvent      = "call_event"
	TypeCandidateEvent = "candidate_event"
	TypeWatchClosed    = "watch_closed"
)

const (
	CodeNotFound           = "not_found"
	CodeExists             = "exists"
	CodeAlreadyAnswered    = "already_answered"
	CodeNoOffer            = "no_offer"
	CodeInvalidDescription = "invalid_description"
	CodeInvalidSide        = "invalid_side"
	CodeBadPayload         = "bad_payload"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

var (
	ErrRateLimited = errors.New("rate limited")
	ErrBadPayload  = errors.New("bad payload")
)

// Message is the single envelope used in both directions.
type Message struct {
	Type      string                     `json:"type"`
	ReqID     string                     `json:"req_id,omitempty"`
	WatchID   string                     `json:"watch_id,omitempty"`
	CallID    domain.CallID              `json:"call_id,omitempty"`
	Callee    domain.UserID              `json:"callee,omitempty"`
	Side      domain.CandidateSide       `json:"side,omitempty"`
	Offer     *domain.Offer              `json:"offer,omitempty"`
	Answer    *domain.SessionDescription `json:"answer,omitempty"`
	Candidate *domain.Candidate          `json:"candidate,omitempty"`
	Call      *domain.Call               `json:"call,omitempty"`
	Deleted   bool                       `json:"deleted,omitempty"`
	Code      string                     `json:"code,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

var codes = []struct {
	code string
	err  error
}{
	{CodeNotFound, domain.ErrCallNotFound},
	{CodeExists, domain.ErrCallExists},
	{CodeAlreadyAnswered, domain.ErrAlreadyAnswered},
	{CodeNoOffer, domain.ErrNoOffer},
	{CodeInvalidDescription, domain.ErrInvalidDescription},
	{CodeInvalidSide, domain.ErrInvalidSide},
	{CodeBadPayload, ErrBadPayload},
	{CodeRateLimited, ErrRateLimited},
}

// CodeFor maps an error to its wire code.
func CodeFor(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// RemoteError is an error reply received from the server. It unwraps to the
// sentinel matching its code, so errors.Is works across the wire.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return "relay: " + e.Message }

func (e *RemoteError) Unwrap() error {
	for _, c := range codes {
		if c.code == e.Code {
			return c.err
		}
	}
	return nil
}
