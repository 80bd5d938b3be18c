package call

import "github.com/dkeye/callrelay/internal/domain"

// State is where a Client is in the call lifecycle.
type State int

const (
	StateIdle State = iota
	StateRequestingMedia
	StateConnectionCreated
	StateOfferSent
	StateAnswerSent
	StateInCall
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingMedia:
		return "requesting-media"
	case StateConnectionCreated:
		return "connection-created"
	case StateOfferSent:
		return "offer-sent"
	case StateAnswerSent:
		return "answer-sent"
	case StateInCall:
		return "in-call"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Active reports whether a call occupies the client.
func (s State) Active() bool {
	return s != StateIdle && s != StateClosed
}

type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCallee {
		return "callee"
	}
	return "caller"
}

// localSide is the candidate collection this role writes to.
func (r Role) localSide() domain.CandidateSide {
	if r == RoleCallee {
		return domain.AnswerCandidates
	}
	return domain.OfferCandidates
}

func (r Role) remoteSide() domain.CandidateSide {
	if r == RoleCallee {
		return domain.OfferCandidates
	}
	return domain.AnswerCandidates
}
