package core

import (
	"context"

	"github.com/dkeye/callrelay/internal/domain"
)

//go:generate mockgen -source=signal_iface.go -destination=mocks/signaling_mock.go -package=mocks

// Frame is a raw serialized signaling message.
type Frame []byte

// SignalConnection abstracts a server-side messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Signaling is what the call flow needs from the relay, independent of
// where the records live or how they travel.
type Signaling interface {
	CreateCall(ctx context.Context, callee domain.UserID) (domain.CallID, error)
	GetCall(ctx context.Context, id domain.CallID) (*domain.Call, error)
	PublishOffer(ctx context.Context, id domain.CallID, offer domain.Offer) error
	PublishAnswer(ctx context.Context, id domain.CallID, answer domain.SessionDescription) error
	PublishCandidate(ctx context.Context, id domain.CallID, side domain.CandidateSide, c domain.Candidate) error
	WatchCall(ctx context.Context, id domain.CallID) (<-chan domain.CallEvent, error)
	WatchCandidates(ctx context.Context, id domain.CallID, side domain.CandidateSide) (<-chan domain.Candidate, error)
	EndCall(ctx context.Context, id domain.CallID) error
}
