package core

import (
	"context"

	"github.com/dkeye/callrelay/internal/domain"
)

// CallStore is the persistence side of the relay: the `calls` collection and
// its two candidate collections.
//
// Watch methods deliver the current state first and then every change, in
// order. The returned channel is closed when ctx ends or the call is deleted.
type CallStore interface {
	CreateCall(ctx context.Context, call domain.Call) error
	GetCall(ctx context.Context, id domain.CallID) (*domain.Call, error)
	SetOffer(ctx context.Context, id domain.CallID, offer domain.Offer) error
	// SetAnswer fails with domain.ErrAlreadyAnswered if an answer exists.
	SetAnswer(ctx context.Context, id domain.CallID, answer domain.SessionDescription) error
	// DeleteCall removes the record and both candidate collections.
	DeleteCall(ctx context.Context, id domain.CallID) error

	AddCandidate(ctx context.Context, id domain.CallID, side domain.CandidateSide, c domain.Candidate) error
	Candidates(ctx context.Context, id domain.CallID, side domain.CandidateSide) ([]domain.Candidate, error)

	WatchCall(ctx context.Context, id domain.CallID) (<-chan domain.CallEvent, error)
	WatchCandidates(ctx context.Context, id domain.CallID, side domain.CandidateSide) (<-chan domain.Candidate, error)

	Close() error
}
