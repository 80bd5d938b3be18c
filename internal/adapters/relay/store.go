// Package relay implements core.Signaling over the different ways a peer can
// reach the call records.
package relay

import (
	"context"
	"time"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/dkeye/callrelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

var _ core.Signaling = (*StoreRelay)(nil)

// StoreRelay talks to a CallStore in the same process. The relay server uses
// it behind its WebSocket endpoint; tests and embedded peers use it directly.
type StoreRelay struct {
	store core.CallStore
}

func NewStoreRelay(store core.CallStore) *StoreRelay {
	return &StoreRelay{store: store}
}

func (r *StoreRelay) CreateCall(ctx context.Context, callee domain.UserID) (domain.CallID, error) {
	call := domain.Call{
		ID:        domain.NewCallID(),
		Callee:    callee,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateCall(ctx, call); err != nil {
		return "", err
	}
	metrics.CallOp("create")
	log.Info().Str("module", "relay").Str("call_id", string(call.ID)).Str("callee", string(callee)).Msg("call created")
	return call.ID, nil
}

func (r *StoreRelay) GetCall(ctx context.Context, id domain.CallID) (*domain.Call, error) {
	return r.store.GetCall(ctx, id)
}

func (r *StoreRelay) PublishOffer(ctx context.Context, id domain.CallID, offer domain.Offer) error {
	if err := offer.Validate(); err != nil {
		return err
	}
	if err := r.store.SetOffer(ctx, id, offer); err != nil {
		return err
	}
	metrics.CallOp("offer")
	return nil
}

func (r *StoreRelay) PublishAnswer(ctx context.Context, id domain.CallID, answer domain.SessionDescription) error {
	if err := domain.ValidateAnswer(answer); err != nil {
		return err
	}
	if err := r.store.SetAnswer(ctx, id, answer); err != nil {
		return err
	}
	metrics.CallOp("answer")
	return nil
}

func (r *StoreRelay) PublishCandidate(ctx context.Context, id domain.CallID, side domain.CandidateSide, c domain.Candidate) error {
	if err := r.store.AddCandidate(ctx, id, side, c); err != nil {
		return err
	}
	metrics.CallOp("candidate")
	return nil
}

func (r *StoreRelay) WatchCall(ctx context.Context, id domain.CallID) (<-chan domain.CallEvent, error) {
	return r.store.WatchCall(ctx, id)
}

func (r *StoreRelay) WatchCandidates(ctx context.Context, id domain.CallID, side domain.CandidateSide) (<-chan domain.Candidate, error) {
	return r.store.WatchCandidates(ctx, id, side)
}

func (r *StoreRelay) EndCall(ctx context.Context, id domain.CallID) error {
	if err := r.store.DeleteCall(ctx, id); err != nil {
		return err
	}
	metrics.CallOp("delete")
	log.Info().Str("module", "relay").Str("call_id", string(id)).Msg("call ended")
	return nil
}
