package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/dkeye/callrelay/internal/feed"
	"github.com/rs/zerolog/log"
)

var _ core.CallStore = (*Memory)(nil)

type callEntry struct {
	call       *domain.Call
	candidates map[domain.CandidateSide][]domain.Candidate

	callSubs map[*feed.Feed[domain.CallEvent]]struct{}
	candSubs map[domain.CandidateSide]map[*feed.Feed[domain.Candidate]]struct{}
}

func newCallEntry(call *domain.Call) *callEntry {
	return &callEntry{
		call:       call,
		candidates: make(map[domain.CandidateSide][]domain.Candidate),
		callSubs:   make(map[*feed.Feed[domain.CallEvent]]struct{}),
		candSubs: map[domain.CandidateSide]map[*feed.Feed[domain.Candidate]]struct{}{
			domain.OfferCandidates:  {},
			domain.AnswerCandidates: {},
		},
	}
}

// Memory is a threadsafe in-process CallStore.
type Memory struct {
	mu    sync.RWMutex
	calls map[domain.CallID]*callEntry
}

func NewMemory() *Memory {
	return &Memory{calls: make(map[domain.CallID]*callEntry)}
}

func (m *Memory) CreateCall(_ context.Context, call domain.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[call.ID]; ok {
		return fmt.Errorf("create %s: %w", call.ID, domain.ErrCallExists)
	}
	m.calls[call.ID] = newCallEntry(call.Clone())
	log.Info().Str("module", "store.memory").Str("call_id", string(call.ID)).Msg("call created")
	return nil
}

func (m *Memory) GetCall(_ context.Context, id domain.CallID) (*domain.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.calls[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, domain.ErrCallNotFound)
	}
	return e.call.Clone(), nil
}

func (m *Memory) SetOffer(_ context.Context, id domain.CallID, offer domain.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[id]
	if !ok {
		return fmt.Errorf("set offer %s: %w", id, domain.ErrCallNotFound)
	}
	e.call.Offer = &offer
	m.publishCall(e)
	return nil
}

func (m *Memory) SetAnswer(_ context.Context, id domain.CallID, answer domain.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[id]
	if !ok {
		return fmt.Errorf("set answer %s: %w", id, domain.ErrCallNotFound)
	}
	if e.call.Answer != nil {
		return fmt.Errorf("set answer %s: %w", id, domain.ErrAlreadyAnswered)
	}
	e.call.Answer = &answer
	m.publishCall(e)
	return nil
}

func (m *Memory) DeleteCall(_ context.Context, id domain.CallID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[id]
	if !ok {
		return fmt.Errorf("delete %s: %w", id, domain.ErrCallNotFound)
	}
	delete(m.calls, id)

	for sub := range e.callSubs {
		sub.Push(domain.CallEvent{Deleted: true})
		sub.Finish()
	}
	for _, subs := range e.candSubs {
		for sub := range subs {
			sub.Finish()
		}
	}
	log.Info().Str("module", "store.memory").Str("call_id", string(id)).Msg("call deleted")
	return nil
}

func (m *Memory) AddCandidate(_ context.Context, id domain.CallID, side domain.CandidateSide, c domain.Candidate) error {
	if !side.Valid() {
		return domain.ErrInvalidSide
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[id]
	if !ok {
		return fmt.Errorf("add candidate %s: %w", id, domain.ErrCallNotFound)
	}
	e.candidates[side] = append(e.candidates[side], c)
	for sub := range e.candSubs[side] {
		sub.Push(c)
	}
	return nil
}

func (m *Memory) Candidates(_ context.Context, id domain.CallID, side domain.CandidateSide) ([]domain.Candidate, error) {
	if !side.Valid() {
		return nil, domain.ErrInvalidSide
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.calls[id]
	if !ok {
		return nil, fmt.Errorf("candidates %s: %w", id, domain.ErrCallNotFound)
	}
	return append([]domain.Candidate(nil), e.candidates[side]...), nil
}

func (m *Memory) WatchCall(ctx context.Context, id domain.CallID) (<-chan domain.CallEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[id]
	if !ok {
		return nil, fmt.Errorf("watch %s: %w", id, domain.ErrCallNotFound)
	}
	sub := feed.New[domain.CallEvent](ctx)
	sub.Push(domain.CallEvent{Call: e.call.Clone()})
	e.callSubs[sub] = struct{}{}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(e.callSubs, sub)
		m.mu.Unlock()
	}()
	return sub.Out(), nil
}

func (m *Memory) WatchCandidates(ctx context.Context, id domain.CallID, side domain.CandidateSide) (<-chan domain.Candidate, error) {
	if !side.Valid() {
		return nil, domain.ErrInvalidSide
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.calls[id]
	if !ok {
		return nil, fmt.Errorf("watch candidates %s: %w", id, domain.ErrCallNotFound)
	}
	sub := feed.New[domain.Candidate](ctx)
	for _, c := range e.candidates[side] {
		sub.Push(c)
	}
	e.candSubs[side][sub] = struct{}{}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(e.candSubs[side], sub)
		m.mu.Unlock()
	}()
	return sub.Out(), nil
}

func (m *Memory) Close() error { return nil }

// publishCall fans the current record out to call subscribers. Caller holds m.mu.
func (m *Memory) publishCall(e *callEntry) {
	for sub := range e.callSubs {
		sub.Push(domain.CallEvent{Call: e.call.Clone()})
	}
}

// Len reports how many call records exist.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}
