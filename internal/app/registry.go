package app

import (
	"context"
	"sync"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Conn    core.SignalConnection
	Cancel  context.CancelFunc
	Watches map[string]context.CancelFunc
}

// Registry tracks open signaling connections and the store subscriptions
// each one holds, so everything a connection opened dies with it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		Conn:    conn,
		Cancel:  cancel,
		Watches: make(map[string]context.CancelFunc),
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

func (r *Registry) GetConn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

// Unbind removes the session and cancels its watches and its context.
func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	delete(r.sessions, sid)
	r.mu.Unlock()
	if !ok {
		return
	}
	for _, cancel := range e.Watches {
		cancel()
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("watches", len(e.Watches)).Msg("unbind session")
}

// AddWatch records a subscription. It fails for unknown sessions and for a
// watch id already in use on that session.
func (r *Registry) AddWatch(sid core.SessionID, watchID string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if _, dup := e.Watches[watchID]; dup {
		return false
	}
	e.Watches[watchID] = cancel
	return true
}

// RemoveWatch cancels and forgets a subscription.
func (r *Registry) RemoveWatch(sid core.SessionID, watchID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	var cancel context.CancelFunc
	if ok {
		cancel, ok = e.Watches[watchID]
		delete(e.Watches, watchID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (r *Registry) WatchCount(sid core.SessionID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return len(e.Watches)
	}
	return 0
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
