package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/callrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// A watch is keyed by the req_id of the request that opened it. Every event it
// produces carries that req_id back to the client.

func (ctl *SignalWSController) openWatch(ctx context.Context, req *request) (context.Context, error) {
	if err := requireCallID(req); err != nil {
		return nil, err
	}
	if req.msg.ReqID == "" {
		return nil, fmt.Errorf("%w: req_id required for watch", ErrBadPayload)
	}
	wctx, cancel := context.WithCancel(ctx)
	if !ctl.Registry.AddWatch(req.sid, req.msg.ReqID, cancel) {
		cancel()
		return nil, fmt.Errorf("%w: watch %q already open", ErrBadPayload, req.msg.ReqID)
	}
	return wctx, nil
}

func (ctl *SignalWSController) closeWatch(wctx context.Context, req *request) {
	if wctx.Err() == nil {
		ctl.sendJSON(req.sid, req.conn, Message{
			Type:   TypeWatchClosed,
			ReqID:  req.msg.ReqID,
			CallID: req.msg.CallID,
		})
	}
	ctl.Registry.RemoveWatch(req.sid, req.msg.ReqID)
}

func (ctl *SignalWSController) handleWatchCall(ctx context.Context, req *request) error {
	wctx, err := ctl.openWatch(ctx, req)
	if err != nil {
		return err
	}
	events, err := ctl.Relay.WatchCall(wctx, req.msg.CallID)
	if err != nil {
		ctl.Registry.RemoveWatch(req.sid, req.msg.ReqID)
		return err
	}
	ctl.reply(req, Message{CallID: req.msg.CallID})

	go func() {
		defer ctl.closeWatch(wctx, req)
		for ev := range events {
			ctl.sendJSON(req.sid, req.conn, Message{
				Type:    TypeCallEvent,
				ReqID:   req.msg.ReqID,
				CallID:  req.msg.CallID,
				Call:    ev.Call,
				Deleted: ev.Deleted,
			})
		}
	}()
	return nil
}

func (ctl *SignalWSController) handleWatchCandidates(ctx context.Context, req *request) error {
	if !req.msg.Side.Valid() {
		return fmt.Errorf("watch %q: %w", req.msg.Side, domain.ErrInvalidSide)
	}
	wctx, err := ctl.openWatch(ctx, req)
	if err != nil {
		return err
	}
	cands, err := ctl.Relay.WatchCandidates(wctx, req.msg.CallID, req.msg.Side)
	if err != nil {
		ctl.Registry.RemoveWatch(req.sid, req.msg.ReqID)
		return err
	}
	ctl.reply(req, Message{CallID: req.msg.CallID, Side: req.msg.Side})

	go func() {
		defer ctl.closeWatch(wctx, req)
		for c := range cands {
			ctl.sendJSON(req.sid, req.conn, Message{
				Type:      TypeCandidateEvent,
				ReqID:     req.msg.ReqID,
				CallID:    req.msg.CallID,
				Side:      req.msg.Side,
				Candidate: &c,
			})
		}
	}()
	return nil
}

// handleUnwatch is idempotent: a watch that already ended is not an error.
func (ctl *SignalWSController) handleUnwatch(req *request) {
	if ok := ctl.Registry.RemoveWatch(req.sid, req.msg.WatchID); ok {
		log.Debug().Str("module", "signal").Str("sid", string(req.sid)).Str("watch_id", req.msg.WatchID).Msg("unwatch")
	}
	ctl.reply(req, Message{WatchID: req.msg.WatchID})
}
