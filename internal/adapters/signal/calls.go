package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/callrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

func requireCallID(req *request) error {
	if req.msg.CallID == "" {
		return fmt.Errorf("%w: call_id required", ErrBadPayload)
	}
	return nil
}

func (ctl *SignalWSController) handleCreateCall(ctx context.Context, req *request) error {
	var callee domain.UserID
	if req.msg.Callee != "" {
		id, err := domain.ParseUserID(string(req.msg.Callee))
		if err != nil {
			return fmt.Errorf("%w: callee: %v", ErrBadPayload, err)
		}
		callee = id
	}

	ctx, cancel := ctl.opContext(ctx)
	defer cancel()
	id, err := ctl.Relay.CreateCall(ctx, callee)
	if err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("sid", string(req.sid)).Str("call_id", string(id)).Msg("create_call")
	ctl.reply(req, Message{CallID: id})
	return nil
}

func (ctl *SignalWSController) handleGetCall(ctx context.Context, req *request) error {
	if err := requireCallID(req); err != nil {
		return err
	}
	ctx, cancel := ctl.opContext(ctx)
	defer cancel()
	call, err := ctl.Relay.GetCall(ctx, req.msg.CallID)
	if err != nil {
		return err
	}
	ctl.reply(req, Message{CallID: call.ID, Call: call})
	return nil
}

func (ctl *SignalWSController) handleSetOffer(ctx context.Context, req *request) error {
	if err := requireCallID(req); err != nil {
		return err
	}
	if req.msg.Offer == nil {
		return fmt.Errorf("%w: offer required", ErrBadPayload)
	}
	ctx, cancel := ctl.opContext(ctx)
	defer cancel()
	if err := ctl.Relay.PublishOffer(ctx, req.msg.CallID, *req.msg.Offer); err != nil {
		return err
	}
	ctl.reply(req, Message{CallID: req.msg.CallID})
	return nil
}

func (ctl *SignalWSController) handleSetAnswer(ctx context.Context, req *request) error {
	if err := requireCallID(req); err != nil {
		return err
	}
	if req.msg.Answer == nil {
		return fmt.Errorf("%w: answer required", ErrBadPayload)
	}
	ctx, cancel := ctl.opContext(ctx)
	defer cancel()
	if err := ctl.Relay.PublishAnswer(ctx, req.msg.CallID, *req.msg.Answer); err != nil {
		return err
	}
	ctl.reply(req, Message{CallID: req.msg.CallID})
	return nil
}

func (ctl *SignalWSController) handleAddCandidate(ctx context.Context, req *request) error {
	if err := requireCallID(req); err != nil {
		return err
	}
	if req.msg.Candidate == nil {
		return fmt.Errorf("%w: candidate required", ErrBadPayload)
	}
	ctx, cancel := ctl.opContext(ctx)
	defer cancel()
	if err := ctl.Relay.PublishCandidate(ctx, req.msg.CallID, req.msg.Side, *req.msg.Candidate); err != nil {
		return err
	}
	ctl.reply(req, Message{CallID: req.msg.CallID, Side: req.msg.Side})
	return nil
}

func (ctl *SignalWSController) handleDeleteCall(ctx context.Context, req *request) error {
	if err := requireCallID(req); err != nil {
		return err
	}
	ctx, cancel := ctl.opContext(ctx)
	defer cancel()
	if err := ctl.Relay.EndCall(ctx, req.msg.CallID); err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("sid", string(req.sid)).Str("call_id", string(req.msg.CallID)).Msg("delete_call")
	ctl.reply(req, Message{CallID: req.msg.CallID})
	return nil
}
