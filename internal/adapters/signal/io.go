package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// request is one decoded message together with the connection it came from.
type request struct {
	sid  core.SessionID
	conn *WsSignalConn
	msg  Message
}

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Registry.Unbind(sid)
		ctl.Limiter.Forget(sid)
		c.Close()
		metrics.SignalConnClosed()
	}()

	pongWait := ctl.opts.PingPeriod * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(ctx, sid, c, data)
	}
}

// handleSignal runs one request to completion before the next is read, so a
// connection's writes reach the store in the order they were sent.
func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	req := &request{sid: sid, conn: c}
	if err := json.Unmarshal(data, &req.msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		metrics.SignalMessage("invalid", CodeBadPayload)
		ctl.fail(req, fmt.Errorf("%w: %v", ErrBadPayload, err))
		return
	}
	if !ctl.Limiter.Allow(sid) {
		metrics.SignalMessage(req.msg.Type, CodeRateLimited)
		ctl.fail(req, ErrRateLimited)
		return
	}

	var err error
	switch req.msg.Type {
	case TypePing:
		ctl.handlePing(req)
	case TypeCreateCall:
		err = ctl.handleCreateCall(ctx, req)
	case TypeGetCall:
		err = ctl.handleGetCall(ctx, req)
	case TypeSetOffer:
		err = ctl.handleSetOffer(ctx, req)
	case TypeSetAnswer:
		err = ctl.handleSetAnswer(ctx, req)
	case TypeAddCandidate:
		err = ctl.handleAddCandidate(ctx, req)
	case TypeDeleteCall:
		err = ctl.handleDeleteCall(ctx, req)
	case TypeWatchCall:
		err = ctl.handleWatchCall(ctx, req)
	case TypeWatchCandidates:
		err = ctl.handleWatchCandidates(ctx, req)
	case TypeUnwatch:
		ctl.handleUnwatch(req)
	default:
		log.Warn().Str("module", "signal").Str("type", req.msg.Type).Msg("unknown signal")
		metrics.SignalMessage("unknown", CodeBadPayload)
		ctl.fail(req, fmt.Errorf("%w: unknown type %q", ErrBadPayload, req.msg.Type))
		return
	}

	if err != nil {
		metrics.SignalMessage(req.msg.Type, CodeFor(err))
		ctl.fail(req, err)
		return
	}
	metrics.SignalMessage(req.msg.Type, "ok")
}

func (ctl *SignalWSController) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ctl.opts.OpTimeout)
}

func (ctl *SignalWSController) reply(req *request, m Message) {
	m.Type = TypeResult
	m.ReqID = req.msg.ReqID
	ctl.sendJSON(req.sid, req.conn, m)
}

func (ctl *SignalWSController) fail(req *request, err error) {
	code := CodeFor(err)
	if code == CodeInternal {
		log.Error().Err(err).Str("module", "signal").Str("type", req.msg.Type).Msg("request failed")
	}
	ctl.sendJSON(req.sid, req.conn, Message{
		Type:  TypeError,
		ReqID: req.msg.ReqID,
		Code:  code,
		Error: err.Error(),
	})
}

func (ctl *SignalWSController) sendJSON(sid core.SessionID, c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	err = c.TrySend(b)
	if !errors.Is(err, ErrBackpressure) {
		return
	}
	metrics.SignalDropped()
	switch ctl.Policy.OnBackPressure(sid) {
	case app.KickMember:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("send queue full, kicking")
		ctl.Registry.Cancel(sid)
	case app.DropFrame:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("send queue full, frame dropped")
	}
}
