// Package call runs one side of a two-party call: media capture, the peer
// connection and the exchange of offer, answer and candidates over a
// core.Signaling relay.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/dkeye/callrelay/internal/feed"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoActiveCall = errors.New("no active call")
	ErrNoTrack      = errors.New("no local track of that kind")
)

const cleanupTimeout = 5 * time.Second

type Options struct {
	User        domain.UserID
	Constraints core.MediaConstraints
}

// session holds everything one call acquired. It outlives the context of
// the StartCall or JoinCall request and ends with HangUp or remote hang-up.
type session struct {
	id        domain.CallID
	role      Role
	owner     bool
	ctx       context.Context
	cancel    context.CancelFunc
	local     core.LocalStream
	conn      core.MediaConnection
	remote    *RemoteStream
	outbox    *feed.Feed[domain.Candidate]
	connected bool
	logger    zerolog.Logger
}

type Client struct {
	sig     core.Signaling
	devices core.MediaDevices
	conns   core.ConnectionFactory
	user    domain.UserID
	cons    core.MediaConstraints

	// op serializes call setup and teardown.
	op sync.Mutex

	mu      sync.Mutex
	state   State
	cur     *session
	onState func(State)
}

func NewClient(sig core.Signaling, devices core.MediaDevices, conns core.ConnectionFactory, opts Options) *Client {
	if opts.User == "" {
		opts.User = domain.NewGuestID()
	}
	if !opts.Constraints.Audio && !opts.Constraints.Video {
		opts.Constraints = core.MediaConstraints{Audio: true, Video: true}
	}
	return &Client{
		sig:     sig,
		devices: devices,
		conns:   conns,
		user:    opts.User,
		cons:    opts.Constraints,
	}
}

// OnStateChange registers a callback run after every state transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Client) User() domain.UserID { return c.user }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) CallID() domain.CallID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.id
}

// LocalStream is nil when no call is active.
func (c *Client) LocalStream() core.LocalStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.local == nil {
		return nil
	}
	return c.cur.local
}

// RemoteStream is nil when no call is active.
func (c *Client) RemoteStream() *RemoteStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil
	}
	return c.cur.remote
}

// StartCall creates a call record, publishes an offer and waits in the
// background for the answer and the callee's candidates.
func (c *Client) StartCall(ctx context.Context, callee domain.UserID) (domain.CallID, error) {
	c.op.Lock()
	defer c.op.Unlock()

	s, err := c.begin(RoleCaller)
	if err != nil {
		return "", err
	}
	if err := c.prepare(ctx, s); err != nil {
		return "", c.abort(s, fmt.Errorf("start call: %w", err))
	}

	id, err := c.sig.CreateCall(ctx, callee)
	if err != nil {
		return "", c.abort(s, fmt.Errorf("start call: create record: %w", err))
	}
	c.mu.Lock()
	s.id, s.owner = id, true
	c.mu.Unlock()
	go c.publishCandidates(s)

	offer, err := s.conn.CreateOffer()
	if err != nil {
		return "", c.abort(s, fmt.Errorf("start call %s: %w", id, err))
	}
	if err := c.sig.PublishOffer(ctx, id, domain.Offer{From: c.user, SessionDescription: offer}); err != nil {
		return "", c.abort(s, fmt.Errorf("start call %s: publish offer: %w", id, err))
	}
	c.transition(s, StateOfferSent)

	if err := c.listen(s); err != nil {
		return "", c.abort(s, fmt.Errorf("start call %s: %w", id, err))
	}
	s.logger.Info().Str("call_id", string(id)).Str("callee", string(callee)).Msg("offer sent")
	return id, nil
}

// JoinCall answers the offer stored in an existing call record.
func (c *Client) JoinCall(ctx context.Context, id domain.CallID) error {
	c.op.Lock()
	defer c.op.Unlock()

	s, err := c.begin(RoleCallee)
	if err != nil {
		return err
	}
	s.logger = s.logger.With().Str("call_id", string(id)).Logger()
	if err := c.prepare(ctx, s); err != nil {
		return c.abort(s, fmt.Errorf("join call %s: %w", id, err))
	}

	call, err := c.sig.GetCall(ctx, id)
	if err != nil {
		return c.abort(s, fmt.Errorf("join call %s: %w", id, err))
	}
	if call.Offer == nil {
		return c.abort(s, fmt.Errorf("join call %s: %w", id, domain.ErrNoOffer))
	}
	c.mu.Lock()
	s.id = id
	c.mu.Unlock()

	answer, err := s.conn.ApplyOfferAndCreateAnswer(call.Offer.SessionDescription)
	if err != nil {
		return c.abort(s, fmt.Errorf("join call %s: %w", id, err))
	}
	// Candidates gathered so far stay queued until the answer is accepted,
	// so a losing joiner never writes into the call.
	if err := c.sig.PublishAnswer(ctx, id, answer); err != nil {
		return c.abort(s, fmt.Errorf("join call %s: publish answer: %w", id, err))
	}
	c.transition(s, StateAnswerSent)
	go c.publishCandidates(s)

	if err := c.listen(s); err != nil {
		return c.abort(s, fmt.Errorf("join call %s: %w", id, err))
	}
	s.logger.Info().Str("from", string(call.Offer.From)).Msg("answer sent")
	return nil
}

// HangUp stops local media, closes the connection and deletes the call
// record. A record already deleted by the other side is not an error.
func (c *Client) HangUp(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	c.release(s)
	var err error
	if s.id != "" {
		if e := c.sig.EndCall(ctx, s.id); e != nil && !errors.Is(e, domain.ErrCallNotFound) {
			s.logger.Warn().Err(e).Msg("delete call record")
			err = fmt.Errorf("hang up %s: %w", s.id, e)
		}
	}
	c.finish(s, StateClosed)
	s.logger.Info().Msg("hung up")
	return err
}

// ToggleMute flips the enabled flag of the local audio tracks and reports
// whether audio is now muted.
func (c *Client) ToggleMute() (bool, error) {
	enabled, err := c.toggle(webrtc.RTPCodecTypeAudio)
	if err != nil {
		return false, err
	}
	return !enabled, nil
}

// ToggleVideo flips the enabled flag of the local video tracks and reports
// whether video is now on.
func (c *Client) ToggleVideo() (bool, error) {
	return c.toggle(webrtc.RTPCodecTypeVideo)
}

func (c *Client) toggle(kind webrtc.RTPCodecType) (bool, error) {
	local := c.LocalStream()
	if local == nil {
		return false, ErrNoActiveCall
	}
	found, enabled := false, false
	for _, t := range local.Tracks() {
		if t.Kind() != kind {
			continue
		}
		enabled = !t.Enabled()
		t.SetEnabled(enabled)
		found = true
	}
	if !found {
		return false, fmt.Errorf("%s: %w", kind, ErrNoTrack)
	}
	log.Info().Str("module", "call").Str("kind", kind.String()).Bool("enabled", enabled).Msg("track toggled")
	return enabled, nil
}

func (c *Client) begin(role Role) (*session, error) {
	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return nil, core.ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		role:   role,
		ctx:    ctx,
		cancel: cancel,
		remote: newRemoteStream(),
		outbox: feed.New[domain.Candidate](ctx),
		logger: log.With().Str("module", "call").Str("role", role.String()).Str("user", string(c.user)).Logger(),
	}
	c.cur = s
	c.mu.Unlock()

	c.transition(s, StateRequestingMedia)
	return s, nil
}

// prepare acquires media and builds the peer connection with local tracks
// attached.
func (c *Client) prepare(ctx context.Context, s *session) error {
	stream, err := c.devices.GetUserMedia(ctx, c.cons)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not acquire local media")
		return fmt.Errorf("get user media: %w", err)
	}
	c.mu.Lock()
	s.local = stream
	c.mu.Unlock()

	conn, err := c.conns.NewConnection(string(c.user))
	if err != nil {
		return fmt.Errorf("new connection: %w", err)
	}
	c.mu.Lock()
	s.conn = conn
	c.mu.Unlock()

	conn.OnTrack(func(tctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.remote.add(tctx, track, s.logger)
	})
	conn.OnStateChange(func(st webrtc.PeerConnectionState) {
		c.onPeerState(s, st)
	})
	conn.OnICECandidate(func(cand domain.Candidate) {
		s.outbox.Push(cand)
	})
	conn.OnClosed(func() {
		s.logger.Info().Msg("peer connection closed")
	})
	if err := conn.Start(s.ctx); err != nil {
		return fmt.Errorf("start connection: %w", err)
	}
	for _, t := range stream.Tracks() {
		if err := conn.AddLocalTrack(t); err != nil {
			return err
		}
	}
	c.transition(s, StateConnectionCreated)
	return nil
}

// listen subscribes to the record and to the other side's candidates.
func (c *Client) listen(s *session) error {
	events, err := c.sig.WatchCall(s.ctx, s.id)
	if err != nil {
		return fmt.Errorf("watch call: %w", err)
	}
	cands, err := c.sig.WatchCandidates(s.ctx, s.id, s.role.remoteSide())
	if err != nil {
		return fmt.Errorf("watch candidates: %w", err)
	}
	go c.watchCall(s, events)
	go c.applyCandidates(s, cands)
	return nil
}

func (c *Client) publishCandidates(s *session) {
	side := s.role.localSide()
	for cand := range s.outbox.Out() {
		if err := c.sig.PublishCandidate(s.ctx, s.id, side, cand); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Msg("publish candidate")
		}
	}
}

func (c *Client) watchCall(s *session, events <-chan domain.CallEvent) {
	applied := false
	for ev := range events {
		if ev.Deleted {
			c.remoteHangUp(s)
			return
		}
		if s.role != RoleCaller || applied || ev.Call == nil || ev.Call.Answer == nil {
			continue
		}
		if err := s.conn.ApplyAnswer(*ev.Call.Answer); err != nil {
			s.logger.Error().Err(err).Msg("apply answer")
			continue
		}
		applied = true
		s.logger.Info().Msg("answer applied")
	}
}

func (c *Client) applyCandidates(s *session, cands <-chan domain.Candidate) {
	for cand := range cands {
		if err := s.conn.AddICECandidate(cand); err != nil {
			s.logger.Warn().Err(err).Msg("add remote candidate")
		}
	}
}

func (c *Client) onPeerState(s *session, st webrtc.PeerConnectionState) {
	switch st {
	case webrtc.PeerConnectionStateConnected:
		c.mu.Lock()
		if c.cur != s {
			c.mu.Unlock()
			return
		}
		s.connected = true
		ready := c.state == StateOfferSent || c.state == StateAnswerSent
		c.mu.Unlock()
		if ready {
			c.transition(s, StateInCall)
		}
	case webrtc.PeerConnectionStateFailed:
		s.logger.Warn().Msg("peer connection failed")
	}
}

// remoteHangUp tears the call down locally after the other side deleted
// the record.
func (c *Client) remoteHangUp(s *session) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	active := c.cur == s
	c.mu.Unlock()
	if !active {
		return
	}
	s.logger.Info().Msg("remote side hung up")
	c.release(s)
	c.finish(s, StateClosed)
}

// abort releases a half-built call and returns the client to idle. Only a
// record this client created is deleted.
func (c *Client) abort(s *session, err error) error {
	c.release(s)
	if s.owner && s.id != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		if e := c.sig.EndCall(ctx, s.id); e != nil && !errors.Is(e, domain.ErrCallNotFound) {
			s.logger.Warn().Err(e).Msg("delete call record after failed setup")
		}
		cancel()
	}
	c.finish(s, StateIdle)
	s.logger.Warn().Err(err).Msg("call setup failed")
	return err
}

func (c *Client) release(s *session) {
	c.mu.Lock()
	local, conn := s.local, s.conn
	c.mu.Unlock()

	if local != nil {
		local.Stop()
	}
	if conn != nil {
		conn.Close()
	}
	s.cancel()
}

func (c *Client) transition(s *session, to State) {
	c.mu.Lock()
	if c.cur != s {
		c.mu.Unlock()
		return
	}
	if (to == StateOfferSent || to == StateAnswerSent) && s.connected {
		to = StateInCall
	}
	from := c.state
	c.state = to
	fn := c.onState
	c.mu.Unlock()

	if from == to {
		return
	}
	s.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
	if fn != nil {
		fn(to)
	}
}

func (c *Client) finish(s *session, to State) {
	c.mu.Lock()
	if c.cur != s {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	from := c.state
	c.state = to
	fn := c.onState
	c.mu.Unlock()

	s.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
	if fn != nil && from != to {
		fn(to)
	}
}
