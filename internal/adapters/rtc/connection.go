package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ core.MediaConnection = (*WebRTCConnection)(nil)

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	label  string
	logger zerolog.Logger
	cancel context.CancelFunc

	mu        sync.Mutex
	onICE     func(domain.Candidate)
	onTrack   func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onState   func(webrtc.PeerConnectionState)
	onClosed  func()
	hasRemote bool
	pending   []webrtc.ICECandidateInit
	closeOnce sync.Once
}

func newWebRTCConnection(pc *webrtc.PeerConnection, label string) *WebRTCConnection {
	return &WebRTCConnection{
		pc:     pc,
		label:  label,
		logger: log.With().Str("module", "webrtc").Str("peer", label).Logger(),
	}
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		onState, onClosed := c.onState, c.onClosed
		c.mu.Unlock()
		if onState != nil {
			onState(s)
		}
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
			if onClosed != nil {
				onClosed()
			}
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if cand == nil {
			return
		}
		c.mu.Lock()
		onICE := c.onICE
		c.mu.Unlock()
		if onICE != nil {
			onICE(fromICEInit(cand.ToJSON()))
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		onTrack := c.onTrack
		c.mu.Unlock()
		if onTrack != nil {
			onTrack(ctx, track, receiver)
		}
	})

	return nil
}

func (c *WebRTCConnection) AddLocalTrack(track core.LocalTrack) error {
	sender, err := c.pc.AddTrack(track.Track())
	if err != nil {
		return fmt.Errorf("add %s track: %w", track.Kind(), err)
	}
	// RTCP must be drained for interceptors to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) CreateOffer() (domain.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: offer.SDP}, nil
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer domain.SessionDescription) (domain.SessionDescription, error) {
	if err := c.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: answer.SDP}, nil
}

func (c *WebRTCConnection) ApplyAnswer(answer domain.SessionDescription) error {
	if err := c.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// setRemote applies the remote description and flushes candidates that
// arrived before it.
func (c *WebRTCConnection) setRemote(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	c.mu.Lock()
	c.hasRemote = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ci := range pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			c.logger.Warn().Err(err).Msg("add queued ice candidate")
		}
	}
	return nil
}

func (c *WebRTCConnection) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasRemote
}

func (c *WebRTCConnection) AddICECandidate(cand domain.Candidate) error {
	ci := toICEInit(cand)
	c.mu.Lock()
	if !c.hasRemote {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			c.logger.Error().Err(err).Msg("close error")
		} else {
			c.logger.Info().Msg("closed")
		}
	})
}

func (c *WebRTCConnection) OnICECandidate(fn func(domain.Candidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *WebRTCConnection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnClosed sets application-level callback for cleanup
func (c *WebRTCConnection) OnClosed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}

func toICEInit(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromICEInit(ci webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{
		Candidate:        ci.Candidate,
		SDPMid:           ci.SDPMid,
		SDPMLineIndex:    ci.SDPMLineIndex,
		UsernameFragment: ci.UsernameFragment,
	}
}
