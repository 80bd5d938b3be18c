package call

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/callrelay/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// TrackStats is a snapshot of one remote track.
type TrackStats struct {
	ID      string
	Kind    webrtc.RTPCodecType
	Packets uint64
	Bytes   uint64
}

type remoteTrack struct {
	src     *webrtc.TrackRemote
	packets atomic.Uint64
	bytes   atomic.Uint64
}

// loop reads RTP from the remote track until it ends or ctx is done.
func (t *remoteTrack) loop(ctx context.Context, logger *zerolog.Logger) {
	kind := t.src.Kind().String()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("remote track ctx done")
			return
		default:
		}
		pkt, _, err := t.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track read ended")
			return
		}
		t.packets.Add(1)
		t.bytes.Add(uint64(len(pkt.Payload)))
		metrics.RTPReceived(kind, 1)
	}
}

// RemoteStream collects the tracks the other peer sends.
type RemoteStream struct {
	mu     sync.RWMutex
	tracks map[string]*remoteTrack
}

func newRemoteStream() *RemoteStream {
	return &RemoteStream{
		tracks: make(map[string]*remoteTrack),
	}
}

func (s *RemoteStream) add(ctx context.Context, src *webrtc.TrackRemote, logger zerolog.Logger) {
	t := &remoteTrack{src: src}
	s.mu.Lock()
	s.tracks[src.ID()] = t
	s.mu.Unlock()

	l := logger.With().Str("track_id", src.ID()).Str("kind", src.Kind().String()).Logger()
	go t.loop(ctx, &l)
}

func (s *RemoteStream) Tracks() []TrackStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TrackStats, 0, len(s.tracks))
	for id, t := range s.tracks {
		out = append(out, TrackStats{
			ID:      id,
			Kind:    t.src.Kind(),
			Packets: t.packets.Load(),
			Bytes:   t.bytes.Load(),
		})
	}
	return out
}

// Packets sums the packets received on tracks of the given kind.
func (s *RemoteStream) Packets(kind webrtc.RTPCodecType) uint64 {
	var n uint64
	for _, t := range s.Tracks() {
		if t.Kind == kind {
			n += t.Packets
		}
	}
	return n
}
