// Package media provides local capture devices for headless peers.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoTracksRequested = errors.New("no audio or video requested")

const (
	audioInterval = 20 * time.Millisecond
	videoInterval = 33 * time.Millisecond

	audioClockRate = 48000
	videoClockRate = 90000
)

var (
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	vp8Frame    = []byte{0x10, 0x00, 0x00, 0x9d, 0x01, 0x2a, 0x02, 0x00, 0x02, 0x00}
)

// SyntheticDevices produces RTP tracks with silent audio and a static video
// frame. Deny simulates the user refusing camera/microphone access.
type SyntheticDevices struct {
	Deny bool
}

var _ core.MediaDevices = (*SyntheticDevices)(nil)

func (d *SyntheticDevices) GetUserMedia(_ context.Context, cons core.MediaConstraints) (core.LocalStream, error) {
	if d.Deny {
		log.Error().Str("module", "media").Msg("camera/microphone access denied")
		return nil, core.ErrPermissionDenied
	}
	if !cons.Audio && !cons.Video {
		return nil, ErrNoTracksRequested
	}

	s := &stream{id: uuid.NewString()}
	if cons.Audio {
		t, err := newTrack(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: audioClockRate,
			Channels:  2,
		}, "audio", s.id, webrtc.RTPCodecTypeAudio)
		if err != nil {
			return nil, err
		}
		go t.generate(audioInterval, audioClockRate/50, opusSilence)
		s.tracks = append(s.tracks, t)
	}
	if cons.Video {
		t, err := newTrack(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: videoClockRate,
		}, "video", s.id, webrtc.RTPCodecTypeVideo)
		if err != nil {
			s.Stop()
			return nil, err
		}
		go t.generate(videoInterval, videoClockRate/30, vp8Frame)
		s.tracks = append(s.tracks, t)
	}
	log.Info().Str("module", "media").Str("stream_id", s.id).Int("tracks", len(s.tracks)).Msg("local stream acquired")
	return s, nil
}

type stream struct {
	id     string
	tracks []core.LocalTrack
}

func (s *stream) ID() string                { return s.id }
func (s *stream) Tracks() []core.LocalTrack { return s.tracks }

func (s *stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// track is a static RTP track fed by a ticker while enabled.
type track struct {
	local   *webrtc.TrackLocalStaticRTP
	kind    webrtc.RTPCodecType
	enabled atomic.Bool
	stop    chan struct{}
	once    sync.Once
}

func newTrack(codec webrtc.RTPCodecCapability, id, streamID string, kind webrtc.RTPCodecType) (*track, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	t := &track{local: local, kind: kind, stop: make(chan struct{})}
	t.enabled.Store(true)
	return t, nil
}

func (t *track) Kind() webrtc.RTPCodecType { return t.kind }
func (t *track) Track() webrtc.TrackLocal  { return t.local }
func (t *track) Enabled() bool             { return t.enabled.Load() }
func (t *track) SetEnabled(enabled bool)   { t.enabled.Store(enabled) }

func (t *track) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *track) generate(interval time.Duration, tsStep uint32, payload []byte) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		seq uint16
		ts  uint32
	)
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
		ts += tsStep
		if !t.enabled.Load() {
			continue
		}
		seq++
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         t.kind == webrtc.RTPCodecTypeVideo,
				SequenceNumber: seq,
				Timestamp:      ts,
			},
			Payload: payload,
		}
		if err := t.local.WriteRTP(pkt); err != nil {
			log.Debug().Err(err).Str("module", "media").Str("kind", t.kind.String()).Msg("write rtp")
		}
	}
}
