package rtc

import (
	"fmt"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var _ core.ConnectionFactory = (*Factory)(nil)

// DefaultSTUNServers are the public endpoints used when nothing is configured.
// There is no TURN fallback: peers behind symmetric NAT will not connect.
var DefaultSTUNServers = []string{
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

type Options struct {
	STUNServers []string
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host peers and tests.
	IncludeLoopback bool
	// LogLevel is the minimum level forwarded from pion's internals.
	LogLevel zerolog.Level
}

func DefaultWebRTCConfig(stun []string) webrtc.Configuration {
	if len(stun) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stun}},
	}
}

// Factory builds peer connections sharing one pion API instance.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewFactory(opts Options) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory(opts.LogLevel)
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))
	return &Factory{api: api, config: DefaultWebRTCConfig(opts.STUNServers)}, nil
}

func (f *Factory) NewConnection(label string) (core.MediaConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newWebRTCConnection(pc, label), nil
}
