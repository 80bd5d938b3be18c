package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/dkeye/callrelay/internal/adapters/media"
	"github.com/dkeye/callrelay/internal/adapters/relay"
	"github.com/dkeye/callrelay/internal/adapters/rtc"
	"github.com/dkeye/callrelay/internal/app/call"
	"github.com/dkeye/callrelay/internal/config"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
)

func main() {
	flag.String("server", "ws://localhost:8080/api/ws/signal", "signaling relay websocket URL (peer.server)")
	flag.Duration("request-timeout", 10*time.Second, "how long one relay request waits for its reply (peer.request_timeout)")
	user := flag.String("user", "", "local user id (random guest id when empty)")
	callee := flag.String("callee", "", "start a call addressed to this user")
	join := flag.String("call", "", "join an existing call by id")
	deny := flag.Bool("deny-media", false, "refuse camera and microphone access")
	noVideo := flag.Bool("no-video", false, "send audio only")
	flag.Bool("loopback", false, "gather loopback ICE candidates (ice.include_loopback)")
	flag.StringSlice("stun", rtc.DefaultSTUNServers, "STUN server URLs (ice.stun_servers)")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	cfg, err := config.LoadPeer(flag.CommandLine)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if (*callee == "") == (*join == "") {
		log.Fatal().Msg("exactly one of --callee or --call is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ws, err := relay.DialWS(ctx, cfg.Peer.Server, nil)
	if err != nil {
		log.Fatal().Err(err).Str("server", cfg.Peer.Server).Msg("dial relay")
	}
	defer func() { _ = ws.Close() }()
	ws.SetRequestTimeout(cfg.Peer.RequestTimeout)

	factory, err := rtc.NewFactory(rtc.Options{
		STUNServers:     cfg.ICE.STUNServers,
		IncludeLoopback: cfg.ICE.IncludeLoopback,
		LogLevel:        zerolog.WarnLevel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc factory")
	}

	var uid domain.UserID
	if *user != "" {
		if uid, err = domain.ParseUserID(*user); err != nil {
			log.Fatal().Err(err).Msg("bad --user")
		}
	}

	client := call.NewClient(ws, &media.SyntheticDevices{Deny: *deny}, factory, call.Options{
		User:        uid,
		Constraints: core.MediaConstraints{Audio: true, Video: !*noVideo},
	})

	ended := make(chan struct{})
	var endOnce sync.Once
	client.OnStateChange(func(s call.State) {
		log.Info().Str("state", s.String()).Msg("call state")
		if s == call.StateClosed {
			endOnce.Do(func() { close(ended) })
		}
	})

	if *callee != "" {
		to, err := domain.ParseUserID(*callee)
		if err != nil {
			log.Fatal().Err(err).Msg("bad --callee")
		}
		id, err := client.StartCall(ctx, to)
		if err != nil {
			log.Fatal().Err(err).Msg("start call")
		}
		log.Info().Str("call_id", string(id)).Str("callee", string(to)).Msg("share this call id with the callee")
	} else {
		if err := client.JoinCall(ctx, domain.CallID(*join)); err != nil {
			log.Fatal().Err(err).Msg("join call")
		}
	}

	stats := time.NewTicker(5 * time.Second)
	defer stats.Stop()
	for {
		select {
		case <-ctx.Done():
			hangCtx, hangCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := client.HangUp(hangCtx); err != nil {
				log.Error().Err(err).Msg("hang up")
			}
			hangCancel()
			return
		case <-ended:
			log.Info().Msg("call ended")
			return
		case <-ws.Done():
			log.Error().Msg("relay connection lost")
			return
		case <-stats.C:
			if rs := client.RemoteStream(); rs != nil {
				for _, t := range rs.Tracks() {
					log.Info().Str("kind", t.Kind.String()).Uint64("packets", t.Packets).Uint64("bytes", t.Bytes).Msg("remote track")
				}
			}
		}
	}
}
