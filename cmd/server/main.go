package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/callrelay/internal/adapters/http"
	"github.com/dkeye/callrelay/internal/adapters/relay"
	sig "github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/adapters/store"
	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/config"
	"github.com/dkeye/callrelay/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	calls, ready, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open store")
	}
	defer func() {
		if err := calls.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	policy, err := app.PolicyByName(cfg.Signal.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("backpressure policy")
	}

	rel := relay.NewStoreRelay(calls)
	ctl := sig.NewSignalWSController(
		rel,
		app.NewRegistry(),
		policy,
		sig.NewRateLimiter(cfg.Signal.RateLimit, cfg.Signal.RateBurst),
		sig.Options{
			SendBuffer:   cfg.Signal.SendBuffer,
			ReadLimit:    cfg.ReadLimit,
			WriteTimeout: cfg.Signal.WriteTimeout,
			PingPeriod:   cfg.PingPeriod,
			OpTimeout:    cfg.Signal.OpTimeout,
		},
	)

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Relay:  rel,
		Store:  calls,
		Signal: ctl,
		Ready:  ready,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("backend", cfg.Store.Backend).Msg("callrelay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (core.CallStore, func(context.Context) error, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		rc := cfg.Store.Redis
		rdb := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", rc.Addr, err)
		}
		ready := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return store.NewRedis(rdb, rc.Prefix, rc.TTL), ready, nil
	default:
		return store.NewMemory(), nil, nil
	}
}
