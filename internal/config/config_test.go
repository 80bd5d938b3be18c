package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, []string{
		"stun:stun1.l.google.com:19302",
		"stun:stun2.l.google.com:19302",
	}, cfg.ICE.STUNServers)
	assert.Equal(t, 5*time.Second, cfg.Signal.WriteTimeout)
	assert.Equal(t, BackpressureKick, cfg.Signal.Backpressure)
	assert.Equal(t, 10*time.Second, cfg.Peer.RequestTimeout)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
mode: debug
port: 9000
store:
  backend: redis
  redis:
    addr: redis:6379
    prefix: "calls-test:"
    ttl: 10m
ice:
  stun_servers: ["stun:example.org:3478"]
  include_loopback: true
signal:
  rate_limit: 5
  rate_burst: 10
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "calls-test:", cfg.Store.Redis.Prefix)
	assert.Equal(t, 10*time.Minute, cfg.Store.Redis.TTL)
	assert.Equal(t, []string{"stun:example.org:3478"}, cfg.ICE.STUNServers)
	assert.True(t, cfg.ICE.IncludeLoopback)
	assert.Equal(t, 5.0, cfg.Signal.RateLimit)
	assert.Equal(t, 10, cfg.Signal.RateBurst)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CALLRELAY_PORT", "7070")
	t.Setenv("CALLRELAY_STORE_BACKEND", "redis")
	path := writeFile(t, "port: 9000\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeFile(t, "store:\n  backend: etcd\n")
	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestLoadRejectsUnknownBackpressure(t *testing.T) {
	path := writeFile(t, "signal:\n  backpressure: block\n")
	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrUnknownBackpressure)

	cfg, err := LoadFile(writeFile(t, "signal:\n  backpressure: drop\n"))
	require.NoError(t, err)
	assert.Equal(t, BackpressureDrop, cfg.Signal.Backpressure)
}

func peerFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("peer", pflag.ContinueOnError)
	fs.String("server", "ws://localhost:8080/api/ws/signal", "")
	fs.Duration("request-timeout", 10*time.Second, "")
	fs.StringSlice("stun", nil, "")
	fs.Bool("loopback", false, "")
	return fs
}

func TestLoadPeerFlags(t *testing.T) {
	path := writeFile(t, `
ice:
  stun_servers: ["stun:file.example:3478"]
  include_loopback: false
peer:
  server: ws://relay.example/api/ws/signal
  request_timeout: 3s
`)

	t.Run("file values when flags unset", func(t *testing.T) {
		fs := peerFlagSet()
		require.NoError(t, fs.Parse(nil))
		cfg, err := LoadFileWithFlags(path, fs)
		require.NoError(t, err)
		assert.Equal(t, []string{"stun:file.example:3478"}, cfg.ICE.STUNServers)
		assert.False(t, cfg.ICE.IncludeLoopback)
		assert.Equal(t, "ws://relay.example/api/ws/signal", cfg.Peer.Server)
		assert.Equal(t, 3*time.Second, cfg.Peer.RequestTimeout)
	})

	t.Run("flags override file", func(t *testing.T) {
		fs := peerFlagSet()
		require.NoError(t, fs.Parse([]string{
			"--loopback",
			"--stun", "stun:flag.example:3478",
			"--request-timeout", "1s",
			"--server", "ws://127.0.0.1:9/ws",
		}))
		cfg, err := LoadFileWithFlags(path, fs)
		require.NoError(t, err)
		assert.Equal(t, []string{"stun:flag.example:3478"}, cfg.ICE.STUNServers)
		assert.True(t, cfg.ICE.IncludeLoopback)
		assert.Equal(t, "ws://127.0.0.1:9/ws", cfg.Peer.Server)
		assert.Equal(t, time.Second, cfg.Peer.RequestTimeout)
	})
}
