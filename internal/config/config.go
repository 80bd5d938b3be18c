package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Store  StoreConfig  `mapstructure:"store"`
	ICE    ICEConfig    `mapstructure:"ice"`
	Signal SignalConfig `mapstructure:"signal"`
	Peer   PeerConfig   `mapstructure:"peer"`
}

type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ICEConfig is read by cmd/peer when it builds peer connections.
type ICEConfig struct {
	STUNServers     []string `mapstructure:"stun_servers"`
	IncludeLoopback bool     `mapstructure:"include_loopback"`
}

type SignalConfig struct {
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	OpTimeout    time.Duration `mapstructure:"op_timeout"`
	// Backpressure is what happens to a connection whose send queue is
	// full: "kick" closes it, "drop" discards the frame.
	Backpressure string `mapstructure:"backpressure"`
}

type PeerConfig struct {
	Server         string        `mapstructure:"server"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	BackpressureKick = "kick"
	BackpressureDrop = "drop"
)

var (
	ErrUnknownBackend      = errors.New("unknown store backend")
	ErrUnknownBackpressure = errors.New("unknown backpressure policy")
)

// peerFlags maps config keys to the cmd/peer flags that override them.
var peerFlags = map[string]string{
	"peer.server":          "server",
	"peer.request_timeout": "request-timeout",
	"ice.stun_servers":     "stun",
	"ice.include_loopback": "loopback",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "callrelay-dev-secret")
	v.SetDefault("log_level", "info")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "callrelay:")
	v.SetDefault("store.redis.ttl", "2h")

	v.SetDefault("ice.stun_servers", []string{
		"stun:stun1.l.google.com:19302",
		"stun:stun2.l.google.com:19302",
	})
	v.SetDefault("ice.include_loopback", false)

	v.SetDefault("signal.rate_limit", 50.0)
	v.SetDefault("signal.rate_burst", 100)
	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("signal.write_timeout", "5s")
	v.SetDefault("signal.op_timeout", "5s")
	v.SetDefault("signal.backpressure", BackpressureKick)

	v.SetDefault("peer.server", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("peer.request_timeout", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults when
// the file is missing. CALLRELAY_* environment variables override both,
// e.g. CALLRELAY_STORE_BACKEND=redis.
func Load() (*Config, error) {
	return LoadFile(envFile())
}

// LoadPeer is Load with the peer's command-line flags layered on top. Flags
// the user did not set leave the file, env and default values in place.
func LoadPeer(fs *pflag.FlagSet) (*Config, error) {
	return LoadFileWithFlags(envFile(), fs)
}

func envFile() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/config.%s.yaml", env)
}

func LoadFile(fileName string) (*Config, error) {
	return LoadFileWithFlags(fileName, nil)
}

func LoadFileWithFlags(fileName string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("CALLRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if fs != nil {
		for key, name := range peerFlags {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Backend).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	switch c.Signal.Backpressure {
	case BackpressureKick, BackpressureDrop:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackpressure, c.Signal.Backpressure)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}
