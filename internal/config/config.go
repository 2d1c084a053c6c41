// Package config loads server settings from the environment. Storage
// backends keep their own *FromEnv factories; this covers everything the
// process entrypoint needs before wiring them together.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	TCPAddr  string `env:"TCP_ADDR" envDefault:":4747"`

	// InstanceID tags log lines and /health output; generated when unset.
	InstanceID string `env:"INSTANCE_ID"`

	MaxConnections    int `env:"MAX_CONNECTIONS" envDefault:"1024"`
	SnapshotCacheSize int `env:"SNAPSHOT_CACHE_SIZE" envDefault:"128"`

	// DefaultRooms are created at startup so a fresh server is joinable
	// without an admin session.
	DefaultRooms []string `env:"DEFAULT_ROOMS" envSeparator:"," envDefault:"Commons"`

	GameIdleTTL   time.Duration `env:"GAME_IDLE_TTL" envDefault:"10m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	ConnLossGrace time.Duration `env:"CONN_LOSS_GRACE" envDefault:"15s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.MaxConnections <= 0 {
		return Config{}, fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.SnapshotCacheSize <= 0 {
		return Config{}, fmt.Errorf("SNAPSHOT_CACHE_SIZE must be positive, got %d", cfg.SnapshotCacheSize)
	}
	return cfg, nil
}
