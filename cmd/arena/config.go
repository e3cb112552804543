package main

import (
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/arena/pkg/arena/store"
)

const (
	storageMemory   = "memory"
	storageRedis    = "redis"
	storagePostgres = "postgres"
)

// config holds the process-level settings. Arena, server, NATS and telemetry settings are parsed by their packages.
type config struct {
	// Storage selects the row backend: memory, redis, or postgres.
	Storage string `env:"ARENA_STORAGE" envDefault:"memory"`

	RedisAddress  string `env:"ARENA_REDIS_ADDRESS" envDefault:"localhost:6379"`
	RedisPassword string `env:"ARENA_REDIS_PASSWORD"`
	RedisPrefix   string `env:"ARENA_REDIS_PREFIX" envDefault:"arena"`

	PostgresDSN string `env:"ARENA_POSTGRES_DSN"`

	// SnapshotStorage is NOP or JETSTREAM. JetStream snapshots need the memory backend and a NATS URL.
	SnapshotStorage store.SnapshotStorageType `env:"ARENA_SNAPSHOT_STORAGE" envDefault:"NOP"`
	SnapshotBucket  string                    `env:"ARENA_SNAPSHOT_BUCKET" envDefault:"arena_snapshot"`
	SnapshotObject  string                    `env:"ARENA_SNAPSHOT_OBJECT" envDefault:"snapshot"`
	SnapshotCron    string                    `env:"ARENA_SNAPSHOT_CRON" envDefault:"*/1 * * * *"`

	// StatsdAddress enables metrics when set.
	StatsdAddress string `env:"ARENA_STATSD_ADDRESS"`
}

func loadConfig() (config, error) {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return config{}, eris.Wrap(err, "failed to parse config")
	}
	if err := cfg.validate(); err != nil {
		return config{}, eris.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func (cfg config) validate() error {
	switch cfg.Storage {
	case storageMemory:
	case storageRedis:
		if cfg.RedisAddress == "" {
			return eris.New("ARENA_REDIS_ADDRESS is required for redis storage")
		}
	case storagePostgres:
		if cfg.PostgresDSN == "" {
			return eris.New("ARENA_POSTGRES_DSN is required for postgres storage")
		}
	default:
		return eris.Errorf("invalid storage %q (must be memory, redis or postgres)", cfg.Storage)
	}

	if !cfg.SnapshotStorage.Valid() {
		return eris.Errorf("invalid snapshot storage %q (must be NOP or JETSTREAM)", cfg.SnapshotStorage)
	}
	if cfg.SnapshotStorage == store.SnapshotStorageJetStream && cfg.Storage != storageMemory {
		return eris.New("JETSTREAM snapshots require memory storage")
	}
	return nil
}
