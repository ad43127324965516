package store

import (
	"fmt"

	"go.uber.org/zap"

	"codepair/pkg/database"
	"codepair/pkg/interfaces"
)

// Backend identifies the session store implementation
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// Config selects and configures a session store backend.
type Config struct {
	Backend Backend
	SQLite  *database.Config
	Redis   RedisConfig
}

// New creates a SessionStore based on configuration
func New(cfg Config, logger *zap.Logger) (interfaces.SessionStore, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(cfg.SQLite, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := NewRedisStore(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
