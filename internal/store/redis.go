package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

const (
	defaultKeyPrefix = "codepair:session:"
	maxUpdateRetries = 10
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr        string        `json:"addr" yaml:"addr"`
	Password    string        `json:"password" yaml:"password"`
	DB          int           `json:"db" yaml:"db"`
	KeyPrefix   string        `json:"key_prefix" yaml:"key_prefix"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// RedisStore keeps one JSON record per session and a set of all session ids.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	logger.Info("redis session store ready", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &RedisStore{client: client, keyPrefix: keyPrefix, logger: logger}, nil
}

func (r *RedisStore) key(id string) string {
	return r.keyPrefix + id
}

func (r *RedisStore) indexKey() string {
	return r.keyPrefix + "ids"
}

func (r *RedisStore) Create(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.key(session.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !created {
		return interfaces.ErrSessionExists
	}
	return r.client.SAdd(ctx, r.indexKey(), session.ID).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*types.Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, err
	}
	return decodeSession(data)
}

// Update applies mutate inside a WATCH/MULTI transaction and retries when a
// concurrent writer touched the key first.
func (r *RedisStore) Update(ctx context.Context, id string, mutate interfaces.MutateFunc) (*types.Session, error) {
	key := r.key(id)
	var updated *types.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return interfaces.ErrSessionNotFound
			}
			return err
		}

		current, err := decodeSession(data)
		if err != nil {
			return err
		}
		next, err := applyMutation(current, mutate)
		if err != nil {
			return err
		}
		out, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = next
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("redis session update conflict", zap.String("session_id", id), zap.Int("attempt", i+1))
			continue
		}
		return nil, err
	}
	return nil, ErrUpdateConflict
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(n), nil
}

func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodeSession(data []byte) (*types.Session, error) {
	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	session.CreatedAt = session.CreatedAt.UTC()
	return &session, nil
}
