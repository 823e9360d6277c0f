package redis

import (
	"context"
	"fmt"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/sessions/internal/config"
)

const pingTimeout = 2 * time.Second

// NewClient creates a Redis client with bounded timeouts. An unreachable server is
// logged, not fatal: sessions fall back to Postgres until Redis answers.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*goRedis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := goRedis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := goRedis.NewClient(opts)

	if err := Ping(ctx, client); err != nil {
		logger.Warn("redis not reachable at startup, serving from postgres", zap.String("addr", opts.Addr), zap.Error(err))
		return client, nil
	}

	logger.Info("connected to redis", zap.String("addr", opts.Addr), zap.Int("pool_size", opts.PoolSize))
	return client, nil
}

// Ping verifies that the Redis client is healthy.
func Ping(ctx context.Context, client goRedis.UniversalClient) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}
