package db

import (
	"context"
	"fmt"

	"scan-order/config"

	"github.com/redis/go-redis/v9"
)

var Redis *redis.Client

// InitRedis connects the shared Redis client used by the redis session backend.
func InitRedis(ctx context.Context, cfg config.RedisConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	Redis = client
	return nil
}

func CloseRedis() {
	if Redis != nil {
		_ = Redis.Close()
	}
}
