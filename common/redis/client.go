// Package redis holds the shared go-redis helpers: client construction and
// the consumer-group stream operations used by the inbound and outbound
// chat streams.
package redis

import (
	"context"
	"fmt"

	"hanna-engine/common/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient builds a client from cfg. No connection is made until the
// first command; call Ping at startup to fail fast on a bad address.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping round-trips a PING and returns the error annotated with the server
// address, so a startup failure names the instance that was unreachable.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return nil
}

// Close releases the pool. A nil client is a no-op so shutdown paths can
// call it unconditionally.
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
