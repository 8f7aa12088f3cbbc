// Package redisstore keeps short-lived reset state in Redis. Multi-step
// updates run inside WATCH/MULTI transactions and retry on contention.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 4

// NewClient parses a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
