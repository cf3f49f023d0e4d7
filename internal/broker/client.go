// Package broker implements the Job Broker (C2): named queues with
// enqueue-immediate, enqueue-delayed, enqueue-repeatable, and
// remove-repeatable, backed by Redis.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const connectionTimeout = 5 * time.Second

// NewClient connects to Redis at url and verifies reachability before
// returning.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("broker: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("broker: ping redis: %w", err)
	}

	return client, nil
}
