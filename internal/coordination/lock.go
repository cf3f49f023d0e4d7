// Package coordination provides the distributed primitives the core layers
// on top of Redis: the cancel-flag namespace (C5) and promoter leader
// election (C3).
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLockTTL     = 30 * time.Second
	DefaultRetryDelay  = 100 * time.Millisecond
	DefaultMaxRetries  = 10
)

// ErrLockNotAcquired is returned when a lock cannot be acquired within the
// configured retries.
var ErrLockNotAcquired = errors.New("coordination: lock not acquired")

// ErrLockNotHeld is returned when releasing or extending a lock this
// instance does not currently hold.
var ErrLockNotHeld = errors.New("coordination: lock not held")

// DistributedLock is a Redis SETNX-based mutual-exclusion lock, used to
// serialize concurrent cancelJobs calls against the same job id so two
// racing requests cannot both decide "remove" independently.
type DistributedLock struct {
	client     *redis.Client
	key        string
	token      string
	ttl        time.Duration
	retryDelay time.Duration
	maxRetries int
}

// LockConfig controls a DistributedLock's timing.
type LockConfig struct {
	TTL        time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// DefaultLockConfig returns sensible lock timing defaults.
func DefaultLockConfig() LockConfig {
	return LockConfig{TTL: DefaultLockTTL, RetryDelay: DefaultRetryDelay, MaxRetries: DefaultMaxRetries}
}

// NewDistributedLock builds a lock over key, owned by a fresh token.
func NewDistributedLock(client *redis.Client, key string, cfg LockConfig) *DistributedLock {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLockTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	return &DistributedLock{
		client:     client,
		key:        key,
		token:      uuid.NewString(),
		ttl:        cfg.TTL,
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
	}
}

// Lock tries to acquire the lock up to maxRetries times, retryDelay apart,
// and returns ErrLockNotAcquired if it is still held elsewhere after the
// last attempt. It returns ctx.Err() early when ctx is done.
func (l *DistributedLock) Lock(ctx context.Context) error {
	for i := 0; i < l.maxRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		acquired, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		if i < l.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.retryDelay):
			}
		}
	}
	return ErrLockNotAcquired
}

// TryLock attempts to acquire the lock once, without blocking.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("coordination: acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Unlock releases the lock if still held by this token.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	result, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("coordination: release lock %s: %w", l.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend renews the lock's TTL if still held by this token.
func (l *DistributedLock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, extension.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("coordination: extend lock %s: %w", l.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Key returns the lock's key.
func (l *DistributedLock) Key() string { return l.key }
