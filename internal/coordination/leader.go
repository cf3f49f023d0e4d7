package coordination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/northcloud/eventorch/internal/logger"
)

const (
	DefaultLeaderTTL             = 30 * time.Second
	DefaultLeaderRenewalInterval = 10 * time.Second
	DefaultElectionRetryInterval = 5 * time.Second
	renewalDivisor               = 3
)

// ErrNotLeader is returned when a leader-only operation is attempted by a
// non-leader instance.
var ErrNotLeader = errors.New("coordination: not the leader")

// LeaderElection provides Redis SETNX-based leader election so that when
// more than one process runs the Schedule Promoter, only one performs
// reconciliation and promotion at a time (§4.3, §5's "one process runs the
// Schedule Promoter").
type LeaderElection struct {
	client           *redis.Client
	key              string
	id               string
	ttl              time.Duration
	renewalInterval  time.Duration
	electionInterval time.Duration
	log              logger.Logger

	isLeader atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	onElected func()
	onLost    func()
}

// LeaderConfig controls a LeaderElection's timing and callbacks.
type LeaderConfig struct {
	Key              string
	TTL              time.Duration
	RenewalInterval  time.Duration
	ElectionInterval time.Duration
	OnElected        func()
	OnLost           func()
}

// DefaultLeaderConfig returns sensible election timing defaults for key.
func DefaultLeaderConfig(key string) LeaderConfig {
	return LeaderConfig{
		Key:              key,
		TTL:              DefaultLeaderTTL,
		RenewalInterval:  DefaultLeaderRenewalInterval,
		ElectionInterval: DefaultElectionRetryInterval,
	}
}

// NewLeaderElection constructs a LeaderElection from cfg.
func NewLeaderElection(client *redis.Client, cfg LeaderConfig, log logger.Logger) (*LeaderElection, error) {
	if cfg.Key == "" {
		return nil, errors.New("coordination: leader key is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultLeaderTTL
	}
	if cfg.RenewalInterval <= 0 {
		cfg.RenewalInterval = DefaultLeaderRenewalInterval
	}
	if cfg.ElectionInterval <= 0 {
		cfg.ElectionInterval = DefaultElectionRetryInterval
	}
	if cfg.RenewalInterval >= cfg.TTL {
		cfg.RenewalInterval = cfg.TTL / renewalDivisor
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &LeaderElection{
		client:           client,
		key:              cfg.Key,
		id:               uuid.NewString(),
		ttl:              cfg.TTL,
		renewalInterval:  cfg.RenewalInterval,
		electionInterval: cfg.ElectionInterval,
		log:              log,
		stopCh:           make(chan struct{}),
		onElected:        cfg.OnElected,
		onLost:           cfg.OnLost,
	}, nil
}

// Start begins the background election loop.
func (l *LeaderElection) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop halts the election loop and resigns leadership if held.
func (l *LeaderElection) Stop(ctx context.Context) error {
	close(l.stopCh)
	l.wg.Wait()

	if l.isLeader.Load() {
		return l.resign(ctx)
	}
	return nil
}

// IsLeader reports whether this instance currently holds leadership.
func (l *LeaderElection) IsLeader() bool {
	return l.isLeader.Load()
}

// ID returns this instance's election identity.
func (l *LeaderElection) ID() string { return l.id }

func (l *LeaderElection) run(ctx context.Context) {
	defer l.wg.Done()

	electionTicker := time.NewTicker(l.electionInterval)
	defer electionTicker.Stop()
	renewalTicker := time.NewTicker(l.renewalInterval)
	defer renewalTicker.Stop()

	l.tryBecomeLeader(ctx)

	for {
		select {
		case <-ctx.Done():
			l.handleLostLeadership()
			return
		case <-l.stopCh:
			l.handleLostLeadership()
			return
		case <-electionTicker.C:
			if !l.isLeader.Load() {
				l.tryBecomeLeader(ctx)
			}
		case <-renewalTicker.C:
			if l.isLeader.Load() {
				l.renewLeadership(ctx)
			}
		}
	}
}

func (l *LeaderElection) tryBecomeLeader(ctx context.Context) {
	acquired, err := l.client.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil {
		l.log.Error("coordination: acquire leadership failed", "error", err.Error())
		return
	}
	if acquired {
		l.log.Info("coordination: acquired leadership", "leaderId", l.id)
		l.isLeader.Store(true)
		if l.onElected != nil {
			l.onElected()
		}
	}
}

func (l *LeaderElection) renewLeadership(ctx context.Context) {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.id, l.ttl.Milliseconds()).Int()
	if err != nil {
		l.log.Error("coordination: renew leadership failed", "error", err.Error())
		l.handleLostLeadership()
		return
	}
	if result == 0 {
		l.log.Warn("coordination: lost leadership, key not held")
		l.handleLostLeadership()
	}
}

func (l *LeaderElection) resign(ctx context.Context) error {
	if _, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.id).Int(); err != nil {
		return fmt.Errorf("coordination: resign leadership: %w", err)
	}
	l.handleLostLeadership()
	l.log.Info("coordination: resigned leadership", "leaderId", l.id)
	return nil
}

func (l *LeaderElection) handleLostLeadership() {
	if l.isLeader.CompareAndSwap(true, false) {
		l.log.Info("coordination: lost leadership", "leaderId", l.id)
		if l.onLost != nil {
			l.onLost()
		}
	}
}

// RunIfLeader executes fn only while this instance holds leadership.
func (l *LeaderElection) RunIfLeader(ctx context.Context, fn func(ctx context.Context) error) error {
	if !l.isLeader.Load() {
		return ErrNotLeader
	}
	return fn(ctx)
}
