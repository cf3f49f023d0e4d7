// Package app wires eventorch's components together: the Persistent Store,
// Job Broker queues, Schedule Promoter, Run Recorder, Dispatcher,
// Cancellation Services, and the HTTP API. Both cmd/eventorch-scheduler and
// cmd/eventorch-worker build one App and run a subset of its loops.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/northcloud/eventorch/internal/api"
	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/cancellation"
	"github.com/northcloud/eventorch/internal/collaborators"
	"github.com/northcloud/eventorch/internal/config"
	"github.com/northcloud/eventorch/internal/coordination"
	"github.com/northcloud/eventorch/internal/dispatcher"
	"github.com/northcloud/eventorch/internal/logger"
	"github.com/northcloud/eventorch/internal/runs"
	"github.com/northcloud/eventorch/internal/scheduler"
	"github.com/northcloud/eventorch/internal/store"
)

const (
	scheduleQueueName        = "schedule-queue"
	scrapeQueueName          = "scrape-queue"
	instagramScrapeQueueName = "instagram-scrape-queue"
)

// App holds every long-lived dependency a process needs, built once at
// startup and shared across whichever loops that process runs.
type App struct {
	Config *config.Config
	Log    logger.Logger

	DB          *sqlx.DB
	RedisClient *redis.Client

	ScheduleQueue  *broker.Queue
	ScrapeQueue    *broker.Queue
	InstagramQueue *broker.Queue

	Schedules  *store.ScheduleRepository
	Sources    *store.SourceRepository
	Runs       *store.RunRepository
	Exports    *store.ExportRepository
	Instagram  *store.InstagramAccountRepository
	Recorder   *runs.Recorder
	Promoter   *scheduler.Promoter
	Dispatcher *dispatcher.Dispatcher
	Batch      *dispatcher.InstagramCoordinator
	Leader     *coordination.LeaderElection

	CancelServices map[string]*cancellation.Service

	Router *api.Handler
}

const promoterLeaderKey = "eventorch:leader:promoter"

// Exporter is satisfied by the external WordPress export collaborator
// (§6); a process that never runs export schedules may pass nil.
type Exporter = collaborators.WordPressExporter

// New opens the store and broker, runs pending migrations, and wires every
// component described in SPEC_FULL.md's module list. exporter may be nil;
// the dispatcher then fails every wordpress_export firing with an error.
func New(cfg *config.Config, log logger.Logger, exporter Exporter) (*App, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	if err := store.Migrate(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("app: migrate: %w", err)
	}

	redisClient, err := broker.NewClient(cfg.Redis.URL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: connect broker: %w", err)
	}

	scheduleQueue := broker.NewQueue(redisClient, scheduleQueueName)
	scrapeQueue := broker.NewQueue(redisClient, scrapeQueueName)
	instagramQueue := broker.NewQueue(redisClient, instagramScrapeQueueName)

	schedules := store.NewScheduleRepository(db)
	sources := store.NewSourceRepository(db)
	runRepo := store.NewRunRepository(db)
	exports := store.NewExportRepository(db)
	instagramAccounts := store.NewInstagramAccountRepository(db)

	recorder := runs.NewRecorder(runRepo, log)
	promoter := scheduler.NewPromoter(schedules, scheduleQueue, log)

	batch := dispatcher.NewInstagramCoordinator(instagramAccounts, instagramQueue, recorder, log)

	d := dispatcher.New(dispatcher.Config{
		Schedules:   schedules,
		Sources:     sources,
		Exports:     exports,
		Recorder:    recorder,
		Instagram:   batch,
		ScrapeQueue: scrapeQueue,
		Exporter:    exporter,
		Log:         log,
	})

	flags := coordination.NewCancelFlags(redisClient)
	cancelServices := map[string]*cancellation.Service{
		scheduleQueueName:        cancellation.New(scheduleQueue, flags, recorder, redisClient, log),
		scrapeQueueName:          cancellation.New(scrapeQueue, flags, recorder, redisClient, log),
		instagramScrapeQueueName: cancellation.New(instagramQueue, flags, recorder, redisClient, log),
	}

	handler := api.NewHandler(d, batch, cancelServices, log)

	leader, err := coordination.NewLeaderElection(redisClient, coordination.DefaultLeaderConfig(promoterLeaderKey), log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: build leader election: %w", err)
	}

	return &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		ScheduleQueue:  scheduleQueue,
		ScrapeQueue:    scrapeQueue,
		InstagramQueue: instagramQueue,
		Schedules:      schedules,
		Sources:        sources,
		Runs:           runRepo,
		Exports:        exports,
		Instagram:      instagramAccounts,
		Recorder:       recorder,
		Promoter:       promoter,
		Dispatcher:     d,
		Batch:          batch,
		CancelServices: cancelServices,
		Router:         handler,
		Leader:         leader,
	}, nil
}

// Close releases the store and broker connections. Safe to call once,
// during process shutdown.
func (a *App) Close() {
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Error("app: close redis client", "error", err.Error())
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Error("app: close database", "error", err.Error())
		}
	}
}

// RunPromoterUnderLeaderElection starts leader election and, only while
// this instance holds leadership, runs the promoter's reconciliation and
// promotion loops (§4.3's "only the elected leader runs reconciliation and
// promotion when more than one promoter process is live"). It blocks until
// ctx is done.
//
// Per §5, reconciliation must complete at least once before the promotion
// loop begins firing for that leadership term, so each election win runs
// Sync synchronously before starting the ticking loops.
func (a *App) RunPromoterUnderLeaderElection(ctx context.Context) {
	var mu sync.Mutex
	var cancelTerm context.CancelFunc

	a.Leader.Start(ctx)
	defer func() {
		if err := a.Leader.Stop(context.Background()); err != nil {
			a.Log.Error("app: resign leadership", "error", err.Error())
		}
	}()

	startTerm := func() {
		mu.Lock()
		defer mu.Unlock()
		if cancelTerm != nil {
			return
		}
		termCtx, cancel := context.WithCancel(ctx)
		cancelTerm = cancel
		go func() {
			if err := a.Promoter.Sync(termCtx); err != nil {
				a.Log.Error("app: initial reconciliation sync", "error", err.Error())
				return
			}
			go a.Promoter.RunSyncLoop(termCtx, a.Config.Scheduler.SyncInterval)
			a.Promoter.RunPromotionLoop(termCtx, a.Config.Scheduler.PromoteInterval, a.Config.Scheduler.PromoteLookahead, int64(a.Config.Scheduler.PromoteBatchSize))
		}()
	}
	stopTerm := func() {
		mu.Lock()
		defer mu.Unlock()
		if cancelTerm == nil {
			return
		}
		cancelTerm()
		cancelTerm = nil
	}

	poll := time.NewTicker(coordination.DefaultElectionRetryInterval)
	defer poll.Stop()
	wasLeader := false
	for {
		select {
		case <-ctx.Done():
			stopTerm()
			return
		case <-poll.C:
			isLeader := a.Leader.IsLeader()
			if isLeader && !wasLeader {
				startTerm()
			} else if !isLeader && wasLeader {
				stopTerm()
			}
			wasLeader = isLeader
		}
	}
}

// RunDispatcherWorker pulls schedule-queue firings and dispatches them
// until ctx is done. Unlike reconciliation/promotion this runs on every
// process regardless of leadership: the broker's dequeue is atomic, so
// concurrent dispatcher workers safely share one queue.
func (a *App) RunDispatcherWorker(ctx context.Context) {
	a.Dispatcher.RunWorker(ctx, a.ScheduleQueue, defaultDequeueTimeout)
}

const defaultDequeueTimeout = 5 * time.Second
