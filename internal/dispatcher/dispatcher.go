// Package dispatcher implements the schedule-queue consumer: it turns a
// fired Schedule into whatever that schedule type actually does, per
// §4.3.4. Each branch hands off to an external collaborator interface
// (internal/collaborators) rather than performing scraping or export
// logic itself.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/northcloud/eventorch/internal/broker"
	"github.com/northcloud/eventorch/internal/collaborators"
	"github.com/northcloud/eventorch/internal/domain"
	"github.com/northcloud/eventorch/internal/logger"
	"github.com/northcloud/eventorch/internal/runs"
	"github.com/northcloud/eventorch/internal/store"
)

// ScheduleLoader is the subset of store.ScheduleRepository the dispatcher
// depends on.
type ScheduleLoader interface {
	Get(ctx context.Context, id string) (*domain.Schedule, error)
}

// SourceLoader is the subset of store.SourceRepository the dispatcher
// depends on.
type SourceLoader interface {
	Get(ctx context.Context, id string) (*domain.Source, error)
}

// Dispatcher consumes the schedule-queue and fans each firing out to the
// scrape, export, or Instagram branch.
type Dispatcher struct {
	schedules   ScheduleLoader
	sources     SourceLoader
	exports     *store.ExportRepository
	recorder    *runs.Recorder
	instagram   *InstagramCoordinator
	scrapeQueue *broker.Queue
	exporter    collaborators.WordPressExporter
	log         logger.Logger
}

// Config bundles Dispatcher's collaborators.
type Config struct {
	Schedules   ScheduleLoader
	Sources     SourceLoader
	Exports     *store.ExportRepository
	Recorder    *runs.Recorder
	Instagram   *InstagramCoordinator
	ScrapeQueue *broker.Queue
	Exporter    collaborators.WordPressExporter
	Log         logger.Logger
}

// New builds a Dispatcher.
func New(cfg Config) *Dispatcher {
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		schedules:   cfg.Schedules,
		sources:     cfg.Sources,
		exports:     cfg.Exports,
		recorder:    cfg.Recorder,
		instagram:   cfg.Instagram,
		scrapeQueue: cfg.ScrapeQueue,
		exporter:    cfg.Exporter,
		log:         log,
	}
}

// scheduleIDFromFiring extracts the Schedule id a firing payload carries,
// per the scheduleId field scheduler.scheduleNextFiring writes.
func scheduleIDFromFiring(data map[string]any) (string, bool) {
	v, ok := data["scheduleId"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// HandleFiring is the schedule-queue job handler: it loads the Schedule
// fresh (rather than trusting the firing payload's snapshot) and branches
// on its current type and active flag.
func (d *Dispatcher) HandleFiring(ctx context.Context, job domain.Job) error {
	scheduleID, ok := scheduleIDFromFiring(job.Data)
	if !ok {
		return fmt.Errorf("dispatcher: job %s carries no scheduleId", job.ID)
	}

	s, err := d.schedules.Get(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, store.ErrScheduleNotFound) {
			d.log.Info("dispatcher: schedule deleted since firing was queued, skipping", "scheduleId", scheduleID)
			return nil
		}
		return err
	}

	if !s.Active {
		d.log.Info("dispatcher: schedule deactivated since firing was queued, skipping", "scheduleId", scheduleID)
		return nil
	}

	switch s.ScheduleType {
	case domain.ScheduleTypeScrape:
		return d.dispatchScrape(ctx, *s)
	case domain.ScheduleTypeWordPressExport:
		return d.dispatchExport(ctx, *s)
	case domain.ScheduleTypeInstagramScrape:
		return d.dispatchInstagram(ctx, *s)
	default:
		return fmt.Errorf("dispatcher: schedule %s has unknown type %q", s.ID, s.ScheduleType)
	}
}

func (d *Dispatcher) dispatchScrape(ctx context.Context, s domain.Schedule) error {
	source, err := d.sources.Get(ctx, *s.SourceID)
	if err != nil {
		if errors.Is(err, store.ErrSourceNotFound) {
			d.log.Info("dispatcher: source gone, skipping scrape firing", "scheduleId", s.ID, "sourceId", *s.SourceID)
			return nil
		}
		return err
	}
	if !source.Active {
		d.log.Info("dispatcher: source inactive, skipping scrape firing", "sourceId", source.ID)
		return nil
	}

	metadata := domain.JSONBMap{"scheduleId": s.ID}
	run, err := d.recorder.CreateParentRun(ctx, &source.ID, metadata)
	if err != nil {
		return err
	}

	payload := collaborators.ScrapeJobPayload{
		RunID:      run.ID,
		SourceID:   source.ID,
		ModuleKey:  source.ModuleKey,
		SourceName: source.Name,
	}
	data, err := toJobData(payload)
	if err != nil {
		return fmt.Errorf("dispatcher: encode scrape payload: %w", err)
	}

	job, err := d.scrapeQueue.EnqueueImmediate(ctx, "", data)
	if err != nil {
		return fmt.Errorf("dispatcher: enqueue scrape job for run %s: %w", run.ID, err)
	}

	return d.recorder.AttachJobID(ctx, run.ID, job.ID)
}

func (d *Dispatcher) dispatchExport(ctx context.Context, s domain.Schedule) error {
	if s.WordPressSettingsID == nil {
		return fmt.Errorf("dispatcher: schedule %s: %w", s.ID, domain.ErrScheduleInvariant)
	}
	if d.exporter == nil {
		return fmt.Errorf("dispatcher: schedule %s: no WordPress exporter configured", s.ID)
	}

	export := &domain.Export{
		WordPressSettingsID: *s.WordPressSettingsID,
		ScheduleID:          &s.ID,
		Status:              domain.ExportStatusProcessing,
		Format:              stringFromConfig(s.Config, "format", "csv"),
	}
	if err := d.exports.Create(ctx, export); err != nil {
		return err
	}

	req := collaborators.ExportRequest{
		ExportID: export.ID,
		Format:   export.Format,
		WPSiteID: export.WordPressSettingsID,
		Status:   string(export.Status),
		Filters:  s.Config,
	}

	if err := d.exporter.Export(ctx, req); err != nil {
		// Per the Open Question decision in DESIGN.md, mark the row failed
		// before propagating the error to the broker's retry path.
		if markErr := d.exports.MarkFailed(ctx, export.ID); markErr != nil {
			d.log.Error("dispatcher: mark export failed", "exportId", export.ID, "error", markErr.Error())
		}
		return fmt.Errorf("dispatcher: export %s: %w", export.ID, err)
	}

	return d.exports.MarkCompleted(ctx, export.ID)
}

func (d *Dispatcher) dispatchInstagram(ctx context.Context, s domain.Schedule) error {
	_, err := d.instagram.TriggerBatch(ctx, s.Config)
	return err
}

// TriggerNowRequest carries the parameters of an ad-hoc, not-necessarily
// scheduled trigger, per §6's triggerScheduleNow.
type TriggerNowRequest struct {
	ScheduleID          string
	ScheduleType        domain.ScheduleType
	SourceID            *string
	WordPressSettingsID *string
	Config              domain.JSONBMap
}

// TriggerNow runs one dispatch branch immediately, without touching the
// schedules table or the broker's repeatable set — semantically equivalent
// to a cron fire for the given parameters.
func (d *Dispatcher) TriggerNow(ctx context.Context, req TriggerNowRequest) error {
	s := domain.Schedule{
		ID:                  req.ScheduleID,
		ScheduleType:        req.ScheduleType,
		SourceID:            req.SourceID,
		WordPressSettingsID: req.WordPressSettingsID,
		Config:              req.Config,
		Active:              true,
	}

	switch s.ScheduleType {
	case domain.ScheduleTypeScrape:
		return d.dispatchScrape(ctx, s)
	case domain.ScheduleTypeWordPressExport:
		return d.dispatchExport(ctx, s)
	case domain.ScheduleTypeInstagramScrape:
		return d.dispatchInstagram(ctx, s)
	default:
		return fmt.Errorf("dispatcher: trigger now: unknown schedule type %q", s.ScheduleType)
	}
}

// RunWorker pulls firings off scheduleQueue and dispatches them until ctx
// is done, acking on success and failing (for the broker's own retry
// bookkeeping) on error.
func (d *Dispatcher) RunWorker(ctx context.Context, scheduleQueue *broker.Queue, dequeueTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := scheduleQueue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if errors.Is(err, broker.ErrJobNotFound) {
				continue
			}
			d.log.Error("dispatcher: dequeue failed", "error", err.Error())
			continue
		}

		if err := d.HandleFiring(ctx, job); err != nil {
			d.log.Error("dispatcher: firing failed", "jobId", job.ID, "error", err.Error())
			if failErr := scheduleQueue.Fail(ctx, job.ID, err.Error()); failErr != nil {
				d.log.Error("dispatcher: mark job failed", "jobId", job.ID, "error", failErr.Error())
			}
			continue
		}

		if err := scheduleQueue.Ack(ctx, job.ID); err != nil {
			d.log.Error("dispatcher: ack job", "jobId", job.ID, "error", err.Error())
		}
	}
}
