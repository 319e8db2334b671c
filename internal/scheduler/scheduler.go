// Package scheduler drives the sender side: once per pass, for every
// declared source and every cadence it participates in, it checks
// whether a backup is due, fetches it, uploads it, and records history.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/haldane-labs/backupd/internal/history"
	"github.com/haldane-labs/backupd/internal/logger"
	"github.com/haldane-labs/backupd/internal/metrics"
	"github.com/haldane-labs/backupd/internal/source"
	"github.com/haldane-labs/backupd/internal/wire"
)

// DefaultInterval is the spacing between polling passes absent an
// explicit Config.Interval.
const DefaultInterval = 5 * time.Minute

// uploader is the capability the scheduler needs from a sender
// endpoint. internal/sender.Endpoint satisfies it; tests supply a fake.
type uploader interface {
	SendBackup(ctx context.Context, backup source.Backup) error
}

// Config collects a Scheduler's dependencies.
type Config struct {
	Sources  []source.Source
	Endpoint uploader
	History  *history.History
	Interval time.Duration // 0 defaults to DefaultInterval
}

// Scheduler is single-threaded and deterministic: within a pass, it
// visits sources in Config.Sources order and, for each, its declared
// cadences in the order Cadences() returns them.
type Scheduler struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Registry
}

// New constructs a Scheduler.
func New(cfg Config, log *slog.Logger, reg *metrics.Registry) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if log == nil {
		log = logger.Get()
	}
	return &Scheduler{cfg: cfg, log: log, metrics: reg}
}

// Run executes passes until ctx is cancelled. It runs one pass
// immediately, then sleeps Config.Interval between subsequent passes.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.Interval):
		}
	}
}

// RunOnce executes a single polling pass over every (source, cadence)
// pair, logging and continuing past any individual failure.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.metrics.ObserveSchedulerPass()

	for _, src := range s.cfg.Sources {
		for _, cadence := range src.Cadences() {
			s.processOne(ctx, src, cadence)
		}
	}
}

func (s *Scheduler) processOne(ctx context.Context, src source.Source, cadence wire.Cadence) {
	service := src.ServiceName()
	log := logger.WithSchedule(s.log, service, cadence.String())
	label := cadence.Lowercase()

	if !s.cfg.History.NeedsBackup(service, cadence) {
		return
	}

	backup, err := src.GetBackup(cadence)
	if err != nil {
		log.Warn("scheduler: fetching backup failed", logger.Err(err))
		s.metrics.ObserveSchedulerBackup(service, label, "source_error")
		return
	}
	if closer, ok := backup.Reader.(io.Closer); ok {
		defer closer.Close()
	}

	if err := s.cfg.Endpoint.SendBackup(ctx, backup); err != nil {
		log.Warn("scheduler: upload failed", logger.Err(err))
		s.metrics.ObserveSchedulerBackup(service, label, "send_error")
		return
	}

	if err := s.cfg.History.Update(service, cadence); err != nil {
		log.Warn("scheduler: history update failed", logger.Err(err))
		s.metrics.ObserveSchedulerBackup(service, label, "history_error")
		return
	}

	src.Cleanup(backup.Metadata)
	log.Info("scheduler: upload complete", logger.KeyBytes, backup.Metadata.BackupBytes)
	s.metrics.ObserveSchedulerBackup(service, label, "success")
}
