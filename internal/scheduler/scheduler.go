package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/umbrella-rain-service/internal/trafficgen"
)

// Runner produces one batch of synthetic readings.
type Runner interface {
	Run(ctx context.Context) trafficgen.Batch
}

// Scheduler periodically replays synthetic traffic against the device.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger

	// cancelled by Stop so an in-flight batch ends early
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. A zero interval disables it.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: synthetic traffic disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler: synthetic traffic enabled", "interval", s.interval)
	return nil
}

func (s *Scheduler) runOnce() {
	s.logger.Info("scheduler: running synthetic traffic job")
	batch := s.runner.Run(s.ctx)
	s.logger.Info("scheduler: completed synthetic traffic job",
		"records", len(batch.Records),
		"failed", batch.Failed(),
	)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
