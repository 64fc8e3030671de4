package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reftrail/internal/config"
	"reftrail/internal/database"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	reconcileJob *ReconcileJob
	scrubJob     *ScrubJob

	// Tickers for each job type
	reconcileTicker *time.Ticker
	scrubTicker     *time.Ticker
}

func NewScheduler(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
	}

	// Initialize job instances
	s.reconcileJob = NewReconcileJob(dbManager, logger, cfg)
	s.scrubJob = NewScrubJob(dbManager, logger, cfg)

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true

	s.startReconcileJob()
	s.startScrubJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startReconcileJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting counter reconciliation job", slog.Duration("interval", interval))
	s.reconcileTicker = time.NewTicker(interval)

	go func() {
		// Run initial execution
		s.logger.Info("Running initial counter reconciliation...")
		s.executeJobSafely("reconcile", s.reconcileJob.Run)

		for {
			select {
			case <-s.reconcileTicker.C:
				s.executeJobSafely("reconcile", s.reconcileJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Counter reconciliation job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startScrubJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting click scrub job", slog.Duration("interval", interval))
	s.scrubTicker = time.NewTicker(interval)

	go func() {
		// Run initial scrub
		s.logger.Info("Running initial click scrub...")
		s.executeJobSafely("scrub", s.scrubJob.Run)

		for {
			select {
			case <-s.scrubTicker.C:
				s.executeJobSafely("scrub", s.scrubJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Click scrub job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.reconcileTicker != nil {
		s.reconcileTicker.Stop()
	}
	if s.scrubTicker != nil {
		s.scrubTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// ReconcileNow allows manual triggering of counter reconciliation
func (s *Scheduler) ReconcileNow() error {
	if !s.enabled {
		return nil
	}
	return s.reconcileJob.Run()
}
