package jobs

import (
	"log/slog"
	"time"

	"reftrail/internal/config"
	"reftrail/internal/database"
	"reftrail/internal/stats"
)

// ReconcileJob audits the denormalized partner counters against the click
// ledger and optionally repairs any drift it finds.
type ReconcileJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewReconcileJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *ReconcileJob {
	return &ReconcileJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *ReconcileJob) Run() error {
	start := time.Now()

	drifts, err := stats.Reconcile(j.dbManager, j.logger, j.cfg.ReconcileRepair)
	if err != nil {
		return err
	}

	if len(drifts) == 0 {
		j.logger.Debug("Counter reconciliation found no drift",
			slog.Duration("elapsed", time.Since(start)))
		return nil
	}

	j.logger.Info("Counter reconciliation completed",
		slog.Int("drift_count", len(drifts)),
		slog.Bool("repaired", j.cfg.ReconcileRepair),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}
