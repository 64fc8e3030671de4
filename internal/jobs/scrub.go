package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"reftrail/internal/clicks"
	"reftrail/internal/config"
	"reftrail/internal/database"
)

// ScrubJob blanks raw user agents and metadata on clicks older than the
// retention period. Rows are kept so historical counts stay intact; only the
// identifying payload is removed for data minimization.
type ScrubJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewScrubJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *ScrubJob {
	return &ScrubJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *ScrubJob) Run() error {
	retentionDays := j.cfg.ClickScrubAfterDays
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting scrub of old click payloads",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoff))

	var scrubbed int64
	err := sqlite.PerformWrite(j.logger, j.dbManager.GetConnection(), func(tx *gorm.DB) error {
		n, err := clicks.ScrubOlderThan(tx, cutoff)
		scrubbed = n
		return err
	})
	if err != nil {
		j.logger.Error("Failed to scrub old clicks", slog.Any("error", err))
		return err
	}

	if scrubbed == 0 {
		j.logger.Debug("No old click payloads to scrub")
		return nil
	}

	j.logger.Info("Scrubbed old click payloads",
		slog.Int64("scrubbed_count", scrubbed),
		slog.Int("retention_days", retentionDays))
	return nil
}
