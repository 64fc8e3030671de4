package stats

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"reftrail/internal/partners"
)

// Drift describes one counter that disagrees with the ledger.
type Drift struct {
	PartnerID uint   `json:"partner_id"`
	Counter   string `json:"counter"` // total_clicks, unique_visitors or channel:<name>
	Stored    int64  `json:"stored"`
	Derived   int64  `json:"derived"`
}

// Reconcile audits the denormalized partner counters against totals derived
// from the ledger. Unique visitors are compared against the sum of the
// per-click uniqueness flag, which is what the hot path increments. Drift is
// logged always; with repair the counters are overwritten from the ledger.
func Reconcile(dbManager cartridge.DBManager, logger *slog.Logger, repair bool) ([]Drift, error) {
	db := dbManager.GetConnection()

	allPartners, err := partners.GetAllPartners(db)
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, partner := range allPartners {
		partnerDrifts, err := reconcilePartner(db, logger, &partner, repair)
		if err != nil {
			return nil, err
		}
		drifts = append(drifts, partnerDrifts...)
	}

	if len(drifts) > 0 {
		logger.Warn("Counter reconciliation found drift",
			slog.Int("drift_count", len(drifts)),
			slog.Bool("repaired", repair))
	} else {
		logger.Debug("Counter reconciliation clean",
			slog.Int("partners", len(allPartners)))
	}
	return drifts, nil
}

func reconcilePartner(db *gorm.DB, logger *slog.Logger, partner *partners.Partner, repair bool) ([]Drift, error) {
	var derived struct {
		TotalClicks    int64
		UniqueVisitors int64
	}
	err := db.Raw(`
    SELECT
        COUNT(*) as total_clicks,
        COALESCE(SUM(CASE WHEN is_unique THEN 1 ELSE 0 END), 0) as unique_visitors
    FROM clicks
    WHERE partner_id = ?`, partner.ID).Scan(&derived).Error
	if err != nil {
		return nil, fmt.Errorf("error deriving ledger totals: %w", err)
	}

	var drifts []Drift
	if partner.TotalClicks != derived.TotalClicks {
		drifts = append(drifts, Drift{
			PartnerID: partner.ID, Counter: "total_clicks",
			Stored: partner.TotalClicks, Derived: derived.TotalClicks,
		})
	}
	if partner.UniqueVisitors != derived.UniqueVisitors {
		drifts = append(drifts, Drift{
			PartnerID: partner.ID, Counter: "unique_visitors",
			Stored: partner.UniqueVisitors, Derived: derived.UniqueVisitors,
		})
	}

	channelDrifts, err := reconcileChannels(db, partner.ID)
	if err != nil {
		return nil, err
	}
	drifts = append(drifts, channelDrifts...)

	for _, drift := range drifts {
		logger.Warn("Counter drift detected",
			slog.Uint64("partner_id", uint64(drift.PartnerID)),
			slog.String("counter", drift.Counter),
			slog.Int64("stored", drift.Stored),
			slog.Int64("derived", drift.Derived))
	}

	if repair && len(drifts) > 0 {
		if err := repairPartner(db, logger, partner.ID, derived.TotalClicks, derived.UniqueVisitors); err != nil {
			return nil, err
		}
	}
	return drifts, nil
}

func reconcileChannels(db *gorm.DB, partnerID uint) ([]Drift, error) {
	stored, err := partners.ChannelClicks(db, partnerID)
	if err != nil {
		return nil, err
	}

	var rows []MetricCountResult
	err = db.Raw(`
    SELECT redirect_type as name, COUNT(*) as count
    FROM clicks
    WHERE partner_id = ? AND redirect_type != 'landing'
    GROUP BY redirect_type`, partnerID).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error deriving channel totals: %w", err)
	}

	derived := make(map[string]int64, len(rows))
	for _, row := range rows {
		derived[row.Name] = row.Count
	}

	var drifts []Drift
	for channel, derivedCount := range derived {
		if stored[channel] != derivedCount {
			drifts = append(drifts, Drift{
				PartnerID: partnerID, Counter: "channel:" + channel,
				Stored: stored[channel], Derived: derivedCount,
			})
		}
	}
	for channel, storedCount := range stored {
		if _, ok := derived[channel]; !ok && storedCount != 0 {
			drifts = append(drifts, Drift{
				PartnerID: partnerID, Counter: "channel:" + channel,
				Stored: storedCount, Derived: 0,
			})
		}
	}
	return drifts, nil
}

// repairPartner rewrites every counter of the partner from the ledger inside
// one write transaction.
func repairPartner(db *gorm.DB, logger *slog.Logger, partnerID uint, totalClicks, uniqueVisitors int64) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		err := tx.Exec(`
        UPDATE partners SET total_clicks = ?, unique_visitors = ? WHERE id = ?`,
			totalClicks, uniqueVisitors, partnerID).Error
		if err != nil {
			return fmt.Errorf("failed to repair partner counters: %w", err)
		}

		if err := tx.Exec(`DELETE FROM channel_stats WHERE partner_id = ?`, partnerID).Error; err != nil {
			return fmt.Errorf("failed to reset channel stats: %w", err)
		}
		return tx.Exec(`
        INSERT INTO channel_stats (partner_id, channel, clicks, updated_at)
        SELECT partner_id, redirect_type, COUNT(*), CURRENT_TIMESTAMP
        FROM clicks
        WHERE partner_id = ? AND redirect_type != 'landing'
        GROUP BY redirect_type`, partnerID).Error
	})
}
