// Package stats computes reporting aggregates from the click ledger. The
// ledger is the source of truth here; the denormalized partner counters are
// only consulted by the reconciliation audit.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"reftrail/internal/clicks"
	"reftrail/internal/partners"
	"reftrail/internal/pkg/async"
	"reftrail/internal/timeframe"
	"reftrail/internal/visitors"
)

const (
	topLimit         = 5
	recentClickLimit = 10
)

// MetricCountResult is a single row of a top-N breakdown.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// RecentClick is the trimmed click view embedded in period stats.
type RecentClick struct {
	ID          uint      `json:"id"`
	DisplayName string    `json:"display_name"`
	Channel     string    `json:"channel"`
	Browser     string    `json:"browser"`
	DeviceType  string    `json:"device_type"`
	Country     string    `json:"country"`
	IsUnique    bool      `json:"is_unique"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PeriodStats is the full report for one partner and period.
type PeriodStats struct {
	PartnerID      uint             `json:"partner_id"`
	Period         timeframe.Period `json:"period"`
	TotalClicks    int64            `json:"total_clicks"`
	UniqueVisitors int64            `json:"unique_visitors"`
	LandingViews   int64            `json:"landing_views"`
	Channels       map[string]int64 `json:"channels"`

	TopDevices    []MetricCountResult `json:"top_devices"`
	TopBrowsers   []MetricCountResult `json:"top_browsers"`
	TopCountries  []MetricCountResult `json:"top_countries"`
	TopUTMSources []MetricCountResult `json:"top_utm_sources"`

	RecentClicks []RecentClick `json:"recent_clicks"`
}

// ForPeriod computes period stats for a partner. Unique visitors are counted
// as distinct fingerprints in the ledger for the period, not by summing the
// per-click uniqueness flag, so the number stays correct for windows that
// differ from the de-duplication window. Breakdown queries run in parallel.
func ForPeriod(dbManager cartridge.DBManager, logger *slog.Logger, partnerID uint, period timeframe.Period, tz *time.Location) (*PeriodStats, error) {
	db := dbManager.GetConnection()

	if _, err := partners.GetPartnerByID(db, partnerID); err != nil {
		return nil, err
	}

	tf := timeframe.Resolve(period, time.Now().UTC(), tz)

	result := &PeriodStats{
		PartnerID: partnerID,
		Period:    period,
		Channels:  make(map[string]int64),
	}

	if err := fillTotals(db, partnerID, tf, result); err != nil {
		return nil, err
	}

	pool := async.NewPool(4)
	tasks := []async.Task{
		{Name: "devices", Execute: func() (interface{}, error) {
			return topColumn(db, partnerID, tf, "device_type")
		}},
		{Name: "browsers", Execute: func() (interface{}, error) {
			return topColumn(db, partnerID, tf, "browser")
		}},
		{Name: "countries", Execute: func() (interface{}, error) {
			return topColumn(db, partnerID, tf, "country")
		}},
		{Name: "utm_sources", Execute: func() (interface{}, error) {
			return topColumn(db, partnerID, tf, "utm_source")
		}},
		{Name: "channels", Execute: func() (interface{}, error) {
			return channelCounts(db, partnerID, tf)
		}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for name, res := range pool.Execute(ctx, tasks) {
		if res.Err != nil {
			logger.Error("Breakdown query failed",
				slog.String("breakdown", name),
				slog.Any("error", res.Err))
			return nil, res.Err
		}
		switch name {
		case "devices":
			result.TopDevices = res.Data.([]MetricCountResult)
		case "browsers":
			result.TopBrowsers = res.Data.([]MetricCountResult)
		case "countries":
			result.TopCountries = res.Data.([]MetricCountResult)
		case "utm_sources":
			result.TopUTMSources = res.Data.([]MetricCountResult)
		case "channels":
			result.Channels = res.Data.(map[string]int64)
		}
	}

	recent, _, err := clicks.FindPage(db, partnerID, tf.From, tf.To, recentClickLimit, 0)
	if err != nil {
		return nil, err
	}
	result.RecentClicks = make([]RecentClick, len(recent))
	for i, click := range recent {
		result.RecentClicks[i] = RecentClick{
			ID:          click.ID,
			DisplayName: displayName(&click),
			Channel:     click.RedirectType,
			Browser:     click.Browser,
			DeviceType:  click.DeviceType,
			Country:     click.Country,
			IsUnique:    click.IsUnique,
			OccurredAt:  click.OccurredAt,
		}
	}

	return result, nil
}

func fillTotals(db *gorm.DB, partnerID uint, tf timeframe.TimeFrame, result *PeriodStats) error {
	timeCond, args := timeCondition(partnerID, tf)

	var totals struct {
		TotalClicks    int64
		UniqueVisitors int64
		LandingViews   int64
	}
	query := `
    SELECT
        COUNT(*) as total_clicks,
        COUNT(DISTINCT fingerprint) as unique_visitors,
        SUM(CASE WHEN redirect_type = 'landing' THEN 1 ELSE 0 END) as landing_views
    FROM clicks
    ` + timeCond
	if err := db.Raw(query, args...).Scan(&totals).Error; err != nil {
		return fmt.Errorf("error fetching period totals: %w", err)
	}

	result.TotalClicks = totals.TotalClicks
	result.UniqueVisitors = totals.UniqueVisitors
	result.LandingViews = totals.LandingViews
	return nil
}

// timeCondition builds the shared WHERE clause. The all-time frame has zero
// bounds and no time predicate.
func timeCondition(partnerID uint, tf timeframe.TimeFrame) (string, []interface{}) {
	cond := "WHERE partner_id = ?"
	args := []interface{}{partnerID}
	if !tf.From.IsZero() {
		cond += " AND occurred_at >= ? AND occurred_at < ?"
		args = append(args, tf.From.UTC(), tf.To.UTC())
	}
	return cond, args
}

// displayName prefers the referred user's identity and falls back to the
// anonymous alias derived from the fingerprint.
func displayName(click *clicks.Click) string {
	if click.SubjectFirstName != "" {
		name := click.SubjectFirstName
		if click.SubjectLastName != "" {
			name += " " + click.SubjectLastName
		}
		return name
	}
	if click.SubjectUsername != "" {
		return "@" + click.SubjectUsername
	}
	return visitors.Alias(click.Fingerprint)
}
