package stats

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"reftrail/internal/clicks"
	"reftrail/internal/partners"
	"reftrail/internal/timeframe"
)

const (
	defaultReferralsLimit = 20
	maxReferralsLimit     = 100
)

// Referral is one listed referral event, newest first.
type Referral struct {
	ClickID     uint      `json:"click_id"`
	DisplayName string    `json:"display_name"`
	Channel     string    `json:"channel"`
	Country     string    `json:"country"`
	DeviceType  string    `json:"device_type"`
	IsUnique    bool      `json:"is_unique"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ReferralsPage is one page of a partner's referral listing.
type ReferralsPage struct {
	Referrals []Referral `json:"referrals"`
	Total     int64      `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	HasMore   bool       `json:"has_more"`
}

// PaginatedReferrals returns one page of a partner's referrals within the
// period, newest first. Out-of-range offsets yield an empty page, not an
// error.
func PaginatedReferrals(dbManager cartridge.DBManager, logger *slog.Logger, partnerID uint, period timeframe.Period, tz *time.Location, limit, offset int) (*ReferralsPage, error) {
	db := dbManager.GetConnection()

	if _, err := partners.GetPartnerByID(db, partnerID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultReferralsLimit
	}
	if limit > maxReferralsLimit {
		limit = maxReferralsLimit
	}
	if offset < 0 {
		offset = 0
	}

	tf := timeframe.Resolve(period, time.Now().UTC(), tz)

	page, total, err := clicks.FindPage(db, partnerID, tf.From, tf.To, limit, offset)
	if err != nil {
		return nil, err
	}

	referrals := make([]Referral, len(page))
	for i, click := range page {
		referrals[i] = Referral{
			ClickID:     click.ID,
			DisplayName: displayName(&click),
			Channel:     click.RedirectType,
			Country:     click.Country,
			DeviceType:  click.DeviceType,
			IsUnique:    click.IsUnique,
			OccurredAt:  click.OccurredAt,
		}
	}

	return &ReferralsPage{
		Referrals: referrals,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
		HasMore:   int64(offset+limit) < total,
	}, nil
}
