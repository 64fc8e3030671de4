// Package tracking is the write path of the referral engine: it records
// landings on partner links and attributes channel redirects.
package tracking

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"reftrail/internal/clicks"
	"reftrail/internal/config"
	"reftrail/internal/partners"
	"reftrail/internal/pkg/anonymize"
	"reftrail/internal/pkg/geoip"
	"reftrail/internal/pkg/useragent"
	"reftrail/internal/settings"
	"reftrail/internal/visitors"
)

// TrackInput carries the raw request context of a landing.
type TrackInput struct {
	IPAddress   string
	UserAgent   string
	Referer     string
	QueryParams map[string]string
	SessionID   string
	OccurredAt  time.Time
	Metadata    string

	// Identity of the referred user, present when the event came through
	// the bot rather than a browser landing.
	SubjectUserID    string
	SubjectUsername  string
	SubjectFirstName string
	SubjectLastName  string
	SubjectLocale    string
}

// TrackClick records a landing on the partner link identified by code.
//
// Enrichment (user-agent classification, geo lookup) is best effort and never
// fails the request. The uniqueness check, the ledger insert and the partner
// counter bump run inside a single immediate transaction, so concurrent
// landings of the same visitor on the same link serialize and at most one of
// them counts as unique within the de-duplication window.
//
// Returns nil without error when the click was deliberately not recorded
// (inactive partner, excluded IP).
func TrackClick(dbManager cartridge.DBManager, logger *slog.Logger, code string, input *TrackInput) (*clicks.Click, error) {
	cfg := config.GetConfig()
	db := dbManager.GetConnection()

	partner, err := partners.GetPartnerByCode(db, code)
	if err != nil {
		return nil, err
	}
	if !partner.IsActive {
		logger.Debug("Skipping click for deactivated partner",
			slog.String("code", code),
			slog.Uint64("partner_id", uint64(partner.ID)))
		return nil, nil
	}

	excluded, err := settings.IsIPExcluded(input.IPAddress)
	if err != nil {
		logger.Error("Error checking IP exclusion", slog.Any("error", err))
	} else if excluded {
		logger.Debug("Skipping click for excluded IP", slog.String("ip", input.IPAddress))
		return nil, nil
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	fingerprint := visitors.Fingerprint(input.IPAddress, input.UserAgent)

	uaInfo := useragent.Parse(input.UserAgent)
	geo := geoip.Resolve(input.IPAddress)
	if geo.Country == "" {
		logger.Debug("Geo enrichment yielded no location", slog.String("fingerprint", fingerprint))
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	click := &clicks.Click{
		PartnerID:   partner.ID,
		Fingerprint: fingerprint,
		IPAddress:   anonymize.IP(input.IPAddress),
		UserAgent:   input.UserAgent,
		Browser:     uaInfo.Browser,
		OS:          uaInfo.OS,
		DeviceType:  uaInfo.DeviceType,
		Referer:     input.Referer,
		Country:     geo.Country,
		Region:      geo.Region,
		City:        geo.City,
		Timezone:    geo.Timezone,
		UTMSource:   input.QueryParams["utm_source"],
		UTMMedium:   input.QueryParams["utm_medium"],
		UTMCampaign: input.QueryParams["utm_campaign"],
		UTMTerm:     input.QueryParams["utm_term"],
		UTMContent:  input.QueryParams["utm_content"],

		RedirectType: clicks.RedirectTypeLanding,
		OccurredAt:   occurredAt,
		SessionID:    sessionID,
		Metadata:     input.Metadata,

		SubjectUserID:    input.SubjectUserID,
		SubjectUsername:  input.SubjectUsername,
		SubjectFirstName: input.SubjectFirstName,
		SubjectLastName:  input.SubjectLastName,
		SubjectLocale:    input.SubjectLocale,
	}

	dedupSince := occurredAt.Add(-time.Duration(cfg.DedupWindowHours) * time.Hour)

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		seen, err := clicks.HasRecentClick(tx, partner.ID, fingerprint, dedupSince)
		if err != nil {
			return err
		}
		click.IsUnique = !seen

		if err := clicks.Append(tx, click); err != nil {
			return err
		}
		return partners.BumpCounters(tx, partner.ID, click.IsUnique, occurredAt)
	})
	if err != nil {
		logger.Error("Failed to record click",
			slog.Uint64("partner_id", uint64(partner.ID)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	logger.Debug("Recorded click",
		slog.Uint64("partner_id", uint64(partner.ID)),
		slog.Uint64("click_id", uint64(click.ID)),
		slog.Bool("is_unique", click.IsUnique))
	return click, nil
}

// TrackRedirect attributes a channel choice to a previously recorded click.
// First writer wins: only the call that performs the landing-to-channel
// transition increments the partner's channel counter, so replays and
// double-taps never double count. Returns whether this call attributed.
func TrackRedirect(dbManager cartridge.DBManager, logger *slog.Logger, clickID uint, channel string) (bool, error) {
	db := dbManager.GetConnection()

	var attributed bool
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		transitioned, err := clicks.SetRedirectType(tx, logger, clickID, channel)
		if err != nil {
			return err
		}
		attributed = transitioned
		if !transitioned {
			return nil
		}

		click, err := clicks.GetClickByID(tx, clickID)
		if err != nil {
			return err
		}
		return partners.IncrementChannel(tx, click.PartnerID, channel)
	})
	if err != nil {
		return false, err
	}

	if attributed {
		logger.Debug("Attributed redirect",
			slog.Uint64("click_id", uint64(clickID)),
			slog.String("channel", channel))
	}
	return attributed, nil
}
