// Package seeder provisions demo partners and generates realistic sample
// traffic through the regular tracking path.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"reftrail/internal/partners"
	"reftrail/internal/tracking"
)

// Seeder handles the data seeding process.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	ClickCount int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, clickCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		ClickCount: clickCount,
	}
}

var samplePartners = []partners.Partner{
	{ExternalID: "tg:1001", Code: "maria", Name: "Maria Fernandez", WhatsappPhone: "+34600111222", TelegramUsername: "mariaf"},
	{ExternalID: "tg:1002", Code: "carlos", Name: "Carlos Ortega", WhatsappPhone: "+34600333444", TelegramUsername: "cortega"},
	{ExternalID: "tg:1003", Code: "lucia", Name: "Lucia Prats", TelegramUsername: "luciaprats"},
}

var sampleUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Telegram-Android/10.5.2 (Samsung SM-G991B; Android 13)",
	"Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
}

var sampleReferrers = []string{
	"",
	"https://t.me/somegroup",
	"https://www.instagram.com/",
	"https://www.facebook.com/",
	"https://www.google.com/",
}

var sampleUTMSources = []string{"", "telegram", "instagram", "flyer", "story"}

var sampleChannels = []string{"whatsapp", "telegram"}

// Run executes the seeding process
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("clickCount", s.ClickCount))

	seeded, err := s.seedPartners()
	if err != nil {
		return fmt.Errorf("failed to seed partners: %w", err)
	}

	for _, partner := range seeded {
		s.Logger.Info("Generating traffic for partner",
			slog.String("code", partner.Code))
		if err := s.generateTraffic(ctx, partner); err != nil {
			return fmt.Errorf("failed to generate traffic for %s: %w", partner.Code, err)
		}
	}

	s.Logger.Info("Seeding completed successfully", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedPartners ensures the sample partners exist. Existing partners are
// reused so the seeder can be re-run against the same database.
func (s *Seeder) seedPartners() ([]*partners.Partner, error) {
	db := s.DBManager.GetConnection()
	result := make([]*partners.Partner, 0, len(samplePartners))

	for _, sample := range samplePartners {
		existing, err := partners.GetPartnerByExternalID(db, sample.ExternalID)
		if err == nil {
			s.Logger.Info("Partner already exists",
				slog.String("external_id", existing.ExternalID),
				slog.String("code", existing.Code))
			result = append(result, existing)
			continue
		}

		var notFound *partners.PartnerNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to check for existing partner: %w", err)
		}

		partner := sample
		err = sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return partners.CreatePartner(tx, &partner)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create partner %s: %w", sample.ExternalID, err)
		}

		s.Logger.Info("Created partner",
			slog.String("external_id", partner.ExternalID),
			slog.String("code", partner.Code))
		result = append(result, &partner)
	}

	return result, nil
}

// generateTraffic records clicks through the regular tracking path so all
// enrichment, de-duplication and counter logic applies to the seeded data.
func (s *Seeder) generateTraffic(ctx context.Context, partner *partners.Partner) error {
	ipPool := generateIPPool(40)
	perPartner := s.ClickCount / len(samplePartners)
	if perPartner < 10 {
		perPartner = 10
	}

	recorded := 0
	for i := 0; i < perPartner; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		occurredAt := time.Now().Add(-time.Duration(rand.IntN(30*24*60*60)) * time.Second)
		input := &tracking.TrackInput{
			IPAddress:  ipPool[rand.IntN(len(ipPool))],
			UserAgent:  sampleUserAgents[rand.IntN(len(sampleUserAgents))],
			Referer:    sampleReferrers[rand.IntN(len(sampleReferrers))],
			OccurredAt: occurredAt,
		}
		if source := sampleUTMSources[rand.IntN(len(sampleUTMSources))]; source != "" {
			input.QueryParams = map[string]string{"utm_source": source}
		}

		click, err := tracking.TrackClick(s.DBManager, s.Logger, partner.Code, input)
		if err != nil {
			s.Logger.Error("Failed to record seeded click", slog.Any("error", err))
			continue
		}
		if click == nil {
			continue
		}
		recorded++

		// Roughly two thirds of visitors pick a channel
		if rand.Float64() < 0.66 {
			channel := sampleChannels[rand.IntN(len(sampleChannels))]
			if _, err := tracking.TrackRedirect(s.DBManager, s.Logger, click.ID, channel); err != nil {
				s.Logger.Error("Failed to attribute seeded redirect", slog.Any("error", err))
			}
		}
	}

	s.Logger.Info("Generated traffic for partner",
		slog.String("code", partner.Code),
		slog.Int("clicks", recorded))
	return nil
}

// generateIPPool builds a pool of public-looking IPv4 addresses so the same
// visitors recur across the seeded window.
func generateIPPool(size int) []string {
	pool := make([]string, size)
	for i := range pool {
		pool[i] = fmt.Sprintf("%d.%d.%d.%d",
			rand.IntN(190)+10, rand.IntN(255), rand.IntN(255), rand.IntN(254)+1)
	}
	return pool
}
