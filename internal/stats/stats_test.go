package stats_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reftrail/internal/clicks"
	"reftrail/internal/config"
	"reftrail/internal/partners"
	"reftrail/internal/stats"
	"reftrail/internal/testsupport"
	"reftrail/internal/timeframe"
)

func TestMain(m *testing.M) {
	os.Setenv("REFTRAIL_ENV", "test")
	config.Reset()
	os.Exit(m.Run())
}

func TestForPeriodCountsAndBreakdowns(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-2001")
	db := dbManager.GetConnection()

	now := time.Now().UTC()

	// Five clicks inside the last week from three distinct visitors. Two of
	// them clicked through to a channel; one click has no browser recorded.
	testsupport.CreateTestClick(t, db, partner.ID, "fp-a", now.Add(-1*time.Hour), func(c *clicks.Click) {
		c.RedirectType = "whatsapp"
		c.Country = "ES"
	})
	testsupport.CreateTestClick(t, db, partner.ID, "fp-a", now.Add(-2*time.Hour), func(c *clicks.Click) {
		c.IsUnique = false
		c.Country = "ES"
	})
	testsupport.CreateTestClick(t, db, partner.ID, "fp-b", now.Add(-3*time.Hour), func(c *clicks.Click) {
		c.RedirectType = "telegram"
		c.Browser = ""
		c.Country = "DE"
	})
	testsupport.CreateTestClick(t, db, partner.ID, "fp-b", now.Add(-26*time.Hour), func(c *clicks.Click) {
		c.Country = "DE"
	})
	testsupport.CreateTestClick(t, db, partner.ID, "fp-c", now.Add(-48*time.Hour))

	// Three clicks outside the week window must not leak into the report.
	for i := 0; i < 3; i++ {
		testsupport.CreateTestClick(t, db, partner.ID, fmt.Sprintf("fp-old-%d", i), now.AddDate(0, 0, -20))
	}

	result, err := stats.ForPeriod(dbManager, logger, partner.ID, timeframe.PeriodWeek, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.TotalClicks)
	assert.Equal(t, int64(3), result.UniqueVisitors)
	assert.Equal(t, int64(3), result.LandingViews)
	assert.Equal(t, int64(1), result.Channels["whatsapp"])
	assert.Equal(t, int64(1), result.Channels["telegram"])

	// The click without a browser lands in the Unknown bucket.
	browsers := make(map[string]int64)
	for _, row := range result.TopBrowsers {
		browsers[row.Name] = row.Count
	}
	assert.Equal(t, int64(4), browsers["Chrome"])
	assert.Equal(t, int64(1), browsers["Unknown"])

	countries := make(map[string]int64)
	for _, row := range result.TopCountries {
		countries[row.Name] = row.Count
	}
	assert.Equal(t, int64(2), countries["ES"])
	assert.Equal(t, int64(2), countries["DE"])
	assert.Equal(t, int64(1), countries["Unknown"])

	require.Len(t, result.RecentClicks, 5)
	// Newest first.
	assert.Equal(t, "whatsapp", result.RecentClicks[0].Channel)
	assert.NotEmpty(t, result.RecentClicks[0].DisplayName)
}

func TestForPeriodAllTime(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-2002")
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	testsupport.CreateTestClick(t, db, partner.ID, "fp-x", now.Add(-1*time.Hour))
	testsupport.CreateTestClick(t, db, partner.ID, "fp-y", now.AddDate(-1, 0, 0))

	result, err := stats.ForPeriod(dbManager, logger, partner.ID, timeframe.PeriodAll, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.TotalClicks)
	assert.Equal(t, int64(2), result.UniqueVisitors)
}

func TestForPeriodUnknownPartner(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	_, err := stats.ForPeriod(dbManager, logger, 9999, timeframe.PeriodAll, time.UTC)
	require.Error(t, err)

	var notFound *partners.PartnerNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestForPeriodIdentityDisplayName(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-2003")
	db := dbManager.GetConnection()

	testsupport.CreateTestClick(t, db, partner.ID, "fp-i", time.Now().UTC(), func(c *clicks.Click) {
		c.SubjectFirstName = "Ada"
		c.SubjectLastName = "Lovelace"
	})

	result, err := stats.ForPeriod(dbManager, logger, partner.ID, timeframe.PeriodToday, time.UTC)
	require.NoError(t, err)

	require.Len(t, result.RecentClicks, 1)
	assert.Equal(t, "Ada Lovelace", result.RecentClicks[0].DisplayName)
}

func TestPaginatedReferrals(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-2004")
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	for i := 0; i < 25; i++ {
		testsupport.CreateTestClick(t, db, partner.ID, fmt.Sprintf("fp-%d", i), now.Add(-time.Duration(i)*time.Minute))
	}

	page, err := stats.PaginatedReferrals(dbManager, logger, partner.ID, timeframe.PeriodAll, time.UTC, 10, 0)
	require.NoError(t, err)
	assert.Len(t, page.Referrals, 10)
	assert.Equal(t, int64(25), page.Total)
	assert.True(t, page.HasMore)

	// Newest first across pages.
	assert.True(t, page.Referrals[0].OccurredAt.After(page.Referrals[9].OccurredAt))

	page, err = stats.PaginatedReferrals(dbManager, logger, partner.ID, timeframe.PeriodAll, time.UTC, 10, 20)
	require.NoError(t, err)
	assert.Len(t, page.Referrals, 5)
	assert.False(t, page.HasMore)

	page, err = stats.PaginatedReferrals(dbManager, logger, partner.ID, timeframe.PeriodAll, time.UTC, 10, 100)
	require.NoError(t, err)
	assert.Empty(t, page.Referrals)
	assert.False(t, page.HasMore)
}

func TestReconcileDetectsAndRepairsDrift(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-2005")
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	testsupport.CreateTestClick(t, db, partner.ID, "fp-1", now.Add(-1*time.Hour), func(c *clicks.Click) {
		c.RedirectType = "whatsapp"
	})
	testsupport.CreateTestClick(t, db, partner.ID, "fp-2", now.Add(-2*time.Hour))

	// Counters were never bumped for the direct inserts, so both disagree
	// with the ledger, as does the missing channel row.
	drifts, err := stats.Reconcile(dbManager, logger, false)
	require.NoError(t, err)
	assert.Len(t, drifts, 3)

	drifts, err = stats.Reconcile(dbManager, logger, true)
	require.NoError(t, err)
	assert.Len(t, drifts, 3)

	// After repair the audit comes back clean.
	drifts, err = stats.Reconcile(dbManager, logger, false)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	repaired, err := partners.GetPartnerByID(db, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), repaired.TotalClicks)
	assert.Equal(t, int64(2), repaired.UniqueVisitors)

	channels, err := partners.ChannelClicks(db, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), channels["whatsapp"])
}
