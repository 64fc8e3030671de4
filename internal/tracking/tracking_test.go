package tracking_test

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
	"reftrail/internal/testsupport"
	"reftrail/internal/tracking"
)

func TestMain(m *testing.M) {
	os.Setenv("REFTRAIL_ENV", "test")
	config.Reset()
	os.Exit(m.Run())
}

func desktopInput(ip string) *tracking.TrackInput {
	return &tracking.TrackInput{
		IPAddress: ip,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Referer:   "https://t.me/somechannel",
	}
}

func TestTrackClickBasicFlow(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-1001")

	input := desktopInput("203.0.113.42")
	input.QueryParams = map[string]string{"utm_source": "telegram", "utm_campaign": "spring"}

	click, err := tracking.TrackClick(dbManager, logger, partner.Code, input)
	require.NoError(t, err)
	require.NotNil(t, click)

	assert.Equal(t, partner.ID, click.PartnerID)
	assert.NotEmpty(t, click.Fingerprint)
	assert.True(t, click.IsUnique)
	assert.Equal(t, clicks.RedirectTypeLanding, click.RedirectType)
	assert.Equal(t, "Chrome", click.Browser)
	assert.Equal(t, "Windows", click.OS)
	assert.Equal(t, "desktop", click.DeviceType)
	assert.Equal(t, "telegram", click.UTMSource)
	assert.Equal(t, "spring", click.UTMCampaign)
	assert.NotEmpty(t, click.SessionID)

	// The stored IP is anonymized, never the raw address.
	assert.Equal(t, "203.0.113.0", click.IPAddress)

	updated, err := partners.GetPartnerByID(dbManager.GetConnection(), partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.TotalClicks)
	assert.Equal(t, int64(1), updated.UniqueVisitors)
	require.NotNil(t, updated.LastActivityAt)
}

func TestTrackClickDedupWindow(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-1002")

	t0 := time.Now().UTC().Add(-26 * time.Hour)

	first := desktopInput("203.0.113.10")
	first.OccurredAt = t0
	c1, err := tracking.TrackClick(dbManager, logger, partner.Code, first)
	require.NoError(t, err)
	assert.True(t, c1.IsUnique)

	// Same visitor one hour later: inside the 24h window, not unique.
	second := desktopInput("203.0.113.10")
	second.OccurredAt = t0.Add(1 * time.Hour)
	c2, err := tracking.TrackClick(dbManager, logger, partner.Code, second)
	require.NoError(t, err)
	assert.False(t, c2.IsUnique)

	// Same visitor 25 hours after the first click: window rolled, unique again.
	third := desktopInput("203.0.113.10")
	third.OccurredAt = t0.Add(25 * time.Hour)
	c3, err := tracking.TrackClick(dbManager, logger, partner.Code, third)
	require.NoError(t, err)
	assert.True(t, c3.IsUnique)

	updated, err := partners.GetPartnerByID(dbManager.GetConnection(), partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.TotalClicks)
	assert.Equal(t, int64(2), updated.UniqueVisitors)
}

func TestTrackClickDifferentVisitorsAreUnique(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-1003")

	for i := 0; i < 3; i++ {
		input := desktopInput(fmt.Sprintf("203.0.113.%d", 50+i))
		_, err := tracking.TrackClick(dbManager, logger, partner.Code, input)
		require.NoError(t, err)
	}

	updated, err := partners.GetPartnerByID(dbManager.GetConnection(), partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.TotalClicks)
	assert.Equal(t, int64(3), updated.UniqueVisitors)
}

func TestTrackClickUnknownCode(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	_, err := tracking.TrackClick(dbManager, logger, "nope1234", desktopInput("203.0.113.1"))
	require.Error(t, err)

	var notFound *partners.PartnerNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestTrackClickInactivePartner(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-1004")
	db := dbManager.GetConnection()

	require.NoError(t, partners.SetPartnerActive(db, partner.ID, false))

	click, err := tracking.TrackClick(dbManager, logger, partner.Code, desktopInput("203.0.113.77"))
	require.NoError(t, err)
	assert.Nil(t, click)

	updated, err := partners.GetPartnerByID(db, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.TotalClicks)
}

func TestTrackRedirectAttribution(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-1005")
	db := dbManager.GetConnection()

	click, err := tracking.TrackClick(dbManager, logger, partner.Code, desktopInput("203.0.113.90"))
	require.NoError(t, err)

	attributed, err := tracking.TrackRedirect(dbManager, logger, click.ID, "whatsapp")
	require.NoError(t, err)
	assert.True(t, attributed)

	stored, err := clicks.GetClickByID(db, click.ID)
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", stored.RedirectType)

	channels, err := partners.ChannelClicks(db, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), channels["whatsapp"])
}

func TestTrackRedirectIsIdempotent(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-1006")
	db := dbManager.GetConnection()

	click, err := tracking.TrackClick(dbManager, logger, partner.Code, desktopInput("203.0.113.91"))
	require.NoError(t, err)

	attributed, err := tracking.TrackRedirect(dbManager, logger, click.ID, "telegram")
	require.NoError(t, err)
	assert.True(t, attributed)

	// Replay with the same channel: no error, no double count.
	attributed, err = tracking.TrackRedirect(dbManager, logger, click.ID, "telegram")
	require.NoError(t, err)
	assert.False(t, attributed)

	// Replay with a different channel: the first attribution stands.
	attributed, err = tracking.TrackRedirect(dbManager, logger, click.ID, "whatsapp")
	require.NoError(t, err)
	assert.False(t, attributed)

	stored, err := clicks.GetClickByID(db, click.ID)
	require.NoError(t, err)
	assert.Equal(t, "telegram", stored.RedirectType)

	channels, err := partners.ChannelClicks(db, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), channels["telegram"])
	assert.Equal(t, int64(0), channels["whatsapp"])
}

func TestTrackRedirectUnknownClick(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	_, err := tracking.TrackRedirect(dbManager, logger, 424242, "whatsapp")
	require.Error(t, err)

	var notFound *clicks.ClickNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestTrackRedirectRejectsLandingAsChannel(t *testing.T) {
	dbManager, logger, partner := testsupport.SetupTestDBManagerWithPartner(t, "tg-1007")

	click, err := tracking.TrackClick(dbManager, logger, partner.Code, desktopInput("203.0.113.92"))
	require.NoError(t, err)

	_, err = tracking.TrackRedirect(dbManager, logger, click.ID, clicks.RedirectTypeLanding)
	require.Error(t, err)

	var validation *clicks.ValidationError
	assert.ErrorAs(t, err, &validation)
}
