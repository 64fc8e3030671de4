// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reftrail/internal/clicks"
	"reftrail/internal/config"
	"reftrail/internal/partners"
	"reftrail/internal/testsupport"
)

func TestMain(m *testing.M) {
	os.Setenv("REFTRAIL_ENV", "test")
	config.Reset()
	os.Exit(m.Run())
}

func TestLandingHandler(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	app := testsupport.CreateMinimalTestApp(t, db)

	partner := partners.Partner{
		ExternalID:       "tg-landing-1",
		Name:             "Landing Partner",
		WhatsappPhone:    "+34600111222",
		TelegramUsername: "landingpartner",
	}
	require.NoError(t, partners.CreatePartner(db, &partner))

	t.Run("renders channel chooser and records the click", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/r/"+partner.Code, nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0")
		req.Header.Set("X-Forwarded-For", "203.0.113.42")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "Landing Partner")
		assert.Contains(t, string(body), "wa.me/34600111222")
		assert.Contains(t, string(body), "t.me/landingpartner")

		var count int64
		require.NoError(t, db.Model(&clicks.Click{}).Where("partner_id = ?", partner.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("unknown code returns not found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/r/nosuchcode", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "PARTNER_NOT_FOUND")
	})

	t.Run("deactivated partner behaves like an unknown code", func(t *testing.T) {
		require.NoError(t, partners.SetPartnerActive(db, partner.ID, false))
		t.Cleanup(func() {
			require.NoError(t, partners.SetPartnerActive(db, partner.ID, true))
		})

		req := httptest.NewRequest("GET", "/r/"+partner.Code, nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")
		req.Header.Set("X-Forwarded-For", "203.0.113.43")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "PARTNER_NOT_FOUND")
		assert.False(t, strings.Contains(string(body), "wa.me"))
		assert.False(t, strings.Contains(string(body), partner.Name))

		var count int64
		require.NoError(t, db.Model(&clicks.Click{}).Where("partner_id = ?", partner.ID).Count(&count).Error)
		assert.Equal(t, int64(1), count, "no click recorded for the deactivated link")
	})
}
