package settings_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reftrail/internal/config"
	"reftrail/internal/settings"
	"reftrail/internal/testsupport"
)

func TestMain(m *testing.M) {
	os.Setenv("REFTRAIL_ENV", "test")
	config.Reset()
	os.Exit(m.Run())
}

func TestExcludedIPs(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	require.NoError(t, settings.SetupDefaultSettings(db))

	excluded, err := settings.IsIPExcluded("203.0.113.42")
	require.NoError(t, err)
	assert.False(t, excluded)

	require.NoError(t, settings.SetExcludedIPs(db, []string{"203.0.113.42", "198.51.100.7"}))

	excluded, err = settings.IsIPExcluded("203.0.113.42")
	require.NoError(t, err)
	assert.True(t, excluded)

	excluded, err = settings.IsIPExcluded("203.0.113.43")
	require.NoError(t, err)
	assert.False(t, excluded)
}

func TestAPIKeyLifecycle(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	// No key provisioned yet
	assert.False(t, settings.VerifyAPIKey(db, settings.KeyAdminAPIKeyHash, "anything"))

	plaintext, err := settings.GenerateAPIKey(db, settings.KeyAdminAPIKeyHash)
	require.NoError(t, err)
	require.Len(t, plaintext, 32)

	assert.True(t, settings.VerifyAPIKey(db, settings.KeyAdminAPIKeyHash, plaintext))
	assert.False(t, settings.VerifyAPIKey(db, settings.KeyAdminAPIKeyHash, "wrong-key"))
	assert.False(t, settings.VerifyAPIKey(db, settings.KeyAdminAPIKeyHash, ""))

	// Only the hash is stored
	stored, err := settings.GetSetting(db, settings.KeyAdminAPIKeyHash)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, stored)

	// Rotation invalidates the old key
	rotated, err := settings.GenerateAPIKey(db, settings.KeyAdminAPIKeyHash)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, rotated)
	assert.True(t, settings.VerifyAPIKey(db, settings.KeyAdminAPIKeyHash, rotated))
	assert.False(t, settings.VerifyAPIKey(db, settings.KeyAdminAPIKeyHash, plaintext))

	// Bot key is independent
	botKey, err := settings.GenerateAPIKey(db, settings.KeyBotAPIKeyHash)
	require.NoError(t, err)
	assert.True(t, settings.VerifyAPIKey(db, settings.KeyBotAPIKeyHash, botKey))
	assert.False(t, settings.VerifyAPIKey(db, settings.KeyAdminAPIKeyHash, botKey))
}
