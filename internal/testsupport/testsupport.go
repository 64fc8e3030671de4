package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reftrail/internal"
	"reftrail/internal/clicks"
	"reftrail/internal/config"
	"reftrail/internal/partners"
	"reftrail/internal/settings"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with reftrail's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all reftrail models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&partners.Partner{},
		&partners.ChannelStat{},
		&clicks.Click{},
		&settings.Setting{},
	}
}

// SetupTestDB creates a test database with all reftrail models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same one.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set REFTRAIL_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// SetupTestDBManagerWithPartner creates a test database manager with a test partner
func SetupTestDBManagerWithPartner(t *testing.T, externalID string) (*TestDBManager, *slog.Logger, partners.Partner) {
	dbManager, logger := SetupTestDBManager(t)
	partner := CreateTestPartner(t, dbManager.GetConnection(), externalID)
	return dbManager, logger, partner
}

// CreateTestPartner creates an active test partner, reusing an existing one
// with the same external id.
func CreateTestPartner(t *testing.T, db *gorm.DB, externalID string) partners.Partner {
	t.Helper()

	var partner partners.Partner
	if db.Where("external_id = ?", externalID).First(&partner).Error == nil {
		return partner
	}

	partner = partners.Partner{
		ExternalID: externalID,
		Name:       "Test Partner " + externalID,
	}
	if err := partners.CreatePartner(db, &partner); err != nil {
		t.Fatalf("testsupport: failed to create test partner: %v", err)
	}
	return partner
}

// CreateTestClick inserts a click row directly, bypassing the tracking
// engine. Counters are not touched; use this for ledger and stats tests that
// control their own counter expectations.
func CreateTestClick(t *testing.T, db *gorm.DB, partnerID uint, fingerprint string, occurredAt time.Time, mutate ...func(*clicks.Click)) clicks.Click {
	t.Helper()

	click := clicks.Click{
		PartnerID:    partnerID,
		Fingerprint:  fingerprint,
		IPAddress:    "203.0.113.0",
		Browser:      "Chrome",
		OS:           "Windows",
		DeviceType:   "desktop",
		RedirectType: clicks.RedirectTypeLanding,
		IsUnique:     true,
		OccurredAt:   occurredAt,
		CreatedAt:    time.Now().UTC(),
	}
	for _, fn := range mutate {
		fn(&click)
	}

	if err := db.Create(&click).Error; err != nil {
		t.Fatalf("testsupport: failed to create test click: %v", err)
	}
	return click
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
