// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IP anonymization policies
const (
	IPPolicyTruncate = "truncate"
	IPPolicyHash     = "hash"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`
	Domain      string   `mapstructure:"domain"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Tracking settings
	DedupWindowHours    int    `mapstructure:"dedupwindowhours"`
	IPAnonymization     string `mapstructure:"ipanonymization"`
	ClickScrubAfterDays int    `mapstructure:"clickscrubafterdays"`

	// Job scheduling settings
	JobIntervalSeconds int  `mapstructure:"jobintervalseconds"`
	ReconcileRepair    bool `mapstructure:"reconcilerepair"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "reftrail")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("dedupwindowhours", 24)
		v.SetDefault("ipanonymization", IPPolicyTruncate)
		v.SetDefault("clickscrubafterdays", 90)
		v.SetDefault("jobintervalseconds", 300)
		v.SetDefault("reconcilerepair", false)

		v.BindEnv("appname", "REFTRAIL_APP_NAME")
		v.BindEnv("appport", "REFTRAIL_APP_PORT")
		v.BindEnv("environment", "REFTRAIL_ENV")
		v.BindEnv("loglevel", "REFTRAIL_LOG_LEVEL")
		v.BindEnv("privatekey", "REFTRAIL_PRIVATE_KEY")
		v.BindEnv("domain", "REFTRAIL_DOMAIN")
		v.BindEnv("storagepath", "REFTRAIL_STORAGE_PATH")
		v.BindEnv("geodbpath", "REFTRAIL_GEO_DB_PATH")
		v.BindEnv("publicdir", "REFTRAIL_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "REFTRAIL_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "REFTRAIL_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "REFTRAIL_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "REFTRAIL_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "REFTRAIL_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "REFTRAIL_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "REFTRAIL_DB_MAX_IDLE_CONNS")
		v.BindEnv("dedupwindowhours", "REFTRAIL_DEDUP_WINDOW_HOURS")
		v.BindEnv("ipanonymization", "REFTRAIL_IP_ANONYMIZATION")
		v.BindEnv("clickscrubafterdays", "REFTRAIL_CLICK_SCRUB_AFTER_DAYS")
		v.BindEnv("jobintervalseconds", "REFTRAIL_JOB_INTERVAL_SECONDS")
		v.BindEnv("reconcilerepair", "REFTRAIL_RECONCILE_REPAIR")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()

		// Validate private key - in production, must be explicitly set (not empty, not default)
		defaultKey := "88888888888888888888888888888888"
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique REFTRAIL_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validIPPolicies := map[string]bool{
		IPPolicyTruncate: true,
		IPPolicyHash:     true,
	}
	if !validIPPolicies[c.IPAnonymization] {
		return fmt.Errorf("invalid ip anonymization policy: %s", c.IPAnonymization)
	}

	if c.DedupWindowHours <= 0 {
		return fmt.Errorf("dedup window must be positive, got %d", c.DedupWindowHours)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for test stability)
// - Development/Production: 10 (allows concurrent reads for parallel stats queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
