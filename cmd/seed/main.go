// Seeds the database with sample partners and referral traffic.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/karloscodes/cartridge"

	"reftrail/internal/config"
	"reftrail/internal/database"
	"reftrail/internal/pkg/geoip"
	"reftrail/internal/seeder"
	"reftrail/internal/settings"
)

func main() {
	clickCount := flag.Int("clicks", 500, "approximate number of clicks to generate")
	flag.Parse()

	cfg := config.GetConfig()
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	logger := cartridge.NewLogger(cfg, nil)
	geoip.InitLogger(logger)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	if err := settings.SetupDefaultSettings(dbManager.GetConnection()); err != nil {
		log.Fatalf("Failed to set up default settings: %v", err)
	}

	s := seeder.NewSeeder(dbManager, logger, *clickCount)
	if err := s.Run(context.Background()); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}
