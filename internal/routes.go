package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "reftrail/api/v1"
	"reftrail/internal/config"
	"reftrail/internal/http"
	"reftrail/internal/http/middleware"
	"reftrail/internal/settings"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// Landing pages and the beacon endpoint are hit cross-origin by design.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Helper to conditionally apply rate limiting (only in production)
	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Rate limiter for the public tracking surface (70 requests per minute per IP)
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stricter rate limiter for the bot ingestion endpoint. Bot traffic is
	// authenticated but a leaked key should not allow unbounded writes.
	botRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	// Public landing pages. No CORS needed, plain browser navigation.
	landingConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
	}

	// Public beacon API. CORS runs first so 4xx responses carry CORS headers.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Bot ingestion API, authenticated with the bot API key.
	botAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			botRateLimiter,
			middleware.APIKeyAuth(db, logger, settings.KeyBotAPIKeyHash),
		},
	}

	// Admin API, authenticated with the admin API key.
	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.APIKeyAuth(db, logger, settings.KeyAdminAPIKeyHash),
		},
	}

	// === ROOT ROUTES ===

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC LANDING ROUTES ===
	srv.Get("/r/:code", v1.LandingHandler, landingConfig)

	// === PUBLIC API ROUTES ===
	srv.Post("/x/api/v1/redirects", v1.CreateRedirectHandler, publicAPIConfig)
	srv.Options("/x/api/v1/redirects", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === BOT API ROUTES ===
	srv.Post("/x/api/v1/referrals", v1.CreateReferralHandler, botAPIConfig)

	// === ADMIN API ROUTES ===
	srv.Get("/api/v1/partners", http.PartnersIndexAction, adminAPIConfig)
	srv.Post("/api/v1/partners", http.PartnerCreateAction, adminAPIConfig)
	srv.Get("/api/v1/partners/:id", http.PartnerShowAction, adminAPIConfig)
	srv.Post("/api/v1/partners/:id", http.PartnerUpdateAction, adminAPIConfig)
	srv.Post("/api/v1/partners/:id/activate", http.PartnerActivateAction(true), adminAPIConfig)
	srv.Post("/api/v1/partners/:id/deactivate", http.PartnerActivateAction(false), adminAPIConfig)

	srv.Get("/api/v1/partners/:id/stats", http.PartnerStatsAction, adminAPIConfig)
	srv.Get("/api/v1/partners/:id/referrals", http.PartnerReferralsAction, adminAPIConfig)

	srv.Post("/api/v1/reconcile", http.ReconcileAction, adminAPIConfig)
	srv.Post("/api/v1/settings/api-keys/:kind/rotate", http.APIKeyRotateAction, adminAPIConfig)
}
