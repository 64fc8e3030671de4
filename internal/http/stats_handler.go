package http

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reftrail/internal/partners"
	"reftrail/internal/stats"
	"reftrail/internal/timeframe"
)

// PartnerStatsAction handles GET /api/v1/partners/:id/stats?period=&tz=
func PartnerStatsAction(ctx *cartridge.Context) error {
	partnerID, err := ctx.ParamsInt("id")
	if err != nil || partnerID <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid partner id"})
	}

	period, err := timeframe.ParsePeriod(ctx.Query("period"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	tz := resolveTimezone(ctx.Query("tz"))

	result, err := stats.ForPeriod(ctx.DBManager, ctx.Logger, uint(partnerID), period, tz)
	if err != nil {
		return handlePartnerError(ctx, err, "Failed to compute stats")
	}

	result.TopCountries = convertCountryStats(result.TopCountries)
	result.TopDevices = titleCaseStats(result.TopDevices)
	result.TopBrowsers = titleCaseStats(result.TopBrowsers)

	return ctx.JSON(result)
}

// PartnerReferralsAction handles GET /api/v1/partners/:id/referrals
func PartnerReferralsAction(ctx *cartridge.Context) error {
	partnerID, err := ctx.ParamsInt("id")
	if err != nil || partnerID <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid partner id"})
	}

	period, err := timeframe.ParsePeriod(ctx.Query("period"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "0"))
	offset, _ := strconv.Atoi(ctx.Query("offset", "0"))
	tz := resolveTimezone(ctx.Query("tz"))

	page, err := stats.PaginatedReferrals(ctx.DBManager, ctx.Logger, uint(partnerID), period, tz, limit, offset)
	if err != nil {
		return handlePartnerError(ctx, err, "Failed to list referrals")
	}

	return ctx.JSON(page)
}

// ReconcileAction handles POST /api/v1/reconcile?repair=true, the on-demand
// counterpart of the scheduled audit.
func ReconcileAction(ctx *cartridge.Context) error {
	repair := ctx.Query("repair") == "true"

	drifts, err := stats.Reconcile(ctx.DBManager, ctx.Logger, repair)
	if err != nil {
		ctx.Logger.Error("Reconciliation failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Reconciliation failed",
		})
	}

	if drifts == nil {
		drifts = []stats.Drift{}
	}
	return ctx.JSON(fiber.Map{
		"drift":    drifts,
		"repaired": repair,
	})
}

func handlePartnerError(ctx *cartridge.Context, err error, fallback string) error {
	var notFound *partners.PartnerNotFoundError
	if errors.As(err, &notFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Partner not found",
			"code":  "PARTNER_NOT_FOUND",
		})
	}
	ctx.Logger.Error(fallback, slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
}

func resolveTimezone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return tz
}

// convertCountryStats maps ISO country codes to display names.
func convertCountryStats(items []stats.MetricCountResult) []stats.MetricCountResult {
	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	if len(items) == 0 {
		return []stats.MetricCountResult{}
	}

	result := make([]stats.MetricCountResult, len(items))
	for i, item := range items {
		if item.Name == "Unknown" {
			result[i] = item
			continue
		}
		country, err := countries.FindCountryByAlpha(item.Name)
		if err != nil {
			result[i] = stats.MetricCountResult{
				Name:  caser.String(item.Name),
				Count: item.Count,
			}
		} else {
			result[i] = stats.MetricCountResult{
				Name:  country.Name.Common,
				Count: item.Count,
			}
		}
	}
	return result
}

func titleCaseStats(items []stats.MetricCountResult) []stats.MetricCountResult {
	caser := cases.Title(language.AmericanEnglish)

	if len(items) == 0 {
		return []stats.MetricCountResult{}
	}

	result := make([]stats.MetricCountResult, len(items))
	for i, item := range items {
		result[i] = stats.MetricCountResult{
			Name:  caser.String(item.Name),
			Count: item.Count,
		}
	}
	return result
}
