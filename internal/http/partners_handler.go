package http

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"reftrail/internal/partners"
	"reftrail/internal/settings"
)

// PartnerParams is the admin payload for creating and updating partners.
type PartnerParams struct {
	ExternalID       string `json:"external_id"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	WhatsappPhone    string `json:"whatsapp_phone"`
	TelegramUsername string `json:"telegram_username"`
}

// PartnersIndexAction handles GET /api/v1/partners
func PartnersIndexAction(ctx *cartridge.Context) error {
	list, err := partners.GetAllPartners(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to list partners", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list partners"})
	}
	return ctx.JSON(fiber.Map{"partners": list})
}

// PartnerShowAction handles GET /api/v1/partners/:id
func PartnerShowAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid partner id"})
	}

	partner, err := partners.GetPartnerByID(ctx.DB(), uint(id))
	if err != nil {
		return handlePartnerError(ctx, err, "Failed to load partner")
	}

	channels, err := partners.ChannelClicks(ctx.DB(), partner.ID)
	if err != nil {
		ctx.Logger.Error("Failed to load channel stats", slog.Any("error", err))
		channels = map[string]int64{}
	}

	return ctx.JSON(fiber.Map{
		"partner":  partner,
		"channels": channels,
	})
}

// PartnerCreateAction handles POST /api/v1/partners
func PartnerCreateAction(ctx *cartridge.Context) error {
	var params PartnerParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	params.ExternalID = strings.TrimSpace(params.ExternalID)
	if params.ExternalID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "external_id is required"})
	}

	partner := partners.Partner{
		ExternalID:       params.ExternalID,
		Code:             strings.TrimSpace(params.Code),
		Name:             strings.TrimSpace(params.Name),
		WhatsappPhone:    strings.TrimSpace(params.WhatsappPhone),
		TelegramUsername: strings.TrimSpace(params.TelegramUsername),
	}

	err := sqlite.PerformWrite(ctx.Logger, ctx.DB(), func(tx *gorm.DB) error {
		return partners.CreatePartner(tx, &partner)
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A partner with this external id or code already exists",
			})
		}
		ctx.Logger.Error("Failed to create partner", slog.Any("error", err))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx.Logger.Info("Created partner",
		slog.Uint64("partner_id", uint64(partner.ID)),
		slog.String("code", partner.Code))
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"partner": partner})
}

// PartnerUpdateAction handles POST /api/v1/partners/:id. The referral code and
// external id are immutable.
func PartnerUpdateAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid partner id"})
	}

	var params PartnerParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	partner, err := partners.GetPartnerByID(ctx.DB(), uint(id))
	if err != nil {
		return handlePartnerError(ctx, err, "Failed to load partner")
	}

	partner.Name = strings.TrimSpace(params.Name)
	partner.WhatsappPhone = strings.TrimSpace(params.WhatsappPhone)
	partner.TelegramUsername = strings.TrimSpace(params.TelegramUsername)

	err = sqlite.PerformWrite(ctx.Logger, ctx.DB(), func(tx *gorm.DB) error {
		return partners.UpdatePartner(tx, partner)
	})
	if err != nil {
		ctx.Logger.Error("Failed to update partner", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update partner"})
	}

	return ctx.JSON(fiber.Map{"partner": partner})
}

// PartnerActivateAction handles POST /api/v1/partners/:id/activate and
// /deactivate.
func PartnerActivateAction(active bool) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		id, err := ctx.ParamsInt("id")
		if err != nil || id <= 0 {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid partner id"})
		}

		err = sqlite.PerformWrite(ctx.Logger, ctx.DB(), func(tx *gorm.DB) error {
			return partners.SetPartnerActive(tx, uint(id), active)
		})
		if err != nil {
			var notFound *partners.PartnerNotFoundError
			if errors.As(err, &notFound) {
				return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Partner not found",
					"code":  "PARTNER_NOT_FOUND",
				})
			}
			ctx.Logger.Error("Failed to toggle partner", slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update partner"})
		}

		return ctx.JSON(fiber.Map{"id": id, "is_active": active})
	}
}

// APIKeyRotateAction handles POST /api/v1/settings/api-keys/:kind/rotate.
// Returns the new plaintext key once; only its hash is stored.
func APIKeyRotateAction(ctx *cartridge.Context) error {
	var hashKey string
	switch ctx.Params("kind") {
	case "admin":
		hashKey = settings.KeyAdminAPIKeyHash
	case "bot":
		hashKey = settings.KeyBotAPIKeyHash
	default:
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown key kind"})
	}

	plaintext, err := settings.GenerateAPIKey(ctx.DB(), hashKey)
	if err != nil {
		ctx.Logger.Error("Failed to rotate API key", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to rotate API key"})
	}

	ctx.Logger.Info("Rotated API key", slog.String("kind", ctx.Params("kind")))
	return ctx.JSON(fiber.Map{"api_key": plaintext})
}
