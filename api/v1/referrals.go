package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"reftrail/internal/partners"
	"reftrail/internal/tracking"
)

// CreateReferralParams is the payload the bot posts when a referred user
// opens a deep link. Unlike browser landings it carries the user's identity
// and a channel known up front.
type CreateReferralParams struct {
	Code      string                 `json:"code"`
	Channel   string                 `json:"channel"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata"`

	User struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Locale    string `json:"locale"`
	} `json:"user"`
}

// CreateReferralHandler handles POST /x/api/v1/referrals. The click is
// recorded and, when a channel is supplied, attributed in the same request.
func CreateReferralHandler(ctx *cartridge.Context) error {
	var params CreateReferralParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse referral request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	if params.Code == "" || params.User.ID == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "code and user.id are required",
		})
	}

	// Bot traffic has no usable browser context; the user id keys the
	// fingerprint instead so de-duplication still works per referred user.
	input := &tracking.TrackInput{
		IPAddress:  getClientIP(ctx.Ctx),
		UserAgent:  "bot:" + params.User.ID,
		OccurredAt: params.Timestamp,
		Metadata:   metadataFromMap(params.Metadata),

		SubjectUserID:    params.User.ID,
		SubjectUsername:  params.User.Username,
		SubjectFirstName: params.User.FirstName,
		SubjectLastName:  params.User.LastName,
		SubjectLocale:    params.User.Locale,
	}

	click, err := tracking.TrackClick(ctx.DBManager, ctx.Logger, params.Code, input)
	if err != nil {
		var notFound *partners.PartnerNotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
				"error": "Referral code not found",
				"code":  "PARTNER_NOT_FOUND",
			})
		}
		ctx.Logger.Error("Failed to record referral", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record referral",
			"code":  "TRACKING_ERROR",
		})
	}
	if click == nil {
		// Deliberately skipped (deactivated partner, excluded IP).
		return ctx.Status(http.StatusOK).JSON(fiber.Map{"recorded": false})
	}

	attributed := false
	if channel := strings.ToLower(strings.TrimSpace(params.Channel)); channel != "" {
		attributed, err = tracking.TrackRedirect(ctx.DBManager, ctx.Logger, click.ID, channel)
		if err != nil {
			ctx.Logger.Error("Failed to attribute referral channel", slog.Any("error", err))
		}
	}

	return ctx.Status(http.StatusCreated).JSON(fiber.Map{
		"recorded":   true,
		"clickId":    click.ID,
		"isUnique":   click.IsUnique,
		"attributed": attributed,
	})
}

// metadataFromMap converts metadata map to string
func metadataFromMap(metadata map[string]interface{}) string {
	if metadata == nil {
		return ""
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}
