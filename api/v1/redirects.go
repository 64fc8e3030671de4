package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"reftrail/internal/clicks"
	"reftrail/internal/tracking"
)

const errInvalidRequest = "Invalid request"

// CreateRedirectParams is the payload of the channel notifier. Landings send
// it via navigator.sendBeacon right before the browser leaves the page.
type CreateRedirectParams struct {
	ClickID uint   `json:"clickId"`
	Channel string `json:"channel"`
}

// CreateRedirectHandler handles POST /x/api/v1/redirects. Replays are normal
// (beacons retry, users double-tap) and answer 200 with attributed=false.
func CreateRedirectHandler(ctx *cartridge.Context) error {
	var params CreateRedirectParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse redirect request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	params.Channel = strings.ToLower(strings.TrimSpace(params.Channel))
	if params.ClickID == 0 || params.Channel == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	attributed, err := tracking.TrackRedirect(ctx.DBManager, ctx.Logger, params.ClickID, params.Channel)
	if err != nil {
		var notFound *clicks.ClickNotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
				"error": "Click not found",
				"code":  "CLICK_NOT_FOUND",
			})
		}
		var validation *clicks.ValidationError
		if errors.As(err, &validation) {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": validation.Error(),
				"code":  "VALIDATION_ERROR",
			})
		}

		ctx.Logger.Error("Failed to track redirect", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to track redirect",
			"code":  "TRACKING_ERROR",
		})
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"attributed": attributed,
	})
}
