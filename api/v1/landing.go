package v1

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"reftrail/internal/partners"
	"reftrail/internal/tracking"
)

// landingPage is the minimal interstitial served on a referral link. It
// records the landing, offers the partner's contact channels and reports the
// chosen channel back through the redirects endpoint before leaving.
var landingPage = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.PartnerName}}</title>
<style>
body{font-family:system-ui,sans-serif;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#f5f5f5}
.card{background:#fff;border-radius:12px;padding:32px;max-width:360px;width:100%;box-shadow:0 2px 8px rgba(0,0,0,.08);text-align:center}
.btn{display:block;margin:12px 0;padding:14px;border-radius:8px;text-decoration:none;color:#fff;font-weight:600}
.btn-whatsapp{background:#25d366}
.btn-telegram{background:#2aabee}
</style>
</head>
<body>
<div class="card">
<h1>{{.PartnerName}}</h1>
<p>Choose how you want to get in touch:</p>
{{if .WhatsappURL}}<a class="btn btn-whatsapp" href="{{.WhatsappURL}}" data-channel="whatsapp">WhatsApp</a>{{end}}
{{if .TelegramURL}}<a class="btn btn-telegram" href="{{.TelegramURL}}" data-channel="telegram">Telegram</a>{{end}}
</div>
<script>
(function(){
  var clickId={{.ClickID}};
  document.querySelectorAll("[data-channel]").forEach(function(el){
    el.addEventListener("click",function(){
      navigator.sendBeacon("/x/api/v1/redirects",JSON.stringify({clickId:clickId,channel:el.dataset.channel}));
    });
  });
})();
</script>
</body>
</html>
`))

type landingPageData struct {
	PartnerName string
	ClickID     uint
	WhatsappURL string
	TelegramURL string
}

// LandingHandler serves GET /r/:code. It records the click and renders the
// channel chooser; a tracking failure other than an unknown code still shows
// the page so the visitor is never stranded on an error.
func LandingHandler(ctx *cartridge.Context) error {
	code := ctx.Params("code")

	queryParams := make(map[string]string)
	ctx.Ctx.Context().QueryArgs().VisitAll(func(key, value []byte) {
		queryParams[string(key)] = string(value)
	})

	input := &tracking.TrackInput{
		IPAddress:   getClientIP(ctx.Ctx),
		UserAgent:   requestUserAgent(ctx),
		Referer:     ctx.Get("Referer"),
		QueryParams: queryParams,
		SessionID:   ctx.Ctx.Query("sid"),
	}

	click, err := tracking.TrackClick(ctx.DBManager, ctx.Logger, code, input)
	if err != nil {
		var notFound *partners.PartnerNotFoundError
		if errors.As(err, &notFound) {
			return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
				"error": "Referral link not found",
				"code":  "PARTNER_NOT_FOUND",
			})
		}
		ctx.Logger.Error("Failed to track landing", slog.Any("error", err))
		// Fall through and render the page without a recorded click.
	}

	// A deactivated partner's link behaves exactly like an unknown code so
	// the page never leaks the partner's contact details.
	partner, perr := partners.GetPartnerByCode(ctx.DB(), code)
	if perr != nil || !partner.IsActive {
		return ctx.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": "Referral link not found",
			"code":  "PARTNER_NOT_FOUND",
		})
	}

	data := landingPageData{PartnerName: partner.Name}
	if click != nil {
		data.ClickID = click.ID
	}
	if partner.WhatsappPhone != "" {
		phone := strings.TrimPrefix(partner.WhatsappPhone, "+")
		data.WhatsappURL = "https://wa.me/" + url.PathEscape(phone)
	}
	if partner.TelegramUsername != "" {
		data.TelegramURL = "https://t.me/" + url.PathEscape(strings.TrimPrefix(partner.TelegramUsername, "@"))
	}

	var sb strings.Builder
	if err := landingPage.Execute(&sb, data); err != nil {
		ctx.Logger.Error("Failed to render landing page", slog.Any("error", err))
		return ctx.SendStatus(http.StatusInternalServerError)
	}

	ctx.Ctx.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return ctx.Ctx.SendString(sb.String())
}

func requestUserAgent(ctx *cartridge.Context) string {
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		return forwardedUA
	}
	return ctx.Get("User-Agent")
}
