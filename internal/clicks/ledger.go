package clicks

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Append validates and inserts a click. Runs inside the caller's transaction
// so the insert commits together with the partner counter bump.
func Append(tx *gorm.DB, click *Click) error {
	if click.PartnerID == 0 {
		return NewValidationError("partner_id", "is required")
	}
	if click.Fingerprint == "" {
		return NewValidationError("fingerprint", "is required")
	}
	if click.OccurredAt.IsZero() {
		return NewValidationError("occurred_at", "is required")
	}
	if click.RedirectType == "" {
		click.RedirectType = RedirectTypeLanding
	}
	click.CreatedAt = time.Now().UTC()

	if err := tx.Create(click).Error; err != nil {
		return fmt.Errorf("failed to append click: %w", err)
	}
	return nil
}

// GetClickByID retrieves a click by its primary key.
func GetClickByID(db *gorm.DB, id uint) (*Click, error) {
	var click Click
	if err := db.First(&click, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewClickNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying click: %w", err)
	}
	return &click, nil
}

// SetRedirectType advances a click from the landing state to a terminal
// channel. First writer wins: the conditional UPDATE only matches while the
// click is still in the landing state, so concurrent redirects for the same
// click attribute exactly one channel. A repeat call is a no-op; a repeat
// with a different channel additionally logs a warning since it usually
// means a client is replaying stale state.
//
// Returns true when this call performed the transition.
func SetRedirectType(tx *gorm.DB, logger *slog.Logger, clickID uint, channel string) (bool, error) {
	if channel == "" || channel == RedirectTypeLanding {
		return false, NewValidationError("redirect_type", "must be a terminal channel")
	}

	result := tx.Model(&Click{}).
		Where("id = ? AND redirect_type = ?", clickID, RedirectTypeLanding).
		Update("redirect_type", channel)
	if result.Error != nil {
		return false, fmt.Errorf("failed to set redirect type: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	// Nothing transitioned: either the click does not exist or it already
	// left the landing state.
	var existing Click
	if err := tx.Select("id", "redirect_type").First(&existing, clickID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, NewClickNotFoundError(clickID)
		}
		return false, fmt.Errorf("unexpected error querying click: %w", err)
	}

	if existing.RedirectType != channel && logger != nil {
		logger.Warn("Ignoring redirect for already attributed click",
			slog.Uint64("click_id", uint64(clickID)),
			slog.String("attributed_channel", existing.RedirectType),
			slog.String("requested_channel", channel))
	}
	return false, nil
}

// HasRecentClick reports whether the fingerprint appeared for this partner
// within the de-duplication window. Served by the (partner_id, fingerprint)
// index.
func HasRecentClick(tx *gorm.DB, partnerID uint, fingerprint string, since time.Time) (bool, error) {
	var count int64
	err := tx.Model(&Click{}).
		Where("partner_id = ? AND fingerprint = ? AND occurred_at >= ?", partnerID, fingerprint, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check recent clicks: %w", err)
	}
	return count > 0, nil
}
