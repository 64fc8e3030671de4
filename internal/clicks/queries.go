package clicks

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FindRecent returns the newest clicks for a partner, newest first.
func FindRecent(db *gorm.DB, partnerID uint, limit int) ([]Click, error) {
	var list []Click
	err := db.Where("partner_id = ?", partnerID).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent clicks: %w", err)
	}
	return list, nil
}

// FindPage returns one page of a partner's clicks within [from, to), newest
// first, plus the total row count for the same filter. Zero time bounds mean
// unbounded.
func FindPage(db *gorm.DB, partnerID uint, from, to time.Time, limit, offset int) ([]Click, int64, error) {
	query := db.Model(&Click{}).Where("partner_id = ?", partnerID)
	if !from.IsZero() {
		query = query.Where("occurred_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("occurred_at < ?", to)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count clicks: %w", err)
	}

	var list []Click
	err := query.Order("occurred_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&list).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get clicks page: %w", err)
	}
	return list, total, nil
}

// ScrubOlderThan blanks the personally revealing free-text columns on clicks
// older than the cutoff. Rows are never deleted, so counter invariants and
// historical stats survive the scrub. Returns the number of rows touched.
func ScrubOlderThan(db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.Model(&Click{}).
		Where("occurred_at < ? AND (user_agent != '' OR metadata != '')", cutoff).
		Updates(map[string]interface{}{"user_agent": "", "metadata": ""})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to scrub clicks: %w", result.Error)
	}
	return result.RowsAffected, nil
}
