package partners

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ChannelStat is the per-channel denormalized click counter. The channel set
// is open ended: any string a redirect reports becomes a row here, no schema
// change needed.
type ChannelStat struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PartnerID uint      `gorm:"uniqueIndex:idx_partner_channel;not null" json:"partner_id"`
	Channel   string    `gorm:"uniqueIndex:idx_partner_channel;size:32;not null" json:"channel"`
	Clicks    int64     `gorm:"default:0" json:"clicks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IncrementChannel bumps the per-channel counter via an upsert, creating the
// row on first sight of a channel. Runs inside the caller's transaction.
func IncrementChannel(tx *gorm.DB, partnerID uint, channel string) error {
	now := time.Now().UTC()
	return tx.Exec(`
		INSERT INTO channel_stats (partner_id, channel, clicks, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(partner_id, channel) DO UPDATE SET
			clicks = clicks + 1,
			updated_at = excluded.updated_at`,
		partnerID, channel, now).Error
}

// ChannelClicks returns the partner's per-channel counters as a map.
func ChannelClicks(db *gorm.DB, partnerID uint) (map[string]int64, error) {
	var stats []ChannelStat
	if err := db.Where("partner_id = ?", partnerID).Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to get channel stats: %w", err)
	}

	result := make(map[string]int64, len(stats))
	for _, stat := range stats {
		result[stat.Channel] = stat.Clicks
	}
	return result, nil
}
