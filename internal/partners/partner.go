// Package partners manages referral partner records and their denormalized
// click counters.
package partners

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// PartnerNotFoundError represents an error when a partner is not found
type PartnerNotFoundError struct {
	Ref string
}

func (e *PartnerNotFoundError) Error() string {
	return fmt.Sprintf("partner not found: %s", e.Ref)
}

// NewPartnerNotFoundError creates a new PartnerNotFoundError
func NewPartnerNotFoundError(ref string) *PartnerNotFoundError {
	return &PartnerNotFoundError{Ref: ref}
}

// Partner represents a referral partner. The Code is the public, URL-safe
// identifier embedded in referral links; it is generated once and never
// changes. TotalClicks and UniqueVisitors are denormalized counters kept in
// lockstep with the click ledger by the tracking engine.
type Partner struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID       string     `gorm:"uniqueIndex;not null" json:"external_id"` // e.g. Telegram user id
	Code             string     `gorm:"uniqueIndex;size:12;not null" json:"code"`
	Name             string     `json:"name"`
	WhatsappPhone    string     `json:"whatsapp_phone"`
	TelegramUsername string     `json:"telegram_username"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	TotalClicks      int64      `gorm:"default:0" json:"total_clicks"`
	UniqueVisitors   int64      `gorm:"default:0" json:"unique_visitors"`
	LastActivityAt   *time.Time `json:"last_activity_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// GetPartnerByCode retrieves a partner by its referral code.
// It accepts a transaction to be used as part of a larger transaction process.
func GetPartnerByCode(tx *gorm.DB, code string) (*Partner, error) {
	var partner Partner
	if err := tx.Where("code = ?", code).First(&partner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewPartnerNotFoundError(code)
		}
		return nil, fmt.Errorf("unexpected error querying partner: %w", err)
	}
	return &partner, nil
}

// GetPartnerByID retrieves a partner by its primary key.
func GetPartnerByID(db *gorm.DB, id uint) (*Partner, error) {
	var partner Partner
	if err := db.First(&partner, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewPartnerNotFoundError(fmt.Sprintf("id=%d", id))
		}
		return nil, fmt.Errorf("unexpected error querying partner: %w", err)
	}
	return &partner, nil
}

// GetPartnerByExternalID retrieves a partner by the external identity it was
// provisioned with.
func GetPartnerByExternalID(db *gorm.DB, externalID string) (*Partner, error) {
	var partner Partner
	if err := db.Where("external_id = ?", externalID).First(&partner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewPartnerNotFoundError(externalID)
		}
		return nil, fmt.Errorf("unexpected error querying partner: %w", err)
	}
	return &partner, nil
}

// GetAllPartners retrieves all partners ordered by creation time.
func GetAllPartners(db *gorm.DB) ([]Partner, error) {
	var list []Partner
	if err := db.Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to get partners: %w", err)
	}
	return list, nil
}

// CreatePartner provisions a new partner. A referral code is generated unless
// one was supplied; generation retries on the (unlikely) unique collision.
func CreatePartner(db *gorm.DB, partner *Partner) error {
	now := time.Now().UTC()
	partner.CreatedAt = now
	partner.UpdatedAt = now
	partner.IsActive = true

	if partner.Code != "" {
		if err := ValidateCode(partner.Code); err != nil {
			return err
		}
		return db.Create(partner).Error
	}

	for attempt := 0; attempt < 5; attempt++ {
		partner.Code = GenerateCode()
		err := db.Create(partner).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) && !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("failed to generate a unique referral code for partner %s", partner.ExternalID)
}

// UpdatePartner persists changes to mutable partner fields. The referral code
// is immutable and never written here.
func UpdatePartner(db *gorm.DB, partner *Partner) error {
	partner.UpdatedAt = time.Now().UTC()
	return db.Model(partner).
		Select("name", "whatsapp_phone", "telegram_username", "updated_at").
		Updates(partner).Error
}

// SetPartnerActive toggles the soft-deactivation flag. Deactivated partners
// keep their history; their links simply stop recording.
func SetPartnerActive(db *gorm.DB, id uint, active bool) error {
	result := db.Model(&Partner{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return NewPartnerNotFoundError(fmt.Sprintf("id=%d", id))
	}
	return nil
}

// BumpCounters atomically increments the denormalized partner counters and
// refreshes the activity timestamp. Runs inside the caller's transaction so
// ledger insert and counter bump commit together.
func BumpCounters(tx *gorm.DB, partnerID uint, isUnique bool, at time.Time) error {
	uniqueAdd := 0
	if isUnique {
		uniqueAdd = 1
	}
	return tx.Exec(`
		UPDATE partners
		SET total_clicks = total_clicks + 1,
		    unique_visitors = unique_visitors + ?,
		    last_activity_at = ?,
		    updated_at = ?
		WHERE id = ?`,
		uniqueAdd, at, time.Now().UTC(), partnerID).Error
}

// isUniqueViolation matches SQLite constraint failures, which the driver
// surfaces as plain errors rather than gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
