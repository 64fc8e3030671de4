// Package clicks is the append-only ledger of referral traffic. Rows are
// inserted once, have their redirect_type advanced at most once, and are
// otherwise never mutated or deleted; every statistic can be recomputed from
// this table.
package clicks

import (
	"fmt"
	"time"
)

// RedirectTypeLanding is the initial state of every click: the visitor landed
// but has not chosen a channel yet. Any other value is a terminal channel
// name (whatsapp, telegram, ...) - the set is open, not an enum.
const RedirectTypeLanding = "landing"

// Click represents one recorded visit on a partner's referral link.
type Click struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	PartnerID   uint   `gorm:"index:idx_partner_occurred;index:idx_partner_fingerprint;not null" json:"partner_id"`
	Fingerprint string `gorm:"index:idx_partner_fingerprint;size:64;not null" json:"fingerprint"`

	// Visitor context. IPAddress is anonymized before it ever reaches this
	// struct; UserAgent may be blanked later by the privacy scrub job.
	IPAddress  string `json:"ip_address"`
	UserAgent  string `gorm:"type:text" json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"`
	Referer    string `json:"referer"`

	// Geo enrichment, best effort.
	Country  string `gorm:"index" json:"country"`
	Region   string `json:"region"`
	City     string `json:"city"`
	Timezone string `json:"timezone"`

	// Campaign attribution.
	UTMSource   string `gorm:"index" json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`

	RedirectType string `gorm:"default:'landing';not null" json:"redirect_type"`
	IsUnique     bool   `gorm:"not null" json:"is_unique"`

	OccurredAt time.Time `gorm:"index:idx_partner_occurred;not null" json:"occurred_at"`
	SessionID  string    `gorm:"index" json:"session_id"`
	Metadata   string    `gorm:"type:text" json:"metadata"`

	// Identity of the referred user when the event came through the bot.
	SubjectUserID    string `json:"subject_user_id"`
	SubjectUsername  string `json:"subject_username"`
	SubjectFirstName string `json:"subject_first_name"`
	SubjectLastName  string `json:"subject_last_name"`
	SubjectLocale    string `json:"subject_locale"`

	CreatedAt time.Time `json:"created_at"`
}

// ClickNotFoundError represents an error when a click is not found
type ClickNotFoundError struct {
	ID uint
}

func (e *ClickNotFoundError) Error() string {
	return fmt.Sprintf("click not found: id=%d", e.ID)
}

// NewClickNotFoundError creates a new ClickNotFoundError
func NewClickNotFoundError(id uint) *ClickNotFoundError {
	return &ClickNotFoundError{ID: id}
}

// ValidationError represents an invalid click payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid click: %s %s", e.Field, e.Reason)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
