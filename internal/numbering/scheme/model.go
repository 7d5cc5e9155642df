package scheme

import (
	"time"

	"github.com/numera-app/numera/internal/numbering"
)

// Status determines whether a scheme can serve new invoices or only
// backdated ones.
type Status string

const (
	// StatusActive schemes serve invoices issued today or later.
	StatusActive Status = "ACTIVE"
	// StatusArchived schemes still serve backdated invoices.
	StatusArchived Status = "ARCHIVED"
	// StatusDraft schemes are planned and never effective.
	StatusDraft Status = "DRAFT"
)

// Scheme is one numbering configuration revision for a seller. Invoice
// numbers are immutable once issued: activating a new scheme never
// renumbers existing invoices, which is why superseded revisions are
// archived instead of deleted.
type Scheme struct {
	ID            int64                  `json:"id" db:"id"`
	SellerID      int64                  `json:"seller_id" db:"seller_id"`
	Template      string                 `json:"template" db:"template"`
	ResetPeriod   numbering.ResetPeriod  `json:"reset_period" db:"reset_period"`
	EffectiveFrom time.Time              `json:"effective_from" db:"effective_from"`
	Version       int                    `json:"version" db:"version"`
	Status        Status                 `json:"status" db:"status"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at" db:"updated_at"`
}

// IsEffectiveOn reports whether this scheme applies to invoices issued on
// the given date. ACTIVE and ARCHIVED schemes both serve backdated
// invoices; DRAFT schemes never do.
func (s *Scheme) IsEffectiveOn(date time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusArchived {
		return false
	}
	return !date.Before(s.EffectiveFrom)
}
