package counter

import (
	"time"

	"github.com/numera-app/numera/internal/numbering"
)

// Counter is one monotonic sequence bucket, keyed by (seller, period).
// Rows are created lazily on first issuance and never deleted: the
// numbering history must stay auditable even after a seller is
// deactivated.
type Counter struct {
	SellerID          int64                 `json:"seller_id" db:"seller_id"`
	ResetPeriod       numbering.ResetPeriod `json:"reset_period" db:"reset_period"`
	PeriodKey         string                `json:"period_key" db:"period_key"`
	LastValue         int64                 `json:"last_value" db:"last_value"`
	BaseOffset        int64                 `json:"base_offset" db:"base_offset"`
	LastInvoiceNumber string                `json:"last_invoice_number" db:"last_invoice_number"`
	CreatedAt         time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at" db:"updated_at"`
}

// AuditRow is the drift report for one counter bucket. ExpectedValue is
// derived at read time from the invoice records, never stored: the
// invoices table is the independent source of truth the counter is
// checked against.
type AuditRow struct {
	PeriodKey         string                `json:"periodKey"`
	ResetPeriod       numbering.ResetPeriod `json:"resetPeriod"`
	LastValue         int64                 `json:"lastValue"`
	InvoiceCount      int64                 `json:"invoiceCount"`
	ExpectedValue     int64                 `json:"expectedValue"`
	LastInvoiceNumber string                `json:"lastInvoiceNumber"`
	UpdatedAt         time.Time             `json:"updatedAt"`
	HasDrift          bool                  `json:"hasDrift"`
}

// AuditReport is the observability payload for one seller.
type AuditReport struct {
	SellerID        int64      `json:"sellerId"`
	CurrentTemplate string     `json:"currentTemplate"`
	Counters        []AuditRow `json:"counters"`
}
