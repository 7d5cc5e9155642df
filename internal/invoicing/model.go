package invoicing

import (
	"time"

	"github.com/google/uuid"
)

// Invoice is an issued, numbered invoice. Number, PeriodKey and
// SequenceNumber are frozen at issuance: scheme changes never renumber
// existing invoices.
type Invoice struct {
	ID             int64     `json:"id" db:"id"`
	Reference      uuid.UUID `json:"reference" db:"reference"`
	SellerID       int64     `json:"seller_id" db:"seller_id"`
	Number         string    `json:"number" db:"number"`
	SequenceNumber int64     `json:"sequence_number" db:"sequence_number"`
	PeriodKey      string    `json:"period_key" db:"period_key"`
	IssueDate      time.Time `json:"issue_date" db:"issue_date"`
	DepartmentCode *string   `json:"department_code,omitempty" db:"department_code"`
	DepartmentName *string   `json:"department_name,omitempty" db:"department_name"`
	CustomerName   string    `json:"customer_name" db:"customer_name"`
	TotalCents     int64     `json:"total_cents" db:"total_cents"`
	Currency       string    `json:"currency" db:"currency"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
