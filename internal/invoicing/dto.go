package invoicing

// IssueInvoiceRequest is the payload for finalizing an invoice. IssueDate
// uses the YYYY-MM-DD form and may be in the past; backdated invoices are
// numbered under the scheme in force on that date.
type IssueInvoiceRequest struct {
	SellerID       int64   `json:"seller_id" validate:"required,gt=0"`
	IssueDate      string  `json:"issue_date" validate:"required,datetime=2006-01-02"`
	DepartmentCode *string `json:"department_code,omitempty" validate:"omitempty,max=16"`
	DepartmentName *string `json:"department_name,omitempty" validate:"omitempty,max=64"`
	CustomerName   string  `json:"customer_name" validate:"required,max=128"`
	TotalCents     int64   `json:"total_cents" validate:"gte=0"`
	Currency       string  `json:"currency" validate:"required,len=3"`
}

// NextNumberResponse is the advisory preview of the number the next
// issuance would produce.
type NextNumberResponse struct {
	SellerID   int64  `json:"seller_id"`
	IssueDate  string `json:"issue_date"`
	NextNumber string `json:"next_number"`
	Sequence   int64  `json:"sequence"`
}
