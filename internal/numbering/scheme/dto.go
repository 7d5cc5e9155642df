package scheme

import "time"

// CreateSchemeRequest is the payload for activating a new numbering scheme
// revision. EffectiveFrom defaults to today when omitted.
type CreateSchemeRequest struct {
	SellerID      int64      `json:"seller_id" validate:"required,gt=0"`
	Template      string     `json:"template" validate:"required,max=64"`
	ResetPeriod   string     `json:"reset_period" validate:"required,oneof=NEVER MONTHLY YEARLY"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
}

// PreviewResponse carries a rendered example for a candidate template.
type PreviewResponse struct {
	Template string `json:"template"`
	Example  string `json:"example"`
}
