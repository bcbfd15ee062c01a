package domain

import (
	"github.com/shopspring/decimal"
)

// ParsedTransaction is one statement line after parsing, rule application and
// enrichment. It is the unit that flows through the ingestion pipeline and is
// mapped into a stored transaction row by the persistence layer.
//
// Optional flags are tri-state: nil means "not decided", which is different
// from an explicit false set by a rule or the classifier.
type ParsedTransaction struct {
	TransactionDate      string           `json:"transaction_date"` // YYYY-MM-DD
	OriginalMerchantName string           `json:"original_merchant_name"`
	AmountOriginal       decimal.Decimal  `json:"amount_original"`
	CurrencyOriginal     string           `json:"currency_original"`
	AmountCharged        *decimal.Decimal `json:"amount_charged,omitempty"`
	TransactionType      string           `json:"transaction_type,omitempty"`
	MerchantCategoryHint string           `json:"merchant_category_hint,omitempty"`
	Notes                string           `json:"notes,omitempty"`

	InstallmentTotal     *decimal.Decimal `json:"installment_total,omitempty"`
	InstallmentMonthly   *decimal.Decimal `json:"installment_monthly,omitempty"`
	InstallmentRemaining *decimal.Decimal `json:"installment_remaining,omitempty"`

	NormalizedMerchantName string   `json:"normalized_merchant_name,omitempty"`
	CategoryID             string   `json:"category_id,omitempty"`
	ConfidenceScore        *float64 `json:"confidence_score,omitempty"`
	IsBusiness             *bool    `json:"is_business,omitempty"`
	MasterFlag             *bool    `json:"master_flag,omitempty"`
	IsReimbursement        *bool    `json:"is_reimbursement,omitempty"`

	AppliedRuleIDs []string `json:"applied_rule_ids,omitempty"`
}

// EffectiveMerchantName is the name used for hashing and display.
func (t ParsedTransaction) EffectiveMerchantName() string {
	if t.NormalizedMerchantName != "" {
		return t.NormalizedMerchantName
	}
	return t.OriginalMerchantName
}

// Clone returns a copy that does not share the applied rule slice.
func (t ParsedTransaction) Clone() ParsedTransaction {
	c := t
	if t.AppliedRuleIDs != nil {
		c.AppliedRuleIDs = append([]string(nil), t.AppliedRuleIDs...)
	}
	return c
}

// Bool returns a pointer to b, for the tri-state flags.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Decimal returns a pointer to d.
func Decimal(d decimal.Decimal) *decimal.Decimal { return &d }
