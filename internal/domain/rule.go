package domain

// RuleType is the matching strategy of a user rule.
type RuleType string

const (
	RuleMerchantExact    RuleType = "merchant_exact"
	RuleNormalizedExact  RuleType = "normalized_exact"
	RuleMerchantContains RuleType = "merchant_contains"
	RuleCategoryHint     RuleType = "category_hint"
	RuleNoteContains     RuleType = "note_contains"
)

// Priority orders rule types; lower runs first.
func (r RuleType) Priority() int {
	switch r {
	case RuleMerchantExact:
		return 1
	case RuleNormalizedExact:
		return 2
	case RuleMerchantContains:
		return 3
	case RuleCategoryHint:
		return 4
	case RuleNoteContains:
		return 5
	default:
		return 99
	}
}

// Valid reports whether r is one of the known rule types.
func (r RuleType) Valid() bool {
	return r.Priority() != 99
}

// Rule is a user-authored classification override. Empty strings and nil
// flags mean the rule does not touch that field.
type Rule struct {
	ID                     string   `json:"id"`
	UserID                 string   `json:"user_id"`
	RuleType               RuleType `json:"rule_type"`
	MatchValue             string   `json:"match_value"`
	CategoryID             string   `json:"category_id,omitempty"`
	NormalizedMerchantName string   `json:"normalized_merchant_name,omitempty"`
	IsBusiness             *bool    `json:"is_business,omitempty"`
	MasterFlag             *bool    `json:"master_flag,omitempty"`
	IsReimbursement        *bool    `json:"is_reimbursement,omitempty"`
}
