package domain

import "time"

// MerchantCacheEntry is the enrichment result remembered for a raw merchant
// name, both in the in-process memo and in the durable alias store.
type MerchantCacheEntry struct {
	OriginalName    string   `json:"original_name"`
	NormalizedName  string   `json:"normalized_name"`
	CategoryID      string   `json:"category_id,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	IsBusiness      *bool    `json:"is_business,omitempty"`
	MasterFlag      *bool    `json:"master_flag,omitempty"`
	IsReimbursement *bool    `json:"is_reimbursement,omitempty"`
}

// Merchant is the canonical merchant record a cache alias points to.
type Merchant struct {
	ID             string
	UserID         string
	CanonicalName  string
	DisplayName    string
	Website        string
	EnrichmentJSON string
	EnrichedAt     *time.Time
}

// Category is a user category the classifier may assign.
type Category struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}
