package domain

import "github.com/shopspring/decimal"

// UserSettings holds the per-user ingestion preferences. API keys are stored
// encrypted and are plaintext only after settings.Service has loaded them.
type UserSettings struct {
	UserID       string
	BaseCurrency string

	LLMProvider     string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string

	OCRProvider        string // local | google | ocrspace
	OCRSpaceAPIKey     string
	GoogleVisionAPIKey string

	MerchantLookupEnabled bool

	MonthlyBudgetUSD *decimal.Decimal
	HardLimitEnabled bool
}

// UsageRecord aggregates provider token usage for one user, month and provider.
type UsageRecord struct {
	UserID       string
	Period       string // YYYY-MM
	Provider     string
	InputTokens  int64
	OutputTokens int64
	CostUSD      decimal.Decimal
}
