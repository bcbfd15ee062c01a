package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// transactionParam is one element of the @rows array fed to the upsert
// MERGE. Numerics travel as strings and are CAST server-side so nullable
// values can use bigquery.NullString.
type transactionParam struct {
	ID                     string               `bigquery:"id"`
	UserID                 string               `bigquery:"user_id"`
	SourceID               string               `bigquery:"source_id"`
	TransactionHash        string               `bigquery:"transaction_hash"`
	TransactionDate        civil.Date           `bigquery:"transaction_date"`
	OriginalMerchantName   string               `bigquery:"original_merchant_name"`
	NormalizedMerchantName string               `bigquery:"normalized_merchant_name"`
	AmountOriginal         string               `bigquery:"amount_original"`
	CurrencyOriginal       string               `bigquery:"currency_original"`
	AmountBase             string               `bigquery:"amount_base"`
	CurrencyBase           string               `bigquery:"currency_base"`
	AmountCharged          bigquery.NullString  `bigquery:"amount_charged"`
	TransactionType        string               `bigquery:"transaction_type"`
	MerchantCategoryHint   string               `bigquery:"merchant_category_hint"`
	Notes                  string               `bigquery:"notes"`
	InstallmentTotal       bigquery.NullString  `bigquery:"installment_total"`
	InstallmentMonthly     bigquery.NullString  `bigquery:"installment_monthly"`
	InstallmentRemaining   bigquery.NullString  `bigquery:"installment_remaining"`
	CategoryID             string               `bigquery:"category_id"`
	ConfidenceScore        bigquery.NullFloat64 `bigquery:"confidence_score"`
	IsBusiness             bigquery.NullBool    `bigquery:"is_business"`
	MasterFlag             bigquery.NullBool    `bigquery:"master_flag"`
	IsReimbursement        bigquery.NullBool    `bigquery:"is_reimbursement"`
	AppliedRuleIDs         []string             `bigquery:"applied_rule_ids"`
	CreatedAt              time.Time            `bigquery:"created_at"`
}

func toTransactionParam(r *store.TransactionRow, now time.Time) transactionParam {
	created := r.CreatedAt
	if created.IsZero() {
		created = now
	}
	// dates are validated by the parsers; a zero civil.Date only shows up
	// for hand-built rows
	date, _ := civil.ParseDate(r.TransactionDate)
	ids := r.AppliedRuleIDs
	if ids == nil {
		ids = []string{}
	}
	return transactionParam{
		ID:                     r.ID,
		UserID:                 r.UserID,
		SourceID:               r.SourceID,
		TransactionHash:        r.TransactionHash,
		TransactionDate:        date,
		OriginalMerchantName:   r.OriginalMerchantName,
		NormalizedMerchantName: r.NormalizedMerchantName,
		AmountOriginal:         r.AmountOriginal.String(),
		CurrencyOriginal:       r.CurrencyOriginal,
		AmountBase:             r.AmountBase.String(),
		CurrencyBase:           r.CurrencyBase,
		AmountCharged:          nullDecimalString(r.AmountCharged),
		TransactionType:        r.TransactionType,
		MerchantCategoryHint:   r.MerchantCategoryHint,
		Notes:                  r.Notes,
		InstallmentTotal:       nullDecimalString(r.InstallmentTotal),
		InstallmentMonthly:     nullDecimalString(r.InstallmentMonthly),
		InstallmentRemaining:   nullDecimalString(r.InstallmentRemaining),
		CategoryID:             r.CategoryID,
		ConfidenceScore:        nullFloat(r.ConfidenceScore),
		IsBusiness:             nullBool(r.IsBusiness),
		MasterFlag:             nullBool(r.MasterFlag),
		IsReimbursement:        nullBool(r.IsReimbursement),
		AppliedRuleIDs:         ids,
		CreatedAt:              created.UTC(),
	}
}

type hashRow struct {
	ID              string    `bigquery:"id"`
	TransactionHash string    `bigquery:"transaction_hash"`
	CreatedAt       time.Time `bigquery:"created_at"`
}

type sourceRow struct {
	ID           string    `bigquery:"id"`
	UserID       string    `bigquery:"user_id"`
	Provider     string    `bigquery:"provider"`
	AccountLabel string    `bigquery:"account_label"`
	CurrencyBase string    `bigquery:"currency_base"`
	CreatedAt    time.Time `bigquery:"created_at"`
}

type aliasRow struct {
	OriginalName    string               `bigquery:"original_name"`
	NormalizedName  bigquery.NullString  `bigquery:"normalized_name"`
	CategoryID      bigquery.NullString  `bigquery:"category_id"`
	ConfidenceScore bigquery.NullFloat64 `bigquery:"confidence_score"`
	IsBusiness      bigquery.NullBool    `bigquery:"is_business"`
	MasterFlag      bigquery.NullBool    `bigquery:"master_flag"`
	IsReimbursement bigquery.NullBool    `bigquery:"is_reimbursement"`
}

type idRow struct {
	ID string `bigquery:"id"`
}

type rateRow struct {
	Rate *big.Rat `bigquery:"rate"`
}

type ruleRow struct {
	ID                     string              `bigquery:"id"`
	UserID                 string              `bigquery:"user_id"`
	RuleType               string              `bigquery:"rule_type"`
	MatchValue             string              `bigquery:"match_value"`
	CategoryID             bigquery.NullString `bigquery:"category_id"`
	NormalizedMerchantName bigquery.NullString `bigquery:"normalized_merchant_name"`
	IsBusiness             bigquery.NullBool   `bigquery:"is_business"`
	MasterFlag             bigquery.NullBool   `bigquery:"master_flag"`
	IsReimbursement        bigquery.NullBool   `bigquery:"is_reimbursement"`
}

type categoryRow struct {
	ID     string `bigquery:"id"`
	UserID string `bigquery:"user_id"`
	Name   string `bigquery:"name"`
}

type settingsRow struct {
	UserID                string              `bigquery:"user_id"`
	BaseCurrency          bigquery.NullString `bigquery:"base_currency"`
	LLMProvider           bigquery.NullString `bigquery:"llm_provider"`
	AnthropicAPIKey       bigquery.NullString `bigquery:"anthropic_api_key"`
	OpenAIAPIKey          bigquery.NullString `bigquery:"openai_api_key"`
	GeminiAPIKey          bigquery.NullString `bigquery:"gemini_api_key"`
	OCRProvider           bigquery.NullString `bigquery:"ocr_provider"`
	OCRSpaceAPIKey        bigquery.NullString `bigquery:"ocr_space_api_key"`
	GoogleVisionAPIKey    bigquery.NullString `bigquery:"google_vision_api_key"`
	MerchantLookupEnabled bigquery.NullBool   `bigquery:"merchant_lookup_enabled"`
	MonthlyBudgetUSD      *big.Rat            `bigquery:"monthly_budget_usd"`
	HardLimitEnabled      bigquery.NullBool   `bigquery:"hard_limit_enabled"`
}

type usageRow struct {
	InputTokens  int64    `bigquery:"input_tokens"`
	OutputTokens int64    `bigquery:"output_tokens"`
	CostUSD      *big.Rat `bigquery:"cost_usd"`
}

func nullDecimalString(d *decimal.Decimal) bigquery.NullString {
	if d == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: d.String(), Valid: true}
}

func nullFloat(f *float64) bigquery.NullFloat64 {
	if f == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *f, Valid: true}
}

func nullBool(b *bool) bigquery.NullBool {
	if b == nil {
		return bigquery.NullBool{}
	}
	return bigquery.NullBool{Bool: *b, Valid: true}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func boolPtr(b bigquery.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

func floatPtr(f bigquery.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// ratToDecimal converts a NUMERIC column value; nil maps to zero.
func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, 9)
}
