package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

type transactionModel struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"uniqueIndex:idx_transactions_user_hash;not null"`
	TransactionHash string `gorm:"uniqueIndex:idx_transactions_user_hash;not null"`
	SourceID        string `gorm:"index"`

	TransactionDate        string `gorm:"index"`
	OriginalMerchantName   string
	NormalizedMerchantName string

	AmountOriginal   decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	CurrencyOriginal string
	AmountBase       decimal.Decimal `gorm:"type:DECIMAL(20,8)"`
	CurrencyBase     string
	AmountCharged    decimal.NullDecimal `gorm:"type:DECIMAL(20,8)"`

	TransactionType      string
	MerchantCategoryHint string
	Notes                string

	InstallmentTotal     decimal.NullDecimal `gorm:"type:DECIMAL(20,8)"`
	InstallmentMonthly   decimal.NullDecimal `gorm:"type:DECIMAL(20,8)"`
	InstallmentRemaining decimal.NullDecimal `gorm:"type:DECIMAL(20,8)"`

	CategoryID      string
	ConfidenceScore sql.NullFloat64
	IsBusiness      sql.NullBool
	MasterFlag      sql.NullBool
	IsReimbursement sql.NullBool
	AppliedRuleIDs  string

	CreatedAt time.Time
}

func (transactionModel) TableName() string { return "transactions" }

type sourceModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"uniqueIndex:idx_sources_user_provider_label;not null"`
	Provider     string `gorm:"uniqueIndex:idx_sources_user_provider_label"`
	AccountLabel string `gorm:"uniqueIndex:idx_sources_user_provider_label"`
	CurrencyBase string
	CreatedAt    time.Time
}

func (sourceModel) TableName() string { return "sources" }

type attachmentModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	SourceID    string
	StoragePath string
	Filename    string
	Size        int64
	ParsedAt    sql.NullTime
	CreatedAt   time.Time
}

func (attachmentModel) TableName() string { return "attachments" }

type merchantModel struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"uniqueIndex:idx_merchants_user_name;not null"`
	CanonicalName  string `gorm:"uniqueIndex:idx_merchants_user_name;not null"`
	DisplayName    string
	Website        string
	EnrichmentJSON string
	EnrichedAt     sql.NullTime
	CreatedAt      time.Time
}

func (merchantModel) TableName() string { return "merchants" }

type merchantAliasModel struct {
	UserID          string `gorm:"primaryKey"`
	OriginalName    string `gorm:"primaryKey"`
	NormalizedName  string
	CategoryID      string
	ConfidenceScore sql.NullFloat64
	IsBusiness      sql.NullBool
	MasterFlag      sql.NullBool
	IsReimbursement sql.NullBool
	UpdatedAt       time.Time
}

func (merchantAliasModel) TableName() string { return "merchant_aliases" }

type fxRateModel struct {
	AsOfDate  string          `gorm:"primaryKey"`
	Base      string          `gorm:"primaryKey"`
	Quote     string          `gorm:"primaryKey"`
	Rate      decimal.Decimal `gorm:"type:DECIMAL(20,10)"`
	CreatedAt time.Time
}

func (fxRateModel) TableName() string { return "fx_rates" }

type ruleModel struct {
	ID                     string `gorm:"primaryKey"`
	UserID                 string `gorm:"index;not null"`
	RuleType               string
	MatchValue             string
	CategoryID             string
	NormalizedMerchantName string
	IsBusiness             sql.NullBool
	MasterFlag             sql.NullBool
	IsReimbursement        sql.NullBool
	CreatedAt              time.Time
}

func (ruleModel) TableName() string { return "rules" }

type categoryModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex:idx_categories_user_name;not null"`
	Name      string `gorm:"uniqueIndex:idx_categories_user_name;not null"`
	CreatedAt time.Time
}

func (categoryModel) TableName() string { return "categories" }

type settingsModel struct {
	UserID                string `gorm:"primaryKey"`
	BaseCurrency          string
	LLMProvider           string
	AnthropicAPIKey       string
	OpenAIAPIKey          string
	GeminiAPIKey          string
	OCRProvider           string
	OCRSpaceAPIKey        string
	GoogleVisionAPIKey    string
	MerchantLookupEnabled bool
	MonthlyBudgetUSD      decimal.NullDecimal `gorm:"type:DECIMAL(12,4)"`
	HardLimitEnabled      bool
	UpdatedAt             time.Time
}

func (settingsModel) TableName() string { return "user_settings" }

type usageModel struct {
	UserID       string `gorm:"primaryKey"`
	Period       string `gorm:"primaryKey"`
	Provider     string `gorm:"primaryKey"`
	InputTokens  int64
	OutputTokens int64
	CostUSD      decimal.Decimal `gorm:"type:DECIMAL(12,6)"`
	UpdatedAt    time.Time
}

func (usageModel) TableName() string { return "api_usage" }

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func fromNullBool(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	return domain.Bool(b.Bool)
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return domain.Float(f.Float64)
}

func toTransactionModel(r *store.TransactionRow) transactionModel {
	return transactionModel{
		ID:                     r.ID,
		UserID:                 r.UserID,
		TransactionHash:        r.TransactionHash,
		SourceID:               r.SourceID,
		TransactionDate:        r.TransactionDate,
		OriginalMerchantName:   r.OriginalMerchantName,
		NormalizedMerchantName: r.NormalizedMerchantName,
		AmountOriginal:         r.AmountOriginal,
		CurrencyOriginal:       r.CurrencyOriginal,
		AmountBase:             r.AmountBase,
		CurrencyBase:           r.CurrencyBase,
		AmountCharged:          nullDecimal(r.AmountCharged),
		TransactionType:        r.TransactionType,
		MerchantCategoryHint:   r.MerchantCategoryHint,
		Notes:                  r.Notes,
		InstallmentTotal:       nullDecimal(r.InstallmentTotal),
		InstallmentMonthly:     nullDecimal(r.InstallmentMonthly),
		InstallmentRemaining:   nullDecimal(r.InstallmentRemaining),
		CategoryID:             r.CategoryID,
		ConfidenceScore:        nullFloat(r.ConfidenceScore),
		IsBusiness:             nullBool(r.IsBusiness),
		MasterFlag:             nullBool(r.MasterFlag),
		IsReimbursement:        nullBool(r.IsReimbursement),
		AppliedRuleIDs:         strings.Join(r.AppliedRuleIDs, ","),
		CreatedAt:              r.CreatedAt,
	}
}

func fromRuleModel(m ruleModel) domain.Rule {
	return domain.Rule{
		ID:                     m.ID,
		UserID:                 m.UserID,
		RuleType:               domain.RuleType(m.RuleType),
		MatchValue:             m.MatchValue,
		CategoryID:             m.CategoryID,
		NormalizedMerchantName: m.NormalizedMerchantName,
		IsBusiness:             fromNullBool(m.IsBusiness),
		MasterFlag:             fromNullBool(m.MasterFlag),
		IsReimbursement:        fromNullBool(m.IsReimbursement),
	}
}
