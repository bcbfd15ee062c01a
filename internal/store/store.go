// Package store declares the persistence contracts of the ingestion service.
// Concrete backends live under internal/infra (sqlite, postgres, bigquery).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

// ErrNotFound is returned by single-row lookups that matched nothing.
var ErrNotFound = errors.New("store: not found")

// TransactionRepository persists enriched transactions.
type TransactionRepository interface {
	// UpsertTransactions inserts rows, silently skipping any whose
	// (user_id, transaction_hash) already exists. It returns the number of
	// rows actually inserted.
	UpsertTransactions(ctx context.Context, rows []*TransactionRow) (int, error)

	// ListTransactionHashes returns id, hash and creation time of every
	// transaction of a user.
	ListTransactionHashes(ctx context.Context, userID string) ([]HashedRow, error)

	// DeleteTransactions removes the given transaction ids of a user.
	DeleteTransactions(ctx context.Context, userID string, ids []string) (int, error)
}

// SourceRepository manages statement sources.
type SourceRepository interface {
	// GetOrCreateSource returns the source matching (user, provider,
	// account label), creating it when absent.
	GetOrCreateSource(ctx context.Context, src *domain.Source) (*domain.Source, error)
}

// AttachmentRepository tracks uploaded blobs.
type AttachmentRepository interface {
	InsertAttachment(ctx context.Context, att *domain.Attachment) error
	MarkAttachmentParsed(ctx context.Context, attachmentID, sourceID string, parsedAt time.Time) error
}

// MerchantRepository is the durable tier of the merchant cache.
type MerchantRepository interface {
	// GetMerchantAlias looks up an alias by its raw original name.
	GetMerchantAlias(ctx context.Context, userID, originalName string) (*domain.MerchantCacheEntry, error)
	UpsertMerchantAlias(ctx context.Context, userID string, entry domain.MerchantCacheEntry) error

	// EnsureMerchant returns the id of the canonical merchant record for a
	// normalized name, creating it when needed.
	EnsureMerchant(ctx context.Context, userID, canonicalName string) (string, error)
	UpdateMerchantEnrichment(ctx context.Context, m *domain.Merchant) error
}

// FXRateRepository caches daily conversion rates.
type FXRateRepository interface {
	GetFXRate(ctx context.Context, asOfDate, base, quote string) (*domain.FXRate, error)
	InsertFXRate(ctx context.Context, rate domain.FXRate) error
}

// RuleRepository stores user rules.
type RuleRepository interface {
	ListRules(ctx context.Context, userID string) ([]domain.Rule, error)
	SaveRule(ctx context.Context, rule *domain.Rule) error
}

// CategoryRepository stores user categories.
type CategoryRepository interface {
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
	InsertCategories(ctx context.Context, categories []domain.Category) error
}

// SettingsRepository stores per-user settings. API key fields are returned
// exactly as stored (encrypted).
type SettingsRepository interface {
	GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	SaveSettings(ctx context.Context, s *domain.UserSettings) error
}

// UsageRepository aggregates provider usage per user, month and provider.
type UsageRepository interface {
	AddUsage(ctx context.Context, rec domain.UsageRecord) error
	GetUsage(ctx context.Context, userID, period, provider string) (*domain.UsageRecord, error)
}

// Store bundles every repository a backend implements.
type Store interface {
	TransactionRepository
	SourceRepository
	AttachmentRepository
	MerchantRepository
	FXRateRepository
	RuleRepository
	CategoryRepository
	SettingsRepository
	UsageRepository
	Close() error
}

// TransactionRow is the stored form of a transaction.
type TransactionRow struct {
	ID              string
	UserID          string
	SourceID        string
	TransactionHash string

	TransactionDate        string
	OriginalMerchantName   string
	NormalizedMerchantName string

	AmountOriginal   decimal.Decimal
	CurrencyOriginal string
	AmountBase       decimal.Decimal
	CurrencyBase     string
	AmountCharged    *decimal.Decimal

	TransactionType      string
	MerchantCategoryHint string
	Notes                string

	InstallmentTotal     *decimal.Decimal
	InstallmentMonthly   *decimal.Decimal
	InstallmentRemaining *decimal.Decimal

	CategoryID      string
	ConfidenceScore *float64
	IsBusiness      *bool
	MasterFlag      *bool
	IsReimbursement *bool
	AppliedRuleIDs  []string

	CreatedAt time.Time
}

// HashedRow is the projection used by duplicate cleanup.
type HashedRow struct {
	ID              string
	TransactionHash string
	CreatedAt       time.Time
}
