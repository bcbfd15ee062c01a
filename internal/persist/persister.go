// Package persist writes enriched transactions idempotently and repairs
// duplicate rows after the fact.
package persist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

const defaultBaseCurrency = "ILS"

// RateResolver returns the (base, quote) rate of a day. It never fails.
type RateResolver interface {
	Rate(ctx context.Context, date, base, quote string) decimal.Decimal
}

// Repository is the part of the store the persister writes to.
type Repository interface {
	store.SourceRepository
	store.TransactionRepository
	store.AttachmentRepository
}

// Options tune a Persister.
type Options struct {
	// BaseCurrency applies to users without a configured one.
	BaseCurrency string
	// SurfaceErrors turns swallowed persistence failures into a warning.
	SurfaceErrors bool
}

type Persister struct {
	repo    Repository
	fx      RateResolver
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

func NewPersister(repo Repository, fx RateResolver, opts Options, m *metrics.Metrics, log zerolog.Logger) *Persister {
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = defaultBaseCurrency
	}
	return &Persister{repo: repo, fx: fx, opts: opts, metrics: m, log: log, now: time.Now}
}

// Request is one parsed file of one user.
type Request struct {
	UserID       string
	SourceKey    string
	Filename     string
	AttachmentID string
	Settings     *domain.UserSettings
	Transactions []domain.ParsedTransaction
}

type Result struct {
	SourceID string
	// Persisted counts rows actually inserted; duplicates are not counted.
	Persisted int
	Warnings  []string
}

// Persist stores the transactions of req. Failures never propagate: they
// are logged, count as zero persisted rows and, when configured, become a
// warning of the result.
func (p *Persister) Persist(ctx context.Context, req Request) Result {
	log := p.log.With().Str("user_id", req.UserID).Str("source", req.SourceKey).Logger()

	res, err := p.persist(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("persisting transactions failed")
		p.metrics.RecordFallback("persist")
		res.Persisted = 0
		if p.opts.SurfaceErrors {
			res.Warnings = append(res.Warnings, fmt.Sprintf("persistence failed: %v", err))
		}
		return res
	}

	p.metrics.RecordPersisted(res.Persisted)
	log.Info().Int("persisted", res.Persisted).Int("received", len(req.Transactions)).Msg("transactions persisted")
	return res
}

func (p *Persister) persist(ctx context.Context, req Request) (Result, error) {
	var res Result
	if req.UserID == "" || len(req.Transactions) == 0 {
		return res, nil
	}

	baseCurrency := p.baseCurrency(req.Settings)

	source, err := p.repo.GetOrCreateSource(ctx, &domain.Source{
		UserID:       req.UserID,
		Provider:     req.SourceKey,
		AccountLabel: req.Filename,
		CurrencyBase: baseCurrency,
	})
	if err != nil {
		return res, fmt.Errorf("persist: source: %w", err)
	}
	res.SourceID = source.ID

	rows := p.buildRows(ctx, req, source.ID, baseCurrency)

	n, err := p.repo.UpsertTransactions(ctx, rows)
	if err != nil {
		return res, fmt.Errorf("persist: upsert: %w", err)
	}
	res.Persisted = n

	if req.AttachmentID != "" {
		if err := p.repo.MarkAttachmentParsed(ctx, req.AttachmentID, source.ID, p.now().UTC()); err != nil {
			return res, fmt.Errorf("persist: marking attachment: %w", err)
		}
	}
	return res, nil
}

// buildRows converts amounts and hashes every transaction. Rows repeating a
// hash already seen in the same batch are dropped.
func (p *Persister) buildRows(ctx context.Context, req Request, sourceID, baseCurrency string) []*store.TransactionRow {
	seen := make(map[string]bool, len(req.Transactions))
	rows := make([]*store.TransactionRow, 0, len(req.Transactions))

	for _, tx := range req.Transactions {
		currency := strings.ToUpper(tx.CurrencyOriginal)
		if currency == "" {
			currency = baseCurrency
		}

		hash := HashTransaction(tx.TransactionDate, tx.EffectiveMerchantName(), tx.AmountOriginal, currency, sourceID)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		amountBase := tx.AmountOriginal
		if currency != baseCurrency && p.fx != nil {
			rate := p.fx.Rate(ctx, tx.TransactionDate, baseCurrency, currency)
			if rate.IsPositive() {
				amountBase = tx.AmountOriginal.Div(rate).Round(4)
			}
		}

		rows = append(rows, &store.TransactionRow{
			UserID:                 req.UserID,
			SourceID:               sourceID,
			TransactionHash:        hash,
			TransactionDate:        tx.TransactionDate,
			OriginalMerchantName:   tx.OriginalMerchantName,
			NormalizedMerchantName: tx.NormalizedMerchantName,
			AmountOriginal:         tx.AmountOriginal,
			CurrencyOriginal:       currency,
			AmountBase:             amountBase,
			CurrencyBase:           baseCurrency,
			AmountCharged:          tx.AmountCharged,
			TransactionType:        tx.TransactionType,
			MerchantCategoryHint:   tx.MerchantCategoryHint,
			Notes:                  tx.Notes,
			InstallmentTotal:       tx.InstallmentTotal,
			InstallmentMonthly:     tx.InstallmentMonthly,
			InstallmentRemaining:   tx.InstallmentRemaining,
			CategoryID:             tx.CategoryID,
			ConfidenceScore:        tx.ConfidenceScore,
			IsBusiness:             flag(tx.IsBusiness),
			MasterFlag:             flag(tx.MasterFlag),
			IsReimbursement:        flag(tx.IsReimbursement),
			AppliedRuleIDs:         tx.AppliedRuleIDs,
		})
	}
	return rows
}

func (p *Persister) baseCurrency(s *domain.UserSettings) string {
	if s != nil && s.BaseCurrency != "" {
		return strings.ToUpper(s.BaseCurrency)
	}
	return p.opts.BaseCurrency
}

// flag stores unset flags as false.
func flag(b *bool) *bool {
	if b == nil {
		return domain.Bool(false)
	}
	return b
}
