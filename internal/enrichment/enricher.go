// Package enrichment resolves merchant identity and classification for parsed
// transactions, reusing cached results and batching every unknown merchant
// of a call into a single provider request.
package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/categories"
	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/llm"
	"github.com/sacha-rebbouh/optim-financials/internal/lookup"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
	"github.com/sacha-rebbouh/optim-financials/internal/settings"
	"github.com/sacha-rebbouh/optim-financials/internal/usage"
)

const defaultLookupThreshold = 0.6

// MerchantLookup is the web directory consulted for low confidence results.
type MerchantLookup interface {
	Lookup(ctx context.Context, name string) (*lookup.Result, error)
}

// Deps are the collaborators of an Enricher. Only Cache is required.
type Deps struct {
	Cache           *Cache
	Providers       llm.Registry
	DefaultProvider string
	Categories      *categories.Service
	Usage           *usage.Tracker
	Lookup          MerchantLookup
	LookupThreshold float64
	Metrics         *metrics.Metrics
	Log             zerolog.Logger
}

type Enricher struct {
	deps Deps
	now  func() time.Time
}

func New(deps Deps) *Enricher {
	if deps.LookupThreshold <= 0 {
		deps.LookupThreshold = defaultLookupThreshold
	}
	if deps.DefaultProvider == "" {
		deps.DefaultProvider = llm.ProviderAnthropic
	}
	return &Enricher{deps: deps, now: time.Now}
}

// Request is one ingestion call's worth of transactions.
type Request struct {
	UserID       string
	Settings     *domain.UserSettings // nil means defaults
	Transactions []domain.ParsedTransaction
}

type Result struct {
	Transactions []domain.ParsedTransaction
	Warnings     []string
}

// Enrich never fails: provider and store problems become warnings or log
// lines, and merchants that could not be resolved pass through unchanged.
func (e *Enricher) Enrich(ctx context.Context, req Request) Result {
	log := e.deps.Log.With().Str("user_id", req.UserID).Logger()
	s := req.Settings
	if s == nil {
		s = &domain.UserSettings{UserID: req.UserID}
	}

	var unknown []llm.MerchantRequest
	for _, m := range uniqueMerchants(req.Transactions) {
		if _, ok := e.deps.Cache.Get(ctx, req.UserID, m.OriginalName); !ok {
			unknown = append(unknown, m)
		}
	}

	var warnings []string
	if len(unknown) > 0 {
		warnings = e.classify(ctx, log, req.UserID, s, unknown)
	}

	out := make([]domain.ParsedTransaction, len(req.Transactions))
	for i, tx := range req.Transactions {
		entry, ok := e.deps.Cache.Get(ctx, req.UserID, tx.OriginalMerchantName)
		if !ok {
			out[i] = tx
			continue
		}
		out[i] = merge(tx, entry)
	}
	return Result{Transactions: out, Warnings: warnings}
}

func (e *Enricher) classify(ctx context.Context, log zerolog.Logger, userID string, s *domain.UserSettings, unknown []llm.MerchantRequest) []string {
	var warnings []string

	var cats []domain.Category
	if e.deps.Categories != nil {
		var err error
		if cats, err = e.deps.Categories.GetOrCreate(ctx, userID); err != nil {
			log.Warn().Err(err).Msg("loading categories failed")
		}
	}

	setting := s.LLMProvider
	if setting == "" {
		setting = e.deps.DefaultProvider
	}
	provider := llm.Resolve(setting, e.deps.Providers)

	if provider.Name() != llm.ProviderLocal && e.deps.Usage != nil {
		over, err := e.deps.Usage.OverBudget(ctx, s, provider.Name())
		if err != nil {
			log.Warn().Err(err).Msg("budget check failed")
		}
		if over {
			warnings = append(warnings, fmt.Sprintf("monthly budget reached for %s, using local normalization", provider.Name()))
			provider = llm.Resolve(llm.ProviderLocal, e.deps.Providers)
		}
	}

	res, degraded := llm.Classify(ctx, provider, llm.ClassifyRequest{
		UserID:     userID,
		APIKey:     settings.APIKeyFor(s, provider.Name()),
		Merchants:  unknown,
		Categories: cats,
	})
	e.deps.Metrics.RecordProviderCall(provider.Name(), !degraded)
	if degraded {
		e.deps.Metrics.RecordFallback("llm")
		log.Warn().Str("provider", provider.Name()).Strs("warnings", res.Warnings).Msg("classification degraded to identity")
	}
	warnings = append(warnings, res.Warnings...)

	if res.Usage != nil && e.deps.Usage != nil {
		if err := e.deps.Usage.Record(ctx, userID, provider.Name(), res.Usage.InputTokens, res.Usage.OutputTokens); err != nil {
			log.Warn().Err(err).Msg("recording usage failed")
		}
	}

	index := categories.NewIndex(cats)
	lookupEnabled := s.MerchantLookupEnabled && e.deps.Lookup != nil

	for _, r := range res.Results {
		categoryID := r.CategoryID
		if categoryID == "" && r.CategoryName != "" {
			categoryID, _ = index.Lookup(r.CategoryName)
		}
		entry := domain.MerchantCacheEntry{
			OriginalName:    r.OriginalName,
			NormalizedName:  r.NormalizedName,
			CategoryID:      categoryID,
			ConfidenceScore: domain.Float(r.ConfidenceScore),
			IsBusiness:      r.IsBusiness,
			MasterFlag:      r.MasterFlag,
			IsReimbursement: r.IsReimbursement,
		}
		merchantID := e.deps.Cache.Put(ctx, userID, entry)

		if lookupEnabled && r.ConfidenceScore < e.deps.LookupThreshold {
			e.lookup(ctx, log, userID, entry, merchantID)
		}
	}
	return warnings
}

// lookup asks the web directory about a low confidence merchant and, on
// success, overwrites the cached name and records the details found.
func (e *Enricher) lookup(ctx context.Context, log zerolog.Logger, userID string, entry domain.MerchantCacheEntry, merchantID string) {
	found, err := e.deps.Lookup.Lookup(ctx, entry.NormalizedName)
	if err != nil {
		log.Warn().Err(err).Str("merchant", entry.NormalizedName).Msg("merchant lookup failed")
		e.deps.Metrics.RecordFallback("lookup")
		return
	}
	if found == nil {
		return
	}

	entry.NormalizedName = found.NormalizedName
	if found.Confidence != nil {
		entry.ConfidenceScore = domain.Float(*found.Confidence)
	}
	if id := e.deps.Cache.Put(ctx, userID, entry); id != "" {
		merchantID = id
	}

	now := e.now().UTC()
	e.deps.Cache.Enrich(ctx, &domain.Merchant{
		ID:             merchantID,
		UserID:         userID,
		CanonicalName:  found.NormalizedName,
		DisplayName:    found.NormalizedName,
		Website:        found.Website,
		EnrichmentJSON: found.Raw,
		EnrichedAt:     &now,
	})
}

func uniqueMerchants(txs []domain.ParsedTransaction) []llm.MerchantRequest {
	seen := make(map[string]bool, len(txs))
	var out []llm.MerchantRequest
	for _, tx := range txs {
		key := strings.ToLower(strings.TrimSpace(tx.OriginalMerchantName))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, llm.MerchantRequest{
			OriginalName:         tx.OriginalMerchantName,
			MerchantCategoryHint: tx.MerchantCategoryHint,
			Notes:                tx.Notes,
		})
	}
	return out
}

// merge fills the fields rules left unset from the cache entry. The
// confidence score always comes from the cache.
func merge(tx domain.ParsedTransaction, entry domain.MerchantCacheEntry) domain.ParsedTransaction {
	out := tx.Clone()
	if out.NormalizedMerchantName == "" {
		out.NormalizedMerchantName = entry.NormalizedName
	}
	if out.CategoryID == "" {
		out.CategoryID = entry.CategoryID
	}
	if out.IsBusiness == nil {
		out.IsBusiness = entry.IsBusiness
	}
	if out.MasterFlag == nil {
		out.MasterFlag = entry.MasterFlag
	}
	if out.IsReimbursement == nil {
		out.IsReimbursement = entry.IsReimbursement
	}
	if entry.ConfidenceScore != nil {
		out.ConfidenceScore = domain.Float(*entry.ConfidenceScore)
	}
	return out
}
