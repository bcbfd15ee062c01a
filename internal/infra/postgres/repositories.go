package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// GetOrCreateSource relies on the no-op DO UPDATE so RETURNING also yields
// the existing row.
func (s *Store) GetOrCreateSource(ctx context.Context, src *domain.Source) (*domain.Source, error) {
	query := `
		INSERT INTO sources (id, user_id, provider, account_label, currency_base, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider, account_label)
		DO UPDATE SET provider = EXCLUDED.provider
		RETURNING id, currency_base, created_at
	`
	out := &domain.Source{UserID: src.UserID, Provider: src.Provider, AccountLabel: src.AccountLabel}
	err := s.querier.QueryRow(ctx, query,
		uuid.NewString(), src.UserID, src.Provider, src.AccountLabel, src.CurrencyBase, time.Now().UTC(),
	).Scan(&out.ID, &out.CurrencyBase, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreateSource: %w", err)
	}
	return out, nil
}

func (s *Store) InsertAttachment(ctx context.Context, att *domain.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	att.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO attachments (id, user_id, storage_path, filename, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.querier.Exec(ctx, query, att.ID, att.UserID, att.StoragePath, att.Filename, att.Size, att.CreatedAt); err != nil {
		return fmt.Errorf("InsertAttachment: %w", err)
	}
	return nil
}

func (s *Store) MarkAttachmentParsed(ctx context.Context, attachmentID, sourceID string, parsedAt time.Time) error {
	_, err := s.querier.Exec(ctx, `UPDATE attachments SET source_id = $2, parsed_at = $3 WHERE id = $1`, attachmentID, sourceID, parsedAt)
	if err != nil {
		return fmt.Errorf("MarkAttachmentParsed: %w", err)
	}
	return nil
}

func (s *Store) GetMerchantAlias(ctx context.Context, userID, originalName string) (*domain.MerchantCacheEntry, error) {
	query := `
		SELECT original_name, normalized_name, category_id, confidence_score, is_business, master_flag, is_reimbursement
		FROM merchant_aliases
		WHERE user_id = $1 AND original_name = $2
	`
	var e domain.MerchantCacheEntry
	err := s.querier.QueryRow(ctx, query, userID, originalName).Scan(
		&e.OriginalName, &e.NormalizedName, &e.CategoryID,
		&e.ConfidenceScore, &e.IsBusiness, &e.MasterFlag, &e.IsReimbursement,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *Store) UpsertMerchantAlias(ctx context.Context, userID string, e domain.MerchantCacheEntry) error {
	query := `
		INSERT INTO merchant_aliases (user_id, original_name, normalized_name, category_id, confidence_score, is_business, master_flag, is_reimbursement, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, original_name) DO UPDATE SET
			normalized_name = EXCLUDED.normalized_name,
			category_id = EXCLUDED.category_id,
			confidence_score = EXCLUDED.confidence_score,
			is_business = EXCLUDED.is_business,
			master_flag = EXCLUDED.master_flag,
			is_reimbursement = EXCLUDED.is_reimbursement,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.querier.Exec(ctx, query,
		userID, e.OriginalName, e.NormalizedName, e.CategoryID,
		e.ConfidenceScore, e.IsBusiness, e.MasterFlag, e.IsReimbursement, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("UpsertMerchantAlias: %w", err)
	}
	return nil
}

func (s *Store) EnsureMerchant(ctx context.Context, userID, canonicalName string) (string, error) {
	query := `
		INSERT INTO merchants (id, user_id, canonical_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, canonical_name) DO UPDATE SET canonical_name = EXCLUDED.canonical_name
		RETURNING id
	`
	var id string
	if err := s.querier.QueryRow(ctx, query, uuid.NewString(), userID, canonicalName, time.Now().UTC()).Scan(&id); err != nil {
		return "", fmt.Errorf("EnsureMerchant: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateMerchantEnrichment(ctx context.Context, m *domain.Merchant) error {
	query := `
		UPDATE merchants
		SET display_name = $3, website = $4, enrichment_json = $5, enriched_at = $6
		WHERE user_id = $1 AND canonical_name = $2
	`
	_, err := s.querier.Exec(ctx, query, m.UserID, m.CanonicalName, m.DisplayName, m.Website, m.EnrichmentJSON, m.EnrichedAt)
	if err != nil {
		return fmt.Errorf("UpdateMerchantEnrichment: %w", err)
	}
	return nil
}

func (s *Store) GetFXRate(ctx context.Context, asOfDate, base, quote string) (*domain.FXRate, error) {
	r := &domain.FXRate{AsOfDate: asOfDate, Base: base, Quote: quote}
	err := s.querier.QueryRow(ctx,
		`SELECT rate FROM fx_rates WHERE as_of_date = $1 AND base = $2 AND quote = $3`,
		asOfDate, base, quote,
	).Scan(&r.Rate)
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (s *Store) InsertFXRate(ctx context.Context, rate domain.FXRate) error {
	_, err := s.querier.Exec(ctx,
		`INSERT INTO fx_rates (as_of_date, base, quote, rate) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		rate.AsOfDate, rate.Base, rate.Quote, rate.Rate,
	)
	if err != nil {
		return fmt.Errorf("InsertFXRate: %w", err)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context, userID string) ([]domain.Rule, error) {
	query := `
		SELECT id, user_id, rule_type, match_value, category_id, normalized_merchant_name, is_business, master_flag, is_reimbursement
		FROM rules
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.querier.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListRules: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		var r domain.Rule
		var ruleType string
		if err := rows.Scan(&r.ID, &r.UserID, &ruleType, &r.MatchValue, &r.CategoryID, &r.NormalizedMerchantName,
			&r.IsBusiness, &r.MasterFlag, &r.IsReimbursement); err != nil {
			return nil, fmt.Errorf("ListRules: scan: %w", err)
		}
		r.RuleType = domain.RuleType(ruleType)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveRule(ctx context.Context, r *domain.Rule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	query := `
		INSERT INTO rules (id, user_id, rule_type, match_value, category_id, normalized_merchant_name, is_business, master_flag, is_reimbursement, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			rule_type = EXCLUDED.rule_type,
			match_value = EXCLUDED.match_value,
			category_id = EXCLUDED.category_id,
			normalized_merchant_name = EXCLUDED.normalized_merchant_name,
			is_business = EXCLUDED.is_business,
			master_flag = EXCLUDED.master_flag,
			is_reimbursement = EXCLUDED.is_reimbursement
	`
	_, err := s.querier.Exec(ctx, query, r.ID, r.UserID, string(r.RuleType), r.MatchValue, r.CategoryID,
		r.NormalizedMerchantName, r.IsBusiness, r.MasterFlag, r.IsReimbursement, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("SaveRule: %w", err)
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	rows, err := s.querier.Query(ctx, `SELECT id, user_id, name FROM categories WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) InsertCategories(ctx context.Context, categories []domain.Category) error {
	for i := range categories {
		if categories[i].ID == "" {
			categories[i].ID = uuid.NewString()
		}
		_, err := s.querier.Exec(ctx,
			`INSERT INTO categories (id, user_id, name) VALUES ($1, $2, $3) ON CONFLICT (user_id, name) DO NOTHING`,
			categories[i].ID, categories[i].UserID, categories[i].Name,
		)
		if err != nil {
			return fmt.Errorf("InsertCategories: %w", err)
		}
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	query := `
		SELECT user_id, base_currency, llm_provider, anthropic_api_key, openai_api_key, gemini_api_key,
			ocr_provider, ocr_space_api_key, google_vision_api_key, merchant_lookup_enabled,
			monthly_budget_usd, hard_limit_enabled
		FROM user_settings
		WHERE user_id = $1
	`
	var us domain.UserSettings
	err := s.querier.QueryRow(ctx, query, userID).Scan(
		&us.UserID, &us.BaseCurrency, &us.LLMProvider, &us.AnthropicAPIKey, &us.OpenAIAPIKey, &us.GeminiAPIKey,
		&us.OCRProvider, &us.OCRSpaceAPIKey, &us.GoogleVisionAPIKey, &us.MerchantLookupEnabled,
		&us.MonthlyBudgetUSD, &us.HardLimitEnabled,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &us, nil
}

func (s *Store) SaveSettings(ctx context.Context, us *domain.UserSettings) error {
	query := `
		INSERT INTO user_settings (user_id, base_currency, llm_provider, anthropic_api_key, openai_api_key, gemini_api_key,
			ocr_provider, ocr_space_api_key, google_vision_api_key, merchant_lookup_enabled,
			monthly_budget_usd, hard_limit_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			base_currency = EXCLUDED.base_currency,
			llm_provider = EXCLUDED.llm_provider,
			anthropic_api_key = EXCLUDED.anthropic_api_key,
			openai_api_key = EXCLUDED.openai_api_key,
			gemini_api_key = EXCLUDED.gemini_api_key,
			ocr_provider = EXCLUDED.ocr_provider,
			ocr_space_api_key = EXCLUDED.ocr_space_api_key,
			google_vision_api_key = EXCLUDED.google_vision_api_key,
			merchant_lookup_enabled = EXCLUDED.merchant_lookup_enabled,
			monthly_budget_usd = EXCLUDED.monthly_budget_usd,
			hard_limit_enabled = EXCLUDED.hard_limit_enabled,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.querier.Exec(ctx, query,
		us.UserID, us.BaseCurrency, us.LLMProvider, us.AnthropicAPIKey, us.OpenAIAPIKey, us.GeminiAPIKey,
		us.OCRProvider, us.OCRSpaceAPIKey, us.GoogleVisionAPIKey, us.MerchantLookupEnabled,
		us.MonthlyBudgetUSD, us.HardLimitEnabled, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("SaveSettings: %w", err)
	}
	return nil
}

func (s *Store) AddUsage(ctx context.Context, rec domain.UsageRecord) error {
	query := `
		INSERT INTO api_usage (user_id, period, provider, input_tokens, output_tokens, cost_usd, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, period, provider) DO UPDATE SET
			input_tokens = api_usage.input_tokens + EXCLUDED.input_tokens,
			output_tokens = api_usage.output_tokens + EXCLUDED.output_tokens,
			cost_usd = api_usage.cost_usd + EXCLUDED.cost_usd,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.querier.Exec(ctx, query, rec.UserID, rec.Period, rec.Provider, rec.InputTokens, rec.OutputTokens, rec.CostUSD, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("AddUsage: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, userID, period, provider string) (*domain.UsageRecord, error) {
	rec := &domain.UsageRecord{UserID: userID, Period: period, Provider: provider}
	err := s.querier.QueryRow(ctx,
		`SELECT input_tokens, output_tokens, cost_usd FROM api_usage WHERE user_id = $1 AND period = $2 AND provider = $3`,
		userID, period, provider,
	).Scan(&rec.InputTokens, &rec.OutputTokens, &rec.CostUSD)
	if err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}
