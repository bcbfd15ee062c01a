package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

// GetOrCreateSource merges the (user, provider, label) key and reads it back.
func (s *Store) GetOrCreateSource(ctx context.Context, src *domain.Source) (*domain.Source, error) {
	merge := `
		MERGE ` + s.table("sources") + ` T
		USING (SELECT @user_id AS user_id, @provider AS provider, @account_label AS account_label) S
		ON T.user_id = S.user_id AND T.provider = S.provider AND T.account_label = S.account_label
		WHEN NOT MATCHED THEN
			INSERT (id, user_id, provider, account_label, currency_base, created_at)
			VALUES (@id, @user_id, @provider, @account_label, @currency_base, CURRENT_TIMESTAMP())
	`
	params := []bigquery.QueryParameter{
		{Name: "id", Value: uuid.NewString()},
		{Name: "user_id", Value: src.UserID},
		{Name: "provider", Value: src.Provider},
		{Name: "account_label", Value: src.AccountLabel},
		{Name: "currency_base", Value: src.CurrencyBase},
	}
	if _, err := s.run(ctx, merge, params); err != nil {
		return nil, fmt.Errorf("GetOrCreateSource: merging: %w", err)
	}

	sql := `
		SELECT id, user_id, provider, account_label, currency_base, created_at
		FROM ` + s.table("sources") + `
		WHERE user_id = @user_id AND provider = @provider AND account_label = @account_label
		ORDER BY created_at ASC
		LIMIT 1
	`
	row, err := readOne[sourceRow](ctx, s, sql, params[1:4])
	if err != nil {
		return nil, fmt.Errorf("GetOrCreateSource: reading back: %w", err)
	}
	return &domain.Source{
		ID:           row.ID,
		UserID:       row.UserID,
		Provider:     row.Provider,
		AccountLabel: row.AccountLabel,
		CurrencyBase: row.CurrencyBase,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func (s *Store) InsertAttachment(ctx context.Context, att *domain.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	att.CreatedAt = time.Now().UTC()
	sql := `
		INSERT INTO ` + s.table("attachments") + ` (id, user_id, storage_path, filename, size, created_at)
		VALUES (@id, @user_id, @storage_path, @filename, @size, @created_at)
	`
	_, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "id", Value: att.ID},
		{Name: "user_id", Value: att.UserID},
		{Name: "storage_path", Value: att.StoragePath},
		{Name: "filename", Value: att.Filename},
		{Name: "size", Value: att.Size},
		{Name: "created_at", Value: att.CreatedAt},
	})
	if err != nil {
		return fmt.Errorf("InsertAttachment: %w", err)
	}
	return nil
}

func (s *Store) MarkAttachmentParsed(ctx context.Context, attachmentID, sourceID string, parsedAt time.Time) error {
	sql := `
		UPDATE ` + s.table("attachments") + `
		SET source_id = @source_id, parsed_at = @parsed_at
		WHERE id = @id
	`
	_, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "id", Value: attachmentID},
		{Name: "source_id", Value: sourceID},
		{Name: "parsed_at", Value: parsedAt.UTC()},
	})
	if err != nil {
		return fmt.Errorf("MarkAttachmentParsed: %w", err)
	}
	return nil
}

func (s *Store) GetMerchantAlias(ctx context.Context, userID, originalName string) (*domain.MerchantCacheEntry, error) {
	sql := `
		SELECT original_name, normalized_name, category_id, confidence_score, is_business, master_flag, is_reimbursement
		FROM ` + s.table("merchant_aliases") + `
		WHERE user_id = @user_id AND original_name = @original_name
		LIMIT 1
	`
	row, err := readOne[aliasRow](ctx, s, sql, []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "original_name", Value: originalName},
	})
	if err != nil {
		return nil, err
	}
	return &domain.MerchantCacheEntry{
		OriginalName:    row.OriginalName,
		NormalizedName:  row.NormalizedName.StringVal,
		CategoryID:      row.CategoryID.StringVal,
		ConfidenceScore: floatPtr(row.ConfidenceScore),
		IsBusiness:      boolPtr(row.IsBusiness),
		MasterFlag:      boolPtr(row.MasterFlag),
		IsReimbursement: boolPtr(row.IsReimbursement),
	}, nil
}

func (s *Store) UpsertMerchantAlias(ctx context.Context, userID string, e domain.MerchantCacheEntry) error {
	sql := `
		MERGE ` + s.table("merchant_aliases") + ` T
		USING (SELECT @user_id AS user_id, @original_name AS original_name) S
		ON T.user_id = S.user_id AND T.original_name = S.original_name
		WHEN MATCHED THEN UPDATE SET
			normalized_name = @normalized_name,
			category_id = @category_id,
			confidence_score = @confidence_score,
			is_business = @is_business,
			master_flag = @master_flag,
			is_reimbursement = @is_reimbursement,
			updated_at = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN
			INSERT (user_id, original_name, normalized_name, category_id, confidence_score, is_business, master_flag, is_reimbursement, updated_at)
			VALUES (@user_id, @original_name, @normalized_name, @category_id, @confidence_score, @is_business, @master_flag, @is_reimbursement, CURRENT_TIMESTAMP())
	`
	_, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "original_name", Value: e.OriginalName},
		{Name: "normalized_name", Value: nullString(e.NormalizedName)},
		{Name: "category_id", Value: nullString(e.CategoryID)},
		{Name: "confidence_score", Value: nullFloat(e.ConfidenceScore)},
		{Name: "is_business", Value: nullBool(e.IsBusiness)},
		{Name: "master_flag", Value: nullBool(e.MasterFlag)},
		{Name: "is_reimbursement", Value: nullBool(e.IsReimbursement)},
	})
	if err != nil {
		return fmt.Errorf("UpsertMerchantAlias: %w", err)
	}
	return nil
}

func (s *Store) EnsureMerchant(ctx context.Context, userID, canonicalName string) (string, error) {
	merge := `
		MERGE ` + s.table("merchants") + ` T
		USING (SELECT @user_id AS user_id, @canonical_name AS canonical_name) S
		ON T.user_id = S.user_id AND T.canonical_name = S.canonical_name
		WHEN NOT MATCHED THEN
			INSERT (id, user_id, canonical_name, created_at)
			VALUES (@id, @user_id, @canonical_name, CURRENT_TIMESTAMP())
	`
	params := []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "canonical_name", Value: canonicalName},
		{Name: "id", Value: uuid.NewString()},
	}
	if _, err := s.run(ctx, merge, params); err != nil {
		return "", fmt.Errorf("EnsureMerchant: merging: %w", err)
	}

	sql := `
		SELECT id FROM ` + s.table("merchants") + `
		WHERE user_id = @user_id AND canonical_name = @canonical_name
		LIMIT 1
	`
	row, err := readOne[idRow](ctx, s, sql, params[:2])
	if err != nil {
		return "", fmt.Errorf("EnsureMerchant: reading back: %w", err)
	}
	return row.ID, nil
}

func (s *Store) UpdateMerchantEnrichment(ctx context.Context, m *domain.Merchant) error {
	var enrichedAt bigquery.NullTimestamp
	if m.EnrichedAt != nil {
		enrichedAt = bigquery.NullTimestamp{Timestamp: m.EnrichedAt.UTC(), Valid: true}
	}
	sql := `
		UPDATE ` + s.table("merchants") + `
		SET display_name = @display_name, website = @website, enrichment_json = @enrichment_json, enriched_at = @enriched_at
		WHERE user_id = @user_id AND canonical_name = @canonical_name
	`
	_, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "user_id", Value: m.UserID},
		{Name: "canonical_name", Value: m.CanonicalName},
		{Name: "display_name", Value: m.DisplayName},
		{Name: "website", Value: m.Website},
		{Name: "enrichment_json", Value: m.EnrichmentJSON},
		{Name: "enriched_at", Value: enrichedAt},
	})
	if err != nil {
		return fmt.Errorf("UpdateMerchantEnrichment: %w", err)
	}
	return nil
}

func (s *Store) GetFXRate(ctx context.Context, asOfDate, base, quote string) (*domain.FXRate, error) {
	sql := `
		SELECT rate FROM ` + s.table("fx_rates") + `
		WHERE as_of_date = @as_of_date AND base = @base AND quote = @quote
		LIMIT 1
	`
	row, err := readOne[rateRow](ctx, s, sql, []bigquery.QueryParameter{
		{Name: "as_of_date", Value: asOfDate},
		{Name: "base", Value: base},
		{Name: "quote", Value: quote},
	})
	if err != nil {
		return nil, err
	}
	return &domain.FXRate{AsOfDate: asOfDate, Base: base, Quote: quote, Rate: ratToDecimal(row.Rate)}, nil
}

func (s *Store) InsertFXRate(ctx context.Context, rate domain.FXRate) error {
	sql := `
		MERGE ` + s.table("fx_rates") + ` T
		USING (SELECT @as_of_date AS as_of_date, @base AS base, @quote AS quote) S
		ON T.as_of_date = S.as_of_date AND T.base = S.base AND T.quote = S.quote
		WHEN NOT MATCHED THEN
			INSERT (as_of_date, base, quote, rate)
			VALUES (@as_of_date, @base, @quote, CAST(@rate AS NUMERIC))
	`
	_, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "as_of_date", Value: rate.AsOfDate},
		{Name: "base", Value: rate.Base},
		{Name: "quote", Value: rate.Quote},
		{Name: "rate", Value: rate.Rate.String()},
	})
	if err != nil {
		return fmt.Errorf("InsertFXRate: %w", err)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context, userID string) ([]domain.Rule, error) {
	sql := `
		SELECT id, user_id, rule_type, match_value, category_id, normalized_merchant_name, is_business, master_flag, is_reimbursement
		FROM ` + s.table("rules") + `
		WHERE user_id = @user_id
		ORDER BY created_at ASC
	`
	rows, err := readAll[ruleRow](ctx, s, sql, []bigquery.QueryParameter{{Name: "user_id", Value: userID}})
	if err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	out := make([]domain.Rule, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Rule{
			ID:                     r.ID,
			UserID:                 r.UserID,
			RuleType:               domain.RuleType(r.RuleType),
			MatchValue:             r.MatchValue,
			CategoryID:             r.CategoryID.StringVal,
			NormalizedMerchantName: r.NormalizedMerchantName.StringVal,
			IsBusiness:             boolPtr(r.IsBusiness),
			MasterFlag:             boolPtr(r.MasterFlag),
			IsReimbursement:        boolPtr(r.IsReimbursement),
		})
	}
	return out, nil
}

func (s *Store) SaveRule(ctx context.Context, r *domain.Rule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	sql := `
		MERGE ` + s.table("rules") + ` T
		USING (SELECT @id AS id) S
		ON T.id = S.id
		WHEN MATCHED THEN UPDATE SET
			rule_type = @rule_type,
			match_value = @match_value,
			category_id = @category_id,
			normalized_merchant_name = @normalized_merchant_name,
			is_business = @is_business,
			master_flag = @master_flag,
			is_reimbursement = @is_reimbursement
		WHEN NOT MATCHED THEN
			INSERT (id, user_id, rule_type, match_value, category_id, normalized_merchant_name, is_business, master_flag, is_reimbursement, created_at)
			VALUES (@id, @user_id, @rule_type, @match_value, @category_id, @normalized_merchant_name, @is_business, @master_flag, @is_reimbursement, CURRENT_TIMESTAMP())
	`
	_, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "id", Value: r.ID},
		{Name: "user_id", Value: r.UserID},
		{Name: "rule_type", Value: string(r.RuleType)},
		{Name: "match_value", Value: r.MatchValue},
		{Name: "category_id", Value: nullString(r.CategoryID)},
		{Name: "normalized_merchant_name", Value: nullString(r.NormalizedMerchantName)},
		{Name: "is_business", Value: nullBool(r.IsBusiness)},
		{Name: "master_flag", Value: nullBool(r.MasterFlag)},
		{Name: "is_reimbursement", Value: nullBool(r.IsReimbursement)},
	})
	if err != nil {
		return fmt.Errorf("SaveRule: %w", err)
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	sql := `
		SELECT id, user_id, name FROM ` + s.table("categories") + `
		WHERE user_id = @user_id
		ORDER BY name ASC
	`
	rows, err := readAll[categoryRow](ctx, s, sql, []bigquery.QueryParameter{{Name: "user_id", Value: userID}})
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	out := make([]domain.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Category{ID: r.ID, UserID: r.UserID, Name: r.Name})
	}
	return out, nil
}

func (s *Store) InsertCategories(ctx context.Context, categories []domain.Category) error {
	if len(categories) == 0 {
		return nil
	}
	params := make([]categoryRow, 0, len(categories))
	for i := range categories {
		if categories[i].ID == "" {
			categories[i].ID = uuid.NewString()
		}
		params = append(params, categoryRow{ID: categories[i].ID, UserID: categories[i].UserID, Name: categories[i].Name})
	}
	sql := `
		MERGE ` + s.table("categories") + ` T
		USING UNNEST(@rows) S
		ON T.user_id = S.user_id AND T.name = S.name
		WHEN NOT MATCHED THEN INSERT (id, user_id, name) VALUES (S.id, S.user_id, S.name)
	`
	if _, err := s.run(ctx, sql, []bigquery.QueryParameter{{Name: "rows", Value: params}}); err != nil {
		return fmt.Errorf("InsertCategories: %w", err)
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	sql := `
		SELECT user_id, base_currency, llm_provider, anthropic_api_key, openai_api_key, gemini_api_key,
			ocr_provider, ocr_space_api_key, google_vision_api_key, merchant_lookup_enabled,
			monthly_budget_usd, hard_limit_enabled
		FROM ` + s.table("user_settings") + `
		WHERE user_id = @user_id
		LIMIT 1
	`
	row, err := readOne[settingsRow](ctx, s, sql, []bigquery.QueryParameter{{Name: "user_id", Value: userID}})
	if err != nil {
		return nil, err
	}
	us := &domain.UserSettings{
		UserID:                row.UserID,
		BaseCurrency:          row.BaseCurrency.StringVal,
		LLMProvider:           row.LLMProvider.StringVal,
		AnthropicAPIKey:       row.AnthropicAPIKey.StringVal,
		OpenAIAPIKey:          row.OpenAIAPIKey.StringVal,
		GeminiAPIKey:          row.GeminiAPIKey.StringVal,
		OCRProvider:           row.OCRProvider.StringVal,
		OCRSpaceAPIKey:        row.OCRSpaceAPIKey.StringVal,
		GoogleVisionAPIKey:    row.GoogleVisionAPIKey.StringVal,
		MerchantLookupEnabled: row.MerchantLookupEnabled.Bool,
		HardLimitEnabled:      row.HardLimitEnabled.Bool,
	}
	if row.MonthlyBudgetUSD != nil {
		b := ratToDecimal(row.MonthlyBudgetUSD)
		us.MonthlyBudgetUSD = &b
	}
	return us, nil
}

func (s *Store) SaveSettings(ctx context.Context, us *domain.UserSettings) error {
	sql := `
		MERGE ` + s.table("user_settings") + ` T
		USING (SELECT @user_id AS user_id) S
		ON T.user_id = S.user_id
		WHEN MATCHED THEN UPDATE SET
			base_currency = @base_currency,
			llm_provider = @llm_provider,
			anthropic_api_key = @anthropic_api_key,
			openai_api_key = @openai_api_key,
			gemini_api_key = @gemini_api_key,
			ocr_provider = @ocr_provider,
			ocr_space_api_key = @ocr_space_api_key,
			google_vision_api_key = @google_vision_api_key,
			merchant_lookup_enabled = @merchant_lookup_enabled,
			monthly_budget_usd = CAST(@monthly_budget_usd AS NUMERIC),
			hard_limit_enabled = @hard_limit_enabled,
			updated_at = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN
			INSERT (user_id, base_currency, llm_provider, anthropic_api_key, openai_api_key, gemini_api_key,
				ocr_provider, ocr_space_api_key, google_vision_api_key, merchant_lookup_enabled,
				monthly_budget_usd, hard_limit_enabled, updated_at)
			VALUES (@user_id, @base_currency, @llm_provider, @anthropic_api_key, @openai_api_key, @gemini_api_key,
				@ocr_provider, @ocr_space_api_key, @google_vision_api_key, @merchant_lookup_enabled,
				CAST(@monthly_budget_usd AS NUMERIC), @hard_limit_enabled, CURRENT_TIMESTAMP())
	`
	_, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "user_id", Value: us.UserID},
		{Name: "base_currency", Value: us.BaseCurrency},
		{Name: "llm_provider", Value: us.LLMProvider},
		{Name: "anthropic_api_key", Value: us.AnthropicAPIKey},
		{Name: "openai_api_key", Value: us.OpenAIAPIKey},
		{Name: "gemini_api_key", Value: us.GeminiAPIKey},
		{Name: "ocr_provider", Value: us.OCRProvider},
		{Name: "ocr_space_api_key", Value: us.OCRSpaceAPIKey},
		{Name: "google_vision_api_key", Value: us.GoogleVisionAPIKey},
		{Name: "merchant_lookup_enabled", Value: us.MerchantLookupEnabled},
		{Name: "monthly_budget_usd", Value: nullDecimalString(us.MonthlyBudgetUSD)},
		{Name: "hard_limit_enabled", Value: us.HardLimitEnabled},
	})
	if err != nil {
		return fmt.Errorf("SaveSettings: %w", err)
	}
	return nil
}

func (s *Store) AddUsage(ctx context.Context, rec domain.UsageRecord) error {
	sql := `
		MERGE ` + s.table("api_usage") + ` T
		USING (SELECT @user_id AS user_id, @period AS period, @provider AS provider) S
		ON T.user_id = S.user_id AND T.period = S.period AND T.provider = S.provider
		WHEN MATCHED THEN UPDATE SET
			input_tokens = T.input_tokens + @input_tokens,
			output_tokens = T.output_tokens + @output_tokens,
			cost_usd = T.cost_usd + CAST(@cost_usd AS NUMERIC),
			updated_at = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN
			INSERT (user_id, period, provider, input_tokens, output_tokens, cost_usd, updated_at)
			VALUES (@user_id, @period, @provider, @input_tokens, @output_tokens, CAST(@cost_usd AS NUMERIC), CURRENT_TIMESTAMP())
	`
	_, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "user_id", Value: rec.UserID},
		{Name: "period", Value: rec.Period},
		{Name: "provider", Value: rec.Provider},
		{Name: "input_tokens", Value: rec.InputTokens},
		{Name: "output_tokens", Value: rec.OutputTokens},
		{Name: "cost_usd", Value: rec.CostUSD.String()},
	})
	if err != nil {
		return fmt.Errorf("AddUsage: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, userID, period, provider string) (*domain.UsageRecord, error) {
	sql := `
		SELECT input_tokens, output_tokens, cost_usd FROM ` + s.table("api_usage") + `
		WHERE user_id = @user_id AND period = @period AND provider = @provider
		LIMIT 1
	`
	row, err := readOne[usageRow](ctx, s, sql, []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "period", Value: period},
		{Name: "provider", Value: provider},
	})
	if err != nil {
		return nil, err
	}
	return &domain.UsageRecord{
		UserID:       userID,
		Period:       period,
		Provider:     provider,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
		CostUSD:      ratToDecimal(row.CostUSD),
	}, nil
}
