package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

func (s *Store) ListRules(ctx context.Context, userID string) ([]domain.Rule, error) {
	var models []ruleModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	rules := make([]domain.Rule, 0, len(models))
	for _, m := range models {
		rules = append(rules, fromRuleModel(m))
	}
	return rules, nil
}

func (s *Store) SaveRule(ctx context.Context, rule *domain.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	m := ruleModel{
		ID:                     rule.ID,
		UserID:                 rule.UserID,
		RuleType:               string(rule.RuleType),
		MatchValue:             rule.MatchValue,
		CategoryID:             rule.CategoryID,
		NormalizedMerchantName: rule.NormalizedMerchantName,
		IsBusiness:             nullBool(rule.IsBusiness),
		MasterFlag:             nullBool(rule.MasterFlag),
		IsReimbursement:        nullBool(rule.IsReimbursement),
	}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("SaveRule: %w", err)
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	var models []categoryModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	out := make([]domain.Category, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Category{ID: m.ID, UserID: m.UserID, Name: m.Name})
	}
	return out, nil
}

func (s *Store) InsertCategories(ctx context.Context, categories []domain.Category) error {
	if len(categories) == 0 {
		return nil
	}
	models := make([]categoryModel, 0, len(categories))
	for i := range categories {
		if categories[i].ID == "" {
			categories[i].ID = uuid.NewString()
		}
		models = append(models, categoryModel{ID: categories[i].ID, UserID: categories[i].UserID, Name: categories[i].Name})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models).Error
	if err != nil {
		return fmt.Errorf("InsertCategories: %w", err)
	}
	return nil
}

func (s *Store) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	var m settingsModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &domain.UserSettings{
		UserID:                m.UserID,
		BaseCurrency:          m.BaseCurrency,
		LLMProvider:           m.LLMProvider,
		AnthropicAPIKey:       m.AnthropicAPIKey,
		OpenAIAPIKey:          m.OpenAIAPIKey,
		GeminiAPIKey:          m.GeminiAPIKey,
		OCRProvider:           m.OCRProvider,
		OCRSpaceAPIKey:        m.OCRSpaceAPIKey,
		GoogleVisionAPIKey:    m.GoogleVisionAPIKey,
		MerchantLookupEnabled: m.MerchantLookupEnabled,
		MonthlyBudgetUSD:      fromNullDecimal(m.MonthlyBudgetUSD),
		HardLimitEnabled:      m.HardLimitEnabled,
	}, nil
}

func (s *Store) SaveSettings(ctx context.Context, us *domain.UserSettings) error {
	m := settingsModel{
		UserID:                us.UserID,
		BaseCurrency:          us.BaseCurrency,
		LLMProvider:           us.LLMProvider,
		AnthropicAPIKey:       us.AnthropicAPIKey,
		OpenAIAPIKey:          us.OpenAIAPIKey,
		GeminiAPIKey:          us.GeminiAPIKey,
		OCRProvider:           us.OCRProvider,
		OCRSpaceAPIKey:        us.OCRSpaceAPIKey,
		GoogleVisionAPIKey:    us.GoogleVisionAPIKey,
		MerchantLookupEnabled: us.MerchantLookupEnabled,
		MonthlyBudgetUSD:      nullDecimal(us.MonthlyBudgetUSD),
		HardLimitEnabled:      us.HardLimitEnabled,
	}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("SaveSettings: %w", err)
	}
	return nil
}

// AddUsage increments the (user, period, provider) counters.
func (s *Store) AddUsage(ctx context.Context, rec domain.UsageRecord) error {
	m := usageModel{
		UserID:       rec.UserID,
		Period:       rec.Period,
		Provider:     rec.Provider,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		CostUSD:      rec.CostUSD,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "period"}, {Name: "provider"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"input_tokens":  gorm.Expr("input_tokens + excluded.input_tokens"),
				"output_tokens": gorm.Expr("output_tokens + excluded.output_tokens"),
				"cost_usd":      gorm.Expr("cost_usd + excluded.cost_usd"),
				"updated_at":    gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("AddUsage: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, userID, period, provider string) (*domain.UsageRecord, error) {
	var m usageModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND period = ? AND provider = ?", userID, period, provider).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &domain.UsageRecord{
		UserID:       m.UserID,
		Period:       m.Period,
		Provider:     m.Provider,
		InputTokens:  m.InputTokens,
		OutputTokens: m.OutputTokens,
		CostUSD:      m.CostUSD,
	}, nil
}
