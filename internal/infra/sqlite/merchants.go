package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

func (s *Store) GetMerchantAlias(ctx context.Context, userID, originalName string) (*domain.MerchantCacheEntry, error) {
	var m merchantAliasModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND original_name = ?", userID, originalName).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &domain.MerchantCacheEntry{
		OriginalName:    m.OriginalName,
		NormalizedName:  m.NormalizedName,
		CategoryID:      m.CategoryID,
		ConfidenceScore: fromNullFloat(m.ConfidenceScore),
		IsBusiness:      fromNullBool(m.IsBusiness),
		MasterFlag:      fromNullBool(m.MasterFlag),
		IsReimbursement: fromNullBool(m.IsReimbursement),
	}, nil
}

func (s *Store) UpsertMerchantAlias(ctx context.Context, userID string, entry domain.MerchantCacheEntry) error {
	m := merchantAliasModel{
		UserID:          userID,
		OriginalName:    entry.OriginalName,
		NormalizedName:  entry.NormalizedName,
		CategoryID:      entry.CategoryID,
		ConfidenceScore: nullFloat(entry.ConfidenceScore),
		IsBusiness:      nullBool(entry.IsBusiness),
		MasterFlag:      nullBool(entry.MasterFlag),
		IsReimbursement: nullBool(entry.IsReimbursement),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "original_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"normalized_name", "category_id", "confidence_score",
				"is_business", "master_flag", "is_reimbursement", "updated_at",
			}),
		}).
		Create(&m).Error
	if err != nil {
		return fmt.Errorf("UpsertMerchantAlias: %w", err)
	}
	return nil
}

func (s *Store) EnsureMerchant(ctx context.Context, userID, canonicalName string) (string, error) {
	var m merchantModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND canonical_name = ?", userID, canonicalName).
		Attrs(merchantModel{ID: uuid.NewString(), UserID: userID, CanonicalName: canonicalName}).
		FirstOrCreate(&m).Error
	if err != nil {
		return "", fmt.Errorf("EnsureMerchant: %w", err)
	}
	return m.ID, nil
}

// UpdateMerchantEnrichment stores web lookup results on the canonical record
// identified by (user, canonical name).
func (s *Store) UpdateMerchantEnrichment(ctx context.Context, mer *domain.Merchant) error {
	updates := map[string]interface{}{
		"display_name":    mer.DisplayName,
		"website":         mer.Website,
		"enrichment_json": mer.EnrichmentJSON,
	}
	if mer.EnrichedAt != nil {
		updates["enriched_at"] = sql.NullTime{Time: *mer.EnrichedAt, Valid: true}
	}
	res := s.db.WithContext(ctx).Model(&merchantModel{}).
		Where("user_id = ? AND canonical_name = ?", mer.UserID, mer.CanonicalName).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("UpdateMerchantEnrichment: %w", res.Error)
	}
	return nil
}

// GetMerchant loads a canonical merchant record.
func (s *Store) GetMerchant(ctx context.Context, userID, canonicalName string) (*domain.Merchant, error) {
	var m merchantModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND canonical_name = ?", userID, canonicalName).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	out := &domain.Merchant{
		ID:             m.ID,
		UserID:         m.UserID,
		CanonicalName:  m.CanonicalName,
		DisplayName:    m.DisplayName,
		Website:        m.Website,
		EnrichmentJSON: m.EnrichmentJSON,
	}
	if m.EnrichedAt.Valid {
		t := m.EnrichedAt.Time
		out.EnrichedAt = &t
	}
	return out, nil
}
