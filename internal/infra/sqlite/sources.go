package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

func (s *Store) GetOrCreateSource(ctx context.Context, src *domain.Source) (*domain.Source, error) {
	var m sourceModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND account_label = ?", src.UserID, src.Provider, src.AccountLabel).
		Attrs(sourceModel{
			ID:           uuid.NewString(),
			UserID:       src.UserID,
			Provider:     src.Provider,
			AccountLabel: src.AccountLabel,
			CurrencyBase: src.CurrencyBase,
		}).
		FirstOrCreate(&m).Error
	if err != nil {
		return nil, fmt.Errorf("GetOrCreateSource: %w", err)
	}
	return &domain.Source{
		ID:           m.ID,
		UserID:       m.UserID,
		Provider:     m.Provider,
		AccountLabel: m.AccountLabel,
		CurrencyBase: m.CurrencyBase,
		CreatedAt:    m.CreatedAt,
	}, nil
}

func (s *Store) InsertAttachment(ctx context.Context, att *domain.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	m := attachmentModel{
		ID:          att.ID,
		UserID:      att.UserID,
		SourceID:    att.SourceID,
		StoragePath: att.StoragePath,
		Filename:    att.Filename,
		Size:        att.Size,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("InsertAttachment: %w", err)
	}
	att.CreatedAt = m.CreatedAt
	return nil
}

func (s *Store) MarkAttachmentParsed(ctx context.Context, attachmentID, sourceID string, parsedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&attachmentModel{}).
		Where("id = ?", attachmentID).
		Updates(map[string]interface{}{"source_id": sourceID, "parsed_at": parsedAt})
	if res.Error != nil {
		return fmt.Errorf("MarkAttachmentParsed: %w", res.Error)
	}
	return nil
}

func (s *Store) GetFXRate(ctx context.Context, asOfDate, base, quote string) (*domain.FXRate, error) {
	var m fxRateModel
	err := s.db.WithContext(ctx).
		Where("as_of_date = ? AND base = ? AND quote = ?", asOfDate, base, quote).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &domain.FXRate{AsOfDate: m.AsOfDate, Base: m.Base, Quote: m.Quote, Rate: m.Rate}, nil
}

func (s *Store) InsertFXRate(ctx context.Context, rate domain.FXRate) error {
	m := fxRateModel{AsOfDate: rate.AsOfDate, Base: rate.Base, Quote: rate.Quote, Rate: rate.Rate}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("InsertFXRate: %w", err)
	}
	return nil
}
