package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// rows per INSERT statement; each row binds one parameter per column and
// SQLite rejects statements with more than 32766 parameters
const upsertChunkSize = 500

// UpsertTransactions inserts rows and ignores (user_id, transaction_hash)
// conflicts. RowsAffected only counts the rows SQLite actually inserted.
func (s *Store) UpsertTransactions(ctx context.Context, rows []*store.TransactionRow) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(rows) {
			end = len(rows)
		}

		models := make([]transactionModel, 0, end-start)
		for _, r := range rows[start:end] {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			models = append(models, toTransactionModel(r))
		}

		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "transaction_hash"}},
				DoNothing: true,
			}).
			Create(&models)
		if res.Error != nil {
			return inserted, fmt.Errorf("UpsertTransactions: inserting rows: %w", res.Error)
		}
		inserted += int(res.RowsAffected)
	}
	return inserted, nil
}

// ListTransactionHashes returns the user's rows oldest first.
func (s *Store) ListTransactionHashes(ctx context.Context, userID string) ([]store.HashedRow, error) {
	var models []transactionModel
	err := s.db.WithContext(ctx).
		Select("id", "transaction_hash", "created_at").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("ListTransactionHashes: query: %w", err)
	}

	out := make([]store.HashedRow, 0, len(models))
	for _, m := range models {
		out = append(out, store.HashedRow{ID: m.ID, TransactionHash: m.TransactionHash, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

func (s *Store) DeleteTransactions(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&transactionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("DeleteTransactions: delete: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// CountTransactions returns the number of stored transactions of a user.
func (s *Store) CountTransactions(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&transactionModel{}).Where("user_id = ?", userID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("CountTransactions: %w", err)
	}
	return n, nil
}
