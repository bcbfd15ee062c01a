package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

var transactionColumns = []string{
	"id", "user_id", "source_id", "transaction_hash", "transaction_date",
	"original_merchant_name", "normalized_merchant_name",
	"amount_original", "currency_original", "amount_base", "currency_base", "amount_charged",
	"transaction_type", "merchant_category_hint", "notes",
	"installment_total", "installment_monthly", "installment_remaining",
	"category_id", "confidence_score", "is_business", "master_flag", "is_reimbursement",
	"applied_rule_ids", "created_at",
}

// rows per INSERT statement; keeps the parameter count under the 65535 limit
const upsertChunkSize = 500

// UpsertTransactions inserts rows with ON CONFLICT DO NOTHING and sums the
// affected row counts, which only include newly inserted rows.
func (s *Store) UpsertTransactions(ctx context.Context, rows []*store.TransactionRow) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		query, args := buildUpsert(rows[start:end])
		tag, err := s.querier.Exec(ctx, query, args...)
		if err != nil {
			s.log.Error().Err(err).Int("rows", end-start).Msg("transaction upsert failed")
			return inserted, fmt.Errorf("UpsertTransactions: inserting rows: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func buildUpsert(rows []*store.TransactionRow) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("INSERT INTO transactions (")
	b.WriteString(strings.Join(transactionColumns, ", "))
	b.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(rows)*len(transactionColumns))
	now := time.Now().UTC()
	for i, r := range rows {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range transactionColumns {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c+1)
		}
		b.WriteString(")")

		args = append(args,
			r.ID, r.UserID, r.SourceID, r.TransactionHash, r.TransactionDate,
			r.OriginalMerchantName, r.NormalizedMerchantName,
			r.AmountOriginal, r.CurrencyOriginal, r.AmountBase, r.CurrencyBase, r.AmountCharged,
			r.TransactionType, r.MerchantCategoryHint, r.Notes,
			r.InstallmentTotal, r.InstallmentMonthly, r.InstallmentRemaining,
			r.CategoryID, r.ConfidenceScore, r.IsBusiness, r.MasterFlag, r.IsReimbursement,
			r.AppliedRuleIDs, createdAt,
		)
	}
	b.WriteString(" ON CONFLICT (user_id, transaction_hash) DO NOTHING")
	return b.String(), args
}

func (s *Store) ListTransactionHashes(ctx context.Context, userID string) ([]store.HashedRow, error) {
	query := `
		SELECT id, transaction_hash, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.querier.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionHashes: query: %w", err)
	}
	defer rows.Close()

	var out []store.HashedRow
	for rows.Next() {
		var r store.HashedRow
		if err := rows.Scan(&r.ID, &r.TransactionHash, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListTransactionHashes: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactionHashes: rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteTransactions(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.querier.Exec(ctx, `DELETE FROM transactions WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("DeleteTransactions: delete: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
