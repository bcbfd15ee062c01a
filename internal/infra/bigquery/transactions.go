package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// rows per MERGE statement; keeps the request under the query size limit
const mergeChunkSize = 500

func (s *Store) upsertTransactionsSQL() string {
	return `
		MERGE ` + s.table("transactions") + ` T
		USING UNNEST(@rows) S
		ON T.user_id = S.user_id AND T.transaction_hash = S.transaction_hash
		WHEN NOT MATCHED THEN INSERT (
			id, user_id, source_id, transaction_hash, transaction_date,
			original_merchant_name, normalized_merchant_name,
			amount_original, currency_original, amount_base, currency_base, amount_charged,
			transaction_type, merchant_category_hint, notes,
			installment_total, installment_monthly, installment_remaining,
			category_id, confidence_score, is_business, master_flag, is_reimbursement,
			applied_rule_ids, created_at
		) VALUES (
			S.id, S.user_id, S.source_id, S.transaction_hash, S.transaction_date,
			S.original_merchant_name, S.normalized_merchant_name,
			CAST(S.amount_original AS NUMERIC), S.currency_original,
			CAST(S.amount_base AS NUMERIC), S.currency_base, CAST(S.amount_charged AS NUMERIC),
			S.transaction_type, S.merchant_category_hint, S.notes,
			CAST(S.installment_total AS NUMERIC), CAST(S.installment_monthly AS NUMERIC),
			CAST(S.installment_remaining AS NUMERIC),
			S.category_id, S.confidence_score, S.is_business, S.master_flag, S.is_reimbursement,
			S.applied_rule_ids, S.created_at
		)
	`
}

// UpsertTransactions merges rows keyed on (user_id, transaction_hash). The
// MERGE only inserts unmatched rows, so the DML affected count is the
// number of new transactions. Callers must dedupe hashes within a batch.
func (s *Store) UpsertTransactions(ctx context.Context, rows []*store.TransactionRow) (int, error) {
	now := time.Now().UTC()
	inserted := 0
	for start := 0; start < len(rows); start += mergeChunkSize {
		end := start + mergeChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		params := make([]transactionParam, 0, end-start)
		for _, r := range rows[start:end] {
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			params = append(params, toTransactionParam(r, now))
		}

		n, err := s.run(ctx, s.upsertTransactionsSQL(), []bigquery.QueryParameter{{Name: "rows", Value: params}})
		if err != nil {
			s.log.Error().Err(err).Int("rows", len(params)).Msg("transaction merge failed")
			return inserted, fmt.Errorf("UpsertTransactions: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (s *Store) ListTransactionHashes(ctx context.Context, userID string) ([]store.HashedRow, error) {
	sql := `
		SELECT id, transaction_hash, created_at
		FROM ` + s.table("transactions") + `
		WHERE user_id = @user_id
		ORDER BY created_at ASC, id ASC
	`
	rows, err := readAll[hashRow](ctx, s, sql, []bigquery.QueryParameter{{Name: "user_id", Value: userID}})
	if err != nil {
		return nil, fmt.Errorf("ListTransactionHashes: %w", err)
	}
	out := make([]store.HashedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.HashedRow{ID: r.ID, TransactionHash: r.TransactionHash, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (s *Store) DeleteTransactions(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sql := `
		DELETE FROM ` + s.table("transactions") + `
		WHERE user_id = @user_id AND id IN UNNEST(@ids)
	`
	n, err := s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "ids", Value: ids},
	})
	if err != nil {
		return 0, fmt.Errorf("DeleteTransactions: %w", err)
	}
	return int(n), nil
}
