package persist

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// Consolidator repairs and reports duplicate transactions of a user.
type Consolidator struct {
	repo store.TransactionRepository
	log  zerolog.Logger
}

func NewConsolidator(repo store.TransactionRepository, log zerolog.Logger) *Consolidator {
	return &Consolidator{repo: repo, log: log}
}

// Stats summarizes duplicate rows.
type Stats struct {
	Total      int `json:"total"`
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`
}

func (c *Consolidator) Stats(ctx context.Context, userID string) (*Stats, error) {
	rows, err := c.repo.ListTransactionHashes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Stats: %w", err)
	}
	unique := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		unique[r.TransactionHash] = struct{}{}
	}
	return &Stats{Total: len(rows), Unique: len(unique), Duplicates: len(rows) - len(unique)}, nil
}

// Cleanup keeps the earliest created row of every hash and deletes the
// others. It returns the number of rows deleted.
func (c *Consolidator) Cleanup(ctx context.Context, userID string) (int, error) {
	rows, err := c.repo.ListTransactionHashes(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("Cleanup: listing: %w", err)
	}

	ids := duplicateIDs(rows)
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := c.repo.DeleteTransactions(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("Cleanup: deleting: %w", err)
	}
	c.log.Info().Str("user_id", userID).Int("deleted", deleted).Msg("duplicate transactions removed")
	return deleted, nil
}

// duplicateIDs returns every row id but the earliest created one of each
// hash group. Rows without a hash are never touched.
func duplicateIDs(rows []store.HashedRow) []string {
	groups := make(map[string][]store.HashedRow)
	var order []string
	for _, r := range rows {
		if r.TransactionHash == "" {
			continue
		}
		if _, ok := groups[r.TransactionHash]; !ok {
			order = append(order, r.TransactionHash)
		}
		groups[r.TransactionHash] = append(groups[r.TransactionHash], r)
	}

	var ids []string
	for _, hash := range order {
		group := groups[hash]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
		for _, r := range group[1:] {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
