// Package bigquery is the BigQuery store backend. BigQuery has no unique
// constraints, so every idempotent write is expressed as a MERGE.
package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on a BigQuery dataset.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	log       zerolog.Logger
}

// Open creates a BigQuery client for the configured project.
func Open(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (*Store, error) {
	client, err := bigquery.NewClient(ctx, cfg.BigQueryProjectID)
	if err != nil {
		return nil, fmt.Errorf("Open: creating client: %w", err)
	}
	log.Info().Str("project", cfg.BigQueryProjectID).Str("dataset", cfg.BigQueryDataset).Msg("connected to BigQuery")
	return NewWithClient(client, cfg.BigQueryProjectID, cfg.BigQueryDataset, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *bigquery.Client, projectID, datasetID string, log zerolog.Logger) *Store {
	return &Store{client: client, projectID: projectID, datasetID: datasetID, log: log}
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// table returns the fully qualified, backquoted table name.
func (s *Store) table(name string) string {
	return tableRef(s.projectID, s.datasetID, name)
}

func tableRef(projectID, datasetID, name string) string {
	return "`" + projectID + "." + datasetID + "." + name + "`"
}

// run executes a DML statement and returns the number of affected rows.
func (s *Store) run(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}
	return affectedRows(status), nil
}

func affectedRows(status *bigquery.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return 0
	}
	qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return 0
	}
	return qs.NumDMLAffectedRows
}

// readAll runs a query and decodes every row into T.
func readAll[T any](ctx context.Context, s *Store, sql string, params []bigquery.QueryParameter) ([]T, error) {
	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}

	var out []T
	for {
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// readOne returns store.ErrNotFound when the query yields no rows.
func readOne[T any](ctx context.Context, s *Store, sql string, params []bigquery.QueryParameter) (*T, error) {
	rows, err := readAll[T](ctx, s, sql, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}
