package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/categories"
	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/enrichment"
	"github.com/sacha-rebbouh/optim-financials/internal/infra/sqlite"
	"github.com/sacha-rebbouh/optim-financials/internal/jobs"
	"github.com/sacha-rebbouh/optim-financials/internal/llm"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
	"github.com/sacha-rebbouh/optim-financials/internal/persist"
	"github.com/sacha-rebbouh/optim-financials/internal/pipeline"
	"github.com/sacha-rebbouh/optim-financials/internal/rules"
	"github.com/sacha-rebbouh/optim-financials/internal/settings"
)

const statementCSV = "Date opération;Libellé;Montant;Devise\n" +
	"02/03/2024;CARREFOUR CITY;-54,20;EUR\n" +
	"03/03/2024;PHARMACIE CENTRALE;-12,90;EUR\n" +
	"05/03/2024;VIREMENT SALAIRE;2500,00;EUR\n"

var normalized = map[string]string{
	"CARREFOUR CITY":     "Carrefour City",
	"PHARMACIE CENTRALE": "Pharmacie Centrale",
	"VIREMENT SALAIRE":   "Salaire",
}

// MockProvider is a classification provider that records its calls.
type MockProvider struct {
	Calls        int
	ClassifyFunc func(ctx context.Context, req llm.ClassifyRequest) (*llm.BulkResult, error)
}

func (m *MockProvider) Name() string { return llm.ProviderAnthropic }

func (m *MockProvider) Classify(ctx context.Context, req llm.ClassifyRequest) (*llm.BulkResult, error) {
	m.Calls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, req)
	}
	res := &llm.BulkResult{}
	for _, mr := range req.Merchants {
		res.Results = append(res.Results, llm.MerchantResult{
			OriginalName:    mr.OriginalName,
			NormalizedName:  normalized[mr.OriginalName],
			CategoryName:    "Groceries",
			ConfidenceScore: 0.9,
		})
	}
	return res, nil
}

type fixture struct {
	store    *sqlite.Store
	provider *MockProvider
	ingestor *pipeline.Ingestor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()

	st, err := sqlite.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	provider := &MockProvider{}
	m := metrics.New(prometheus.NewRegistry())

	enricher := enrichment.New(enrichment.Deps{
		Cache:      enrichment.NewCache(enrichment.NewMemoryMemo(), st, log),
		Providers:  llm.Registry{Anthropic: provider, Local: llm.Local{}},
		Categories: categories.NewService(st),
		Metrics:    m,
		Log:        log,
	})

	ingestor := pipeline.NewIngestor(pipeline.Deps{
		Settings:  settings.NewService(st, nil, settings.Defaults{BaseCurrency: "EUR", LLMProvider: llm.ProviderAnthropic}, log),
		Rules:     rules.NewEngine(st),
		Enricher:  enricher,
		Persister: persist.NewPersister(st, nil, persist.Options{}, m, log),
		Metrics:   m,
		Log:       log,
	})
	return &fixture{store: st, provider: provider, ingestor: ingestor}
}

func TestIngestFileReingestionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := pipeline.FileInput{Filename: "releve-banque-mars.csv", Data: []byte(statementCSV), UserID: "u1"}

	first, err := f.ingestor.IngestFile(ctx, in)
	require.NoError(t, err)
	second, err := f.ingestor.IngestFile(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPendingReview, first.Status)
	assert.Equal(t, "bank", first.SourceKey)
	assert.Equal(t, domain.FileTypeCSV, first.FileType)
	assert.Equal(t, 3, first.ParsedTransactions)
	assert.Equal(t, 3, first.PersistedTransactions)
	assert.Equal(t, 0, second.PersistedTransactions)
	assert.Equal(t, first.SourceID, second.SourceID)

	rows, err := f.store.ListTransactionHashes(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	// merchants came from the cache the second time
	assert.Equal(t, 1, f.provider.Calls)
}

func TestIngestFileOneProviderCallPerMerchant(t *testing.T) {
	f := newFixture(t)
	var requested []string
	f.provider.ClassifyFunc = func(_ context.Context, req llm.ClassifyRequest) (*llm.BulkResult, error) {
		res := &llm.BulkResult{}
		for _, m := range req.Merchants {
			requested = append(requested, m.OriginalName)
			res.Results = append(res.Results, llm.MerchantResult{OriginalName: m.OriginalName, NormalizedName: "Wolt", ConfidenceScore: 0.95})
		}
		return res, nil
	}

	csv := "Date;Libellé;Montant\n"
	for _, d := range []string{"01", "02", "03", "04", "05"} {
		csv += d + "/03/2024;WOLT TEL AVIV;-" + d + ",00\n"
	}

	summary, err := f.ingestor.IngestFile(context.Background(), pipeline.FileInput{Filename: "export.csv", Data: []byte(csv)})
	require.NoError(t, err)

	assert.Equal(t, 1, f.provider.Calls)
	assert.Equal(t, []string{"WOLT TEL AVIV"}, requested)
	require.Len(t, summary.SampleTransactions, 5)
	for _, tx := range summary.SampleTransactions {
		assert.Equal(t, "Wolt", tx.NormalizedMerchantName)
	}
	assert.Zero(t, summary.PersistedTransactions)
}

func TestIngestFileRulesSurviveEnrichment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, rules.NewEngine(f.store).Save(ctx, &domain.Rule{
		UserID:     "u1",
		RuleType:   domain.RuleMerchantContains,
		MatchValue: "carrefour",
		CategoryID: "cat-supermarket",
		IsBusiness: domain.Bool(true),
	}))

	summary, err := f.ingestor.IngestFile(ctx, pipeline.FileInput{Filename: "banque.csv", Data: []byte(statementCSV), UserID: "u1"})
	require.NoError(t, err)

	carrefour := summary.SampleTransactions[0]
	assert.Equal(t, "cat-supermarket", carrefour.CategoryID)
	assert.True(t, *carrefour.IsBusiness)
	assert.Len(t, carrefour.AppliedRuleIDs, 1)
	assert.Equal(t, "Carrefour City", carrefour.NormalizedMerchantName)
	assert.Equal(t, 0.9, *carrefour.ConfidenceScore)

	pharmacy := summary.SampleTransactions[1]
	assert.Empty(t, pharmacy.AppliedRuleIDs)
	assert.NotEqual(t, "cat-supermarket", pharmacy.CategoryID)
	assert.NotEmpty(t, pharmacy.CategoryID)
}

func TestIngestFileProviderDown(t *testing.T) {
	f := newFixture(t)
	f.provider.ClassifyFunc = func(context.Context, llm.ClassifyRequest) (*llm.BulkResult, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	summary, err := f.ingestor.IngestFile(context.Background(), pipeline.FileInput{Filename: "banque.csv", Data: []byte(statementCSV)})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPendingReview, summary.Status)
	assert.Contains(t, summary.Warnings, "anthropic error: dial tcp: connection refused")
	for _, tx := range summary.SampleTransactions {
		assert.Equal(t, tx.OriginalMerchantName, tx.NormalizedMerchantName)
		assert.Equal(t, 0.2, *tx.ConfidenceScore)
	}
}

func TestIngestFileUnsupported(t *testing.T) {
	f := newFixture(t)

	summary, err := f.ingestor.IngestFile(context.Background(), pipeline.FileInput{Filename: "notes.txt", Data: []byte("hello")})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, summary.Status)
	assert.Equal(t, domain.FileTypeUnknown, summary.FileType)
	assert.Equal(t, 25, summary.EstimatedTransactions)
	assert.Zero(t, summary.ParsedTransactions)
	assert.NotEmpty(t, summary.Warnings)
	assert.Zero(t, f.provider.Calls)
}

func TestIngestBatchContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)

	summaries, err := f.ingestor.IngestBatch(context.Background(), []pipeline.FileInput{
		{Filename: "missing.csv", BlobURI: "gs://bucket/missing.csv", UserID: "u1"},
		{Filename: "banque.csv", Data: []byte(statementCSV), UserID: "u1"},
	})

	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)
	assert.Contains(t, err.Error(), "missing.csv")

	require.Len(t, summaries, 2)
	assert.Equal(t, domain.StatusFailed, summaries[0].Status)
	assert.Equal(t, "missing.csv", summaries[0].Filename)
	assert.Equal(t, domain.StatusPendingReview, summaries[1].Status)
	assert.Equal(t, 3, summaries[1].PersistedTransactions)
}

func TestJobHandler(t *testing.T) {
	f := newFixture(t)
	handler := f.ingestor.JobHandler()

	t.Run("partial failure completes", func(t *testing.T) {
		job := &jobs.IngestBatchJob{JobID: "j1", UserID: "u1", Files: []jobs.FileRef{
			{Filename: "banque.csv", Data: []byte(statementCSV)},
			{Filename: "lost.csv", BlobURI: "gs://bucket/lost.csv"},
		}}

		require.NoError(t, handler(context.Background(), job))
		require.Len(t, job.Summaries, 2)
		assert.Equal(t, 3, job.Summaries[0].PersistedTransactions)
		assert.Equal(t, domain.StatusFailed, job.Summaries[1].Status)
	})

	t.Run("every file failed", func(t *testing.T) {
		job := &jobs.IngestBatchJob{JobID: "j2", UserID: "u1", Files: []jobs.FileRef{
			{Filename: "lost.csv", BlobURI: "gs://bucket/lost.csv"},
		}}

		err := handler(context.Background(), job)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lost.csv")
		assert.Len(t, job.Summaries, 1)
	})
}
