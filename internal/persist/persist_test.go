package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/infra/sqlite"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

type fixedRates map[string]decimal.Decimal

func (f fixedRates) Rate(_ context.Context, _, base, quote string) decimal.Decimal {
	if r, ok := f[base+quote]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func statement() []domain.ParsedTransaction {
	return []domain.ParsedTransaction{
		{TransactionDate: "2024-03-01", OriginalMerchantName: "SHUFERSAL DEAL", AmountOriginal: decimal.RequireFromString("245.90"), CurrencyOriginal: "ILS"},
		{TransactionDate: "2024-03-02", OriginalMerchantName: "AMAZON MKTPLACE", NormalizedMerchantName: "Amazon", AmountOriginal: decimal.RequireFromString("43.99"), CurrencyOriginal: "USD"},
		{TransactionDate: "2024-03-05", OriginalMerchantName: "IKEA NETANYA", AmountOriginal: decimal.RequireFromString("100"), CurrencyOriginal: "ils"},
	}
}

func TestHashTransaction(t *testing.T) {
	a := HashTransaction("2024-03-01", "Amazon", decimal.RequireFromString("43.99"), "USD", "src")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashTransaction("2024-03-01", "Amazon", decimal.RequireFromString("43.990"), "USD", "src"))
	assert.NotEqual(t, a, HashTransaction("2024-03-01", "Amazon", decimal.RequireFromString("43.99"), "USD", "other"))
	assert.Equal(t,
		HashTransaction("2024-03-01", "Amazon", decimal.RequireFromString("1"), "USD", ""),
		HashTransaction("2024-03-01", "Amazon", decimal.RequireFromString("1"), "USD", "unknown"))
}

func TestPersistIsIdempotent(t *testing.T) {
	st := openStore(t)
	p := NewPersister(st, fixedRates{}, Options{}, nil, zerolog.Nop())
	req := Request{UserID: "u1", SourceKey: "isracard", Filename: "march.xlsx", Transactions: statement()}

	first := p.Persist(context.Background(), req)
	second := p.Persist(context.Background(), req)

	assert.Equal(t, 3, first.Persisted)
	assert.Equal(t, 0, second.Persisted)
	assert.Equal(t, first.SourceID, second.SourceID)
	assert.NotEmpty(t, first.SourceID)

	rows, err := st.ListTransactionHashes(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestPersistHashesIgnoreOrder(t *testing.T) {
	txs := statement()
	reversed := []domain.ParsedTransaction{txs[2], txs[1], txs[0]}

	hashes := func(in []domain.ParsedTransaction) []string {
		repo := &mockRepo{}
		NewPersister(repo, fixedRates{}, Options{}, nil, zerolog.Nop()).
			Persist(context.Background(), Request{UserID: "u1", SourceKey: "isracard", Filename: "f", Transactions: in})
		var out []string
		for _, r := range repo.upserted {
			out = append(out, r.TransactionHash)
		}
		return out
	}

	forward := hashes(txs)
	require.Len(t, forward, 3)
	assert.ElementsMatch(t, forward, hashes(reversed))
}

type mockRepo struct {
	upserted []*store.TransactionRow
	marked   []string

	GetOrCreateSourceFunc  func(ctx context.Context, src *domain.Source) (*domain.Source, error)
	UpsertTransactionsFunc func(ctx context.Context, rows []*store.TransactionRow) (int, error)
}

func (m *mockRepo) GetOrCreateSource(ctx context.Context, src *domain.Source) (*domain.Source, error) {
	if m.GetOrCreateSourceFunc != nil {
		return m.GetOrCreateSourceFunc(ctx, src)
	}
	out := *src
	out.ID = "src-1"
	return &out, nil
}

func (m *mockRepo) UpsertTransactions(ctx context.Context, rows []*store.TransactionRow) (int, error) {
	m.upserted = append(m.upserted, rows...)
	if m.UpsertTransactionsFunc != nil {
		return m.UpsertTransactionsFunc(ctx, rows)
	}
	return len(rows), nil
}

func (m *mockRepo) ListTransactionHashes(context.Context, string) ([]store.HashedRow, error) {
	return nil, nil
}

func (m *mockRepo) DeleteTransactions(context.Context, string, []string) (int, error) {
	return 0, nil
}

func (m *mockRepo) InsertAttachment(context.Context, *domain.Attachment) error { return nil }

func (m *mockRepo) MarkAttachmentParsed(_ context.Context, attachmentID, sourceID string, _ time.Time) error {
	m.marked = append(m.marked, attachmentID+"@"+sourceID)
	return nil
}

func TestPersistConvertsAmounts(t *testing.T) {
	repo := &mockRepo{}
	rates := fixedRates{"ILSUSD": decimal.RequireFromString("0.25")}
	p := NewPersister(repo, rates, Options{}, nil, zerolog.Nop())

	res := p.Persist(context.Background(), Request{
		UserID:       "u1",
		SourceKey:    "max",
		Filename:     "max.xlsx",
		AttachmentID: "att-1",
		Transactions: statement(),
	})

	require.Len(t, repo.upserted, 3)
	assert.Equal(t, "245.9", repo.upserted[0].AmountBase.String())
	assert.Equal(t, "175.96", repo.upserted[1].AmountBase.String())
	assert.Equal(t, "ILS", repo.upserted[1].CurrencyBase)
	assert.Equal(t, "ILS", repo.upserted[2].CurrencyOriginal)
	assert.Equal(t, HashTransaction("2024-03-02", "Amazon", decimal.RequireFromString("43.99"), "USD", "src-1"), repo.upserted[1].TransactionHash)
	assert.False(t, *repo.upserted[0].IsBusiness)
	assert.Equal(t, []string{"att-1@src-1"}, repo.marked)
	assert.Equal(t, 3, res.Persisted)
}

func TestPersistUsesSettingsBaseCurrency(t *testing.T) {
	repo := &mockRepo{}
	p := NewPersister(repo, fixedRates{"USDILS": decimal.NewFromInt(4)}, Options{}, nil, zerolog.Nop())

	p.Persist(context.Background(), Request{
		UserID:       "u1",
		Settings:     &domain.UserSettings{BaseCurrency: "usd"},
		Transactions: statement()[:1],
	})

	require.Len(t, repo.upserted, 1)
	assert.Equal(t, "USD", repo.upserted[0].CurrencyBase)
	assert.Equal(t, "61.475", repo.upserted[0].AmountBase.String())
}

func TestPersistDropsDuplicatesWithinBatch(t *testing.T) {
	repo := &mockRepo{}
	p := NewPersister(repo, fixedRates{}, Options{}, nil, zerolog.Nop())
	txs := statement()

	p.Persist(context.Background(), Request{UserID: "u1", Transactions: append(txs, txs[0])})
	assert.Len(t, repo.upserted, 3)
}

func TestPersistWithoutUser(t *testing.T) {
	repo := &mockRepo{}
	res := NewPersister(repo, nil, Options{}, nil, zerolog.Nop()).
		Persist(context.Background(), Request{Transactions: statement()})

	assert.Zero(t, res.Persisted)
	assert.Empty(t, repo.upserted)
}

func TestPersistFailures(t *testing.T) {
	failing := func() *mockRepo {
		return &mockRepo{UpsertTransactionsFunc: func(context.Context, []*store.TransactionRow) (int, error) {
			return 0, errors.New("unique violation")
		}}
	}

	t.Run("swallowed by default", func(t *testing.T) {
		res := NewPersister(failing(), nil, Options{}, nil, zerolog.Nop()).
			Persist(context.Background(), Request{UserID: "u1", Transactions: statement()})
		assert.Zero(t, res.Persisted)
		assert.Empty(t, res.Warnings)
	})

	t.Run("surfaced when configured", func(t *testing.T) {
		res := NewPersister(failing(), nil, Options{SurfaceErrors: true}, nil, zerolog.Nop()).
			Persist(context.Background(), Request{UserID: "u1", Transactions: statement()})
		assert.Zero(t, res.Persisted)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "unique violation")
	})

	t.Run("source failure", func(t *testing.T) {
		repo := &mockRepo{GetOrCreateSourceFunc: func(context.Context, *domain.Source) (*domain.Source, error) {
			return nil, errors.New("timeout")
		}}
		res := NewPersister(repo, nil, Options{SurfaceErrors: true}, nil, zerolog.Nop()).
			Persist(context.Background(), Request{UserID: "u1", Transactions: statement()})
		assert.Empty(t, repo.upserted)
		assert.Len(t, res.Warnings, 1)
	})
}
