package usage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

type mockUsageRepo struct {
	AddUsageFunc func(ctx context.Context, rec domain.UsageRecord) error
	GetUsageFunc func(ctx context.Context, userID, period, provider string) (*domain.UsageRecord, error)
}

func (m *mockUsageRepo) AddUsage(ctx context.Context, rec domain.UsageRecord) error {
	return m.AddUsageFunc(ctx, rec)
}

func (m *mockUsageRepo) GetUsage(ctx context.Context, userID, period, provider string) (*domain.UsageRecord, error) {
	return m.GetUsageFunc(ctx, userID, period, provider)
}

func fixedClock() time.Time { return time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC) }

func TestCost(t *testing.T) {
	assert.Equal(t, "0.0105", Cost("anthropic", 1000, 500).String())
	assert.Equal(t, "0.00625", Cost("gemini", 1000, 500).String())
	assert.Equal(t, "0.006", Cost("openai", 1000, 500).String())
	assert.True(t, Cost("unknown", 1000, 500).Equal(Cost("anthropic", 1000, 500)))
}

func TestRecord(t *testing.T) {
	var got domain.UsageRecord
	tr := NewTracker(&mockUsageRepo{AddUsageFunc: func(_ context.Context, rec domain.UsageRecord) error {
		got = rec
		return nil
	}})
	tr.now = fixedClock

	require.NoError(t, tr.Record(context.Background(), "u1", "openai", 1_000_000, 0))
	assert.Equal(t, "2024-03", got.Period)
	assert.Equal(t, "openai", got.Provider)
	assert.True(t, decimal.NewFromInt(2).Equal(got.CostUSD))

	got = domain.UsageRecord{}
	require.NoError(t, tr.Record(context.Background(), "", "openai", 1, 1))
	assert.Empty(t, got.UserID)
}

func TestOverBudget(t *testing.T) {
	budget := decimal.NewFromInt(5)
	repo := &mockUsageRepo{GetUsageFunc: func(_ context.Context, userID, period, provider string) (*domain.UsageRecord, error) {
		assert.Equal(t, "2024-03", period)
		return &domain.UsageRecord{CostUSD: decimal.NewFromInt(5)}, nil
	}}
	tr := NewTracker(repo)
	tr.now = fixedClock

	over, err := tr.OverBudget(context.Background(), &domain.UserSettings{UserID: "u1", MonthlyBudgetUSD: &budget, HardLimitEnabled: true}, "anthropic")
	require.NoError(t, err)
	assert.True(t, over)

	over, _ = tr.OverBudget(context.Background(), &domain.UserSettings{UserID: "u1", MonthlyBudgetUSD: &budget}, "anthropic")
	assert.False(t, over, "soft limit")

	over, _ = tr.OverBudget(context.Background(), &domain.UserSettings{UserID: "u1", HardLimitEnabled: true}, "anthropic")
	assert.False(t, over, "no budget")

	repo.GetUsageFunc = func(context.Context, string, string, string) (*domain.UsageRecord, error) { return nil, store.ErrNotFound }
	over, err = tr.OverBudget(context.Background(), &domain.UserSettings{UserID: "u1", MonthlyBudgetUSD: &budget, HardLimitEnabled: true}, "anthropic")
	require.NoError(t, err)
	assert.False(t, over)
}
