// Package usage records classification provider token usage and enforces
// the user's monthly budget.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

var million = decimal.NewFromInt(1_000_000)

// Price is the USD cost per million tokens.
type Price struct {
	Input  decimal.Decimal
	Output decimal.Decimal
}

// Pricing per provider. Unknown providers are billed at the anthropic rate.
var Pricing = map[string]Price{
	"anthropic": {Input: decimal.NewFromInt(3), Output: decimal.NewFromInt(15)},
	"gemini":    {Input: decimal.RequireFromString("1.25"), Output: decimal.NewFromInt(10)},
	"openai":    {Input: decimal.NewFromInt(2), Output: decimal.NewFromInt(8)},
}

// Cost returns the USD cost of a call.
func Cost(provider string, inputTokens, outputTokens int64) decimal.Decimal {
	p, ok := Pricing[provider]
	if !ok {
		p = Pricing["anthropic"]
	}
	in := p.Input.Mul(decimal.NewFromInt(inputTokens)).Div(million)
	out := p.Output.Mul(decimal.NewFromInt(outputTokens)).Div(million)
	return in.Add(out)
}

// Period is the YYYY-MM month usage is aggregated under.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Tracker records usage and answers budget questions.
type Tracker struct {
	repo store.UsageRepository
	now  func() time.Time
}

func NewTracker(repo store.UsageRepository) *Tracker {
	return &Tracker{repo: repo, now: time.Now}
}

// Record adds one call to the current month of (userID, provider). Calls
// without a user are not recorded.
func (t *Tracker) Record(ctx context.Context, userID, provider string, inputTokens, outputTokens int64) error {
	if userID == "" || t.repo == nil {
		return nil
	}
	rec := domain.UsageRecord{
		UserID:       userID,
		Period:       Period(t.now()),
		Provider:     provider,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      Cost(provider, inputTokens, outputTokens),
	}
	if err := t.repo.AddUsage(ctx, rec); err != nil {
		return fmt.Errorf("Record: %w", err)
	}
	return nil
}

// OverBudget reports whether the user's hard monthly limit is reached for
// provider. Users without a budget or without the hard limit never are.
func (t *Tracker) OverBudget(ctx context.Context, s *domain.UserSettings, provider string) (bool, error) {
	if s == nil || s.UserID == "" || s.MonthlyBudgetUSD == nil || !s.HardLimitEnabled || t.repo == nil {
		return false, nil
	}
	rec, err := t.repo.GetUsage(ctx, s.UserID, Period(t.now()), provider)
	if errors.Is(err, store.ErrNotFound) {
		return !s.MonthlyBudgetUSD.IsPositive(), nil
	}
	if err != nil {
		return false, fmt.Errorf("OverBudget: %w", err)
	}
	return rec.CostUSD.GreaterThanOrEqual(*s.MonthlyBudgetUSD), nil
}
