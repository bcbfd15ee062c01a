package sqlite

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	st, err := Open(filepath.Join(s.T().TempDir(), "optim.db"), zerolog.New(io.Discard))
	s.Require().NoError(err)
	s.store = st
	s.ctx = context.Background()
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func row(user, hash string, createdAt time.Time) *store.TransactionRow {
	return &store.TransactionRow{
		UserID:               user,
		SourceID:             "src-1",
		TransactionHash:      hash,
		TransactionDate:      "2024-03-15",
		OriginalMerchantName: "SHUFERSAL",
		AmountOriginal:       decimal.RequireFromString("120.50"),
		CurrencyOriginal:     "ILS",
		AmountBase:           decimal.RequireFromString("120.50"),
		CurrencyBase:         "ILS",
		AmountCharged:        domain.Decimal(decimal.RequireFromString("60.25")),
		IsBusiness:           domain.Bool(false),
		AppliedRuleIDs:       []string{"r1", "r2"},
		CreatedAt:            createdAt,
	}
}

func (s *StoreSuite) TestUpsertTransactions_IgnoresDuplicates() {
	now := time.Now().UTC()

	n, err := s.store.UpsertTransactions(s.ctx, []*store.TransactionRow{row("u1", "h1", now), row("u1", "h2", now)})
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = s.store.UpsertTransactions(s.ctx, []*store.TransactionRow{row("u1", "h1", now), row("u1", "h2", now)})
	s.Require().NoError(err)
	s.Equal(0, n)

	// same hash for another user is a different transaction
	n, err = s.store.UpsertTransactions(s.ctx, []*store.TransactionRow{row("u2", "h1", now)})
	s.Require().NoError(err)
	s.Equal(1, n)

	count, err := s.store.CountTransactions(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *StoreSuite) TestUpsertTransactions_LargeStatement() {
	now := time.Now().UTC()
	rows := func() []*store.TransactionRow {
		out := make([]*store.TransactionRow, 0, 1500)
		for i := 0; i < 1500; i++ {
			out = append(out, row("u1", fmt.Sprintf("h%04d", i), now))
		}
		return out
	}

	n, err := s.store.UpsertTransactions(s.ctx, rows())
	s.Require().NoError(err)
	s.Equal(1500, n)

	count, err := s.store.CountTransactions(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(1500), count)

	n, err = s.store.UpsertTransactions(s.ctx, rows())
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *StoreSuite) TestUpsertTransactions_Empty() {
	n, err := s.store.UpsertTransactions(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *StoreSuite) TestListAndDeleteTransactions() {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := s.store.UpsertTransactions(s.ctx, []*store.TransactionRow{
		row("u1", "late", base.Add(2*time.Hour)),
		row("u1", "early", base),
	})
	s.Require().NoError(err)

	rows, err := s.store.ListTransactionHashes(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("early", rows[0].TransactionHash)
	s.Equal("late", rows[1].TransactionHash)

	deleted, err := s.store.DeleteTransactions(s.ctx, "u1", []string{rows[1].ID})
	s.Require().NoError(err)
	s.Equal(1, deleted)

	rows, err = s.store.ListTransactionHashes(s.ctx, "u1")
	s.Require().NoError(err)
	s.Len(rows, 1)
}

func (s *StoreSuite) TestGetOrCreateSource_IsStable() {
	first, err := s.store.GetOrCreateSource(s.ctx, &domain.Source{UserID: "u1", Provider: "isracard", AccountLabel: "isracard-03.xlsx", CurrencyBase: "ILS"})
	s.Require().NoError(err)
	s.NotEmpty(first.ID)

	again, err := s.store.GetOrCreateSource(s.ctx, &domain.Source{UserID: "u1", Provider: "isracard", AccountLabel: "isracard-03.xlsx", CurrencyBase: "ILS"})
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)

	other, err := s.store.GetOrCreateSource(s.ctx, &domain.Source{UserID: "u1", Provider: "isracard", AccountLabel: "isracard-04.xlsx", CurrencyBase: "ILS"})
	s.Require().NoError(err)
	s.NotEqual(first.ID, other.ID)
}

func (s *StoreSuite) TestAttachments() {
	att := &domain.Attachment{UserID: "u1", StoragePath: "u1/1-file.csv", Filename: "file.csv", Size: 12}
	s.Require().NoError(s.store.InsertAttachment(s.ctx, att))
	s.NotEmpty(att.ID)

	s.Require().NoError(s.store.MarkAttachmentParsed(s.ctx, att.ID, "src-1", time.Now().UTC()))

	var m attachmentModel
	s.Require().NoError(s.store.DB().First(&m, "id = ?", att.ID).Error)
	s.Equal("src-1", m.SourceID)
	s.True(m.ParsedAt.Valid)
}

func (s *StoreSuite) TestFXRates() {
	_, err := s.store.GetFXRate(s.ctx, "2024-03-15", "ILS", "EUR")
	s.ErrorIs(err, store.ErrNotFound)

	rate := domain.FXRate{AsOfDate: "2024-03-15", Base: "ILS", Quote: "EUR", Rate: decimal.RequireFromString("0.2512")}
	s.Require().NoError(s.store.InsertFXRate(s.ctx, rate))
	s.Require().NoError(s.store.InsertFXRate(s.ctx, rate))

	got, err := s.store.GetFXRate(s.ctx, "2024-03-15", "ILS", "EUR")
	s.Require().NoError(err)
	s.True(rate.Rate.Equal(got.Rate), "got %s", got.Rate)
}

func (s *StoreSuite) TestMerchantAliases() {
	_, err := s.store.GetMerchantAlias(s.ctx, "u1", "CAFE JOE TLV")
	s.ErrorIs(err, store.ErrNotFound)

	entry := domain.MerchantCacheEntry{
		OriginalName:    "CAFE JOE TLV",
		NormalizedName:  "Cafe Joe",
		CategoryID:      "cat-restaurants",
		ConfidenceScore: domain.Float(0.9),
	}
	s.Require().NoError(s.store.UpsertMerchantAlias(s.ctx, "u1", entry))

	entry.NormalizedName = "Café Joe"
	entry.IsBusiness = domain.Bool(true)
	s.Require().NoError(s.store.UpsertMerchantAlias(s.ctx, "u1", entry))

	got, err := s.store.GetMerchantAlias(s.ctx, "u1", "CAFE JOE TLV")
	s.Require().NoError(err)
	s.Equal("Café Joe", got.NormalizedName)
	s.Equal("cat-restaurants", got.CategoryID)
	s.Require().NotNil(got.ConfidenceScore)
	s.InDelta(0.9, *got.ConfidenceScore, 1e-9)
	s.Require().NotNil(got.IsBusiness)
	s.True(*got.IsBusiness)
	s.Nil(got.MasterFlag)
}

func (s *StoreSuite) TestMerchants() {
	id, err := s.store.EnsureMerchant(s.ctx, "u1", "Cafe Joe")
	s.Require().NoError(err)
	again, err := s.store.EnsureMerchant(s.ctx, "u1", "Cafe Joe")
	s.Require().NoError(err)
	s.Equal(id, again)

	at := time.Now().UTC()
	s.Require().NoError(s.store.UpdateMerchantEnrichment(s.ctx, &domain.Merchant{
		UserID:         "u1",
		CanonicalName:  "Cafe Joe",
		DisplayName:    "Café Joe",
		Website:        "https://cafejoe.example",
		EnrichmentJSON: `{"name":"Café Joe"}`,
		EnrichedAt:     &at,
	}))

	m, err := s.store.GetMerchant(s.ctx, "u1", "Cafe Joe")
	s.Require().NoError(err)
	s.Equal("Café Joe", m.DisplayName)
	s.Equal("https://cafejoe.example", m.Website)
	s.NotNil(m.EnrichedAt)
}

func (s *StoreSuite) TestRulesAndCategories() {
	s.Require().NoError(s.store.SaveRule(s.ctx, &domain.Rule{UserID: "u1", RuleType: domain.RuleMerchantContains, MatchValue: "wolt", CategoryID: "c1", IsBusiness: domain.Bool(false)}))
	rules, err := s.store.ListRules(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(rules, 1)
	s.Equal(domain.RuleMerchantContains, rules[0].RuleType)
	s.Require().NotNil(rules[0].IsBusiness)
	s.False(*rules[0].IsBusiness)
	s.Nil(rules[0].MasterFlag)

	cats := []domain.Category{{UserID: "u1", Name: "Transport"}, {UserID: "u1", Name: "Loisirs"}}
	s.Require().NoError(s.store.InsertCategories(s.ctx, cats))
	s.Require().NoError(s.store.InsertCategories(s.ctx, []domain.Category{{UserID: "u1", Name: "Transport"}}))

	got, err := s.store.ListCategories(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("Loisirs", got[0].Name)
}

func (s *StoreSuite) TestSettingsAndUsage() {
	_, err := s.store.GetSettings(s.ctx, "u1")
	s.ErrorIs(err, store.ErrNotFound)

	budget := decimal.NewFromInt(5)
	s.Require().NoError(s.store.SaveSettings(s.ctx, &domain.UserSettings{UserID: "u1", BaseCurrency: "EUR", LLMProvider: "openai", MonthlyBudgetUSD: &budget, HardLimitEnabled: true}))
	s.Require().NoError(s.store.SaveSettings(s.ctx, &domain.UserSettings{UserID: "u1", BaseCurrency: "EUR", LLMProvider: "gemini", MonthlyBudgetUSD: &budget, HardLimitEnabled: true}))

	settings, err := s.store.GetSettings(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal("gemini", settings.LLMProvider)
	s.Require().NotNil(settings.MonthlyBudgetUSD)
	s.True(budget.Equal(*settings.MonthlyBudgetUSD))

	rec := domain.UsageRecord{UserID: "u1", Period: "2024-03", Provider: "openai", InputTokens: 100, OutputTokens: 50, CostUSD: decimal.RequireFromString("0.0006")}
	s.Require().NoError(s.store.AddUsage(s.ctx, rec))
	s.Require().NoError(s.store.AddUsage(s.ctx, rec))

	usage, err := s.store.GetUsage(s.ctx, "u1", "2024-03", "openai")
	s.Require().NoError(err)
	s.Equal(int64(200), usage.InputTokens)
	s.Equal(int64(100), usage.OutputTokens)
	s.True(decimal.RequireFromString("0.0012").Equal(usage.CostUSD), "got %s", usage.CostUSD)
}
