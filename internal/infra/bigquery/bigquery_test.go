package bigquery

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

func TestTableRef(t *testing.T) {
	assert.Equal(t, "`proj.finance.transactions`", tableRef("proj", "finance", "transactions"))

	s := NewWithClient(nil, "proj", "finance", zerolog.Nop())
	assert.Contains(t, s.upsertTransactionsSQL(), "MERGE `proj.finance.transactions` T")
	assert.Contains(t, s.upsertTransactionsSQL(), "WHEN NOT MATCHED THEN INSERT")
	assert.NotContains(t, s.upsertTransactionsSQL(), "WHEN MATCHED")
}

func TestToTransactionParam(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	charged := decimal.RequireFromString("99.90")

	p := toTransactionParam(&store.TransactionRow{
		ID:               "tx-1",
		UserID:           "user-1",
		TransactionHash:  "abc",
		TransactionDate:  "2024-02-28",
		AmountOriginal:   decimal.RequireFromString("-25.5"),
		CurrencyOriginal: "EUR",
		AmountBase:       decimal.RequireFromString("-101.23"),
		CurrencyBase:     "ILS",
		AmountCharged:    &charged,
		ConfidenceScore:  domain.Float(0.8),
		IsBusiness:       domain.Bool(false),
	}, now)

	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 28}, p.TransactionDate)
	assert.Equal(t, "-25.5", p.AmountOriginal)
	assert.Equal(t, "-101.23", p.AmountBase)
	assert.True(t, p.AmountCharged.Valid)
	assert.Equal(t, "99.9", p.AmountCharged.StringVal)
	assert.False(t, p.InstallmentTotal.Valid)
	assert.True(t, p.IsBusiness.Valid)
	assert.False(t, p.IsBusiness.Bool)
	assert.False(t, p.MasterFlag.Valid)
	assert.InDelta(t, 0.8, p.ConfidenceScore.Float64, 1e-9)
	assert.Equal(t, now, p.CreatedAt)
	assert.NotNil(t, p.AppliedRuleIDs)
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("x").Valid)

	assert.Nil(t, boolPtr(nullBool(nil)))
	assert.Equal(t, true, *boolPtr(nullBool(domain.Bool(true))))
	assert.Nil(t, floatPtr(nullFloat(nil)))

	assert.True(t, ratToDecimal(nil).IsZero())
	assert.Equal(t, "3.65", ratToDecimal(big.NewRat(365, 100)).String())
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("0002_more.sql", "SELECT 2")
	write("0001_init.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (id INT64)")
	write("001_bad.sql", "SELECT 0")
	write("notes.txt", "ignored")

	migrations, err := ReadMigrations(dir, "proj", "finance", zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "init", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE `proj.finance.t` (id INT64)", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)

	again, err := ReadMigrations(dir, "other", "dataset", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, migrations[0].Checksum, again[0].Checksum, "checksum ignores placeholders")
}

func TestReadMigrationsMissingDir(t *testing.T) {
	_, err := ReadMigrations(filepath.Join(t.TempDir(), "missing"), "p", "d", zerolog.Nop())
	assert.Error(t, err)
}
