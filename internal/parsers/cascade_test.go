package parsers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

type stubParser struct {
	name   string
	result Result
	called bool
}

func (s *stubParser) Name() string { return s.name }

func (s *stubParser) Parse(context.Context, Input) Result {
	s.called = true
	return s.result
}

func TestCascadeStopsAtFirstResult(t *testing.T) {
	first := &stubParser{name: "first", result: Result{Warnings: []string{"w1"}}}
	second := &stubParser{name: "second", result: Result{
		Warnings:     []string{"w2"},
		Transactions: []domain.ParsedTransaction{{OriginalMerchantName: "A"}},
	}}
	third := &stubParser{name: "third"}

	res := NewCascade(first, second, third).Run(context.Background(), Input{})

	assert.True(t, first.called)
	assert.True(t, second.called)
	assert.False(t, third.called)
	assert.Equal(t, []string{"w1", "w2"}, res.Warnings)
	assert.Len(t, res.Transactions, 1)
}

func TestCascadeCustomStop(t *testing.T) {
	first := &stubParser{name: "first", result: Result{Transactions: []domain.ParsedTransaction{{}}}}
	second := &stubParser{name: "second"}

	c := &Cascade{Parsers: []Parser{first, second}, Stop: func(Result) bool { return false }}
	res := c.Run(context.Background(), Input{})

	assert.True(t, second.called)
	assert.Empty(t, res.Transactions, "the last parser's transactions are returned")
}

func TestSpreadsheetCascadeFallsBackToFrench(t *testing.T) {
	g := ParseCSV([]byte("Date;Libellé;Débit;Crédit\n03/01/2024;LOYER;800,00;\n"))
	c := NewCascade(HebrewSpreadsheetParser{}, EuropeanInterpreter{}, FrenchInterpreter{})

	res := c.Run(context.Background(), Input{FileType: domain.FileTypeCSV, Grid: g})

	assert.Equal(t, []string{"essential columns missing (date, label, amount)"}, res.Warnings)
	if assert.Len(t, res.Transactions, 1) {
		assert.True(t, dec("-800").Equal(res.Transactions[0].AmountOriginal))
	}
}
