package parsers

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/patterns"
)

var (
	frenchDateAliases   = []string{"date opération", "date operation", "date", "valeur"}
	frenchLabelAliases  = []string{"libellé", "libelle", "intitulé", "intitule", "opération", "operation"}
	frenchDebitAliases  = []string{"débit", "debit"}
	frenchCreditAliases = []string{"crédit", "credit"}
)

// FrenchInterpreter reads French bank exports that split movements into
// separate débit and crédit columns, as most retail banks do.
type FrenchInterpreter struct{}

func (FrenchInterpreter) Name() string { return "french" }

type frenchColumns struct {
	date, label, debit, credit, amount, currency int
}

func (FrenchInterpreter) Parse(_ context.Context, in Input) Result {
	rows := in.Grid.Rows
	if len(rows) == 0 {
		return Result{}
	}

	headerIdx := -1
	var cols frenchColumns
	for i, r := range rows {
		if c, ok := mapFrenchHeader(r); ok {
			headerIdx, cols = i, c
			break
		}
	}
	if headerIdx == -1 {
		return Result{Warnings: []string{"headers not detected for French debit/credit layout"}}
	}

	var txs []domain.ParsedTransaction
	for _, r := range rows[headerIdx+1:] {
		date, ok := patterns.ParseLooseDate(cell(r, cols.date))
		if !ok {
			continue
		}
		label := patterns.CollapseSpaces(cell(r, cols.label))
		if label == "" {
			continue
		}
		amount, ok := frenchAmount(r, cols)
		if !ok {
			continue
		}
		currency := strings.ToUpper(strings.TrimSpace(cell(r, cols.currency)))
		if currency == "" {
			currency = "EUR"
		}
		txs = append(txs, domain.ParsedTransaction{
			TransactionDate:      date,
			OriginalMerchantName: label,
			AmountOriginal:       amount,
			CurrencyOriginal:     currency,
		})
	}
	return Result{Transactions: txs}
}

// mapFrenchHeader accepts a row with a date column, a label column and at
// least one amount column (débit, crédit or montant).
func mapFrenchHeader(row []string) (frenchColumns, bool) {
	c := frenchColumns{date: -1, label: -1, debit: -1, credit: -1, amount: -1, currency: -1}
	for i, raw := range row {
		v := normalizeHeader(raw)
		switch {
		case v == "":
		case containsAny(v, frenchDebitAliases):
			c.debit = i
		case containsAny(v, frenchCreditAliases):
			c.credit = i
		case strings.Contains(v, "montant"):
			c.amount = i
		case strings.Contains(v, "devise"):
			c.currency = i
		case c.date == -1 && containsAny(v, frenchDateAliases):
			c.date = i
		case c.label == -1 && containsAny(v, frenchLabelAliases):
			c.label = i
		}
	}
	ok := c.date >= 0 && c.label >= 0 && (c.debit >= 0 || c.credit >= 0 || c.amount >= 0)
	return c, ok
}

// frenchAmount returns crédit minus débit. Debits are negated whatever sign
// the export used; a single montant column is taken as signed.
func frenchAmount(r []string, cols frenchColumns) (decimal.Decimal, bool) {
	debit, hasDebit := patterns.ParseFrenchAmount(cell(r, cols.debit))
	credit, hasCredit := patterns.ParseFrenchAmount(cell(r, cols.credit))
	if hasDebit || hasCredit {
		return credit.Abs().Sub(debit.Abs()), true
	}
	return patterns.ParseFrenchAmount(cell(r, cols.amount))
}
