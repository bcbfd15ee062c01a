package parsers

import (
	"context"
	"strings"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/patterns"
)

var europeanAliases = map[string][]string{
	"date":     {"date", "date opération", "date operation", "valeur"},
	"merchant": {"libellé", "libelle", "description", "bénéficiaire", "beneficiaire"},
	"amount":   {"montant", "amount", "montant opération"},
	"currency": {"devise", "currency"},
}

// EuropeanInterpreter reads grids whose header names a date, a label and a
// single signed amount column with "1.234,56" formatting.
type EuropeanInterpreter struct{}

func (EuropeanInterpreter) Name() string { return "european" }

func (EuropeanInterpreter) Parse(_ context.Context, in Input) Result {
	rows := in.Grid.Rows
	if len(rows) == 0 {
		return Result{Warnings: []string{"empty file"}}
	}

	headerIdx := -1
	for i, r := range rows {
		joined := normalizeHeader(strings.Join(r, " "))
		if strings.Contains(joined, "date") && (strings.Contains(joined, "libell") || strings.Contains(joined, "description")) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return Result{Warnings: []string{"headers not detected for European layout"}}
	}

	cols := mapColumns(rows[headerIdx], europeanAliases, normalizeHeader)
	var warnings []string
	if !cols.has("date", "merchant", "amount") {
		warnings = append(warnings, "essential columns missing (date, label, amount)")
	}

	var txs []domain.ParsedTransaction
	for _, r := range rows[headerIdx+1:] {
		dateCell := cell(r, cols.index("date"))
		merchant := strings.TrimSpace(cell(r, cols.index("merchant")))
		amountCell := cell(r, cols.index("amount"))
		if dateCell == "" || merchant == "" || amountCell == "" {
			continue
		}
		date, ok := patterns.ParseDate(dateCell)
		if !ok {
			continue
		}
		amount, ok := patterns.ParseEuropeanAmount(amountCell)
		if !ok {
			continue
		}
		currency := strings.ToUpper(strings.TrimSpace(cell(r, cols.index("currency"))))
		if currency == "" {
			currency = "EUR"
		}
		txs = append(txs, domain.ParsedTransaction{
			TransactionDate:      date,
			OriginalMerchantName: merchant,
			AmountOriginal:       amount,
			CurrencyOriginal:     currency,
		})
	}
	return Result{Transactions: txs, Warnings: warnings}
}
