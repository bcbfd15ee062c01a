package parsers

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/patterns"
)

const (
	hebrewDateToken     = "תאריך"
	hebrewMerchantToken = "שם בית עסק"
	hebrewInstallments  = "תשלומים"
)

var hebrewAliases = map[string][]string{
	"date":     {"תאריך"},
	"merchant": {"שם בית עסק", "שם בית העסק"},
	"gross":    {"סכום\nעסקה", "סכום עסקה"},
	"charged":  {"סכום\nחיוב", "סכום חיוב"},
	"type":     {"סוג\nעסקה", "סוג עסקה"},
	"category": {"ענף"},
	"notes":    {"הערות"},
}

var hebrewFooterTokens = []string{"את המידע", "מידע"}

// HebrewSpreadsheetParser reads Isracard/Max style exports: a free-form
// preamble, a Hebrew header row, then one purchase per row.
type HebrewSpreadsheetParser struct{}

func (HebrewSpreadsheetParser) Name() string { return "hebrew-spreadsheet" }

func (HebrewSpreadsheetParser) Parse(_ context.Context, in Input) Result {
	if !in.HebrewSource || in.FileType != domain.FileTypeXLSX {
		return Result{}
	}
	rows := in.Grid.Rows

	headerIdx := -1
	for i, r := range rows {
		joined := strings.Join(r, " ")
		if strings.Contains(joined, hebrewDateToken) && strings.Contains(joined, hebrewMerchantToken) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return Result{
			Warnings:   []string{"headers not detected (unrecognized Isracard/Max layout)"},
			SampleRows: sample(rows),
		}
	}

	cols := mapColumns(rows[headerIdx], hebrewAliases, strings.TrimSpace)
	var warnings []string
	if !cols.has("date", "merchant", "gross") {
		warnings = append(warnings, "essential columns missing for parsing")
	}

	var txs []domain.ParsedTransaction
	for _, r := range rows[headerIdx+1:] {
		dateCell := strings.TrimSpace(cell(r, cols.index("date")))
		merchant := strings.TrimSpace(cell(r, cols.index("merchant")))
		if dateCell == "" || merchant == "" {
			continue
		}
		date, ok := parseHebrewDate(dateCell)
		if !ok || isHebrewHeaderRepeat(merchant) || containsAny(merchant, hebrewFooterTokens) {
			continue
		}

		grossCell := cell(r, cols.index("gross"))
		chargedCell := cell(r, cols.index("charged"))
		gross, hasGross := patterns.ParseFlexibleAmount(grossCell)
		charged, hasCharged := patterns.ParseFlexibleAmount(chargedCell)

		txType := strings.TrimSpace(cell(r, cols.index("type")))
		notes := strings.TrimSpace(cell(r, cols.index("notes")))

		tx := domain.ParsedTransaction{
			TransactionDate:      date,
			OriginalMerchantName: merchant,
			CurrencyOriginal:     patterns.DetectCurrency(grossCell+" "+chargedCell, "ILS"),
			TransactionType:      txType,
			MerchantCategoryHint: strings.TrimSpace(cell(r, cols.index("category"))),
			Notes:                notes,
		}
		switch {
		case hasGross:
			tx.AmountOriginal = gross
		case hasCharged:
			tx.AmountOriginal = charged
		}
		if hasCharged {
			tx.AmountCharged = domain.Decimal(charged)
		}

		inst, noteMatch := patterns.MatchInstallment(notes)
		if strings.Contains(txType, hebrewInstallments) || noteMatch {
			applyInstallment(&tx, gross, hasGross, charged, hasCharged, inst, noteMatch)
		}
		txs = append(txs, tx)
	}

	return Result{Transactions: txs, Warnings: warnings, SampleRows: sample(rows)}
}

// applyInstallment fills the installment fields. Remaining is only computed
// when the note carries the current payment number and both amounts are
// non-zero.
func applyInstallment(tx *domain.ParsedTransaction, total decimal.Decimal, hasTotal bool, monthly decimal.Decimal, hasMonthly bool, inst patterns.Installment, noteMatch bool) {
	if hasTotal {
		tx.InstallmentTotal = domain.Decimal(total)
	}
	if hasMonthly {
		tx.InstallmentMonthly = domain.Decimal(monthly)
	}
	if noteMatch && hasTotal && hasMonthly && !total.IsZero() && !monthly.IsZero() {
		tx.InstallmentRemaining = domain.Decimal(patterns.RemainingInstallment(total, monthly, inst.Current))
	}
}

func parseHebrewDate(cell string) (string, bool) {
	if v, ok := patterns.ParseSpreadsheetDate(cell); ok {
		return v, true
	}
	return patterns.ParseLooseDate(cell)
}

func isHebrewHeaderRepeat(v string) bool {
	return strings.Contains(v, hebrewMerchantToken) || strings.Contains(v, hebrewDateToken)
}
