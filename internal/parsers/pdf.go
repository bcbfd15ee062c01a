package parsers

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/patterns"
)

const (
	warnOCRDisabled  = "OCR disabled by settings"
	warnOCRUsed      = "OCR text used for PDF"
	warnPDFEmpty     = "empty PDF text (OCR required)"
	warnPDFShort     = "insufficient PDF text, OCR recommended"
	warnPDFNoRows    = "no transactions detected in PDF (complex layout)"
	unknownMerchant  = "Unknown merchant"
	minPDFTextLines  = 5
	columnGapPoints  = 15.0
	ocrProviderLocal = "local"
)

// TextExtractor returns the embedded text of a PDF, one line per row.
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// EmbeddedTextExtractor reads the text layer with ledongthuc/pdf. Text items
// on the same baseline are joined into one line and wide horizontal gaps
// become a double space so rows can be split into columns.
type EmbeddedTextExtractor struct{}

func (EmbeddedTextExtractor) ExtractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ExtractText: pdf reader panicked: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("ExtractText: opening pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		if lines := pageLines(page); len(lines) > 0 {
			pages = append(pages, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(pages, "\n"), nil
}

func pageLines(page pdf.Page) []string {
	type item struct {
		x float64
		s string
	}
	byRow := make(map[int][]item)
	for _, t := range page.Content().Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		y := int(math.Round(t.Y))
		byRow[y] = append(byRow[y], item{x: t.X, s: t.S})
	}

	ys := make([]int, 0, len(byRow))
	for y := range byRow {
		ys = append(ys, y)
	}
	// PDF y grows upwards
	sort.Sort(sort.Reverse(sort.IntSlice(ys)))

	lines := make([]string, 0, len(ys))
	for _, y := range ys {
		items := byRow[y]
		sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })

		var b strings.Builder
		for j, it := range items {
			if j > 0 && it.x-items[j-1].x > columnGapPoints {
				b.WriteString("  ")
			}
			b.WriteString(it.s)
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// PDFParser extracts transactions line by line from statement text, falling
// back to OCR when the document has no text layer.
type PDFParser struct {
	Extractor TextExtractor
	Log       zerolog.Logger
}

// NewPDFParser returns a parser backed by the embedded text extractor.
func NewPDFParser(log zerolog.Logger) *PDFParser {
	return &PDFParser{Extractor: EmbeddedTextExtractor{}, Log: log}
}

func (p *PDFParser) Name() string { return "pdf" }

func (p *PDFParser) Parse(ctx context.Context, in Input) Result {
	var warnings []string

	text, err := p.Extractor.ExtractText(in.Data)
	if err != nil {
		p.Log.Warn().Err(err).Str("file", in.Filename).Msg("pdf text extraction failed")
	}
	text = normalizePDFText(text)

	if text == "" {
		if in.OCRProvider == ocrProviderLocal {
			return Result{Warnings: []string{warnOCRDisabled}}
		}
		if in.OCR != nil {
			ocrText, err := in.OCR.ExtractText(ctx, in.Data)
			if err != nil {
				p.Log.Warn().Err(err).Str("file", in.Filename).Msg("ocr failed")
			}
			if ocrText = normalizePDFText(ocrText); ocrText != "" {
				text = ocrText
				warnings = append(warnings, warnOCRUsed)
			}
		}
	}
	if text == "" {
		return Result{Warnings: []string{warnPDFEmpty}}
	}

	var lines []string
	for _, l := range lineBreak.Split(text, -1) {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < minPDFTextLines {
		warnings = append(warnings, warnPDFShort)
	}

	rows := make([][]string, 0, len(lines))
	var txs []domain.ParsedTransaction
	for _, l := range lines {
		rows = append(rows, patterns.SplitColumns(l))
		if tx, ok := parsePDFLine(l); ok {
			txs = append(txs, tx)
		}
	}
	if len(txs) == 0 {
		warnings = append(warnings, warnPDFNoRows)
	}

	return Result{Transactions: txs, Warnings: warnings, SampleRows: sample(rows)}
}

func normalizePDFText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
}

// parsePDFLine needs a date and at least one amount. The first amount is the
// original amount and the second, when present, the charged amount. The
// date is masked before amounts are scanned so its digits are not read as
// an amount.
func parsePDFLine(line string) (domain.ParsedTransaction, bool) {
	date, ok := patterns.FindDate(line)
	if !ok {
		return domain.ParsedTransaction{}, false
	}
	masked := strings.Replace(line, date.Raw, strings.Repeat(" ", len(date.Raw)), 1)
	amounts := patterns.FindAmounts(masked)
	if len(amounts) == 0 {
		return domain.ParsedTransaction{}, false
	}

	merchant := strings.Replace(line, date.Raw, "", 1)
	merchant = strings.Replace(merchant, amounts[0].Raw, "", 1)
	merchant = patterns.CollapseSpaces(merchant)
	if merchant == "" {
		merchant = unknownMerchant
	}

	tx := domain.ParsedTransaction{
		TransactionDate:      date.Value,
		OriginalMerchantName: merchant,
		AmountOriginal:       amounts[0].Value,
		CurrencyOriginal:     patterns.DetectCurrency(line, "ILS"),
	}
	if len(amounts) > 1 {
		charged := amounts[1].Value
		tx.AmountCharged = &charged

		if inst, ok := patterns.MatchInstallment(line); ok {
			tx.InstallmentMonthly = domain.Decimal(charged)
			if !tx.AmountOriginal.IsZero() {
				tx.InstallmentTotal = domain.Decimal(tx.AmountOriginal)
				tx.InstallmentRemaining = domain.Decimal(patterns.RemainingInstallment(tx.AmountOriginal, charged, inst.Current))
			}
		}
	}
	return tx, true
}
