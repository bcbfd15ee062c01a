// Package parsers turns statement bytes into parsed transactions. Parsers
// never fail on malformed input: problems are reported as warnings and the
// caller always gets a (possibly empty) result.
package parsers

import (
	"context"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

// maxSampleRows bounds every sample returned to callers.
const maxSampleRows = 10

// TextRecognizer extracts text from an image-only document.
type TextRecognizer interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// Input is everything a parser may look at for one file.
type Input struct {
	Filename string
	Data     []byte
	FileType domain.FileType
	Grid     Grid

	// HebrewSource is set for Israeli issuers whose spreadsheets use the
	// Hebrew column layout.
	HebrewSource bool

	// OCRProvider is the user's OCR setting; "local" disables OCR.
	OCRProvider string
	OCR         TextRecognizer
}

// Result is the output of a parser.
type Result struct {
	Transactions []domain.ParsedTransaction
	Warnings     []string
	SampleRows   [][]string
}

// Parser is one strategy in a Cascade.
type Parser interface {
	Name() string
	Parse(ctx context.Context, in Input) Result
}

// StopFunc decides whether the cascade has a usable result.
type StopFunc func(Result) bool

// HasTransactions stops the cascade at the first parser that produced at
// least one transaction.
func HasTransactions(r Result) bool {
	return len(r.Transactions) > 0
}

// Cascade tries parsers in order until Stop accepts a result. Warnings of
// every parser that ran are kept.
type Cascade struct {
	Parsers []Parser
	Stop    StopFunc
}

// NewCascade builds a cascade that stops on the first non-empty result.
func NewCascade(parsers ...Parser) *Cascade {
	return &Cascade{Parsers: parsers, Stop: HasTransactions}
}

// Run executes the cascade.
func (c *Cascade) Run(ctx context.Context, in Input) Result {
	stop := c.Stop
	if stop == nil {
		stop = HasTransactions
	}

	var out Result
	for _, p := range c.Parsers {
		r := p.Parse(ctx, in)
		out.Warnings = append(out.Warnings, r.Warnings...)
		out.Transactions = r.Transactions
		if r.SampleRows != nil {
			out.SampleRows = r.SampleRows
		}
		if stop(r) {
			break
		}
	}
	return out
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func sample(rows [][]string) [][]string {
	if len(rows) > maxSampleRows {
		return rows[:maxSampleRows]
	}
	return rows
}
