package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source is the statement origin (issuer + account label) transactions are
// attached to. It is reused across re-ingestions of the same file name.
type Source struct {
	ID           string
	UserID       string
	Provider     string
	AccountLabel string
	CurrencyBase string
	CreatedAt    time.Time
}

// Attachment is the uploaded blob behind an ingested file.
type Attachment struct {
	ID          string
	UserID      string
	SourceID    string
	StoragePath string
	Filename    string
	Size        int64
	ParsedAt    *time.Time
	CreatedAt   time.Time
}

// FXRate is a cached conversion rate for one day.
type FXRate struct {
	AsOfDate string
	Base     string
	Quote    string
	Rate     decimal.Decimal
}
