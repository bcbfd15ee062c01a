package pipeline

import (
	"context"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/enrichment"
	"github.com/sacha-rebbouh/optim-financials/internal/ocr"
	"github.com/sacha-rebbouh/optim-financials/internal/parsers"
	"github.com/sacha-rebbouh/optim-financials/internal/persist"
)

// SettingsLoader returns decrypted user settings.
type SettingsLoader interface {
	Get(ctx context.Context, userID string) (*domain.UserSettings, error)
}

// RuleSet loads and applies user rules.
type RuleSet interface {
	Load(ctx context.Context, userID string) ([]domain.Rule, error)
	ApplyAll(txs []domain.ParsedTransaction, rules []domain.Rule) []domain.ParsedTransaction
}

type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) enrichment.Result
}

type Persister interface {
	Persist(ctx context.Context, req persist.Request) persist.Result
}

// BlobStore reads and removes uploaded files.
type BlobStore interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
	Delete(ctx context.Context, uri string) error
}

// OCRFactory returns the text recognizer for a user's settings, or nil when
// OCR is disabled.
type OCRFactory func(s *domain.UserSettings) parsers.TextRecognizer

// SelectOCR adapts an OCR selector, applying per-user API keys.
func SelectOCR(sel *ocr.Selector) OCRFactory {
	return func(s *domain.UserSettings) parsers.TextRecognizer {
		if s == nil {
			s = &domain.UserSettings{}
		}
		p := sel.WithKeys(s.OCRSpaceAPIKey, s.GoogleVisionAPIKey).Select(s.OCRProvider)
		if p == nil {
			return nil
		}
		return p
	}
}
