// Package llm classifies merchant names through hosted language models.
// Each backend implements ClassificationProvider; Classify wraps any of them
// with the identity fallback so callers never see provider failures.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

// Provider names, as stored in user settings.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderLocal     = "local"
)

const (
	fallbackConfidence = 0.2
	defaultConfidence  = 0.5
)

var (
	// ErrMissingAPIKey is returned by hosted providers without a key.
	ErrMissingAPIKey = errors.New("llm: missing API key")
	// ErrInvalidResponse is returned when the model output is not the
	// expected JSON document.
	ErrInvalidResponse = errors.New("llm: invalid model response")
)

// MerchantRequest is one unique merchant to classify.
type MerchantRequest struct {
	OriginalName         string `json:"originalName"`
	MerchantCategoryHint string `json:"merchantCategoryHint"`
	Notes                string `json:"notes"`
}

// MerchantResult is the classification of one merchant.
type MerchantResult struct {
	OriginalName    string
	NormalizedName  string
	CategoryID      string
	CategoryName    string
	ConfidenceScore float64
	IsBusiness      *bool
	MasterFlag      *bool
	IsReimbursement *bool
}

// Usage is the token count reported by a hosted provider.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// BulkResult is the answer to one batched classification call.
type BulkResult struct {
	Results  []MerchantResult
	Warnings []string
	Usage    *Usage
}

// ClassifyRequest carries every unknown merchant of an ingestion call.
type ClassifyRequest struct {
	UserID     string
	APIKey     string // per-user key; empty uses the configured key
	Merchants  []MerchantRequest
	Categories []domain.Category
}

// ClassificationProvider is one classification backend.
type ClassificationProvider interface {
	Name() string
	Classify(ctx context.Context, req ClassifyRequest) (*BulkResult, error)
}

// Registry holds one provider per supported setting.
type Registry struct {
	Anthropic ClassificationProvider
	OpenAI    ClassificationProvider
	Gemini    ClassificationProvider
	Local     ClassificationProvider
}

// Resolve maps a provider setting to its implementation. Unknown settings and
// unregistered providers resolve to the local provider.
func Resolve(setting string, r Registry) ClassificationProvider {
	var p ClassificationProvider
	switch setting {
	case ProviderAnthropic:
		p = r.Anthropic
	case ProviderGemini:
		p = r.Gemini
	case ProviderOpenAI:
		p = r.OpenAI
	}
	if p == nil {
		if r.Local != nil {
			return r.Local
		}
		return Local{}
	}
	return p
}

// Classify calls p and degrades any failure into the identity mapping:
// every requested merchant keeps its original name with confidence 0.2 and
// a warning explains why. Usage reported before a failure is kept. The
// boolean reports whether the fallback was used.
func Classify(ctx context.Context, p ClassificationProvider, req ClassifyRequest) (*BulkResult, bool) {
	res, err := p.Classify(ctx, req)
	if err == nil && res != nil {
		return res, false
	}

	fallback := Identity(req.Merchants)
	fallback.Warnings = []string{fallbackWarning(p.Name(), err)}
	if res != nil {
		fallback.Usage = res.Usage
	}
	return fallback, true
}

// Identity maps every merchant to itself with the fallback confidence.
func Identity(merchants []MerchantRequest) *BulkResult {
	results := make([]MerchantResult, len(merchants))
	for i, m := range merchants {
		results[i] = MerchantResult{
			OriginalName:    m.OriginalName,
			NormalizedName:  m.OriginalName,
			ConfidenceScore: fallbackConfidence,
		}
	}
	return &BulkResult{Results: results}
}

func fallbackWarning(provider string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("%s returned no result, identity fallback used", provider)
	case errors.Is(err, ErrMissingAPIKey):
		return fmt.Sprintf("%s API key missing, identity fallback used", provider)
	case errors.Is(err, ErrInvalidResponse):
		return fmt.Sprintf("invalid %s response, identity fallback used", provider)
	default:
		return fmt.Sprintf("%s error: %v", provider, err)
	}
}
