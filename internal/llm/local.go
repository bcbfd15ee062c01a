package llm

import (
	"context"

	"github.com/sacha-rebbouh/optim-financials/internal/patterns"
)

const localConfidence = 0.35

// Local normalizes whitespace only. It is used when no hosted provider is
// configured or the user is over budget.
type Local struct{}

func (Local) Name() string { return ProviderLocal }

func (Local) Classify(_ context.Context, req ClassifyRequest) (*BulkResult, error) {
	results := make([]MerchantResult, len(req.Merchants))
	for i, m := range req.Merchants {
		results[i] = MerchantResult{
			OriginalName:    m.OriginalName,
			NormalizedName:  patterns.CollapseSpaces(m.OriginalName),
			ConfidenceScore: localConfidence,
		}
	}
	return &BulkResult{
		Results:  results,
		Warnings: []string{"LLM provider not configured, using local normalization"},
	}, nil
}
