package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

func buildPrompt(merchants []MerchantRequest, categories []domain.Category) (string, error) {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	catJSON, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return "", fmt.Errorf("buildPrompt: marshal categories: %w", err)
	}
	merchantJSON, err := json.MarshalIndent(merchants, "", "  ")
	if err != nil {
		return "", fmt.Errorf("buildPrompt: marshal merchants: %w", err)
	}

	prompt := "You normalize merchant names found on bank and credit card statements.\n" +
		"Return ONLY strict JSON with a single key \"results\".\n" +
		"Each item must contain:\n" +
		"- originalName (exactly as given)\n" +
		"- normalizedName (clear merchant name without transaction details)\n" +
		"- categoryName (chosen from the category list)\n" +
		"- confidenceScore (0 to 1)\n" +
		"- isBusiness (optional)\n" +
		"- masterFlag (optional)\n" +
		"- isReimbursement (optional)\n\n" +
		"Do NOT wrap the response in code fences.\n\n" +
		"Categories:\n" + string(catJSON) + "\n\n" +
		"Merchants:\n" + string(merchantJSON)
	return prompt, nil
}

type modelItem struct {
	OriginalName    string   `json:"originalName"`
	NormalizedName  string   `json:"normalizedName"`
	CategoryID      string   `json:"categoryId"`
	CategoryName    string   `json:"categoryName"`
	ConfidenceScore *float64 `json:"confidenceScore"`
	IsBusiness      *bool    `json:"isBusiness"`
	MasterFlag      *bool    `json:"masterFlag"`
	IsReimbursement *bool    `json:"isReimbursement"`
}

type modelOutput struct {
	Results  *[]modelItem `json:"results"`
	Warnings []string     `json:"warnings"`
}

// parseModelOutput decodes the {"results":[...]} document a model returned.
func parseModelOutput(raw string) (*BulkResult, error) {
	var out modelOutput
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Results == nil {
		return nil, fmt.Errorf("%w: no results key", ErrInvalidResponse)
	}

	res := &BulkResult{Warnings: out.Warnings}
	for _, item := range *out.Results {
		confidence := defaultConfidence
		if item.ConfidenceScore != nil {
			confidence = clampConfidence(*item.ConfidenceScore)
		}
		res.Results = append(res.Results, MerchantResult{
			OriginalName:    item.OriginalName,
			NormalizedName:  item.NormalizedName,
			CategoryID:      item.CategoryID,
			CategoryName:    item.CategoryName,
			ConfidenceScore: confidence,
			IsBusiness:      item.IsBusiness,
			MasterFlag:      item.MasterFlag,
			IsReimbursement: item.IsReimbursement,
		})
	}
	return res, nil
}

// clampConfidence keeps a model reported score within [0, 1].
func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = strings.TrimSpace(s[idx+1:])
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
