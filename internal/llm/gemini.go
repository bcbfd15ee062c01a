package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini classifies through the genai SDK. A client is built per call since
// the API key may differ per user.
type Gemini struct {
	model   string
	apiKey  string
	baseURL string // empty uses the SDK default
}

func NewGemini(model, apiKey string) *Gemini {
	return &Gemini{model: model, apiKey: apiKey}
}

// WithBaseURL points the SDK at another endpoint.
func (g *Gemini) WithBaseURL(url string) *Gemini {
	c := *g
	c.baseURL = url
	return &c
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Classify(ctx context.Context, req ClassifyRequest) (*BulkResult, error) {
	key := firstNonEmpty(req.APIKey, g.apiKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	prompt, err := buildPrompt(req.Merchants, req.Categories)
	if err != nil {
		return nil, fmt.Errorf("Classify: %w", err)
	}

	cfg := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Classify: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	resp, err := client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("Classify: generate content: %w", err)
	}

	var usage *Usage
	if md := resp.UsageMetadata; md != nil {
		usage = &Usage{InputTokens: int64(md.PromptTokenCount), OutputTokens: int64(md.CandidatesTokenCount)}
	}

	res, err := parseModelOutput(resp.Text())
	if err != nil {
		return &BulkResult{Usage: usage}, fmt.Errorf("Classify: %w", err)
	}
	res.Usage = usage
	return res, nil
}
