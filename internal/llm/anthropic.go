package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
)

const anthropicVersion = "2023-06-01"

// Anthropic classifies through the Messages API.
type Anthropic struct {
	client  *httpclient.Client
	baseURL string
	model   string
	apiKey  string
}

func NewAnthropic(client *httpclient.Client, baseURL, model, apiKey string) *Anthropic {
	return &Anthropic{client: client, baseURL: strings.TrimRight(baseURL, "/"), model: model, apiKey: apiKey}
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (a *Anthropic) Classify(ctx context.Context, req ClassifyRequest) (*BulkResult, error) {
	key := firstNonEmpty(req.APIKey, a.apiKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	prompt, err := buildPrompt(req.Merchants, req.Categories)
	if err != nil {
		return nil, fmt.Errorf("Classify: %w", err)
	}

	body := anthropicRequest{
		Model:       a.model,
		MaxTokens:   4000,
		Temperature: 0.2,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	}
	resp, err := a.client.Post(ctx, a.baseURL+"/v1/messages", func(r *resty.Request) *resty.Request {
		return r.
			SetHeader("x-api-key", key).
			SetHeader("anthropic-version", anthropicVersion).
			SetHeader("Content-Type", "application/json").
			SetBody(body)
	})
	if err != nil {
		return nil, fmt.Errorf("Classify: anthropic request: %w", err)
	}

	var out anthropicResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("Classify: %w: %v", ErrInvalidResponse, err)
	}
	var usage *Usage
	if out.Usage != nil {
		usage = &Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens}
	}

	var text string
	if len(out.Content) > 0 {
		text = out.Content[0].Text
	}
	res, err := parseModelOutput(text)
	if err != nil {
		return &BulkResult{Usage: usage}, fmt.Errorf("Classify: %w", err)
	}
	res.Usage = usage
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
