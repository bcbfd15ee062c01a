package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
)

// OpenAI classifies through the Responses API.
type OpenAI struct {
	client  *httpclient.Client
	baseURL string
	model   string
	apiKey  string
}

func NewOpenAI(client *httpclient.Client, baseURL, model, apiKey string) *OpenAI {
	return &OpenAI{client: client, baseURL: strings.TrimRight(baseURL, "/"), model: model, apiKey: apiKey}
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

type openAIRequest struct {
	Model       string  `json:"model"`
	Input       string  `json:"input"`
	Temperature float64 `json:"temperature"`
}

type openAIResponse struct {
	Output []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	OutputText string `json:"output_text"`
	Usage      *struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (r openAIResponse) text() string {
	if len(r.Output) > 0 && len(r.Output[0].Content) > 0 {
		return r.Output[0].Content[0].Text
	}
	return r.OutputText
}

func (o *OpenAI) Classify(ctx context.Context, req ClassifyRequest) (*BulkResult, error) {
	key := firstNonEmpty(req.APIKey, o.apiKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	prompt, err := buildPrompt(req.Merchants, req.Categories)
	if err != nil {
		return nil, fmt.Errorf("Classify: %w", err)
	}

	body := openAIRequest{Model: o.model, Input: prompt, Temperature: 0.2}
	resp, err := o.client.Post(ctx, o.baseURL+"/v1/responses", func(r *resty.Request) *resty.Request {
		return r.
			SetAuthToken(key).
			SetHeader("Content-Type", "application/json").
			SetBody(body)
	})
	if err != nil {
		return nil, fmt.Errorf("Classify: openai request: %w", err)
	}

	var out openAIResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("Classify: %w: %v", ErrInvalidResponse, err)
	}
	var usage *Usage
	if out.Usage != nil {
		usage = &Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens}
	}

	res, err := parseModelOutput(out.text())
	if err != nil {
		return &BulkResult{Usage: usage}, fmt.Errorf("Classify: %w", err)
	}
	res.Usage = usage
	return res, nil
}
