package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
)

type mockProvider struct {
	name         string
	ClassifyFunc func(ctx context.Context, req ClassifyRequest) (*BulkResult, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Classify(ctx context.Context, req ClassifyRequest) (*BulkResult, error) {
	return m.ClassifyFunc(ctx, req)
}

func testHTTP() *httpclient.Client {
	return httpclient.New(httpclient.Options{Service: "llm", Timeout: 2 * time.Second, RetryWait: time.Millisecond}, nil, zerolog.Nop())
}

var twoMerchants = ClassifyRequest{
	UserID:     "u1",
	Merchants:  []MerchantRequest{{OriginalName: "SHUFERSAL  DEAL"}, {OriginalName: "PAZ 123"}},
	Categories: []domain.Category{{ID: "c1", Name: "Groceries"}},
}

const modelJSON = "```json\n" + `{"results":[{"originalName":"SHUFERSAL  DEAL","normalizedName":"Shufersal","categoryName":"groceries","confidenceScore":0.9,"isBusiness":false},{"originalName":"PAZ 123","normalizedName":"Paz"}]}` + "\n```"

func TestResolve(t *testing.T) {
	a, o, g, l := &mockProvider{name: "a"}, &mockProvider{name: "o"}, &mockProvider{name: "g"}, &mockProvider{name: "l"}
	r := Registry{Anthropic: a, OpenAI: o, Gemini: g, Local: l}

	assert.Same(t, a, Resolve("anthropic", r))
	assert.Same(t, o, Resolve("openai", r))
	assert.Same(t, g, Resolve("gemini", r))
	assert.Same(t, l, Resolve("local", r))
	assert.Same(t, l, Resolve("mistral", r))
	assert.Same(t, l, Resolve("", r))
	assert.Equal(t, Local{}, Resolve("anthropic", Registry{}))
}

func TestClassifyFallsBackToIdentity(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		warning string
	}{
		{"missing key", ErrMissingAPIKey, "anthropic API key missing, identity fallback used"},
		{"invalid output", ErrInvalidResponse, "invalid anthropic response, identity fallback used"},
		{"transport", errors.New("dial tcp: refused"), "anthropic error: dial tcp: refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{name: "anthropic", ClassifyFunc: func(context.Context, ClassifyRequest) (*BulkResult, error) {
				return &BulkResult{Usage: &Usage{InputTokens: 7}}, tt.err
			}}

			res, degraded := Classify(context.Background(), p, twoMerchants)

			assert.True(t, degraded)
			assert.Equal(t, []string{tt.warning}, res.Warnings)
			require.Len(t, res.Results, 2)
			for i, r := range res.Results {
				assert.Equal(t, twoMerchants.Merchants[i].OriginalName, r.NormalizedName)
				assert.Equal(t, 0.2, r.ConfidenceScore)
			}
			assert.EqualValues(t, 7, res.Usage.InputTokens)
		})
	}
}

func TestParseModelOutput(t *testing.T) {
	res, err := parseModelOutput(modelJSON)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "Shufersal", res.Results[0].NormalizedName)
	assert.Equal(t, "groceries", res.Results[0].CategoryName)
	assert.Equal(t, 0.9, res.Results[0].ConfidenceScore)
	assert.False(t, *res.Results[0].IsBusiness)
	assert.Equal(t, 0.5, res.Results[1].ConfidenceScore)
	assert.Nil(t, res.Results[1].IsBusiness)

	_, err = parseModelOutput("I cannot help with that")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	_, err = parseModelOutput(`{"items":[]}`)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseModelOutputClampsConfidence(t *testing.T) {
	res, err := parseModelOutput(`{"results":[
		{"originalName":"A","normalizedName":"A","confidenceScore":1.7},
		{"originalName":"B","normalizedName":"B","confidenceScore":-0.3},
		{"originalName":"C","normalizedName":"C","confidenceScore":0.45}
	]}`)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.Equal(t, 1.0, res.Results[0].ConfidenceScore)
	assert.Equal(t, 0.0, res.Results[1].ConfidenceScore)
	assert.Equal(t, 0.45, res.Results[2].ConfidenceScore)
}

func TestCleanModelJSON(t *testing.T) {
	assert.Equal(t, `{"results":[]}`, cleanModelJSON("```json\n{\"results\":[]}\n```"))
	assert.Equal(t, `{"results":[]}`, cleanModelJSON("Here you go: {\"results\":[]} hope it helps"))
	assert.Equal(t, `{"a":1}`, cleanModelJSON(`  {"a":1}  `))
}

func TestBuildPromptListsCategoriesAndMerchants(t *testing.T) {
	prompt, err := buildPrompt(twoMerchants.Merchants, twoMerchants.Categories)
	require.NoError(t, err)
	assert.Contains(t, prompt, `"Groceries"`)
	assert.Contains(t, prompt, `"originalName": "PAZ 123"`)
	assert.Contains(t, prompt, "results")
}

func TestLocal(t *testing.T) {
	res, err := Local{}.Classify(context.Background(), twoMerchants)
	require.NoError(t, err)
	assert.Equal(t, "SHUFERSAL DEAL", res.Results[0].NormalizedName)
	assert.Equal(t, 0.35, res.Results[0].ConfidenceScore)
	assert.Equal(t, []string{"LLM provider not configured, using local normalization"}, res.Warnings)
}

func TestAnthropicClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "user-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.True(t, strings.Contains(req.Messages[0].Content, "SHUFERSAL  DEAL"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": modelJSON}},
			"usage":   map[string]any{"input_tokens": 120, "output_tokens": 40},
		})
	}))
	defer srv.Close()

	req := twoMerchants
	req.APIKey = "user-key"
	res, err := NewAnthropic(testHTTP(), srv.URL+"/", "claude-test", "config-key").Classify(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, &Usage{InputTokens: 120, OutputTokens: 40}, res.Usage)
}

func TestAnthropicDegradesOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid x-api-key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	res, degraded := Classify(context.Background(), NewAnthropic(testHTTP(), srv.URL, "m", "bad"), twoMerchants)
	assert.True(t, degraded)
	assert.NotEmpty(t, res.Warnings)
	assert.Equal(t, "PAZ 123", res.Results[1].NormalizedName)
	assert.Equal(t, 0.2, res.Results[1].ConfidenceScore)
}

func TestAnthropicMissingKey(t *testing.T) {
	_, err := NewAnthropic(testHTTP(), "http://unused", "m", "").Classify(context.Background(), twoMerchants)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestOpenAIClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer config-key", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{{"content": []map[string]any{{"type": "output_text", "text": modelJSON}}}},
			"usage":  map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	res, err := NewOpenAI(testHTTP(), srv.URL, "gpt-test", "config-key").Classify(context.Background(), twoMerchants)
	require.NoError(t, err)
	assert.Equal(t, "Paz", res.Results[1].NormalizedName)
	assert.EqualValues(t, 5, res.Usage.OutputTokens)
}

func TestOpenAIInvalidOutputKeepsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output_text":"not json","usage":{"input_tokens":3,"output_tokens":1}}`))
	}))
	defer srv.Close()

	res, err := NewOpenAI(testHTTP(), srv.URL, "gpt-test", "k").Classify(context.Background(), twoMerchants)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	require.NotNil(t, res)
	assert.EqualValues(t, 3, res.Usage.InputTokens)
}

func TestGeminiClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": modelJSON}}},
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 11, "candidatesTokenCount": 4},
		})
	}))
	defer srv.Close()

	res, err := NewGemini("gemini-test", "k").WithBaseURL(srv.URL+"/").Classify(context.Background(), twoMerchants)
	require.NoError(t, err)
	assert.Equal(t, "Shufersal", res.Results[0].NormalizedName)
	assert.Equal(t, &Usage{InputTokens: 11, OutputTokens: 4}, res.Usage)
}

func TestGeminiMissingKey(t *testing.T) {
	_, err := NewGemini("m", "").Classify(context.Background(), twoMerchants)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
