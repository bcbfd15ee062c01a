package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
)

// GoogleVision calls images:annotate with DOCUMENT_TEXT_DETECTION.
type GoogleVision struct {
	client *httpclient.Client
	url    string
	apiKey string
	log    zerolog.Logger
}

func NewGoogleVision(client *httpclient.Client, url, apiKey string, log zerolog.Logger) *GoogleVision {
	return &GoogleVision{client: client, url: url, apiKey: apiKey, log: log}
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionAnnotate struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionRequest struct {
	Requests []visionAnnotate `json:"requests"`
}

type visionResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
	} `json:"responses"`
}

func (g *GoogleVision) ExtractText(ctx context.Context, data []byte) (string, error) {
	if g.apiKey == "" {
		g.log.Debug().Msg("google vision key not configured")
		return "", nil
	}

	body := visionRequest{Requests: []visionAnnotate{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(data)},
		Features: []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
	}}}

	resp, err := g.client.Post(ctx, g.url, func(r *resty.Request) *resty.Request {
		return r.
			SetQueryParam("key", g.apiKey).
			SetHeader("Content-Type", "application/json").
			SetBody(body)
	})
	if err != nil {
		return "", fmt.Errorf("ExtractText: vision request: %w", err)
	}

	var out visionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("ExtractText: decoding vision response: %w", err)
	}
	if len(out.Responses) == 0 {
		return "", nil
	}
	first := out.Responses[0]
	if first.FullTextAnnotation != nil && first.FullTextAnnotation.Text != "" {
		return first.FullTextAnnotation.Text, nil
	}
	if len(first.TextAnnotations) > 0 {
		return first.TextAnnotations[0].Description, nil
	}
	return "", nil
}
