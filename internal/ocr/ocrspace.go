package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
)

// OCRSpace calls the OCR.space parse endpoint with a multipart upload.
type OCRSpace struct {
	client *httpclient.Client
	url    string
	apiKey string
	log    zerolog.Logger
}

func NewOCRSpace(client *httpclient.Client, url, apiKey string, log zerolog.Logger) *OCRSpace {
	return &OCRSpace{client: client, url: url, apiKey: apiKey, log: log}
}

type ocrSpaceResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
}

func (o *OCRSpace) ExtractText(ctx context.Context, data []byte) (string, error) {
	if o.apiKey == "" {
		o.log.Debug().Msg("ocr.space key not configured")
		return "", nil
	}

	resp, err := o.client.Post(ctx, o.url, func(r *resty.Request) *resty.Request {
		return r.
			SetHeader("apikey", o.apiKey).
			SetFileReader("file", "document.pdf", bytes.NewReader(data)).
			SetMultipartFormData(map[string]string{
				"language":          "heb",
				"isOverlayRequired": "false",
			})
	})
	if err != nil {
		return "", fmt.Errorf("ExtractText: ocr.space request: %w", err)
	}

	var out ocrSpaceResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("ExtractText: decoding ocr.space response: %w", err)
	}
	if len(out.ParsedResults) == 0 {
		return "", nil
	}
	return out.ParsedResults[0].ParsedText, nil
}
