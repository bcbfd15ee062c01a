// Package ocr recognizes text in image-only PDF statements through hosted
// OCR services.
package ocr

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
)

// OCR settings values.
const (
	SettingLocal    = "local"
	SettingGoogle   = "google"
	SettingOCRSpace = "ocrspace"
)

// Provider extracts text from a document. A provider without an API key
// returns an empty string and no error.
type Provider interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// Selector picks the provider matching a user's OCR setting.
type Selector struct {
	cfg  config.OCRConfig
	http config.HTTPClientConfig
	m    *metrics.Metrics
	log  zerolog.Logger
}

func NewSelector(cfg config.OCRConfig, httpCfg config.HTTPClientConfig, m *metrics.Metrics, log zerolog.Logger) *Selector {
	return &Selector{cfg: cfg, http: httpCfg, m: m, log: log}
}

// WithKeys returns a selector whose API keys are replaced by the non-empty
// per-user keys given.
func (s *Selector) WithKeys(ocrSpaceKey, visionKey string) *Selector {
	c := *s
	if ocrSpaceKey != "" {
		c.cfg.OCRSpaceAPIKey = ocrSpaceKey
	}
	if visionKey != "" {
		c.cfg.GoogleVisionAPIKey = visionKey
	}
	return &c
}

// Select returns nil for "local", Google Vision for "google" and OCR.space
// for anything else.
func (s *Selector) Select(setting string) Provider {
	switch setting {
	case SettingLocal:
		return nil
	case SettingGoogle:
		client := httpclient.New(httpclient.OptionsFromConfig(s.http, "google_vision"), s.m, s.log)
		return NewGoogleVision(client, s.cfg.GoogleVisionURL, s.cfg.GoogleVisionAPIKey, s.log)
	default:
		client := httpclient.New(httpclient.OptionsFromConfig(s.http, "ocr_space"), s.m, s.log)
		return NewOCRSpace(client, s.cfg.OCRSpaceURL, s.cfg.OCRSpaceAPIKey, s.log)
	}
}
