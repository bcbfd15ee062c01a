// Package lookup queries an external merchant directory for merchants the
// classifier was unsure about.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
)

// Result is what the directory knows about a merchant.
type Result struct {
	NormalizedName string
	Website        string
	Confidence     *float64
	Raw            string // response body as received
}

type Client struct {
	http   *httpclient.Client
	url    string
	apiKey string
}

// New returns nil when the lookup service is not configured.
func New(cfg config.LookupConfig, http *httpclient.Client) *Client {
	if !cfg.Enabled() {
		return nil
	}
	return &Client{http: http, url: cfg.URL, apiKey: cfg.APIKey}
}

type response struct {
	NormalizedName string   `json:"normalizedName"`
	Name           string   `json:"name"`
	Website        string   `json:"website"`
	URL            string   `json:"url"`
	Confidence     *float64 `json:"confidence"`
}

// Lookup searches for name. A nil result with a nil error means the
// directory had nothing usable.
func (c *Client) Lookup(ctx context.Context, name string) (*Result, error) {
	resp, err := c.http.Post(ctx, c.url, func(r *resty.Request) *resty.Request {
		return r.
			SetAuthToken(c.apiKey).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"query": name})
	})
	if err != nil {
		return nil, fmt.Errorf("Lookup: %w", err)
	}

	var out response
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("Lookup: decoding response: %w", err)
	}
	res := &Result{
		NormalizedName: out.NormalizedName,
		Website:        out.Website,
		Confidence:     out.Confidence,
		Raw:            string(resp.Body()),
	}
	if res.NormalizedName == "" {
		res.NormalizedName = out.Name
	}
	if res.Website == "" {
		res.Website = out.URL
	}
	if res.NormalizedName == "" {
		return nil, nil
	}
	return res, nil
}
