// Package fx converts transaction amounts into the user's base currency.
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

var one = decimal.NewFromInt(1)

// Resolver returns daily (base, quote) rates, reading the durable cache
// before the rate API. Every failure resolves to a rate of 1.
type Resolver struct {
	repo    store.FXRateRepository
	http    *httpclient.Client
	baseURL string
	metrics *metrics.Metrics
	log     zerolog.Logger
	group   singleflight.Group
}

// NewResolver builds a resolver. repo may be nil, in which case rates are
// fetched on every call and never persisted.
func NewResolver(repo store.FXRateRepository, http *httpclient.Client, baseURL string, m *metrics.Metrics, log zerolog.Logger) *Resolver {
	return &Resolver{
		repo:    repo,
		http:    http,
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: m,
		log:     log,
	}
}

// Rate returns how many units of quote one unit of base buys on date
// (YYYY-MM-DD). The amount in base currency is amount / rate.
func (r *Resolver) Rate(ctx context.Context, date, base, quote string) decimal.Decimal {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	if base == quote || base == "" || quote == "" {
		return one
	}

	key := date + "|" + base + "|" + quote
	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		return r.resolve(ctx, date, base, quote), nil
	})
	return v.(decimal.Decimal)
}

func (r *Resolver) resolve(ctx context.Context, date, base, quote string) decimal.Decimal {
	log := r.log.With().Str("date", date).Str("base", base).Str("quote", quote).Logger()

	if r.repo != nil {
		cached, err := r.repo.GetFXRate(ctx, date, base, quote)
		switch {
		case err == nil && cached.Rate.IsPositive():
			return cached.Rate
		case err != nil && !errors.Is(err, store.ErrNotFound):
			log.Warn().Err(err).Msg("reading cached fx rate failed")
		}
	}

	rate, err := r.fetch(ctx, date, base, quote)
	if err != nil {
		log.Warn().Err(err).Msg("fx rate unavailable, using 1")
		r.metrics.RecordFallback("fx")
		return one
	}

	if r.repo != nil {
		if err := r.repo.InsertFXRate(ctx, domain.FXRate{AsOfDate: date, Base: base, Quote: quote, Rate: rate}); err != nil {
			log.Warn().Err(err).Msg("persisting fx rate failed")
		}
	}
	return rate
}

type ratesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (r *Resolver) fetch(ctx context.Context, date, base, quote string) (decimal.Decimal, error) {
	if r.http == nil || r.baseURL == "" {
		return decimal.Zero, errors.New("fetch: rate API not configured")
	}

	resp, err := r.http.Get(ctx, r.baseURL+"/"+date, func(req *resty.Request) *resty.Request {
		return req.SetQueryParams(map[string]string{"base": base, "symbols": quote})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch: %w", err)
	}

	var out ratesResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return decimal.Zero, fmt.Errorf("fetch: decoding response: %w", err)
	}
	rate, ok := out.Rates[quote]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fetch: no positive %s rate in response", quote)
	}
	return rate, nil
}
