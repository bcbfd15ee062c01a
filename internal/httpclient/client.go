// Package httpclient wraps resty with retries, logging and request metrics
// for every outbound call of the service (classification providers, OCR,
// FX rates, merchant lookup).
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
)

const defaultRetryWait = 250 * time.Millisecond

// StatusError is returned when the remote answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	Service    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
}

// OptionsFromConfig builds client options for one named service.
func OptionsFromConfig(cfg config.HTTPClientConfig, service string) Options {
	return Options{Service: service, Timeout: cfg.Timeout, MaxRetries: cfg.MaxRetries}
}

// Client sends requests to a single external service.
type Client struct {
	rest    *resty.Client
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New builds a client. m may be nil.
func New(opts Options, m *metrics.Metrics, log zerolog.Logger) *Client {
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	rest := resty.New()
	if opts.Timeout > 0 {
		rest.SetTimeout(opts.Timeout)
	}
	return &Client{
		rest:    rest,
		opts:    opts,
		metrics: m,
		log:     log.With().Str("service", opts.Service).Logger(),
	}
}

// Do sends method url. reqFunc decorates a fresh request on every attempt,
// so request bodies built from readers must be created inside it.
// Transport errors, 429 and 5xx are retried with exponential backoff; any
// other non-2xx status is returned immediately as a *StatusError.
func (c *Client) Do(ctx context.Context, method, url string, reqFunc func(*resty.Request) *resty.Request) (*resty.Response, error) {
	var resp *resty.Response

	operation := func() error {
		started := time.Now()
		req := c.rest.R().SetContext(ctx)
		if reqFunc != nil {
			req = reqFunc(req)
		}

		r, err := req.Execute(method, url)
		if err != nil {
			c.metrics.RecordHTTP(time.Since(started), c.opts.Service, method, 0)
			c.log.Warn().Err(err).Str("method", method).Msg("request failed")
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		c.metrics.RecordHTTP(time.Since(started), c.opts.Service, method, r.StatusCode())
		resp = r

		if r.IsSuccess() {
			return nil
		}
		statusErr := &StatusError{StatusCode: r.StatusCode(), Body: truncate(r.String(), 512)}
		c.log.Warn().Int("status", r.StatusCode()).Str("method", method).Msg("unexpected response status")
		if retryable(r.StatusCode()) {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.RetryWait
	retries := c.opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return resp, fmt.Errorf("Do: %s %s: %w", c.opts.Service, method, err)
	}
	return resp, nil
}

// Get is Do with GET.
func (c *Client) Get(ctx context.Context, url string, reqFunc func(*resty.Request) *resty.Request) (*resty.Response, error) {
	return c.Do(ctx, http.MethodGet, url, reqFunc)
}

// Post is Do with POST.
func (c *Client) Post(ctx context.Context, url string, reqFunc func(*resty.Request) *resty.Request) (*resty.Response, error) {
	return c.Do(ctx, http.MethodPost, url, reqFunc)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
