package lookup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
)

func testHTTP() *httpclient.Client {
	return httpclient.New(httpclient.Options{Service: "lookup", Timeout: time.Second, RetryWait: time.Millisecond}, nil, zerolog.Nop())
}

func TestNewDisabledWithoutConfig(t *testing.T) {
	assert.Nil(t, New(config.LookupConfig{URL: "http://x"}, testHTTP()))
	assert.Nil(t, New(config.LookupConfig{APIKey: "k"}, testHTTP()))
	assert.NotNil(t, New(config.LookupConfig{URL: "http://x", APIKey: "k"}, testHTTP()))
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantName string
		wantSite string
		wantNil  bool
	}{
		{"primary fields", `{"normalizedName":"Super-Pharm","website":"https://shop.super-pharm.co.il","confidence":0.92}`, "Super-Pharm", "https://shop.super-pharm.co.il", false},
		{"alternate fields", `{"name":"Rami Levy","url":"https://ramilevy.co.il"}`, "Rami Levy", "https://ramilevy.co.il", false},
		{"nothing found", `{}`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "SUPER PHARM", body["query"])
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(config.LookupConfig{URL: srv.URL, APIKey: "k"}, testHTTP())
			res, err := c.Lookup(context.Background(), "SUPER PHARM")
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, res)
				return
			}
			assert.Equal(t, tt.wantName, res.NormalizedName)
			assert.Equal(t, tt.wantSite, res.Website)
			assert.JSONEq(t, tt.body, res.Raw)
		})
	}
}

func TestLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res, err := New(config.LookupConfig{URL: srv.URL, APIKey: "k"}, testHTTP()).Lookup(context.Background(), "x")
	assert.Error(t, err)
	assert.Nil(t, res)
}
