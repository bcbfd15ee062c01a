// Package api assembles the HTTP surface of the ingestion service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/api/handlers"
	"github.com/sacha-rebbouh/optim-financials/internal/api/middleware"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
)

// Handlers groups the endpoint handlers served by the router.
type Handlers struct {
	Upload      *handlers.UploadHandler
	Jobs        *handlers.JobsHandler
	Consolidate *handlers.ConsolidateHandler
}

// NewRouter registers every route and wraps them in the middleware chain.
// gatherer serves /metrics; nil disables the endpoint.
func NewRouter(h Handlers, gatherer prometheus.Gatherer, m *metrics.Metrics, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.Upload.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.Jobs.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		h.Jobs.GetJob(w, r, jobID)
	})

	mux.HandleFunc("/api/consolidate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.Consolidate.Stats(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/consolidate/cleanup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.Consolidate.Cleanup(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log, m)(
				middleware.CORS(
					middleware.UserID(mux),
				),
			),
		),
	)
}
