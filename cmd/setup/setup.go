// Package setup wires the ingestion service from its configuration. Every
// binary under cmd/ builds its collaborators through Init.
package setup

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/categories"
	"github.com/sacha-rebbouh/optim-financials/internal/config"
	"github.com/sacha-rebbouh/optim-financials/internal/enrichment"
	"github.com/sacha-rebbouh/optim-financials/internal/fx"
	"github.com/sacha-rebbouh/optim-financials/internal/gcsuploader"
	"github.com/sacha-rebbouh/optim-financials/internal/httpclient"
	infraBQ "github.com/sacha-rebbouh/optim-financials/internal/infra/bigquery"
	"github.com/sacha-rebbouh/optim-financials/internal/infra/postgres"
	"github.com/sacha-rebbouh/optim-financials/internal/infra/sqlite"
	"github.com/sacha-rebbouh/optim-financials/internal/llm"
	"github.com/sacha-rebbouh/optim-financials/internal/lookup"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
	"github.com/sacha-rebbouh/optim-financials/internal/ocr"
	"github.com/sacha-rebbouh/optim-financials/internal/persist"
	"github.com/sacha-rebbouh/optim-financials/internal/pipeline"
	"github.com/sacha-rebbouh/optim-financials/internal/rules"
	"github.com/sacha-rebbouh/optim-financials/internal/settings"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
	"github.com/sacha-rebbouh/optim-financials/internal/usage"
)

// Stopper releases one resource acquired by Init.
type Stopper func(ctx context.Context) error

type Setup struct {
	Config       *config.Config
	Log          zerolog.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Store        store.Store
	Blobs        *gcsuploader.Store // nil without a bucket
	Settings     *settings.Service
	Rules        *rules.Engine
	Ingestor     *pipeline.Ingestor
	Consolidator *persist.Consolidator
}

// Init builds every collaborator. The returned stoppers must be passed to
// Stop even when Init fails part way.
func Init(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Setup, []Stopper, error) {
	var stoppers []Stopper

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, stoppers, fmt.Errorf("Init: opening store: %w", err)
	}
	stoppers = append(stoppers, func(context.Context) error { return st.Close() })

	memo, stop, err := newMemo(ctx, cfg.Redis, log)
	if err != nil {
		return nil, stoppers, fmt.Errorf("Init: %w", err)
	}
	if stop != nil {
		stoppers = append(stoppers, stop)
	}

	var cipher *settings.Cipher
	if cfg.Security.SettingsEncryptionKey != "" {
		if cipher, err = settings.NewCipher(cfg.Security.SettingsEncryptionKey); err != nil {
			return nil, stoppers, fmt.Errorf("Init: %w", err)
		}
	} else {
		log.Warn().Msg("no settings encryption key, stored API keys are used as is")
	}

	client := func(service string) *httpclient.Client {
		return httpclient.New(httpclient.OptionsFromConfig(cfg.HTTPClient, service), m, log)
	}

	settingsSvc := settings.NewService(st, cipher, settings.Defaults{
		BaseCurrency: cfg.Ingest.BaseCurrency,
		LLMProvider:  cfg.LLM.DefaultProvider,
	}, log)
	ruleEngine := rules.NewEngine(st)

	enrichDeps := enrichment.Deps{
		Cache: enrichment.NewCache(memo, st, log),
		Providers: llm.Registry{
			Anthropic: llm.NewAnthropic(client(llm.ProviderAnthropic), cfg.LLM.AnthropicBaseURL, cfg.LLM.AnthropicModel, cfg.LLM.AnthropicAPIKey),
			OpenAI:    llm.NewOpenAI(client(llm.ProviderOpenAI), cfg.LLM.OpenAIBaseURL, cfg.LLM.OpenAIModel, cfg.LLM.OpenAIAPIKey),
			Gemini:    llm.NewGemini(cfg.LLM.GeminiModel, cfg.LLM.GeminiAPIKey),
			Local:     llm.Local{},
		},
		DefaultProvider: cfg.LLM.DefaultProvider,
		Categories:      categories.NewService(st),
		Usage:           usage.NewTracker(st),
		LookupThreshold: cfg.Ingest.LowConfidenceLookupAt,
		Metrics:         m,
		Log:             log,
	}
	if lc := lookup.New(cfg.Lookup, client("lookup")); lc != nil {
		enrichDeps.Lookup = lc
	}

	rates := fx.NewResolver(st, client("fx"), cfg.FX.BaseURL, m, log)
	persister := persist.NewPersister(st, rates, persist.Options{
		BaseCurrency:  cfg.Ingest.BaseCurrency,
		SurfaceErrors: cfg.Ingest.SurfacePersistErrors,
	}, m, log)

	ingestDeps := pipeline.Deps{
		Settings:             settingsSvc,
		Rules:                ruleEngine,
		Enricher:             enrichment.New(enrichDeps),
		Persister:            persister,
		OCR:                  pipeline.SelectOCR(ocr.NewSelector(cfg.OCR, cfg.HTTPClient, m, log)),
		DeleteBlobAfterParse: cfg.Ingest.DeleteBlobAfterParse,
		Metrics:              m,
		Log:                  log,
	}

	var blobs *gcsuploader.Store
	if cfg.Storage.Bucket != "" {
		if blobs, err = gcsuploader.New(ctx, cfg.Storage.Bucket); err != nil {
			return nil, stoppers, fmt.Errorf("Init: %w", err)
		}
		stoppers = append(stoppers, func(context.Context) error { return blobs.Close() })
		ingestDeps.Blobs = blobs
	} else {
		log.Warn().Msg("no storage bucket configured, uploads are kept in memory")
	}

	return &Setup{
		Config:       cfg,
		Log:          log,
		Registry:     reg,
		Metrics:      m,
		Store:        st,
		Blobs:        blobs,
		Settings:     settingsSvc,
		Rules:        ruleEngine,
		Ingestor:     pipeline.NewIngestor(ingestDeps),
		Consolidator: persist.NewConsolidator(st, log),
	}, stoppers, nil
}

// OpenStore connects the configured store backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverSQLite:
		var s *sqlite.Store
		if s, err = sqlite.Open(cfg.SQLitePath, log); err == nil {
			st = s
		}
	case config.DriverPostgres:
		var s *postgres.Store
		if s, err = postgres.Open(ctx, cfg, log); err == nil {
			st = s
		}
	case config.DriverBigQuery:
		var s *infraBQ.Store
		if s, err = infraBQ.Open(ctx, cfg, log); err == nil {
			st = s
		}
	default:
		err = fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("OpenStore: %w", err)
	}
	return st, nil
}

// newMemo connects the shared Redis memo, or returns an in-process memo
// when no address is configured.
func newMemo(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (enrichment.Memo, Stopper, error) {
	if cfg.Addr == "" {
		return enrichment.NewMemoryMemo(), nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("newMemo: ping redis: %w", err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("connected to Redis merchant memo")
	return enrichment.NewRedisMemo(rdb, cfg.MemoTTL, log), func(context.Context) error { return rdb.Close() }, nil
}

// Stop runs stoppers in reverse order and joins their errors.
func Stop(ctx context.Context, stoppers []Stopper) error {
	var errs error
	for i := len(stoppers) - 1; i >= 0; i-- {
		if err := stoppers[i](ctx); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
