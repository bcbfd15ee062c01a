package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBigQuery = "bigquery"
)

// Config is the complete runtime configuration of the ingestion service. It is
// assembled from defaults, an optional env file and the process environment.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Store       StoreConfig
	Redis       RedisConfig
	Storage     StorageConfig
	LLM         LLMConfig
	OCR         OCRConfig
	FX          FXConfig
	Lookup      LookupConfig
	Ingest      IngestConfig
	HTTPClient  HTTPClientConfig
	Security    SecurityConfig
}

type ApplicationConfig struct {
	Env  string
	Name string
}

type LoggingConfig struct {
	Level  string
	Format string // console | json
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxUploadBytes  int64
}

// StoreConfig selects the durable backend. Only the fields of the chosen
// driver are read.
type StoreConfig struct {
	Driver string

	SQLitePath string

	PostgresURL            string
	PostgresMaxConns       int32
	PostgresMinConns       int32
	PostgresMigrationsPath string

	BigQueryProjectID string
	BigQueryDataset   string
}

// RedisConfig configures the shared merchant memo. An empty Addr keeps the
// memo in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	MemoTTL  time.Duration
}

type StorageConfig struct {
	Bucket string
}

type LLMConfig struct {
	DefaultProvider string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string
}

type OCRConfig struct {
	OCRSpaceAPIKey     string
	OCRSpaceURL        string
	GoogleVisionAPIKey string
	GoogleVisionURL    string
}

type FXConfig struct {
	BaseURL string
}

type LookupConfig struct {
	URL    string
	APIKey string
}

// Enabled reports whether the web lookup service is configured.
func (c LookupConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != ""
}

type IngestConfig struct {
	BaseCurrency          string
	SurfacePersistErrors  bool
	DeleteBlobAfterParse  bool
	WorkerCount           int
	QueueSize             int
	LowConfidenceLookupAt float64
}

type HTTPClientConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

type SecurityConfig struct {
	// SettingsEncryptionKey is a base64 encoded 32 byte AES key.
	SettingsEncryptionKey string
}

// validate checks every section and reports all problems at once.
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.MaxUploadBytes <= 0 {
		validationErrors = append(validationErrors, "SERVER_MAX_UPLOAD_BYTES must be greater than 0")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			validationErrors = append(validationErrors, "SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			validationErrors = append(validationErrors, "POSTGRES_URL is required for the postgres driver")
		}
		if c.Store.PostgresMaxConns < c.Store.PostgresMinConns {
			validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be >= POSTGRES_MIN_CONNS")
		}
	case DriverBigQuery:
		if c.Store.BigQueryProjectID == "" || c.Store.BigQueryDataset == "" {
			validationErrors = append(validationErrors, "BIGQUERY_PROJECT_ID and BIGQUERY_DATASET are required for the bigquery driver")
		}
	default:
		validationErrors = append(validationErrors, fmt.Sprintf("STORE_DRIVER %q is not one of sqlite, postgres, bigquery", c.Store.Driver))
	}

	if len(c.Ingest.BaseCurrency) != 3 {
		validationErrors = append(validationErrors, "INGEST_BASE_CURRENCY must be a 3 letter ISO code")
	}
	if c.Ingest.WorkerCount <= 0 {
		validationErrors = append(validationErrors, "INGEST_WORKER_COUNT must be greater than 0")
	}
	if c.Ingest.QueueSize <= 0 {
		validationErrors = append(validationErrors, "INGEST_QUEUE_SIZE must be greater than 0")
	}
	if c.Ingest.LowConfidenceLookupAt < 0 || c.Ingest.LowConfidenceLookupAt > 1 {
		validationErrors = append(validationErrors, "INGEST_LOOKUP_CONFIDENCE_THRESHOLD must be between 0 and 1")
	}
	if c.HTTPClient.Timeout <= 0 {
		validationErrors = append(validationErrors, "HTTP_CLIENT_TIMEOUT must be greater than 0")
	}
	if c.HTTPClient.MaxRetries < 0 {
		validationErrors = append(validationErrors, "HTTP_CLIENT_MAX_RETRIES must not be negative")
	}

	if key := c.Security.SettingsEncryptionKey; key != "" {
		raw, err := base64.StdEncoding.DecodeString(key)
		if err != nil || len(raw) != 32 {
			validationErrors = append(validationErrors, "SETTINGS_ENCRYPTION_KEY must be 32 bytes, base64 encoded")
		}
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}
	return nil
}
