package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates every file of the batch was processed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed and will not be retried.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by JobStore lookups of unknown ids.
var ErrJobNotFound = errors.New("job not found")

// FileRef is one file of an ingestion batch. Data holds the bytes when the
// file was not written to blob storage.
type FileRef struct {
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	BlobURI      string `json:"blob_uri,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	Data         []byte `json:"-"`
}

// IngestBatchJob ingests the files of one upload, in order.
type IngestBatchJob struct {
	JobID  string    `json:"job_id"`
	UserID string    `json:"user_id,omitempty"`
	Files  []FileRef `json:"files"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`
	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Summaries has one entry per file once the job ran.
	Summaries []domain.IngestSummary `json:"summaries,omitempty"`
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishIngestBatch(ctx context.Context, job *IngestBatchJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the attempt failed.
type JobHandler func(ctx context.Context, job *IngestBatchJob) error

// JobStore keeps job state for status queries.
type JobStore interface {
	SaveJob(ctx context.Context, job *IngestBatchJob) error
	GetJob(ctx context.Context, jobID string) (*IngestBatchJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestBatchJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	UserID string
	Status JobStatus

	// Limit limits the number of results.
	Limit int
	// Offset for pagination.
	Offset int
}
