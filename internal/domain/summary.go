package domain

// FileType is derived from the file extension.
type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeXLSX    FileType = "xlsx"
	FileTypePDF     FileType = "pdf"
	FileTypeUnknown FileType = "unknown"
)

// Ingest statuses.
const (
	StatusPendingReview = "pending_review"
	StatusFailed        = "failed"
)

// DetectedSource is the issuer guessed from a file name.
type DetectedSource struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// IngestSummary is the per-file result returned to callers.
type IngestSummary struct {
	Status                string              `json:"status"`
	Source                string              `json:"source"`
	SourceKey             string              `json:"source_key"`
	FileType              FileType            `json:"file_type"`
	Filename              string              `json:"filename"`
	Size                  int64               `json:"size"`
	ParsedTransactions    int                 `json:"parsed_transactions"`
	EstimatedTransactions int                 `json:"estimated_transactions"`
	PendingReview         int                 `json:"pending_review"`
	PersistedTransactions int                 `json:"persisted_transactions"`
	SourceID              string              `json:"source_id,omitempty"`
	Warnings              []string            `json:"warnings"`
	SampleRows            [][]string          `json:"sample_rows"`
	SampleTransactions    []ParsedTransaction `json:"sample_transactions"`
}
