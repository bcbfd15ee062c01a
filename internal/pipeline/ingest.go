// Package pipeline runs the ingestion of statement files: source detection,
// parsing, rules, merchant enrichment and persistence, one step after the
// other.
package pipeline

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/logger"
	"github.com/sacha-rebbouh/optim-financials/internal/metrics"
	"github.com/sacha-rebbouh/optim-financials/internal/parsers"
)

// FileInput is one uploaded file. Data may be empty when BlobURI points at
// the stored upload.
type FileInput struct {
	Filename     string
	Data         []byte
	UserID       string
	AttachmentID string
	BlobURI      string
}

// Deps wires an Ingestor. Every collaborator is optional: without one the
// matching step does nothing.
type Deps struct {
	Settings  SettingsLoader
	Rules     RuleSet
	Enricher  Enricher
	Persister Persister
	OCR       OCRFactory
	Blobs     BlobStore

	DeleteBlobAfterParse bool

	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

type Ingestor struct {
	deps     Deps
	pipeline *Pipeline
}

func NewIngestor(deps Deps) *Ingestor {
	steps := []PipelineStep{
		&FetchBlobStep{Blobs: deps.Blobs},
		&LoadSettingsStep{Settings: deps.Settings},
		&DetectSourceStep{},
		&ParseStep{
			PDF: parsers.NewCascade(parsers.NewPDFParser(deps.Log)),
			Spreadsheet: parsers.NewCascade(
				parsers.HebrewSpreadsheetParser{},
				parsers.EuropeanInterpreter{},
				parsers.FrenchInterpreter{},
			),
			OCR: deps.OCR,
		},
		&ApplyRulesStep{Rules: deps.Rules},
		&EnrichStep{Enricher: deps.Enricher},
		&PersistStep{Persister: deps.Persister},
	}
	if deps.DeleteBlobAfterParse {
		steps = append(steps, &DeleteBlobStep{Blobs: deps.Blobs})
	}
	return &Ingestor{deps: deps, pipeline: NewPipeline(steps...)}
}

// IngestFile runs one file through the pipeline. The summary is returned
// even when err is non-nil; its status is then failed.
func (i *Ingestor) IngestFile(ctx context.Context, in FileInput) (*domain.IngestSummary, error) {
	log := logger.ForFile(i.deps.Log, in.UserID, in.Filename)
	ctx = logger.WithContext(ctx, log)

	state := &IngestState{File: in}
	err := i.pipeline.Execute(ctx, state)

	if state.FileType == "" {
		state.Source = DetectSource(in.Filename)
		state.FileType = FileTypeOf(in.Filename)
	}
	summary := buildSummary(state)
	if err != nil {
		summary.Status = domain.StatusFailed
	}

	i.deps.Metrics.RecordFile(string(summary.FileType), summary.Status)
	i.deps.Metrics.RecordParsed(summary.SourceKey, summary.ParsedTransactions)

	if err != nil {
		log.Error().Err(err).Msg("ingestion failed")
		return summary, fmt.Errorf("IngestFile: %s: %w", in.Filename, err)
	}
	log.Info().
		Str("source", summary.SourceKey).
		Int("parsed", summary.ParsedTransactions).
		Int("persisted", summary.PersistedTransactions).
		Int("warnings", len(summary.Warnings)).
		Msg("file ingested")
	return summary, nil
}

// IngestBatch ingests files one after the other. A failing file gets a
// failed summary and the rest of the batch still runs; the errors of every
// failed file are returned together.
func (i *Ingestor) IngestBatch(ctx context.Context, files []FileInput) ([]domain.IngestSummary, error) {
	var result *multierror.Error
	summaries := make([]domain.IngestSummary, 0, len(files))

	for _, f := range files {
		summary, err := i.IngestFile(ctx, f)
		if err != nil {
			result = multierror.Append(result, err)
		}
		summaries = append(summaries, *summary)
	}
	return summaries, result.ErrorOrNil()
}

func buildSummary(state *IngestState) *domain.IngestSummary {
	parsed := len(state.Transactions)
	warnings := append([]string{}, state.Warnings...)

	estimated := parsed
	if parsed == 0 {
		estimated = len(state.Grid.Rows)
		if estimated == 0 {
			estimated = EstimateTransactions(len(state.File.Data))
		}
		warnings = append(warnings, warnNoTransactions)
	}
	if state.FileType == domain.FileTypeXLSX && len(state.Grid.Rows) == 0 {
		warnings = append(warnings, warnEmptyXLSX)
	}

	status := domain.StatusPendingReview
	if parsed == 0 {
		status = domain.StatusFailed
	}

	sampleRows := state.SampleRows
	if sampleRows == nil {
		sampleRows = [][]string{}
	}
	sampleTxs := state.Transactions
	if len(sampleTxs) > maxSampleTransactions {
		sampleTxs = sampleTxs[:maxSampleTransactions]
	}
	if sampleTxs == nil {
		sampleTxs = []domain.ParsedTransaction{}
	}

	return &domain.IngestSummary{
		Status:                status,
		Source:                state.Source.Label,
		SourceKey:             state.Source.Key,
		FileType:              state.FileType,
		Filename:              state.File.Filename,
		Size:                  int64(len(state.File.Data)),
		ParsedTransactions:    parsed,
		EstimatedTransactions: estimated,
		PendingReview:         parsed,
		PersistedTransactions: state.Persisted,
		SourceID:              state.SourceID,
		Warnings:              warnings,
		SampleRows:            sampleRows,
		SampleTransactions:    sampleTxs,
	}
}

// EstimateTransactions guesses a transaction count from a file size.
func EstimateTransactions(size int) int {
	switch {
	case size == 0:
		return 0
	case size < smallFileBytes:
		return smallFileEstimate
	case size < mediumFileBytes:
		return mediumFileEstimate
	default:
		return largeFileEstimate
	}
}
