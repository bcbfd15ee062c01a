package pipeline

import (
	"context"
	"fmt"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/enrichment"
	"github.com/sacha-rebbouh/optim-financials/internal/logger"
	"github.com/sacha-rebbouh/optim-financials/internal/parsers"
	"github.com/sacha-rebbouh/optim-financials/internal/persist"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *IngestState) error
}

// IngestState holds the shared state across all pipeline steps for one file.
type IngestState struct {
	File     FileInput
	Settings *domain.UserSettings

	Source   domain.DetectedSource
	FileType domain.FileType
	Grid     parsers.Grid

	Transactions []domain.ParsedTransaction
	SampleRows   [][]string
	Warnings     []string

	Persisted int
	SourceID  string
}

func (s *IngestState) warn(w ...string) {
	s.Warnings = append(s.Warnings, w...)
}

// FetchBlobStep downloads the upload when only its blob URI is known.
type FetchBlobStep struct {
	Blobs BlobStore
}

func (s *FetchBlobStep) Execute(ctx context.Context, state *IngestState) error {
	if len(state.File.Data) > 0 || state.File.BlobURI == "" {
		return nil
	}
	if s.Blobs == nil {
		return fmt.Errorf("FetchBlobStep: no blob store configured for %s", state.File.BlobURI)
	}
	data, err := s.Blobs.Fetch(ctx, state.File.BlobURI)
	if err != nil {
		return fmt.Errorf("FetchBlobStep: %w", err)
	}
	state.File.Data = data
	return nil
}

// LoadSettingsStep loads the user's settings, defaults when anonymous.
type LoadSettingsStep struct {
	Settings SettingsLoader
}

func (s *LoadSettingsStep) Execute(ctx context.Context, state *IngestState) error {
	if s.Settings == nil {
		state.Settings = &domain.UserSettings{UserID: state.File.UserID}
		return nil
	}
	us, err := s.Settings.Get(ctx, state.File.UserID)
	if err != nil {
		return fmt.Errorf("LoadSettingsStep: %w", err)
	}
	state.Settings = us
	return nil
}

// DetectSourceStep works out the issuer and file type and reads
// spreadsheets into a grid.
type DetectSourceStep struct{}

func (s *DetectSourceStep) Execute(ctx context.Context, state *IngestState) error {
	state.Source = DetectSource(state.File.Filename)
	state.FileType = FileTypeOf(state.File.Filename)

	switch state.FileType {
	case domain.FileTypeCSV:
		state.Grid = parsers.ParseCSV(state.File.Data)
	case domain.FileTypeXLSX:
		grid, warnings := parsers.ParseXLSX(state.File.Data)
		state.Grid = grid
		state.warn(warnings...)
	}
	return nil
}

// ParseStep runs the PDF parser for PDFs and the spreadsheet cascade for
// everything else.
type ParseStep struct {
	PDF         *parsers.Cascade
	Spreadsheet *parsers.Cascade
	OCR         OCRFactory
}

func (s *ParseStep) Execute(ctx context.Context, state *IngestState) error {
	in := parsers.Input{
		Filename:     state.File.Filename,
		Data:         state.File.Data,
		FileType:     state.FileType,
		Grid:         state.Grid,
		HebrewSource: IsHebrewSource(state.Source.Key),
	}
	if state.Settings != nil {
		in.OCRProvider = state.Settings.OCRProvider
	}

	var res parsers.Result
	switch state.FileType {
	case domain.FileTypePDF:
		if s.OCR != nil {
			in.OCR = s.OCR(state.Settings)
		}
		res = s.PDF.Run(ctx, in)
		state.SampleRows = res.SampleRows
	case domain.FileTypeUnknown:
		state.SampleRows = state.Grid.Sample
	default:
		res = s.Spreadsheet.Run(ctx, in)
		state.SampleRows = state.Grid.Sample
	}

	state.Transactions = res.Transactions
	state.warn(res.Warnings...)
	return nil
}

// ApplyRulesStep applies the user's deterministic rules.
type ApplyRulesStep struct {
	Rules RuleSet
}

func (s *ApplyRulesStep) Execute(ctx context.Context, state *IngestState) error {
	if s.Rules == nil || len(state.Transactions) == 0 {
		return nil
	}
	rules, err := s.Rules.Load(ctx, state.File.UserID)
	if err != nil {
		return fmt.Errorf("ApplyRulesStep: %w", err)
	}
	if len(rules) > 0 {
		state.Transactions = s.Rules.ApplyAll(state.Transactions, rules)
	}
	return nil
}

// EnrichStep resolves merchants through the cache and classification
// provider.
type EnrichStep struct {
	Enricher Enricher
}

func (s *EnrichStep) Execute(ctx context.Context, state *IngestState) error {
	if s.Enricher == nil || len(state.Transactions) == 0 {
		return nil
	}
	res := s.Enricher.Enrich(ctx, enrichment.Request{
		UserID:       state.File.UserID,
		Settings:     state.Settings,
		Transactions: state.Transactions,
	})
	state.Transactions = res.Transactions
	state.warn(res.Warnings...)
	return nil
}

// PersistStep stores the transactions of a known user.
type PersistStep struct {
	Persister Persister
}

func (s *PersistStep) Execute(ctx context.Context, state *IngestState) error {
	if s.Persister == nil || state.File.UserID == "" || len(state.Transactions) == 0 {
		return nil
	}
	res := s.Persister.Persist(ctx, persist.Request{
		UserID:       state.File.UserID,
		SourceKey:    state.Source.Key,
		Filename:     state.File.Filename,
		AttachmentID: state.File.AttachmentID,
		Settings:     state.Settings,
		Transactions: state.Transactions,
	})
	state.Persisted = res.Persisted
	state.SourceID = res.SourceID
	state.warn(res.Warnings...)
	return nil
}

// DeleteBlobStep removes the uploaded blob once the file was parsed.
type DeleteBlobStep struct {
	Blobs BlobStore
}

func (s *DeleteBlobStep) Execute(ctx context.Context, state *IngestState) error {
	if s.Blobs == nil || state.File.BlobURI == "" {
		return nil
	}
	if err := s.Blobs.Delete(ctx, state.File.BlobURI); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("blob", state.File.BlobURI).Msg("deleting blob after parse failed")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *IngestState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
