package pipeline

import (
	"context"
	"fmt"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/jobs"
	"github.com/sacha-rebbouh/optim-financials/internal/logger"
)

// JobHandler runs queued batch jobs through IngestBatch and stores the file
// summaries on the job. A batch is only reported as failed, and so retried,
// when none of its files could be ingested.
func (i *Ingestor) JobHandler() jobs.JobHandler {
	return func(ctx context.Context, job *jobs.IngestBatchJob) error {
		log := i.deps.Log.With().Str("job_id", job.JobID).Logger()
		ctx = logger.WithContext(ctx, log)

		files := make([]FileInput, len(job.Files))
		for k, f := range job.Files {
			files[k] = FileInput{
				Filename:     f.Filename,
				Data:         f.Data,
				UserID:       job.UserID,
				AttachmentID: f.AttachmentID,
				BlobURI:      f.BlobURI,
			}
		}

		summaries, err := i.IngestBatch(ctx, files)
		job.Summaries = summaries
		if err == nil {
			return nil
		}

		for _, s := range summaries {
			if s.Status != domain.StatusFailed {
				log.Warn().Err(err).Msg("batch finished with failed files")
				return nil
			}
		}
		return fmt.Errorf("JobHandler: %w", err)
	}
}
