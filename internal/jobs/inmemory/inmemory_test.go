package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/jobs"
)

func waitForStatus(t *testing.T, s *Store, id string, want jobs.JobStatus) *jobs.IngestBatchJob {
	t.Helper()
	var job *jobs.IngestBatchJob
	require.Eventually(t, func() bool {
		j, err := s.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestQueueRunsJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 1, store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Start(ctx, func(_ context.Context, job *jobs.IngestBatchJob) error {
		for _, f := range job.Files {
			job.Summaries = append(job.Summaries, domain.IngestSummary{Filename: f.Filename, Status: domain.StatusPendingReview})
		}
		return nil
	}))

	job := &jobs.IngestBatchJob{UserID: "u1", Files: []jobs.FileRef{{Filename: "a.csv", Data: []byte("x")}}}
	require.NoError(t, q.PublishIngestBatch(ctx, job))
	require.NotEmpty(t, job.JobID)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.Len(t, done.Summaries, 1)
	assert.Equal(t, "a.csv", done.Summaries[0].Filename)
	assert.Nil(t, done.Files[0].Data)
	assert.NotNil(t, done.CompletedAt)

	require.NoError(t, q.Stop(context.Background()))
	assert.Error(t, q.PublishIngestBatch(ctx, &jobs.IngestBatchJob{}))
}

func TestQueueRetriesThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(4, 1, store, zerolog.Nop())
	q.RetryDelay = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int32
	require.NoError(t, q.Start(ctx, func(context.Context, *jobs.IngestBatchJob) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("store unavailable")
	}))

	job := &jobs.IngestBatchJob{MaxRetries: 2}
	require.NoError(t, q.PublishIngestBatch(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "store unavailable", failed.Error)
	assert.Equal(t, 2, failed.RetryCount)
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
	require.NoError(t, q.Close())
}

func TestStoreListAndUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveJob(ctx, &jobs.IngestBatchJob{JobID: "b", UserID: "u1", Status: jobs.JobStatusPending, CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, s.SaveJob(ctx, &jobs.IngestBatchJob{JobID: "a", UserID: "u1", Status: jobs.JobStatusCompleted, CreatedAt: t0}))
	require.NoError(t, s.SaveJob(ctx, &jobs.IngestBatchJob{JobID: "c", UserID: "u2", Status: jobs.JobStatusPending, CreatedAt: t0}))
	assert.Error(t, s.SaveJob(ctx, &jobs.IngestBatchJob{}))

	list, err := s.ListJobs(ctx, jobs.JobFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].JobID)

	list, err = s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusPending, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListJobs(ctx, jobs.JobFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.UpdateJobStatus(ctx, "b", jobs.JobStatusFailed, "boom"))
	got, err := s.GetJob(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
}
