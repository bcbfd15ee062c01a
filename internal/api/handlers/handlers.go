package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/api/middleware"
	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/gcsuploader"
	"github.com/sacha-rebbouh/optim-financials/internal/jobs"
	"github.com/sacha-rebbouh/optim-financials/internal/persist"
)

const defaultMaxUploadBytes = 32 << 20

// BlobUploader writes an upload to blob storage and returns its URI.
type BlobUploader interface {
	Upload(ctx context.Context, objectName string, data []byte) (string, error)
}

// AttachmentRecorder records uploaded blobs.
type AttachmentRecorder interface {
	InsertAttachment(ctx context.Context, att *domain.Attachment) error
}

// Consolidator reports and repairs duplicate transactions.
type Consolidator interface {
	Stats(ctx context.Context, userID string) (*persist.Stats, error)
	Cleanup(ctx context.Context, userID string) (int, error)
}

// UploadHandler accepts statement uploads and queues them for ingestion.
type UploadHandler struct {
	publisher   jobs.Publisher
	blobs       BlobUploader
	attachments AttachmentRecorder
	maxBytes    int64
	log         zerolog.Logger
	now         func() time.Time
}

// NewUploadHandler creates an upload handler. blobs and attachments may be
// nil, in which case file bytes travel inside the job.
func NewUploadHandler(publisher jobs.Publisher, blobs BlobUploader, attachments AttachmentRecorder, maxBytes int64, log zerolog.Logger) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &UploadHandler{
		publisher:   publisher,
		blobs:       blobs,
		attachments: attachments,
		maxBytes:    maxBytes,
		log:         log,
		now:         time.Now,
	}
}

// Upload handles POST /api/upload. Files come in the "files" form field, or
// a single "file" field. The user id comes from the X-User-ID header or the
// "userId" form field; when both are given they must agree.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Missing file")
		return
	}

	userID := middleware.UserIDFromContext(ctx)
	if formUser := strings.TrimSpace(r.FormValue("userId")); formUser != "" {
		if userID != "" && formUser != userID {
			middleware.WriteError(w, http.StatusForbidden, "Unauthorized userId")
			return
		}
		userID = formUser
	}

	files := make([]jobs.FileRef, 0, len(headers))
	for _, fh := range headers {
		ref, err := h.store(ctx, userID, fh)
		if err != nil {
			h.log.Error().Err(err).Str("filename", fh.Filename).Msg("Failed to store upload")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to store upload")
			return
		}
		files = append(files, ref)
	}

	job := &jobs.IngestBatchJob{UserID: userID, Files: files}
	if err := h.publisher.PublishIngestBatch(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue ingestion job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", userID).Int("files", len(files)).Msg("Ingestion job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.JobID,
		"status": job.Status,
		"files":  files,
	})
}

// store reads one uploaded file. Uploads of known users go to blob storage
// when it is configured; everything else is kept in memory.
func (h *UploadHandler) store(ctx context.Context, userID string, fh *multipart.FileHeader) (jobs.FileRef, error) {
	f, err := fh.Open()
	if err != nil {
		return jobs.FileRef{}, fmt.Errorf("store: opening %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return jobs.FileRef{}, fmt.Errorf("store: reading %s: %w", fh.Filename, err)
	}

	filename := filepath.Base(fh.Filename)
	ref := jobs.FileRef{Filename: filename, Size: int64(len(data))}
	if h.blobs == nil || userID == "" {
		ref.Data = data
		return ref, nil
	}

	objectName := gcsuploader.ObjectName(userID, filename, h.now())
	uri, err := h.blobs.Upload(ctx, objectName, data)
	if err != nil {
		return jobs.FileRef{}, fmt.Errorf("store: uploading %s: %w", filename, err)
	}
	ref.BlobURI = uri

	if h.attachments != nil {
		att := &domain.Attachment{
			UserID:      userID,
			StoragePath: uri,
			Filename:    filename,
			Size:        ref.Size,
			CreatedAt:   h.now().UTC(),
		}
		if err := h.attachments.InsertAttachment(ctx, att); err != nil {
			h.log.Warn().Err(err).Str("blob_uri", uri).Msg("Failed to record attachment")
		} else {
			ref.AttachmentID = att.ID
		}
	}
	return ref, nil
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if userID := middleware.UserIDFromContext(ctx); userID != "" && job.UserID != userID {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: middleware.UserIDFromContext(ctx),
		Status: jobs.JobStatus(query.Get("status")),
	}
	if filter.UserID == "" {
		filter.UserID = query.Get("userId")
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// ConsolidateHandler reports and removes duplicate transactions.
type ConsolidateHandler struct {
	consolidator Consolidator
	log          zerolog.Logger
}

func NewConsolidateHandler(c Consolidator, log zerolog.Logger) *ConsolidateHandler {
	return &ConsolidateHandler{consolidator: c, log: log}
}

// Stats handles GET /api/consolidate?userId=
func (h *ConsolidateHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := resolveUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}

	stats, err := h.consolidator.Stats(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to compute duplicate stats")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute duplicate stats")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats)
}

// Cleanup handles POST /api/consolidate/cleanup with a {"userId": ...} body.
func (h *ConsolidateHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID string `json:"userId"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	userID, ok := resolveUser(w, r, req.UserID)
	if !ok {
		return
	}

	deleted, err := h.consolidator.Cleanup(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to clean up duplicates")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to clean up duplicates")
		return
	}

	h.log.Info().Str("user_id", userID).Int("deleted", deleted).Msg("Duplicate transactions removed")
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// resolveUser picks the user a request targets: the explicit value when the
// header agrees with it, else the header. It writes the error response and
// returns false when there is no usable user.
func resolveUser(w http.ResponseWriter, r *http.Request, explicit string) (string, bool) {
	header := middleware.UserIDFromContext(r.Context())
	explicit = strings.TrimSpace(explicit)

	switch {
	case explicit == "" && header == "":
		middleware.WriteError(w, http.StatusBadRequest, "Missing userId")
		return "", false
	case explicit == "":
		return header, true
	case header != "" && header != explicit:
		middleware.WriteError(w, http.StatusForbidden, "Unauthorized")
		return "", false
	default:
		return explicit, true
	}
}
