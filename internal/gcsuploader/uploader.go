// Package gcsuploader stores uploaded statement files in a Google Cloud
// Storage bucket.
package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const uploadTimeout = 2 * time.Minute

// Store reads and writes attachment blobs of one bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a storage client. It uses Application Default Credentials
// unless opts say otherwise.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("New: bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("New: create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *storage.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ObjectName is where an upload of userID is stored:
// uploads/<user>/<yyyy>/<mm>/<uuid>-<filename>.
func ObjectName(userID, filename string, now time.Time) string {
	if userID == "" {
		userID = "anonymous"
	}
	return fmt.Sprintf("uploads/%s/%s/%s-%s", userID, now.UTC().Format("2006/01"), uuid.NewString(), path.Base(filename))
}

// Upload writes data under objectName and returns its gs:// URI.
func (s *Store) Upload(ctx context.Context, objectName string, data []byte) (string, error) {
	if err := s.write(ctx, objectName, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("Upload: %w", err)
	}
	return s.uri(objectName), nil
}

// UploadFile uploads a local file under objectName and returns its URI.
func (s *Store) UploadFile(ctx context.Context, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	if err := s.write(ctx, objectName, f); err != nil {
		return "", fmt.Errorf("UploadFile: %w", err)
	}
	return s.uri(objectName), nil
}

func (s *Store) write(ctx context.Context, objectName string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (s *Store) uri(objectName string) string {
	return "gs://" + s.bucket + "/" + strings.TrimPrefix(objectName, "/")
}
