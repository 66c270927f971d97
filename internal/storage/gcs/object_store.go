// Package gcs provides an ObjectStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// ObjectStore hands out V4 signed URLs for uploads and downloads. It never
// manages bucket lifecycle or credentials; authentication uses Application
// Default Credentials.
type ObjectStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed object store and verifies bucket access so
// misconfiguration fails at startup.
func New(ctx context.Context, cfg Config) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("get bucket attrs: %w (close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("get bucket attrs: %w", err)
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

// SignedGetURL returns a time-bounded download URL for the object key.
func (s *ObjectStore) SignedGetURL(_ context.Context, key string, expires time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(expires),
	})
	if err != nil {
		return "", fmt.Errorf("sign get url for %s: %w", key, err)
	}
	return url, nil
}

// SignedPutURL returns a time-bounded upload URL for the object key.
func (s *ObjectStore) SignedPutURL(
	_ context.Context,
	key, contentType string,
	expires time.Duration,
) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		Expires:     time.Now().Add(expires),
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("sign put url for %s: %w", key, err)
	}
	return url, nil
}

// Close releases the underlying client.
func (s *ObjectStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
