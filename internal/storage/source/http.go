// Package source streams uploaded files for the import pipeline.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skuline/product-import/internal/catalog"
)

const defaultURLTTL = time.Hour

// HTTPSource opens an object by requesting a signed download URL and
// streaming the response body. The body is never buffered in memory; the
// caller reads it incrementally and closes it.
type HTTPSource struct {
	objects catalog.ObjectStore
	client  *http.Client
	urlTTL  time.Duration
}

// NewHTTPSource constructs a source over the given object store.
func NewHTTPSource(objects catalog.ObjectStore, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{objects: objects, client: client, urlTTL: defaultURLTTL}
}

// Open streams the object at fileKey. Non-2xx responses are returned as
// errors so the pipeline's failure path handles them like any other I/O
// fault.
func (s *HTTPSource) Open(ctx context.Context, fileKey string) (io.ReadCloser, error) {
	url, err := s.objects.SignedGetURL(ctx, fileKey, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("sign source url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if closeErr := resp.Body.Close(); closeErr != nil {
			return nil, fmt.Errorf("fetch source: status %d (close body: %v)", resp.StatusCode, closeErr)
		}
		return nil, fmt.Errorf("fetch source: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
