package inference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// Fetcher downloads the files a job references before they are handed
// to the backends. Each file is fetched once and the same bytes go to
// both backends.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher with the given request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads one file URL and returns its bytes together with the
// filename derived from the URL path (query parameters stripped).
func (f *Fetcher) Fetch(ctx context.Context, fileURL string) (FilePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return FilePayload{}, fmt.Errorf("failed to create file request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return FilePayload{}, fmt.Errorf("failed to fetch file %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FilePayload{}, fmt.Errorf("file fetch %s returned status %d", fileURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return FilePayload{}, fmt.Errorf("failed to read file body: %w", err)
	}

	return FilePayload{
		Name: filenameFromURL(fileURL),
		Data: data,
	}, nil
}

// filenameFromURL extracts the base filename from a file URL, handling
// URLs with query parameters.
func filenameFromURL(fileURL string) string {
	if u, err := url.Parse(fileURL); err == nil {
		return path.Base(u.Path)
	}
	trimmed, _, _ := strings.Cut(fileURL, "?")
	return path.Base(trimmed)
}
