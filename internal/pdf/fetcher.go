package pdf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultFetchTimeout = 30 * time.Second

// Fetcher downloads blank forms over HTTP.
type Fetcher struct {
	client  *http.Client
	maxSize int64
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. maxSize bounds the accepted document size in
// bytes; zero means no bound.
func NewFetcher(client *http.Client, maxSize int64, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, maxSize: maxSize, logger: logger}
}

// ValidateURL checks that rawURL is a well-formed http or https URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid form URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("form URL must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("form URL missing host")
	}
	return nil
}

// Fetch retrieves the raw bytes of the form at formURL. Network failures and
// non-2xx responses yield a *DownloadError.
func (f *Fetcher) Fetch(ctx context.Context, formURL string) ([]byte, error) {
	if err := ValidateURL(formURL); err != nil {
		return nil, &DownloadError{URL: formURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: formURL, Err: err}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("form.fetch.error", "url", formURL, "error", err)
		return nil, &DownloadError{URL: formURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		f.logger.Error("form.fetch.bad_status", "url", formURL, "status", resp.StatusCode)
		return nil, &DownloadError{URL: formURL, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if f.maxSize > 0 {
		body = io.LimitReader(resp.Body, f.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &DownloadError{URL: formURL, Err: err}
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, &DownloadError{URL: formURL, Err: fmt.Errorf("document exceeds %d bytes", f.maxSize)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "pdf") && !strings.Contains(contentType, "octet-stream") {
		f.logger.Warn("form.fetch.unexpected_content_type", "url", formURL, "content_type", contentType)
	}

	f.logger.Info("form.fetch.ok",
		"url", formURL,
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}
