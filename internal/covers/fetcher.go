package covers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"readito/metadataservice/internal/metrics"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Readito/1.0"
	maxCoverBytes    = 16 * 1024 * 1024
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type Config struct {
	Dir       string
	UserAgent string
	Client    *http.Client
}

// Fetcher downloads candidate cover images into a local directory, one
// file per book.
type Fetcher struct {
	client    *http.Client
	dir       string
	userAgent string
	retry     RetryConfig
}

func NewFetcher(cfg Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Fetcher{
		client:    client,
		dir:       cfg.Dir,
		userAgent: userAgent,
		retry:     DefaultRetryConfig(),
	}
}

// Fetch downloads the cover at url and stores it under the book's id,
// returning the local file path. Transient network failures are retried
// with backoff; any final failure leaves no partial file behind.
func (f *Fetcher) Fetch(ctx context.Context, bookID, coverURL string) (string, error) {
	coverURL = strings.TrimSpace(coverURL)
	if coverURL == "" {
		return "", fmt.Errorf("cover url is empty")
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure covers directory: %w", err)
	}

	var path string
	err := RetryWithBackoff(ctx, f.retry, func() error {
		var fetchErr error
		path, fetchErr = f.fetchOnce(ctx, bookID, coverURL)
		return fetchErr
	})
	if err != nil {
		metrics.CoverDownloadsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.CoverDownloadsTotal.WithLabelValues("ok").Inc()
	return path, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, bookID, coverURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover HTTP %d", resp.StatusCode)
	}

	path := filepath.Join(f.dir, sanitizeFilename(bookID)+extensionFor(resp.Header.Get("Content-Type"), coverURL))
	tmp := path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create cover file: %w", err)
	}

	_, copyErr := io.Copy(file, io.LimitReader(resp.Body, maxCoverBytes))
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		if copyErr != nil {
			return "", fmt.Errorf("download cover: %w", copyErr)
		}
		return "", closeErr
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, nil
}

// sanitizeFilename keeps book ids safe to use as file names even when a
// caller passes something that never went through the store.
func sanitizeFilename(value string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(value), "_")
	if cleaned == "" {
		return "cover"
	}
	return cleaned
}

func extensionFor(contentType, coverURL string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	}
	if ext := strings.ToLower(filepath.Ext(strings.SplitN(coverURL, "?", 2)[0])); ext == ".png" || ext == ".webp" || ext == ".gif" || ext == ".jpg" || ext == ".jpeg" {
		return ext
	}
	return ".jpg"
}
