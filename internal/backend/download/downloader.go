package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// ImageDownloader stores a remote image inside a directory
type ImageDownloader interface {
	Download(ctx context.Context, rawURL, destDir string) (string, error)
}

// HTTPStatusError is returned when the image server answers with a non-2xx status
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s for %s", e.Status, e.URL)
}

// Downloader fetches images with a plain GET and streams them to disk
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a downloader; a nil client falls back to http.DefaultClient
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client}
}

// FileName derives the on-disk name of an image from the last segment of its
// URL path. Query strings and fragments are not part of the name.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid image url %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("image url %q has no file name", rawURL)
	}
	return name, nil
}

// Download writes the body of rawURL to <destDir>/<FileName(rawURL)> and
// returns the written path. An existing file with the same name is replaced.
// A failed stream may leave a truncated file behind.
func (d *Downloader) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	name, err := FileName(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close image response body", "url", rawURL, "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	destPath := filepath.Join(destDir, name)
	file, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		_ = file.Close()
		return "", fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", destPath, err)
	}

	slog.Debug("image downloaded", "url", rawURL, "path", destPath, "size_bytes", written)
	return destPath, nil
}
