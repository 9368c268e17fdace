// Package httpprobe discovers what a remote URL serves before a
// SegmentedDownload commits to a worker-count plan: total size, filename,
// and whether byte-range requests are honored.
package httpprobe

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/vfaronov/httpheader"

	"corefetch/internal/model"
)

// Client performs probes against a shared *http.Client, matching the
// teacher's single-shared-transport pattern in TachyonEngine.
type Client struct {
	HTTP    *http.Client
	Timeout time.Duration
}

// New builds a Client with sane defaults: a shared transport and a
// 30-second probe timeout, identical to ProbeURL's timeout in the teacher.
func New() *Client {
	return &Client{
		HTTP:    &http.Client{},
		Timeout: 30 * time.Second,
	}
}

// Probe issues a GET with "Range: bytes=0-0" — not a HEAD — because some
// origins omit Accept-Ranges on HEAD but honor it on GET, the same
// reasoning the teacher's ProbeURL comment gives for avoiding HEAD.
func (c *Client) Probe(ctx context.Context, url string, authHeaders map[string]string) (model.FileMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.FileMeta{}, fmt.Errorf("probe: building request: %w", model.ErrFatalTransport)
	}
	for k, v := range authHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return model.FileMeta{}, fmt.Errorf("probe %s: %w", url, model.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return model.FileMeta{}, fmt.Errorf("probe %s: status %d: %w", url, resp.StatusCode, model.ErrAuthExpired)
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusPartialContent {
		return model.FileMeta{}, fmt.Errorf("probe %s: status %d: %w", url, resp.StatusCode, model.ErrFatalTransport)
	}

	meta := model.FileMeta{
		URL:         url,
		Size:        resp.ContentLength,
		AuthHeaders: authHeaders,
	}

	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		meta.Name = name
	}
	if meta.Name == "" {
		meta.Name = filepath.Base(resp.Request.URL.Path)
		if meta.Name == "." || meta.Name == "/" || meta.Name == "" {
			meta.Name = "unknown_file"
		}
	}

	for _, unit := range httpheader.AcceptRanges(resp.Header) {
		if unit == "bytes" {
			meta.AcceptsRanges = true
		}
	}

	if resp.StatusCode == http.StatusPartialContent {
		meta.AcceptsRanges = true
		if cr, err := httpheader.ContentRange(resp.Header); err == nil && cr.Complete >= 0 {
			meta.Size = cr.Complete
		}
	}

	meta.ETag = resp.Header.Get("ETag")
	meta.LastModified = resp.Header.Get("Last-Modified")

	return meta, nil
}
