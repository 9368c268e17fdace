package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"corefetch/internal/filesystem"
	"corefetch/internal/httpprobe"
	"corefetch/internal/model"
)

var diskAllocator = filesystem.NewAllocator()

// Start probes the URL (if not already known from a reloaded state),
// plans parts, reconciles them against whatever is already on disk, then
// runs every part to completion and merges. When auto-extraction applies
// it leaves the task in StatusExtracting; the extraction itself is a
// separate Extract call. Start blocks until the download reaches a terminal state or is
// canceled; callers run it in its own goroutine.
func (d *Download) Start(ctx context.Context, probe *httpprobe.Client, extractor Extractor) {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	d.setStatus(model.StatusDownloading)

	if err := mkPartsDir(d.partsDir()); err != nil {
		d.fail(err)
		return
	}

	if d.needsProbe() {
		meta, err := probe.Probe(runCtx, d.URL, d.AuthHeaders)
		if err != nil {
			if errors.Is(err, model.ErrAuthExpired) {
				d.fail(err)
				return
			}
			d.fail(fmt.Errorf("%w: %w", model.ErrTransient, err))
			return
		}
		d.mu.Lock()
		d.totalSize = meta.Size
		d.supportsResume = meta.AcceptsRanges
		if !meta.AcceptsRanges {
			d.NumConnections = 1
		}
		if d.Filename == "" {
			d.Filename = meta.Name
		}
		d.mu.Unlock()
	}

	if err := diskAllocator.CheckDiskSpace(d.filePath(), d.totalSizeSnapshot()); err != nil {
		d.fail(err)
		return
	}

	d.mu.Lock()
	if len(d.parts) == 0 {
		d.parts = planParts(d.totalSize, d.NumConnections)
	}
	d.parts = reconcileWithDisk(d.partsDir(), d.Filename, d.parts)
	d.downloadedSize = sumDownloaded(d.parts)
	parts := make([]model.PartState, len(d.parts))
	copy(parts, d.parts)
	d.mu.Unlock()

	if allComplete(parts) {
		d.finish(extractor)
		return
	}

	errCh := make(chan error, len(parts))
	d.runParts(runCtx, parts, errCh)

	select {
	case err := <-errCh:
		if err != nil {
			if errors.Is(err, context.Canceled) {
				d.setStatus(model.StatusCanceled)
			} else {
				d.fail(err)
			}
			return
		}
	default:
	}

	d.mu.Lock()
	status := d.status
	d.mu.Unlock()
	if status == model.StatusCanceled || status == model.StatusError {
		return
	}

	d.finish(extractor)
}

func (d *Download) needsProbe() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalSize == 0 && len(d.parts) == 0
}

func (d *Download) fail(err error) {
	d.mu.Lock()
	d.errorMessage = err.Error()
	d.mu.Unlock()
	d.setStatus(model.StatusError)
	_ = d.SaveState()
}

// finish merges parts and then either marks the task completed directly,
// or — when auto-extraction applies — leaves it in StatusExtracting for
// a subsequent Extract call to finish. This is the spec's redesigned
// EXTRACTING -> COMPLETED sequencing: two distinct, separately-persisted
// status writes, never collapsed into one.
func (d *Download) finish(extractor Extractor) {
	if err := d.mergeParts(); err != nil {
		d.fail(err)
		return
	}

	if d.AutoExtract && extractor != nil && extractor.Supports(d.Filename) {
		d.setStatus(model.StatusExtracting)
		_ = d.SaveState()
		return
	}

	if d.AutoExtract {
		d.mu.Lock()
		d.extractionSkipped = true
		d.mu.Unlock()
	}
	d.setStatus(model.StatusCompleted)
	_ = d.SaveState()
}

func (d *Download) runParts(ctx context.Context, parts []model.PartState, errCh chan<- error) {
	var wg sync.WaitGroup
	for _, p := range parts {
		if p.Complete() {
			continue
		}
		wg.Add(1)
		go func(part model.PartState) {
			defer wg.Done()
			if err := d.runPart(ctx, part); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}(p)
	}
	wg.Wait()
	close(errCh)
}

// runPart drives a single byte range to completion with linear-backoff
// retries and the spec's 512KiB healthy-streak retry-counter reset,
// matching download_part in the original implementation.
func (d *Download) runPart(ctx context.Context, part model.PartState) error {
	attempts := 0
	streak := int64(0)

	pp := partPath(d.partsDir(), d.Filename, part.ID)
	if err := os.MkdirAll(filepath.Dir(pp), 0o755); err != nil {
		return fmt.Errorf("create part dir for %d: %w: %w", part.ID, model.ErrFilesystem, err)
	}
	pf, err := os.OpenFile(pp, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open part %d: %w: %w", part.ID, model.ErrFilesystem, err)
	}
	defer pf.Close()

	for {
		if part.Complete() {
			return nil
		}

		if err := d.pauseGate.Wait(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, streamDone, err := d.downloadChunk(ctx, pf, &part)
		streak += n
		if err == nil {
			d.persistPart(part)
			if streamDone {
				// Unknown-size part (End == -1): the origin closed the
				// stream, so there is nothing left to request. Treat it
				// as finished by pinning End to where we stopped.
				if part.End < 0 {
					part.End = part.Current - 1
					d.persistPart(part)
				}
				return nil
			}
			continue
		}

		if errors.Is(err, model.ErrAuthExpired) {
			return err
		}
		if errors.Is(err, context.Canceled) {
			return err
		}

		if streak > healthyStreakReset {
			attempts = 0
			streak = 0
		}
		attempts++
		if attempts >= maxPartRetries {
			return fmt.Errorf("part %d: %w after %d attempts: %w", part.ID, model.ErrFatalTransport, attempts, err)
		}
		select {
		case <-time.After(time.Duration(attempts) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// downloadChunk issues (or resumes, via Range) the GET for one part and
// streams it to disk until the part is complete or a single chunk read
// fails. It returns bytes written this call so the caller can track the
// healthy-streak retry reset.
func (d *Download) downloadChunk(ctx context.Context, pf *os.File, part *model.PartState) (written int64, streamDone bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", model.ErrFatalTransport, err)
	}
	for k, v := range d.AuthHeaders {
		req.Header.Set(k, v)
	}
	if part.End >= 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", part.Current, part.End))
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", part.Current))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return 0, false, model.ErrAuthExpired
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("unexpected status %d: %w", resp.StatusCode, model.ErrTransient)
	}

	buf := make([]byte, chunkSize)

	for {
		if err := d.pauseGate.Wait(ctx); err != nil {
			return written, false, err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := d.limiter.Acquire(ctx, n); err != nil {
				return written, false, err
			}
			if _, werr := pf.Write(buf[:n]); werr != nil {
				return written, false, fmt.Errorf("%w: %w", model.ErrFilesystem, werr)
			}
			part.Current += int64(n)
			written += int64(n)
			d.mu.Lock()
			d.downloadedSize += int64(n)
			d.mu.Unlock()
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, true, nil
			}
			return written, false, fmt.Errorf("%w: %w", model.ErrTransient, readErr)
		}
		if part.Complete() {
			return written, true, nil
		}
	}
}

func (d *Download) persistPart(part model.PartState) {
	d.mu.Lock()
	for i := range d.parts {
		if d.parts[i].ID == part.ID {
			d.parts[i] = part
			break
		}
	}
	d.mu.Unlock()
}
