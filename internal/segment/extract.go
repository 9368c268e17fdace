package segment

import (
	"context"

	"corefetch/internal/model"
)

// Extractor is the minimal collaborator segment needs from
// internal/extractor. Kept as a narrow interface here (rather than
// importing the extractor package directly) so segment has no dependency
// on which archive formats are supported — the engine wires a concrete
// implementation in.
type Extractor interface {
	Supports(filename string) bool
	Extract(ctx context.Context, archivePath, destDir string) error
}

// Extract runs after a merge leaves the task in StatusExtracting (see
// finish in worker.go). It is a no-op unless the task is actually waiting
// on extraction, so callers can invoke it unconditionally after Start
// returns.
func (d *Download) Extract(ctx context.Context, ex Extractor) {
	if d.Status() != model.StatusExtracting {
		return
	}
	if err := ex.Extract(ctx, d.filePath(), d.DownloadDir); err != nil {
		d.mu.Lock()
		d.errorMessage = err.Error()
		d.mu.Unlock()
		d.setStatus(model.StatusError)
		_ = d.SaveState()
		return
	}
	d.setStatus(model.StatusCompleted)
	_ = d.SaveState()
}
