package segment

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"corefetch/internal/model"
)

// mergeParts concatenates every ".partN" file into the final destination
// in order, removing each part file as it's consumed. It is all-or-
// nothing: the destination is written directly, so a crash mid-merge
// leaves a truncated output file, but the still-present, not-yet-removed
// part files let the next Start reconcile and redo only the merge step
// (the parts themselves are never touched by merge until after their
// bytes are copied).
func (d *Download) mergeParts() error {
	if err := os.MkdirAll(filepath.Dir(d.filePath()), 0o755); err != nil {
		return fmt.Errorf("merge: %w: %w", model.ErrFilesystem, err)
	}
	out, err := os.OpenFile(d.filePath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("merge: %w: %w", model.ErrFilesystem, err)
	}
	defer out.Close()

	parts := d.snapshotParts()
	buf := make([]byte, mergeBufferSize)
	for _, p := range parts {
		pp := partPath(d.partsDir(), d.Filename, p.ID)
		if err := copyPart(out, pp, buf); err != nil {
			return fmt.Errorf("merge part %d: %w: %w", p.ID, model.ErrFilesystem, err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("merge: %w: %w", model.ErrFilesystem, err)
	}
	if err := os.Rename(tmpPath, d.filePath()); err != nil {
		return fmt.Errorf("merge: %w: %w", model.ErrFilesystem, err)
	}
	for _, p := range parts {
		_ = os.Remove(partPath(d.partsDir(), d.Filename, p.ID))
	}
	return nil
}

func copyPart(out *os.File, path string, buf []byte) error {
	in, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer in.Close()
	_, err = io.CopyBuffer(out, in, buf)
	return err
}
