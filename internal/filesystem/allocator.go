// Package filesystem checks local disk capacity before a segmented
// download commits to writing totalSize bytes. Grounded on the teacher's
// own allocator.go; kept as disk-space preflight only (no pre-truncation
// of the final file), since the engine writes each segment to its own
// part file and only assembles the final file at merge time.
package filesystem

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"corefetch/internal/model"
)

const safetyBuffer = 100 * 1024 * 1024 // 100MB headroom for system stability

// Allocator checks that a destination directory's volume has enough free
// space for an incoming download before any bytes are written.
type Allocator struct{}

// NewAllocator builds an Allocator. The zero value is also usable.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// CheckDiskSpace returns model.ErrFilesystem if the volume containing
// path does not have at least required bytes plus a safety buffer free.
// A required of 0 or less (unknown total size) always passes.
func (a *Allocator) CheckDiskSpace(path string, required int64) error {
	if required <= 0 {
		return nil
	}
	dir := filepath.Dir(path)
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("check disk space: %w: %w", model.ErrFilesystem, err)
	}
	if int64(usage.Free) < required+safetyBuffer {
		return fmt.Errorf("disk full: need %d bytes, have %d available: %w",
			required, usage.Free, model.ErrFilesystem)
	}
	return nil
}
