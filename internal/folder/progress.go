package folder

import (
	"context"
	"time"
)

const monitorInterval = 2 * time.Second

// monitorProgress periodically re-sums sub-task progress and persists
// state, matching _monitor_progress's 2-second tick. It exits when ctx is
// canceled, which Start does once every sub-task has returned.
func (f *FolderAggregator) monitorProgress(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.syncProgress()
			_ = f.SaveState()
		}
	}
}

// syncProgress sums downloaded bytes and speed across every sub-task, and
// sums total size from whichever is known — the sub-task's own discovered
// total, falling back to the scanned metadata size when the sub-task
// hasn't probed yet.
func (f *FolderAggregator) syncProgress() {
	subs := f.snapshotSubTasks()
	entries := f.snapshotEntries()

	var downloaded, total, speed int64
	for i, s := range subs {
		d, t, sp := s.Progress()
		downloaded += d
		speed += sp
		if t > 0 {
			total += t
		} else if i < len(entries) {
			total += entries[i].Size
		}
	}

	f.mu.Lock()
	f.downloadedSize = downloaded
	f.totalSize = total
	f.speed = speed
	f.mu.Unlock()
}
