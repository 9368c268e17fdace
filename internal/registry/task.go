// Package registry implements TaskRegistry (spec §4.4): the process-wide
// map of task id to task, responsible for generating collision-free
// filenames on add, persisting and recovering tasks across restarts, and
// the rename/delete operations that must coordinate state-file and
// part-file renames atomically.
//
// Grounded on the teacher's internal/queue/queue.go (DownloadQueue), an
// ordered collection adapted here from "queue of pending work" to "map of
// every task regardless of status", and on
// original_source/server/core/downloader.py's DownloadManager.load_tasks
// for the startup-recovery semantics.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"corefetch/internal/folder"
	"corefetch/internal/httpprobe"
	"corefetch/internal/model"
	"corefetch/internal/segment"
)

// Task is a tagged union over the two concrete task kinds the registry
// manages. Exactly one of file/folder is non-nil, matching the on-disk
// state file's own "type" discriminator.
type Task struct {
	file      *segment.Download
	folderAgg *folder.FolderAggregator
	createdAt time.Time
}

func newFileTask(d *segment.Download, createdAt time.Time) *Task {
	return &Task{file: d, createdAt: createdAt}
}

func newFolderTask(f *folder.FolderAggregator, createdAt time.Time) *Task {
	return &Task{folderAgg: f, createdAt: createdAt}
}

// Kind reports whether this is a single-file or folder-aggregate task.
func (t *Task) Kind() model.TaskKind {
	if t.file != nil {
		return model.KindFile
	}
	return model.KindFolder
}

// ID returns the task's stable identifier.
func (t *Task) ID() string {
	if t.file != nil {
		return t.file.ID
	}
	return t.folderAgg.ID
}

// Filename returns the destination file or directory name.
func (t *Task) Filename() string {
	if t.file != nil {
		return t.file.Filename
	}
	return t.folderAgg.Name
}

// CreatedAt returns the task's creation timestamp, used for FIFO
// ordering by the scheduler.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// Status returns the current lifecycle status.
func (t *Task) Status() model.TaskStatus {
	if t.file != nil {
		return t.file.Status()
	}
	return t.folderAgg.Status()
}

// Progress returns (downloaded, total, speed-in-bytes-per-second).
func (t *Task) Progress() (int64, int64, int64) {
	if t.file != nil {
		return t.file.Progress()
	}
	return t.folderAgg.Progress()
}

// MarkRunning eagerly flips the task to DOWNLOADING before its worker
// goroutine is spawned, so a second process_queue call racing the
// goroutine's own startup never double-admits the same task. Start/Run
// repeats the same transition once the goroutine actually begins; that
// second write is a no-op since old == new.
func (t *Task) MarkRunning() {
	if t.file != nil {
		t.file.ForceStatus(model.StatusDownloading)
		return
	}
	t.folderAgg.ForceStatus(model.StatusDownloading)
}

// MarkQueued demotes a PENDING task to QUEUED so the scheduler's ceiling
// is visible to the user (spec §4.5 step 3).
func (t *Task) MarkQueued() {
	if t.file != nil {
		t.file.ForceStatus(model.StatusQueued)
		return
	}
	t.folderAgg.ForceStatus(model.StatusQueued)
}

// Run drives the task to a terminal state; it blocks until Start (and,
// for a file task, Extract) returns. The scheduler runs this in its own
// goroutine.
func (t *Task) Run(ctx context.Context, probe *httpprobe.Client, extractor segment.Extractor) {
	if t.file != nil {
		t.file.Start(ctx, probe, extractor)
		t.file.Extract(ctx, extractor)
		return
	}
	t.folderAgg.Start(ctx)
}

// Pause/Resume/Cancel/DeleteFiles/SaveState/SetSpeedLimit/SpeedLimit/
// UpdateURL dispatch to the underlying concrete task.

func (t *Task) Pause() {
	if t.file != nil {
		t.file.Pause()
		return
	}
	t.folderAgg.Pause()
}

func (t *Task) Resume() {
	if t.file != nil {
		t.file.Resume()
		return
	}
	t.folderAgg.Resume()
}

func (t *Task) Cancel() {
	if t.file != nil {
		t.file.Cancel()
		return
	}
	t.folderAgg.Cancel()
}

func (t *Task) DeleteFiles() error {
	if t.file != nil {
		return t.file.DeleteFiles()
	}
	return t.folderAgg.DeleteFiles()
}

func (t *Task) SaveState() error {
	if t.file != nil {
		return t.file.SaveState()
	}
	return t.folderAgg.SaveState()
}

func (t *Task) SetSpeedLimit(bytesPerSec int64) {
	if t.file != nil {
		t.file.SetSpeedLimit(bytesPerSec)
		return
	}
	t.folderAgg.SetSpeedLimit(bytesPerSec)
}

func (t *Task) SpeedLimit() int64 {
	if t.file != nil {
		return t.file.SpeedLimit()
	}
	return t.folderAgg.SpeedLimit()
}

func (t *Task) UpdateURL(newURL string) {
	if t.file != nil {
		t.file.UpdateURL(newURL)
		return
	}
	t.folderAgg.UpdateURL(newURL)
}

// rename changes the task's in-memory destination name; the on-disk
// artifacts are moved separately by moveStateFiles. Rejected while
// DOWNLOADING or EXTRACTING (the caller must pause first), matching spec §4.4.
func (t *Task) rename(newName string) error {
	if t.file != nil {
		return t.file.Rename(newName)
	}
	return t.folderAgg.Rename(newName)
}

// ErrorMessage returns the task's recorded error, if any. Empty string
// when the task has never failed.
func (t *Task) ErrorMessage() string {
	if t.file != nil {
		return t.file.ErrorMessage()
	}
	return t.folderAgg.ErrorMessage()
}

// moveStateFiles renames every on-disk artifact (state file, part files,
// destination file or directory) for a task at partsDir from oldName to
// newName. Used by Registry.Rename, kept here since it needs no Task
// internals beyond what's already exported.
func moveStateFiles(downloadDir, oldName, newName string) error {
	partsDir := filepath.Join(downloadDir, ".parts")
	oldState := filepath.Join(partsDir, oldName+".state.json")
	newState := filepath.Join(partsDir, newName+".state.json")
	if _, err := os.Stat(oldState); err == nil {
		if err := os.Rename(oldState, newState); err != nil {
			return fmt.Errorf("rename state file: %w: %w", model.ErrFilesystem, err)
		}
	}

	oldPath := filepath.Join(downloadDir, oldName)
	newPath := filepath.Join(downloadDir, newName)
	if _, err := os.Stat(oldPath); err == nil {
		if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
			return fmt.Errorf("rename destination: %w: %w", model.ErrFilesystem, err)
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			return fmt.Errorf("rename destination: %w: %w", model.ErrFilesystem, err)
		}
	}

	entries, err := os.ReadDir(partsDir)
	if err != nil {
		return nil
	}
	prefix := oldName + ".part"
	for _, e := range entries {
		if len(e.Name()) > len(prefix) && e.Name()[:len(prefix)] == prefix {
			suffix := e.Name()[len(oldName):]
			if err := os.Rename(filepath.Join(partsDir, e.Name()), filepath.Join(partsDir, newName+suffix)); err != nil {
				return fmt.Errorf("rename part file: %w: %w", model.ErrFilesystem, err)
			}
		}
	}
	return nil
}
