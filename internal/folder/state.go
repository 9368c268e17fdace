package folder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"corefetch/internal/model"
	"corefetch/internal/segment"
)

// subTaskRecord is the minimal per-sub-task bookkeeping persisted inside
// the folder's own state file; each sub-task also persists its full
// state independently under its own ".state.json".
type subTaskRecord struct {
	ID       string           `json:"id"`
	Filename string           `json:"filename"`
	Status   model.TaskStatus `json:"status"`
}

// diskState is the exact shape persisted to
// "<download_dir>/.parts/<name>.state.json" for a folder aggregate,
// mirroring DriveFolderTask.save_state's field names.
type diskState struct {
	Type           model.TaskKind  `json:"type"`
	ID             string          `json:"id"`
	FolderID       string          `json:"folder_id"`
	Name           string          `json:"name"`
	CreatedAt      int64           `json:"created_at,omitempty"`
	Status         model.TaskStatus `json:"status"`
	Scanned        bool            `json:"scanned"`
	FilesMetadata  []Entry         `json:"files_metadata"`
	TotalSize      int64           `json:"total_size"`
	DownloadedSize int64           `json:"downloaded_size"`
	SubTasks       []subTaskRecord `json:"sub_tasks"`
	AutoExtract    bool            `json:"auto_extract"`
	SpeedLimit     int64           `json:"speed_limit"`
	MaxConnections int             `json:"max_connections"`
	CompletedAt    int64           `json:"completed_at"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

func statePath(partsDir, name string) string {
	return filepath.Join(partsDir, name+".state.json")
}

// saveState writes atomically: temp file in the same directory, fsync,
// rename over the real path — identical scheme to segment's saveState.
func saveState(path string, st diskState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal folder state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save folder state: %w: %w", model.ErrFilesystem, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("save folder state: %w: %w", model.ErrFilesystem, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save folder state: %w: %w", model.ErrFilesystem, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save folder state: %w: %w", model.ErrFilesystem, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save folder state: %w: %w", model.ErrFilesystem, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("save folder state: %w: %w", model.ErrFilesystem, err)
	}
	return nil
}

func loadState(path string) (diskState, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return diskState{}, false, nil
		}
		return diskState{}, false, fmt.Errorf("load folder state: %w: %w", model.ErrFilesystem, err)
	}
	var st diskState
	if err := json.Unmarshal(data, &st); err != nil {
		return diskState{}, false, fmt.Errorf("load folder state: corrupt state file %s: %w", path, err)
	}
	return st, true, nil
}

func (f *FolderAggregator) diskStateSnapshot() diskState {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]Entry, len(f.entries))
	copy(entries, f.entries)
	subs := make([]subTaskRecord, len(f.subTasks))
	for i, s := range f.subTasks {
		subs[i] = subTaskRecord{ID: s.ID, Filename: s.Filename, Status: s.Status()}
	}
	var completedAt int64
	if !f.completedAt.IsZero() {
		completedAt = f.completedAt.Unix()
	}
	return diskState{
		Type:           model.KindFolder,
		ID:             f.ID,
		FolderID:       f.FolderID,
		Name:           f.Name,
		CreatedAt:      f.createdAt.Unix(),
		Status:         f.status,
		Scanned:        f.scanned,
		FilesMetadata:  entries,
		TotalSize:      f.totalSize,
		DownloadedSize: f.downloadedSize,
		SubTasks:       subs,
		AutoExtract:    f.AutoExtract,
		SpeedLimit:     f.speedLimit,
		MaxConnections: f.MaxConnections,
		CompletedAt:    completedAt,
		ErrorMessage:   f.errorMessage,
	}
}

// SaveState persists the aggregate atomically, and cascades to every
// sub-task so their own state files stay current too.
func (f *FolderAggregator) SaveState() error {
	if err := mkPartsDir(f.partsDir()); err != nil {
		return err
	}
	for _, s := range f.snapshotSubTasks() {
		_ = s.SaveState()
	}
	return saveState(f.statePath(), f.diskStateSnapshot())
}

// LoadState reloads a previously persisted aggregate. If the scan had
// already completed, it rebuilds each sub-task from the saved metadata
// (re-resolving the fetch URL through the provider, since URLs for some
// providers are short-lived) and loads that sub-task's own state.
func (f *FolderAggregator) LoadState(ctx context.Context) (bool, error) {
	st, found, err := loadState(f.statePath())
	if err != nil || !found {
		return found, err
	}

	f.mu.Lock()
	f.ID = st.ID
	f.FolderID = st.FolderID
	f.Name = st.Name
	if st.CreatedAt > 0 {
		f.createdAt = time.Unix(st.CreatedAt, 0)
	}
	f.status = st.Status
	f.scanned = st.Scanned
	f.entries = st.FilesMetadata
	f.totalSize = st.TotalSize
	f.downloadedSize = st.DownloadedSize
	f.AutoExtract = st.AutoExtract
	f.speedLimit = st.SpeedLimit
	if st.MaxConnections > 0 {
		f.MaxConnections = st.MaxConnections
	}
	f.errorMessage = st.ErrorMessage
	f.mu.Unlock()

	entries := f.snapshotEntries()
	if f.provider == nil || len(entries) == 0 || !st.Scanned {
		return true, nil
	}

	headers, err := f.provider.AuthHeaders(ctx)
	if err != nil {
		return true, fmt.Errorf("folder auth headers: %w", err)
	}

	subs := make([]*segment.Download, 0, len(entries))
	for _, e := range entries {
		d, err := f.newSubTask(ctx, e, headers)
		if err != nil {
			return true, err
		}
		if _, err := d.LoadState(); err != nil {
			return true, err
		}
		subs = append(subs, d)
	}

	f.mu.Lock()
	f.subTasks = subs
	f.mu.Unlock()
	return true, nil
}
