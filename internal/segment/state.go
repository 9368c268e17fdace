package segment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"corefetch/internal/model"
)

// diskState is the exact shape persisted to
// "<download_dir>/.parts/<filename>.state.json". Field names are the wire
// format; keep them stable across releases since a running engine reloads
// this file verbatim on restart.
type diskState struct {
	Type               model.TaskKind    `json:"type"`
	ID                 string            `json:"id"`
	URL                string            `json:"url"`
	Filename           string            `json:"filename"`
	CreatedAt          int64             `json:"created_at,omitempty"`
	TotalSize          int64             `json:"total_size"`
	DownloadedSize     int64             `json:"downloaded_size"`
	Status             model.TaskStatus  `json:"status"`
	PartsInfo          []model.PartState `json:"parts_info"`
	AutoExtract        bool              `json:"auto_extract"`
	SpeedLimit         int64             `json:"speed_limit"`
	NumConnections     int               `json:"num_connections"`
	ExtractionSkipped  bool              `json:"extraction_skipped"`
	SupportsResume     bool              `json:"supports_resume"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	RelativePath       string            `json:"relative_path,omitempty"`
}

func statePath(partsDir, filename string) string {
	return filepath.Join(partsDir, filename+".state.json")
}

func partPath(partsDir, filename string, id int) string {
	return filepath.Join(partsDir, fmt.Sprintf("%s.part%d", filename, id))
}

// saveState writes the task's state atomically: write to a sibling temp
// file in the same directory, fsync, then rename over the real path. The
// rename is what makes a crash mid-write leave the previous, still-valid
// state file in place instead of a half-written one.
func saveState(path string, st diskState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save state: %w: %w", model.ErrFilesystem, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("save state: %w: %w", model.ErrFilesystem, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w: %w", model.ErrFilesystem, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w: %w", model.ErrFilesystem, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save state: %w: %w", model.ErrFilesystem, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("save state: %w: %w", model.ErrFilesystem, err)
	}
	return nil
}

func loadState(path string) (diskState, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return diskState{}, false, nil
		}
		return diskState{}, false, fmt.Errorf("load state: %w: %w", model.ErrFilesystem, err)
	}
	var st diskState
	if err := json.Unmarshal(data, &st); err != nil {
		return diskState{}, false, fmt.Errorf("load state: corrupt state file %s: %w", path, err)
	}
	return st, true, nil
}

// reconcileWithDisk trusts the on-disk part file sizes over whatever the
// (possibly stale, if the engine crashed mid-write) state JSON claims,
// exactly as the original DownloadTask.start() does before resuming.
func reconcileWithDisk(partsDir, filename string, parts []model.PartState) []model.PartState {
	for i := range parts {
		p := &parts[i]
		info, err := os.Stat(partPath(partsDir, filename, p.ID))
		if err != nil {
			continue
		}
		onDisk := p.Start + info.Size()
		if onDisk != p.Current {
			p.Current = onDisk
		}
	}
	return parts
}
