// Package segment implements a single-file segmented download: a byte
// range is split across a fixed number of worker goroutines, each
// streaming into its own ".partN" file, retrying transient failures with
// linear backoff and persisting crash-consistent state to a sibling JSON
// file. It is the Go-idiom descendant of the teacher's TachyonEngine
// executeTask/downloadWorker pair, reshaped to match the behavior of
// the original DownloadTask/RateLimiter implementation this module is
// translating (see DESIGN.md).
package segment

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"corefetch/internal/model"
	"corefetch/internal/ratelimiter"
)

const (
	chunkSize            = 64 * 1024  // per-read buffer, matches the original's 64KB chunks
	mergeBufferSize      = 1024 * 1024
	healthyStreakReset   = 512 * 1024 // spec-mandated heartbeat reset threshold
	maxPartRetries       = 5
	speedSampleInterval  = time.Second
	stateSaveInterval    = 5 * time.Second
)

// StatusChangeFunc is invoked whenever a Download transitions status, so
// callers (the registry, the event bus) can react without polling.
type StatusChangeFunc func(d *Download, old, new model.TaskStatus)

// Download is a single segmented file download. All exported methods are
// safe for concurrent use.
type Download struct {
	mu sync.Mutex

	ID             string
	URL            string
	Filename       string
	DownloadDir    string
	RelativePath   string // non-empty when owned by a FolderAggregator
	NumConnections int
	AutoExtract    bool
	AuthHeaders    map[string]string

	status            model.TaskStatus
	createdAt         time.Time
	totalSize         int64
	downloadedSize    int64
	speed             int64
	errorMessage      string
	extractionSkipped bool
	supportsResume    bool
	parts             []model.PartState

	limiter  *ratelimiter.Pair
	onChange StatusChangeFunc

	httpClient *http.Client
	cancel     context.CancelFunc
	pauseGate  *gate
}

// Config bundles the construction-time parameters for New.
type Config struct {
	ID             string
	URL            string
	Filename       string
	DownloadDir    string
	NumConnections int
	AutoExtract    bool
	AuthHeaders    map[string]string
	RelativePath   string
	CreatedAt      time.Time // admission timestamp; defaults to now if zero
	Global         *ratelimiter.Limiter // shared process-wide limiter
	HTTPClient     *http.Client
	OnChange       StatusChangeFunc
}

// New constructs a Download in StatusPending. It does not touch the
// filesystem or network; call Start to begin.
func New(cfg Config) *Download {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.NumConnections <= 0 {
		cfg.NumConnections = 4
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	global := cfg.Global
	if global == nil {
		global = ratelimiter.New()
	}
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Download{
		ID:             cfg.ID,
		URL:            cfg.URL,
		Filename:       cfg.Filename,
		DownloadDir:    cfg.DownloadDir,
		NumConnections: cfg.NumConnections,
		AutoExtract:    cfg.AutoExtract,
		AuthHeaders:    cfg.AuthHeaders,
		RelativePath:   cfg.RelativePath,
		status:         model.StatusPending,
		createdAt:      createdAt,
		limiter:        ratelimiter.NewPair(global),
		onChange:       cfg.OnChange,
		httpClient:     cfg.HTTPClient,
		pauseGate:      newGate(),
	}
}

func (d *Download) partsDir() string {
	return filepath.Join(d.DownloadDir, ".parts")
}

func (d *Download) filePath() string {
	return filepath.Join(d.DownloadDir, d.Filename)
}

func (d *Download) statePath() string {
	return statePath(d.partsDir(), d.Filename)
}

// Status returns the current lifecycle status.
func (d *Download) Status() model.TaskStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// ErrorMessage returns the recorded failure reason, or "" if the task
// has never failed.
func (d *Download) ErrorMessage() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errorMessage
}

// SupportsResume reports whether the remote server honored byte-range
// requests, as discovered during the file-info probe.
func (d *Download) SupportsResume() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.supportsResume
}

// CreatedAt returns the admission timestamp used for FIFO scheduling.
func (d *Download) CreatedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createdAt
}

// ExtractionSkipped reports whether auto-extraction was requested but
// the destination had no recognized archive extension.
func (d *Download) ExtractionSkipped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.extractionSkipped
}

func (d *Download) totalSizeSnapshot() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalSize
}

// Progress returns (downloaded, total, speed-in-bytes-per-second).
func (d *Download) Progress() (int64, int64, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloadedSize, d.totalSize, d.speed
}

func (d *Download) setStatus(s model.TaskStatus) {
	d.mu.Lock()
	old := d.status
	if old.Terminal() {
		d.mu.Unlock()
		return
	}
	d.status = s
	d.mu.Unlock()
	if d.onChange != nil && old != s {
		d.onChange(d, old, s)
	}
}

// OnChangeHook installs the status-change callback after construction,
// used by the registry to wire every recovered or newly added task to
// the same dispatcher without threading it through segment.Config.
func (d *Download) OnChangeHook(fn func(old, new model.TaskStatus)) {
	d.mu.Lock()
	d.onChange = func(_ *Download, old, new model.TaskStatus) { fn(old, new) }
	d.mu.Unlock()
}

// ForceStatus overwrites the status unconditionally, bypassing the
// terminal-state guard setStatus enforces. Used only by startup recovery
// to demote a task left DOWNLOADING or EXTRACTING at crash time back to
// PAUSED (spec §4.2).
func (d *Download) ForceStatus(s model.TaskStatus) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// SetSpeedLimit updates the per-task cap in bytes per second; 0 disables
// it. Safe to call while the download is running.
func (d *Download) SetSpeedLimit(bytesPerSec int64) {
	d.limiter.Task.SetLimit(bytesPerSec)
}

// SpeedLimit returns the current per-task cap, or 0 if unlimited.
func (d *Download) SpeedLimit() int64 {
	return d.limiter.Task.Limit()
}

// UpdateURL replaces the source URL, used when a signed URL has expired.
// Per spec §5, url is read once per chunk by part workers without a
// lock, so this takes effect on the next ranged GET a worker issues.
func (d *Download) UpdateURL(newURL string) {
	d.URL = newURL
}

// Rename changes the destination filename. Rejected while the task is
// actively downloading or extracting, per the spec's rename operation.
func (d *Download) Rename(newName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == model.StatusDownloading || d.status == model.StatusExtracting {
		return model.ErrTaskBusy
	}
	d.Filename = newName
	return nil
}

func mkPartsDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parts dir: %w: %w", model.ErrFilesystem, err)
	}
	return nil
}

// planParts splits [0, totalSize) into n contiguous, inclusive-ended
// ranges, exactly as the original's start() does by integer division
// with the remainder folded into the last part.
func planParts(totalSize int64, n int) []model.PartState {
	if totalSize <= 0 {
		return []model.PartState{{ID: 0, Start: 0, End: -1, Current: 0}}
	}
	partSize := totalSize / int64(n)
	parts := make([]model.PartState, n)
	for i := 0; i < n; i++ {
		start := int64(i) * partSize
		end := start + partSize - 1
		if i == n-1 {
			end = totalSize - 1
		}
		parts[i] = model.PartState{ID: i, Start: start, End: end, Current: start}
	}
	return parts
}

func sumDownloaded(parts []model.PartState) int64 {
	var total int64
	for _, p := range parts {
		total += p.Downloaded()
	}
	return total
}

func allComplete(parts []model.PartState) bool {
	for _, p := range parts {
		if !p.Complete() {
			return false
		}
	}
	return true
}

func (d *Download) snapshotParts() []model.PartState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.PartState, len(d.parts))
	copy(out, d.parts)
	return out
}

func (d *Download) diskStateSnapshot() diskState {
	d.mu.Lock()
	defer d.mu.Unlock()
	parts := make([]model.PartState, len(d.parts))
	copy(parts, d.parts)
	return diskState{
		Type:              model.KindFile,
		ID:                d.ID,
		URL:               d.URL,
		Filename:          d.Filename,
		CreatedAt:         d.createdAt.Unix(),
		TotalSize:         d.totalSize,
		DownloadedSize:    d.downloadedSize,
		Status:            d.status,
		PartsInfo:         parts,
		AutoExtract:       d.AutoExtract,
		SpeedLimit:        d.limiter.Task.Limit(),
		NumConnections:    d.NumConnections,
		ExtractionSkipped: d.extractionSkipped,
		SupportsResume:    d.supportsResume,
		ErrorMessage:      d.errorMessage,
		RelativePath:      d.RelativePath,
	}
}

// SaveState persists the task atomically to its ".state.json" sibling.
func (d *Download) SaveState() error {
	if err := mkPartsDir(d.partsDir()); err != nil {
		return err
	}
	return saveState(d.statePath(), d.diskStateSnapshot())
}

// LoadState reloads a previously persisted task. It returns false if no
// state file exists yet.
func (d *Download) LoadState() (bool, error) {
	st, found, err := loadState(d.statePath())
	if err != nil || !found {
		return found, err
	}
	d.mu.Lock()
	d.ID = st.ID
	if d.URL == "" {
		d.URL = st.URL
	}
	d.RelativePath = st.RelativePath
	if st.CreatedAt > 0 {
		d.createdAt = time.Unix(st.CreatedAt, 0)
	}
	d.totalSize = st.TotalSize
	d.downloadedSize = st.DownloadedSize
	d.parts = st.PartsInfo
	d.AutoExtract = st.AutoExtract
	d.extractionSkipped = st.ExtractionSkipped
	d.supportsResume = st.SupportsResume
	d.status = st.Status
	d.errorMessage = st.ErrorMessage
	if st.NumConnections > 0 {
		d.NumConnections = st.NumConnections
	}
	d.mu.Unlock()
	if st.SpeedLimit > 0 {
		d.limiter.Task.SetLimit(st.SpeedLimit)
	}
	return true, nil
}

// Pause transitions a downloading task to paused and blocks its workers
// at their next chunk boundary.
func (d *Download) Pause() {
	d.mu.Lock()
	if d.status != model.StatusDownloading {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.setStatus(model.StatusPaused)
	d.pauseGate.Pause()
	_ = d.SaveState()
}

// Resume unblocks a paused task's workers. If the task was cold (not
// actively running — e.g. reloaded from disk after a restart) the caller
// is expected to call Start again instead; Resume only wakes a live run.
func (d *Download) Resume() {
	d.mu.Lock()
	if d.status == model.StatusCompleted {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.setStatus(model.StatusDownloading)
	d.pauseGate.Resume()
}

// Cancel stops all workers and marks the task canceled. Safe to call even
// if Start was never invoked.
func (d *Download) Cancel() {
	d.setStatus(model.StatusCanceled)
	d.pauseGate.Resume() // unblock anything parked in Wait so it observes cancellation
	if d.cancel != nil {
		d.cancel()
	}
}

// DeleteFiles removes the destination file, state file, and any leftover
// part files. Errors are collected, not stopped on first failure, mirroring
// delete_files's best-effort sweep in the original.
func (d *Download) DeleteFiles() error {
	var firstErr error
	record := func(err error) {
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	record(os.Remove(d.filePath()))
	record(os.Remove(d.statePath()))
	for _, p := range d.snapshotParts() {
		record(os.Remove(partPath(d.partsDir(), d.Filename, p.ID)))
	}
	if firstErr != nil {
		return fmt.Errorf("delete files: %w: %w", model.ErrFilesystem, firstErr)
	}
	return nil
}
