package folder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"corefetch/internal/httpprobe"
	"corefetch/internal/model"
	"corefetch/internal/ratelimiter"
	"corefetch/internal/segment"
)

const defaultConcurrency = 2

// StatusChangeFunc is invoked whenever a FolderAggregator transitions
// status, mirroring segment.StatusChangeFunc.
type StatusChangeFunc func(f *FolderAggregator, old, new model.TaskStatus)

// FolderAggregator composes a recursive remote-folder listing into many
// segment.Download sub-tasks, tracked and persisted as a single task. It
// is the Go translation of DriveFolderTask, generalized to any
// MetadataProvider rather than Google Drive specifically.
type FolderAggregator struct {
	mu sync.Mutex

	ID             string
	FolderID       string
	Name           string
	DownloadDir    string
	MaxConnections int
	AutoExtract    bool
	Concurrency    int // bounded internal fan-out; separate from the global scheduler ceiling

	status            model.TaskStatus
	createdAt         time.Time
	totalSize         int64
	downloadedSize    int64
	speed             int64
	speedLimit        int64
	extractionSkipped bool
	supportsResume    bool
	errorMessage      string
	completedAt       time.Time
	scanned           bool

	entries  []Entry
	subTasks []*segment.Download

	provider  MetadataProvider
	global    *ratelimiter.Limiter
	probe     *httpprobe.Client
	extractor segment.Extractor
	onChange  StatusChangeFunc

	cancel    context.CancelFunc
	pauseGate *gate
}

// Config bundles the construction-time parameters for New.
type Config struct {
	ID             string
	FolderID       string
	Name           string
	DownloadDir    string
	MaxConnections int
	AutoExtract    bool
	SpeedLimit     int64
	Concurrency    int
	CreatedAt      time.Time // admission timestamp; defaults to now if zero
	Provider       MetadataProvider
	Global         *ratelimiter.Limiter
	Probe          *httpprobe.Client
	Extractor      segment.Extractor
	OnChange       StatusChangeFunc
}

// New constructs a FolderAggregator in StatusPending. It touches neither
// the filesystem nor the provider; call Start to begin the scan.
func New(cfg Config) *FolderAggregator {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 4
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	global := cfg.Global
	if global == nil {
		global = ratelimiter.New()
	}
	probe := cfg.Probe
	if probe == nil {
		probe = httpprobe.New()
	}
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &FolderAggregator{
		ID:             cfg.ID,
		FolderID:       cfg.FolderID,
		Name:           cfg.Name,
		DownloadDir:    cfg.DownloadDir,
		MaxConnections: cfg.MaxConnections,
		AutoExtract:    cfg.AutoExtract,
		Concurrency:    cfg.Concurrency,
		status:         model.StatusPending,
		createdAt:      createdAt,
		speedLimit:     cfg.SpeedLimit,
		supportsResume: true,
		provider:       cfg.Provider,
		global:         global,
		probe:          probe,
		extractor:      cfg.Extractor,
		onChange:       cfg.OnChange,
		pauseGate:      newGate(),
	}
}

func (f *FolderAggregator) partsDir() string {
	return filepath.Join(f.DownloadDir, ".parts")
}

func (f *FolderAggregator) targetDir() string {
	return filepath.Join(f.DownloadDir, f.Name)
}

func (f *FolderAggregator) statePath() string {
	return statePath(f.partsDir(), f.Name)
}

func mkPartsDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parts dir: %w: %w", model.ErrFilesystem, err)
	}
	return nil
}

// Status returns the current lifecycle status.
func (f *FolderAggregator) Status() model.TaskStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Progress returns (downloaded, total, speed-in-bytes-per-second), summed
// across every sub-task.
func (f *FolderAggregator) Progress() (int64, int64, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadedSize, f.totalSize, f.speed
}

func (f *FolderAggregator) setStatus(s model.TaskStatus) {
	f.mu.Lock()
	old := f.status
	if old.Terminal() {
		f.mu.Unlock()
		return
	}
	f.status = s
	f.mu.Unlock()
	if f.onChange != nil && old != s {
		f.onChange(f, old, s)
	}
}

// CreatedAt returns the admission timestamp used for FIFO scheduling.
func (f *FolderAggregator) CreatedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createdAt
}

// ErrorMessage returns the recorded failure reason, or "" if the
// aggregate has never failed.
func (f *FolderAggregator) ErrorMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errorMessage
}

func (f *FolderAggregator) fail(err error) {
	f.mu.Lock()
	f.errorMessage = err.Error()
	f.mu.Unlock()
	f.setStatus(model.StatusError)
	_ = f.SaveState()
}

// OnChangeHook installs the status-change callback after construction,
// mirroring segment.Download.OnChangeHook.
func (f *FolderAggregator) OnChangeHook(fn func(old, new model.TaskStatus)) {
	f.mu.Lock()
	f.onChange = func(_ *FolderAggregator, old, new model.TaskStatus) { fn(old, new) }
	f.mu.Unlock()
}

// ForceStatus overwrites the status unconditionally, bypassing the
// terminal-state guard setStatus enforces. Used only by startup recovery.
func (f *FolderAggregator) ForceStatus(s model.TaskStatus) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

// SetSpeedLimit updates the aggregate's per-task cap and propagates it to
// every sub-task. This is the corrected behavior for the original's
// set_speed_limit, which recorded the limit but never applied it to any
// sub_task.
func (f *FolderAggregator) SetSpeedLimit(bytesPerSec int64) {
	f.mu.Lock()
	f.speedLimit = bytesPerSec
	subs := make([]*segment.Download, len(f.subTasks))
	copy(subs, f.subTasks)
	f.mu.Unlock()
	for _, s := range subs {
		s.SetSpeedLimit(bytesPerSec)
	}
}

// SpeedLimit returns the current per-task cap, or 0 if unlimited.
func (f *FolderAggregator) SpeedLimit() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speedLimit
}

// UpdateURL is a no-op: a folder aggregate has no single download URL to
// refresh. Kept only so FolderAggregator exposes the same refresh-link
// surface as a SegmentedDownload.
func (f *FolderAggregator) UpdateURL(string) {}

// Rename changes the destination directory name. Rejected while the
// aggregate is actively downloading or extracting, matching
// segment.Download.Rename's downloading-or-extracting guard.
func (f *FolderAggregator) Rename(newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == model.StatusDownloading || f.status == model.StatusExtracting {
		return model.ErrTaskBusy
	}
	f.Name = newName
	return nil
}

func (f *FolderAggregator) isScanned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanned
}

func (f *FolderAggregator) needsSubTasks() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subTasks) == 0 && len(f.entries) > 0
}

func (f *FolderAggregator) snapshotSubTasks() []*segment.Download {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*segment.Download, len(f.subTasks))
	copy(out, f.subTasks)
	return out
}

func (f *FolderAggregator) snapshotEntries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// sanitizeName keeps alphanumerics, space, dot, underscore, hyphen, and
// parentheses, dropping everything else, then trims surrounding
// whitespace — identical to _recursive_scan's character filter.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" ._-()", r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func (f *FolderAggregator) scan(ctx context.Context) error {
	if err := f.recursiveScan(ctx, f.FolderID, f.Name); err != nil {
		return err
	}
	f.mu.Lock()
	f.scanned = true
	f.mu.Unlock()
	return f.SaveState()
}

func (f *FolderAggregator) recursiveScan(ctx context.Context, folderID, currentPath string) error {
	if f.Status() == model.StatusCanceled {
		return nil
	}
	children, err := f.provider.List(ctx, folderID)
	if err != nil {
		return fmt.Errorf("list folder %s: %w", folderID, err)
	}
	for _, c := range children {
		if f.Status() == model.StatusCanceled {
			return nil
		}
		safeName := sanitizeName(c.Name)
		relPath := filepath.Join(currentPath, safeName)
		if c.IsDir {
			if err := f.recursiveScan(ctx, c.ID, relPath); err != nil {
				return err
			}
			continue
		}
		f.mu.Lock()
		f.entries = append(f.entries, Entry{ID: c.ID, Name: safeName, RelativePath: relPath, Size: c.Size})
		f.totalSize += c.Size
		f.mu.Unlock()
	}
	return nil
}

// newSubTask resolves one scanned entry's fetch URL via the provider and
// builds the segment.Download that will fetch it, inheriting the
// aggregator's connection count, auto-extract flag, and speed limit.
func (f *FolderAggregator) newSubTask(ctx context.Context, e Entry, headers map[string]string) (*segment.Download, error) {
	meta, err := f.provider.Metadata(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", e.RelativePath, err)
	}
	f.mu.Lock()
	speedLimit := f.speedLimit
	f.mu.Unlock()
	d := segment.New(segment.Config{
		URL:            meta.URL,
		Filename:       e.RelativePath,
		DownloadDir:    f.DownloadDir,
		NumConnections: f.MaxConnections,
		AutoExtract:    f.AutoExtract,
		AuthHeaders:    headers,
		RelativePath:   e.RelativePath,
		Global:         f.global,
	})
	if speedLimit > 0 {
		d.SetSpeedLimit(speedLimit)
	}
	return d, nil
}

func (f *FolderAggregator) createSubTasks(ctx context.Context) error {
	headers, err := f.provider.AuthHeaders(ctx)
	if err != nil {
		return fmt.Errorf("folder auth headers: %w", err)
	}
	entries := f.snapshotEntries()
	subs := make([]*segment.Download, 0, len(entries))
	for _, e := range entries {
		d, err := f.newSubTask(ctx, e, headers)
		if err != nil {
			return err
		}
		subs = append(subs, d)
	}
	f.mu.Lock()
	f.subTasks = subs
	f.mu.Unlock()
	return nil
}

// cancelSiblings cancels every non-terminal sub-task other than the one
// that just failed, per the spec's "errors in one sub_task cancel
// siblings" rule.
func (f *FolderAggregator) cancelSiblings(except *segment.Download) {
	for _, s := range f.snapshotSubTasks() {
		if s == except {
			continue
		}
		if !s.Status().Terminal() {
			s.Cancel()
		}
	}
}

func (f *FolderAggregator) allSubTasksComplete() bool {
	subs := f.snapshotSubTasks()
	if len(subs) == 0 {
		return false
	}
	for _, s := range subs {
		if s.Status() != model.StatusCompleted {
			return false
		}
	}
	return true
}

// Start scans the folder (if not already scanned), builds one
// segment.Download per discovered file, and runs them to completion with
// bounded internal concurrency. It blocks until the aggregate reaches a
// terminal state or is canceled; callers run it in its own goroutine.
func (f *FolderAggregator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
	defer cancel()

	f.setStatus(model.StatusDownloading)

	if err := mkPartsDir(f.partsDir()); err != nil {
		f.fail(err)
		return
	}

	if !f.isScanned() {
		if f.provider == nil {
			f.fail(fmt.Errorf("scan folder %s: no metadata provider configured", f.FolderID))
			return
		}
		if err := f.scan(runCtx); err != nil {
			f.fail(err)
			return
		}
	}

	if f.needsSubTasks() {
		if err := f.createSubTasks(runCtx); err != nil {
			f.fail(err)
			return
		}
	}

	monitorCtx, stopMonitor := context.WithCancel(runCtx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		f.monitorProgress(monitorCtx)
	}()

	sem := make(chan struct{}, f.Concurrency)
	var wg sync.WaitGroup
	var failOnce sync.Once
	var runErr error

	for _, sub := range f.snapshotSubTasks() {
		if sub.Status() == model.StatusCompleted {
			continue
		}
		if err := f.pauseGate.Wait(runCtx); err != nil {
			break
		}
		if f.Status() == model.StatusCanceled {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(s *segment.Download) {
			defer wg.Done()
			defer func() { <-sem }()
			if f.Status() != model.StatusDownloading {
				return
			}
			s.Start(runCtx, f.probe, f.extractor)
			if f.extractor != nil {
				s.Extract(runCtx, f.extractor)
			}
			if s.Status() == model.StatusError {
				failOnce.Do(func() {
					runErr = fmt.Errorf("sub-task %s: %w", s.Filename, model.ErrFatalTransport)
					f.cancelSiblings(s)
				})
			}
		}(sub)
	}
	wg.Wait()
	stopMonitor()
	<-monitorDone

	if f.Status() == model.StatusCanceled {
		return
	}
	if runErr != nil {
		f.fail(runErr)
		return
	}

	if f.allSubTasksComplete() {
		f.syncProgress()
		f.mu.Lock()
		f.completedAt = time.Now()
		f.mu.Unlock()
		f.setStatus(model.StatusCompleted)
		_ = f.SaveState()
	}
}

// Pause propagates to every currently-downloading sub-task and blocks new
// sub-task admission at the next loop boundary.
func (f *FolderAggregator) Pause() {
	f.mu.Lock()
	if f.status != model.StatusDownloading {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.setStatus(model.StatusPaused)
	f.pauseGate.Pause()
	for _, s := range f.snapshotSubTasks() {
		if s.Status() == model.StatusDownloading {
			s.Pause()
		}
	}
	_ = f.SaveState()
}

// Resume unblocks new sub-task admission and resumes every paused
// sub-task; terminal sub-tasks are left untouched.
func (f *FolderAggregator) Resume() {
	f.mu.Lock()
	if f.status == model.StatusCompleted {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.setStatus(model.StatusDownloading)
	f.pauseGate.Resume()
	for _, s := range f.snapshotSubTasks() {
		if s.Status() == model.StatusPaused {
			s.Resume()
		}
	}
}

// Cancel stops admission, cancels every sub-task, and unblocks Start.
func (f *FolderAggregator) Cancel() {
	f.setStatus(model.StatusCanceled)
	f.pauseGate.Resume()
	for _, s := range f.snapshotSubTasks() {
		s.Cancel()
	}
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// DeleteFiles removes the aggregate's target directory, its own state
// file, and every sub-task's on-disk artifacts. Best-effort: it keeps
// going after a failure and reports only the first error.
func (f *FolderAggregator) DeleteFiles() error {
	var firstErr error
	record := func(err error) {
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	record(os.RemoveAll(f.targetDir()))
	record(os.Remove(f.statePath()))
	for _, s := range f.snapshotSubTasks() {
		record(s.DeleteFiles())
	}
	if firstErr != nil {
		return fmt.Errorf("delete folder files: %w: %w", model.ErrFilesystem, firstErr)
	}
	return nil
}
