package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"corefetch/internal/folder"
	"corefetch/internal/httpprobe"
	"corefetch/internal/model"
	"corefetch/internal/ratelimiter"
	"corefetch/internal/segment"
)

// OnChange is invoked whenever any task in the registry transitions
// status, so the Scheduler can react (re-run process_queue) without
// polling.
type OnChange func(taskID string, old, new model.TaskStatus)

// AddFileOpts are the optional per-task overrides accepted by Add,
// mirroring the REST surface's POST /downloads body (spec §6).
type AddFileOpts struct {
	Filename       string
	AutoExtract    bool
	SpeedLimit     int64
	MaxConnections int
	Headers        map[string]string
}

// AddFolderOpts are the optional per-task overrides accepted by
// AddFolder.
type AddFolderOpts struct {
	Name           string
	AutoExtract    bool
	SpeedLimit     int64
	MaxConnections int
}

// Registry is the process-wide map of task id to task (spec §4.4). It
// owns filename collision avoidance on add, startup recovery by scanning
// ".parts/*.state.json", and the coordinated rename of a task's on-disk
// artifacts.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // insertion order, for List's stable FIFO-by-creation output

	downloadDir string
	global      *ratelimiter.Limiter
	probe       *httpprobe.Client
	extractor   segment.Extractor
	provider    folder.MetadataProvider
	onChange    OnChange
}

// Config bundles the construction-time collaborators every task the
// registry creates will share.
type Config struct {
	DownloadDir string
	Global      *ratelimiter.Limiter
	Probe       *httpprobe.Client
	Extractor   segment.Extractor
	Provider    folder.MetadataProvider
	OnChange    OnChange
}

// New builds an empty Registry. Call Recover to populate it from disk.
func New(cfg Config) *Registry {
	global := cfg.Global
	if global == nil {
		global = ratelimiter.New()
	}
	probe := cfg.Probe
	if probe == nil {
		probe = httpprobe.New()
	}
	return &Registry{
		tasks:       make(map[string]*Task),
		downloadDir: cfg.DownloadDir,
		global:      global,
		probe:       probe,
		extractor:   cfg.Extractor,
		provider:    cfg.Provider,
		onChange:    cfg.OnChange,
	}
}

// SetOnChange installs the status-change callback after construction,
// since the Scheduler that typically provides it is itself constructed
// with a reference to this Registry.
func (r *Registry) SetOnChange(fn OnChange) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Probe exposes the shared httpprobe.Client so the scheduler can pass it
// to Task.Run without the registry's internals leaking elsewhere.
func (r *Registry) Probe() *httpprobe.Client { return r.probe }

// Extractor exposes the shared extractor.
func (r *Registry) Extractor() segment.Extractor { return r.extractor }

func (r *Registry) wrap(kind model.TaskKind, id string, createdAt time.Time, file *segment.Download, folderAgg *folder.FolderAggregator) *Task {
	t := &Task{file: file, folderAgg: folderAgg, createdAt: createdAt}
	taskID := id
	onStatusChange := func(old, new model.TaskStatus) {
		if r.onChange != nil {
			r.onChange(taskID, old, new)
		}
	}
	if file != nil {
		file.OnChangeHook(onStatusChange)
	} else {
		folderAgg.OnChangeHook(onStatusChange)
	}
	return t
}

// uniqueFilename suffixes " (k)" onto name until no file, directory, or
// in-memory task already claims it — the spec's exact collision
// avoidance scheme for Add.
func (r *Registry) uniqueFilename(name string) string {
	candidate := name
	for k := 1; r.filenameTaken(candidate); k++ {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		candidate = fmt.Sprintf("%s (%d)%s", base, k, ext)
	}
	return candidate
}

func (r *Registry) filenameTaken(name string) bool {
	if _, err := os.Stat(filepath.Join(r.downloadDir, name)); err == nil {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		if t.Filename() == name {
			return true
		}
	}
	return false
}

// Add creates a new SegmentedDownload task in StatusPending, persists its
// initial state, and registers it. The caller is responsible for
// invoking the scheduler's ProcessQueue afterward (spec §4.5).
func (r *Registry) Add(url string, opts AddFileOpts) (string, error) {
	id := uuid.NewString()
	filename := opts.Filename
	if filename == "" {
		filename = filepath.Base(url)
	}
	filename = r.uniqueFilename(filename)

	numConn := opts.MaxConnections
	createdAt := time.Now()
	d := segment.New(segment.Config{
		ID:             id,
		URL:            url,
		Filename:       filename,
		DownloadDir:    r.downloadDir,
		NumConnections: numConn,
		AutoExtract:    opts.AutoExtract,
		AuthHeaders:    opts.Headers,
		CreatedAt:      createdAt,
		Global:         r.global,
	})
	if opts.SpeedLimit > 0 {
		d.SetSpeedLimit(opts.SpeedLimit)
	}

	task := r.wrap(model.KindFile, id, createdAt, d, nil)

	r.mu.Lock()
	r.tasks[id] = task
	r.order = append(r.order, id)
	r.mu.Unlock()

	if err := d.SaveState(); err != nil {
		return "", err
	}
	return id, nil
}

// AddFolder creates a new FolderAggregator task in StatusPending.
func (r *Registry) AddFolder(folderID string, opts AddFolderOpts) (string, error) {
	id := uuid.NewString()
	name := opts.Name
	if name == "" {
		name = folderID
	}
	name = r.uniqueFilename(name)

	createdAt := time.Now()
	f := folder.New(folder.Config{
		ID:             id,
		FolderID:       folderID,
		Name:           name,
		DownloadDir:    r.downloadDir,
		MaxConnections: opts.MaxConnections,
		AutoExtract:    opts.AutoExtract,
		SpeedLimit:     opts.SpeedLimit,
		CreatedAt:      createdAt,
		Provider:       r.provider,
		Global:         r.global,
		Probe:          r.probe,
		Extractor:      r.extractor,
	})

	task := r.wrap(model.KindFolder, id, createdAt, nil, f)

	r.mu.Lock()
	r.tasks[id] = task
	r.order = append(r.order, id)
	r.mu.Unlock()

	if err := f.SaveState(); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the task with the given id.
func (r *Registry) Get(id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return t, nil
}

// List returns every task in creation order.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		if t, ok := r.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Exists reports whether filename already names a completed or
// in-flight task, for the §6 GET /downloads/check_file endpoint.
func (r *Registry) Exists(filename string) bool {
	return r.filenameTaken(filename)
}

// Delete removes a task from the registry. Non-terminal tasks are always
// canceled first and their artifacts removed regardless of removeFiles,
// per spec §6's DELETE contract.
func (r *Registry) Delete(id string, removeFiles bool) error {
	t, err := r.Get(id)
	if err != nil {
		return err
	}

	if !t.Status().Terminal() {
		t.Cancel()
		removeFiles = true
	}
	if removeFiles {
		if err := t.DeleteFiles(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.tasks, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return nil
}

// Rename atomically renames a task's destination and on-disk artifacts.
// Rejected when the task is DOWNLOADING; the caller must pause first.
func (r *Registry) Rename(id, newName string) error {
	t, err := r.Get(id)
	if err != nil {
		return err
	}
	oldName := t.Filename()
	if err := t.rename(newName); err != nil {
		return err
	}
	if err := moveStateFiles(r.downloadDir, oldName, newName); err != nil {
		return err
	}
	return t.SaveState()
}

// Recover scans "<download_dir>/.parts/*.state.json" and reconstructs
// every task found, distinguishing SegmentedDownload from FolderAggregator
// by the persisted "type" discriminator. Tasks found in DOWNLOADING or
// EXTRACTING are forcibly demoted to PAUSED (spec §4.2's
// thundering-herd guard). Call once at startup before the scheduler
// starts admitting tasks.
func (r *Registry) Recover(ctx context.Context) error {
	partsDir := filepath.Join(r.downloadDir, ".parts")
	entries, err := os.ReadDir(partsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("recover: %w: %w", model.ErrFilesystem, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".state.json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".state.json")
		if err := r.recoverOne(ctx, filepath.Join(partsDir, e.Name()), name); err != nil {
			continue // a single corrupt state file must not block the rest
		}
	}
	return nil
}

type kindProbe struct {
	Type model.TaskKind `json:"type"`
	ID   string         `json:"id"`
}

// recoverOne reconstructs the task whose state file lives at path. name is
// the task's filename/folder-name, recovered from the state file's own
// name (".parts/<name>.state.json") since both Download and
// FolderAggregator derive their on-disk path from their own
// Filename/Name field rather than accepting one directly.
func (r *Registry) recoverOne(ctx context.Context, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var kp kindProbe
	if err := json.Unmarshal(data, &kp); err != nil {
		return err
	}

	switch kp.Type {
	case model.KindFolder:
		f := folder.New(folder.Config{
			Name:        name,
			DownloadDir: r.downloadDir,
			Provider:    r.provider,
			Global:      r.global,
			Probe:       r.probe,
			Extractor:   r.extractor,
		})
		if _, err := f.LoadState(ctx); err != nil {
			return err
		}
		demoteIfActive(f)
		task := r.wrap(model.KindFolder, f.ID, f.CreatedAt(), nil, f)
		r.mu.Lock()
		r.tasks[f.ID] = task
		r.order = append(r.order, f.ID)
		r.mu.Unlock()
	default:
		d := segment.New(segment.Config{Filename: name, DownloadDir: r.downloadDir, Global: r.global})
		if _, err := d.LoadState(); err != nil {
			return err
		}
		demoteIfActiveFile(d)
		task := r.wrap(model.KindFile, d.ID, d.CreatedAt(), d, nil)
		r.mu.Lock()
		r.tasks[d.ID] = task
		r.order = append(r.order, d.ID)
		r.mu.Unlock()
	}
	return nil
}

func demoteIfActiveFile(d *segment.Download) {
	if s := d.Status(); s == model.StatusDownloading || s == model.StatusExtracting {
		d.ForceStatus(model.StatusPaused)
	}
}

func demoteIfActive(f *folder.FolderAggregator) {
	if s := f.Status(); s == model.StatusDownloading || s == model.StatusExtracting {
		f.ForceStatus(model.StatusPaused)
	}
}
