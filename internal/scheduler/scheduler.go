// Package scheduler implements the §4.5 Scheduler: a single global
// concurrency ceiling with strict FIFO admission, re-evaluated after
// every mutation that could change who is eligible to run. Grounded on
// the teacher's internal/queue/scheduler.go (SmartScheduler), simplified
// from per-destination-host limits to the spec's single global ceiling
// (see DESIGN.md's "Non-adopted teacher enrichment" note).
package scheduler

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"corefetch/internal/audit"
	"corefetch/internal/config"
	"corefetch/internal/eventbus"
	"corefetch/internal/model"
	"corefetch/internal/organizer"
	"corefetch/internal/registry"
	"corefetch/internal/storage"
)

// Scheduler owns admission control over a Registry: it counts tasks
// currently DOWNLOADING, promotes earliest-created PENDING/QUEUED tasks
// up to the configured ceiling, and demotes the remainder to QUEUED.
type Scheduler struct {
	mu  sync.Mutex
	reg *registry.Registry
	cfg *config.Manager
	log *slog.Logger

	bus   *eventbus.Bus
	audit *audit.Logger
	store *storage.Storage

	ctx context.Context
}

// Deps bundles the Scheduler's collaborators.
type Deps struct {
	Registry *registry.Registry
	Config   *config.Manager
	Log      *slog.Logger
	Bus      *eventbus.Bus
	Audit    *audit.Logger
	Store    *storage.Storage
}

// New builds a Scheduler bound to ctx; ctx's cancellation propagates to
// every task it spawns.
func New(ctx context.Context, deps Deps) *Scheduler {
	return &Scheduler{
		reg:   deps.Registry,
		cfg:   deps.Config,
		log:   deps.Log,
		bus:   deps.Bus,
		audit: deps.Audit,
		store: deps.Store,
		ctx:   ctx,
	}
}

// ProcessQueue runs the §4.5 admission algorithm: count DOWNLOADING,
// promote earliest-created PENDING/QUEUED tasks until the ceiling is
// hit, then demote any remaining PENDING tasks to QUEUED. Safe to call
// from any goroutine; calls serialize on an internal mutex so concurrent
// triggers (add + completion racing) never double-admit.
func (s *Scheduler) ProcessQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.cfg.Load()
	if err != nil {
		s.log.Error("scheduler: failed to load settings", "error", err)
		return
	}
	ceiling := settings.MaxConcurrentDownloads
	if ceiling <= 0 {
		ceiling = 1
	}

	tasks := s.reg.List()
	admitted := 0
	var eligible []*registry.Task
	for _, t := range tasks {
		switch t.Status() {
		case model.StatusDownloading, model.StatusExtracting:
			admitted++
		case model.StatusPending, model.StatusQueued:
			eligible = append(eligible, t)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt().Before(eligible[j].CreatedAt())
	})

	var toRun []*registry.Task
	for _, t := range eligible {
		if admitted >= ceiling {
			break
		}
		toRun = append(toRun, t)
		admitted++
	}
	admittedSet := make(map[string]bool, len(toRun))
	for _, t := range toRun {
		admittedSet[t.ID()] = true
	}

	for _, t := range eligible {
		if admittedSet[t.ID()] {
			continue
		}
		if t.Status() == model.StatusPending {
			t.MarkQueued()
		}
	}

	for _, t := range toRun {
		t.MarkRunning()
		s.spawn(t, settings)
	}
}

func (s *Scheduler) spawn(t *registry.Task, settings config.Settings) {
	s.log.Info("task admitted", "task_id", t.ID(), "filename", t.Filename())
	go func() {
		t.Run(s.ctx, s.reg.Probe(), s.reg.Extractor())
		s.onTaskFinished(t, settings)
	}()
}

// onTaskFinished runs the post-completion pipeline (spec §4.5): re-run
// admission so a freed slot is immediately reused, then record an audit
// entry for a completed, failed or canceled task. A completed task also
// adds to the daily stats and, only when it is a file task and
// organize_files is on, is moved into its category folder.
func (s *Scheduler) onTaskFinished(t *registry.Task, settings config.Settings) {
	status := t.Status()
	s.ProcessQueue()

	switch status {
	case model.StatusCompleted:
		s.audit.Record(t.ID(), "completed", t.Filename())
		downloaded, _, _ := t.Progress()
		if err := s.store.RecordCompletion(downloaded); err != nil {
			s.log.Warn("scheduler: failed to record completion stat", "task_id", t.ID(), "error", err)
		}
		if settings.OrganizeFiles && t.Kind() == model.KindFile {
			src := filepath.Join(settings.DownloadDir, t.Filename())
			if _, err := organizer.Move(settings.DownloadDir, src); err != nil {
				s.log.Warn("scheduler: organize failed", "task_id", t.ID(), "error", err)
			}
		}
	case model.StatusError:
		s.audit.Record(t.ID(), "error", t.ErrorMessage())
	case model.StatusCanceled:
		s.audit.Record(t.ID(), "canceled", "")
	}

	if s.bus != nil {
		downloaded, total, speed := t.Progress()
		s.bus.Publish(eventbus.Event{
			TaskID:         t.ID(),
			Status:         string(status),
			DownloadedSize: downloaded,
			TotalSize:      total,
			Speed:          speed,
			ErrorMessage:   t.ErrorMessage(),
		})
	}
}
