// Package engine wires every collaborator into a running process: the
// teacher's main.go and internal/core/engine.go (TachyonEngine) did this
// wiring inline for a desktop app with a GUI, tray icon, and MCP bridge.
// Here it is factored into its own package so both the HTTP server and
// the CLI entry point can construct the same engine without duplicating
// startup order.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"corefetch/internal/api"
	"corefetch/internal/audit"
	"corefetch/internal/config"
	"corefetch/internal/eventbus"
	"corefetch/internal/extractor"
	"corefetch/internal/folder"
	"corefetch/internal/httpprobe"
	"corefetch/internal/lock"
	"corefetch/internal/logger"
	"corefetch/internal/model"
	"corefetch/internal/provider"
	"corefetch/internal/ratelimiter"
	"corefetch/internal/registry"
	"corefetch/internal/scheduler"
	"corefetch/internal/storage"

	"github.com/redis/go-redis/v9"
)

// Options configures Engine construction. Only DownloadDir has no
// built-in default; everything else falls back sensibly.
type Options struct {
	DownloadDir string
	StateDir    string // defaults to DownloadDir/.parts's parent; holds corefetch.db and app.json
	APIAddr     string // e.g. "127.0.0.1:8877"; empty disables the HTTP server
	RedisAddr   string // empty disables cross-process event fan-out
	ConsoleOut  io.Writer
}

// Engine bundles every collaborator the spec names: registry, scheduler,
// config, storage, audit, eventbus, logger, the single-instance
// directory lock, and the optional REST surface.
type Engine struct {
	Log      *slog.Logger
	Store    *storage.Storage
	Config   *config.Manager
	Registry *registry.Registry
	Sched    *scheduler.Scheduler
	Audit    *audit.Logger
	Bus      *eventbus.Bus
	API      *api.Server

	dirLock *lock.DirLock
	apiAddr string
	cancel  context.CancelFunc
}

// New builds every collaborator and recovers any tasks left on disk from
// a prior run, but does not yet start serving or admitting tasks — call
// Start for that.
func New(opts Options) (*Engine, error) {
	if opts.ConsoleOut == nil {
		opts.ConsoleOut = os.Stdout
	}

	dirLock, err := lock.Acquire(opts.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	stateDir := opts.StateDir
	if stateDir == "" {
		stateDir = opts.DownloadDir
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create state dir: %w", err)
	}

	var rdb *redis.Client
	if opts.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
	}
	bus := eventbus.New(rdb)

	log, err := logger.New(stateDir, opts.ConsoleOut, bus)
	if err != nil {
		dirLock.Release()
		return nil, fmt.Errorf("engine: init logger: %w", err)
	}

	store, err := storage.New(fmt.Sprintf("%s/corefetch.db", stateDir))
	if err != nil {
		dirLock.Release()
		return nil, fmt.Errorf("engine: init storage: %w", err)
	}

	cfg := config.NewManager(store)
	settings, err := cfg.Load()
	if err != nil {
		store.Close()
		dirLock.Release()
		return nil, fmt.Errorf("engine: load settings: %w", err)
	}
	if opts.DownloadDir != "" && settings.DownloadDir != opts.DownloadDir {
		settings.DownloadDir = opts.DownloadDir
		if err := cfg.Save(settings); err != nil {
			store.Close()
			dirLock.Release()
			return nil, fmt.Errorf("engine: persist download dir override: %w", err)
		}
	}

	auditLog := audit.New(store, log)
	global := ratelimiter.New()
	probe := httpprobe.New()
	extr := extractor.New()

	var metaProvider folder.MetadataProvider
	switch {
	case os.Getenv("CORFETCH_DRIVE_TOKEN_ENV") != "":
		metaProvider = provider.NewDriveProvider(provider.NewEnvTokenSource(os.Getenv("CORFETCH_DRIVE_TOKEN_ENV")))
	case os.Getenv("CORFETCH_S3_BUCKET") != "":
		s3p, err := provider.NewS3Provider(context.Background(), provider.S3Config{
			Bucket:       os.Getenv("CORFETCH_S3_BUCKET"),
			Region:       os.Getenv("CORFETCH_S3_REGION"),
			Endpoint:     os.Getenv("CORFETCH_S3_ENDPOINT"),
			UsePathStyle: os.Getenv("CORFETCH_S3_PATH_STYLE") == "1",
		})
		if err != nil {
			log.Warn("engine: s3 provider unavailable", "error", err)
		} else {
			metaProvider = s3p
		}
	}

	reg := registry.New(registry.Config{
		DownloadDir: settings.DownloadDir,
		Global:      global,
		Probe:       probe,
		Extractor:   extr,
		Provider:    metaProvider,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New(ctx, scheduler.Deps{
		Registry: reg,
		Config:   cfg,
		Log:      log,
		Bus:      bus,
		Audit:    auditLog,
		Store:    store,
	})
	reg.SetOnChange(func(taskID string, old, newStatus model.TaskStatus) {
		sched.ProcessQueue()
	})

	if err := reg.Recover(context.Background()); err != nil {
		log.Warn("engine: task recovery incomplete", "error", err)
	}

	var apiServer *api.Server
	if opts.APIAddr != "" {
		apiServer = api.New(reg, sched, cfg, log)
	}

	e := &Engine{
		Log:      log,
		Store:    store,
		Config:   cfg,
		Registry: reg,
		Sched:    sched,
		Audit:    auditLog,
		Bus:      bus,
		API:      apiServer,
		dirLock:  dirLock,
		apiAddr:  opts.APIAddr,
		cancel:   cancel,
	}
	return e, nil
}

// Start kicks off admission control for any recovered/queued tasks and,
// if configured, the REST server. It returns immediately; the REST
// server (if any) runs in its own goroutine.
func (e *Engine) Start() {
	e.Sched.ProcessQueue()
	if e.API != nil && e.apiAddr != "" {
		go func() {
			if err := e.API.ListenAndServe(e.apiAddr); err != nil {
				e.Log.Error("engine: api server exited", "error", err)
			}
		}()
	}
}

// Shutdown cancels every running task's context, closes storage, and
// releases the directory lock. Tasks persist their own state before
// their goroutines exit, so a subsequent Engine is able to recover them.
func (e *Engine) Shutdown() {
	e.cancel()
	for _, t := range e.Registry.List() {
		if !t.Status().Terminal() {
			_ = t.SaveState()
		}
	}
	e.Store.Close()
	e.dirLock.Release()
}
