// Package config holds the engine's process-wide Settings: download
// directory, concurrency ceilings, and the organize-on-completion flag.
// Grounded on the teacher's internal/config/settings.go (a gorm-backed
// key-value ConfigManager over internal/storage), reshaped from the
// teacher's AI-bridge settings to the four fields spec §4.5 and §6 name.
package config

import (
	"os"
	"strconv"

	"corefetch/internal/storage"
)

const (
	keyDownloadDir            = "download_dir"
	keyMaxConcurrentDownloads = "max_concurrent_downloads"
	keyMaxConnectionsPerTask  = "max_connections_per_task"
	keyOrganizeFiles          = "organize_files"
)

const (
	defaultMaxConcurrentDownloads = 3
	defaultMaxConnectionsPerTask  = 4
)

// Settings is the live, in-memory configuration snapshot. Callers read
// DownloadDir/MaxConcurrentDownloads/etc. directly; mutate through
// Manager so changes persist.
type Settings struct {
	DownloadDir            string
	MaxConcurrentDownloads int
	MaxConnectionsPerTask  int
	OrganizeFiles          bool
}

// Manager persists Settings to internal/storage and applies the single
// DOWNLOAD_DIR environment override at load time (spec §6).
type Manager struct {
	store *storage.Storage
}

// NewManager builds a Manager over an already-open Storage.
func NewManager(store *storage.Storage) *Manager {
	return &Manager{store: store}
}

// Load reads persisted settings, applying defaults for anything never
// set and the DOWNLOAD_DIR env override last, so it always wins.
func (m *Manager) Load() (Settings, error) {
	s := Settings{
		MaxConcurrentDownloads: defaultMaxConcurrentDownloads,
		MaxConnectionsPerTask:  defaultMaxConnectionsPerTask,
	}

	if v, err := m.store.GetString(keyDownloadDir); err == nil && v != "" {
		s.DownloadDir = v
	}
	if v, err := m.store.GetString(keyMaxConcurrentDownloads); err == nil && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxConcurrentDownloads = n
		}
	}
	if v, err := m.store.GetString(keyMaxConnectionsPerTask); err == nil && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxConnectionsPerTask = n
		}
	}
	if v, err := m.store.GetString(keyOrganizeFiles); err == nil {
		s.OrganizeFiles = v == "true"
	}

	if v := os.Getenv("DOWNLOAD_DIR"); v != "" {
		s.DownloadDir = v
	}
	if s.DownloadDir == "" {
		home, _ := os.UserHomeDir()
		s.DownloadDir = home + string(os.PathSeparator) + "Downloads"
	}

	return s, nil
}

// Save persists every field of s, overwriting whatever was there before.
// The caller is responsible for re-invoking the scheduler's
// process_queue after a settings change that could affect admission
// (spec §6's POST /settings contract).
func (m *Manager) Save(s Settings) error {
	if err := m.store.SetString(keyDownloadDir, s.DownloadDir); err != nil {
		return err
	}
	if err := m.store.SetString(keyMaxConcurrentDownloads, strconv.Itoa(s.MaxConcurrentDownloads)); err != nil {
		return err
	}
	if err := m.store.SetString(keyMaxConnectionsPerTask, strconv.Itoa(s.MaxConnectionsPerTask)); err != nil {
		return err
	}
	organize := "false"
	if s.OrganizeFiles {
		organize = "true"
	}
	return m.store.SetString(keyOrganizeFiles, organize)
}
