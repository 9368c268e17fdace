package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corefetch/internal/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store)
}

func TestLoad_AppliesDefaultsWhenNothingPersisted(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, defaultMaxConcurrentDownloads, s.MaxConcurrentDownloads)
	assert.Equal(t, defaultMaxConnectionsPerTask, s.MaxConnectionsPerTask)
	assert.False(t, s.OrganizeFiles)
	assert.NotEmpty(t, s.DownloadDir)
}

func TestSaveThenLoad_RoundTripsEveryField(t *testing.T) {
	m := newTestManager(t)
	want := Settings{
		DownloadDir:            t.TempDir(),
		MaxConcurrentDownloads: 5,
		MaxConnectionsPerTask:  8,
		OrganizeFiles:          true,
	}
	require.NoError(t, m.Save(want))

	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_DownloadDirEnvOverrideWinsOverPersisted(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save(Settings{DownloadDir: "/persisted/dir", MaxConcurrentDownloads: 3, MaxConnectionsPerTask: 4}))

	override := t.TempDir()
	t.Setenv("DOWNLOAD_DIR", override)

	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, override, got.DownloadDir)
}

func TestLoad_FallsBackToHomeDownloadsWhenUnset(t *testing.T) {
	m := newTestManager(t)
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Downloads"), got.DownloadDir)
}
