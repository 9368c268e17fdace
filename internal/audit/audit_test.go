package audit

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corefetch/internal/storage"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecord_PersistsAndRecentReturnsNewestFirst(t *testing.T) {
	l := newTestLogger(t)
	l.Record("task-1", "created", "file.bin")
	l.Record("task-1", "completed", "")

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "completed", entries[0].Action)
	assert.Equal(t, "created", entries[1].Action)
}

func TestRecent_RespectsLimit(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 5; i++ {
		l.Record("task-1", "progress", "")
	}

	entries, err := l.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
