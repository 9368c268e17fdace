package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corefetch/internal/httpprobe"
	"corefetch/internal/model"
)

func newTestRegistry(t *testing.T, dir string) *Registry {
	t.Helper()
	return New(Config{DownloadDir: dir, Probe: httpprobe.New()})
}

func TestAdd_AssignsCollisionFreeFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mp4"), []byte("x"), 0o644))

	r := newTestRegistry(t, dir)
	id, err := r.Add("https://example.test/movie.mp4", AddFileOpts{Filename: "movie.mp4"})
	require.NoError(t, err)

	task, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "movie (1).mp4", task.Filename())
}

func TestAdd_SecondInMemoryTaskAlsoGetsSuffixed(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t, dir)

	id1, err := r.Add("https://example.test/a", AddFileOpts{Filename: "a.bin"})
	require.NoError(t, err)
	id2, err := r.Add("https://example.test/a", AddFileOpts{Filename: "a.bin"})
	require.NoError(t, err)

	t1, _ := r.Get(id1)
	t2, _ := r.Get(id2)
	assert.Equal(t, "a.bin", t1.Filename())
	assert.Equal(t, "a (1).bin", t2.Filename())
}

func TestGet_UnknownIDReturnsErrNotFound(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestList_ReturnsInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t, dir)

	id1, _ := r.Add("https://example.test/1", AddFileOpts{Filename: "1.bin"})
	id2, _ := r.Add("https://example.test/2", AddFileOpts{Filename: "2.bin"})
	id3, _ := r.Add("https://example.test/3", AddFileOpts{Filename: "3.bin"})

	ids := make([]string, 0, 3)
	for _, task := range r.List() {
		ids = append(ids, task.ID())
	}
	assert.Equal(t, []string{id1, id2, id3}, ids)
}

func TestDelete_RemovesFromRegistryAndDisk(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t, dir)
	id, err := r.Add("https://example.test/a", AddFileOpts{Filename: "a.bin"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(id, true))
	_, err = r.Get(id)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = os.Stat(filepath.Join(dir, ".parts", "a.bin.state.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRename_MovesStateFileAndDestination(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t, dir)
	id, err := r.Add("https://example.test/a", AddFileOpts{Filename: "a.bin"})
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("payload"), 0o644))

	require.NoError(t, r.Rename(id, "b.bin"))

	task, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "b.bin", task.Filename())

	_, err = os.Stat(filepath.Join(dir, "b.bin"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ".parts", "b.bin.state.json"))
	require.NoError(t, err)
}

func TestRename_RejectedWhileDownloading(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t, dir)
	id, err := r.Add("https://example.test/a", AddFileOpts{Filename: "a.bin"})
	require.NoError(t, err)

	task, err := r.Get(id)
	require.NoError(t, err)
	task.MarkRunning()

	err = r.Rename(id, "b.bin")
	assert.ErrorIs(t, err, model.ErrTaskBusy)
}

func TestExists_ReportsOnDiskAndInMemoryTasks(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t, dir)
	assert.False(t, r.Exists("a.bin"))

	_, err := r.Add("https://example.test/a", AddFileOpts{Filename: "a.bin"})
	require.NoError(t, err)
	assert.True(t, r.Exists("a.bin"))
}

func TestRecover_DemotesDownloadingTaskToPaused(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", "4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	r := newTestRegistry(t, dir)
	id, err := r.Add(srv.URL, AddFileOpts{Filename: "crash.bin"})
	require.NoError(t, err)

	task, err := r.Get(id)
	require.NoError(t, err)
	task.MarkRunning()
	require.NoError(t, task.SaveState())

	fresh := newTestRegistry(t, dir)
	require.NoError(t, fresh.Recover(t.Context()))

	recovered, err := fresh.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, recovered.Status())
	assert.Equal(t, "crash.bin", recovered.Filename())
}

func TestRecover_SkipsCorruptStateFileWithoutFailingOthers(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t, dir)
	_, err := r.Add("https://example.test/good", AddFileOpts{Filename: "good.bin"})
	require.NoError(t, err)

	partsDir := filepath.Join(dir, ".parts")
	require.NoError(t, os.WriteFile(filepath.Join(partsDir, "broken.bin.state.json"), []byte("not json"), 0o644))

	fresh := newTestRegistry(t, dir)
	require.NoError(t, fresh.Recover(t.Context()))
	assert.Len(t, fresh.List(), 1)
	assert.Equal(t, "good.bin", fresh.List()[0].Filename())
}

func TestRecover_ReconstructsExactFilenameFromStateFileName(t *testing.T) {
	// Guards against deriving the state path from an empty/default
	// Filename: "weird name.bin" contains a space, which a naive
	// re-derivation could mangle.
	dir := t.TempDir()
	r := newTestRegistry(t, dir)
	id, err := r.Add("https://example.test/weird", AddFileOpts{Filename: "weird name.bin"})
	require.NoError(t, err)
	task, _ := r.Get(id)
	require.NoError(t, task.SaveState())

	raw, err := os.ReadFile(filepath.Join(dir, ".parts", "weird name.bin.state.json"))
	require.NoError(t, err)
	var probe map[string]any
	require.NoError(t, json.Unmarshal(raw, &probe))
	assert.Equal(t, id, probe["id"])

	fresh := newTestRegistry(t, dir)
	require.NoError(t, fresh.Recover(t.Context()))
	recovered, err := fresh.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "weird name.bin", recovered.Filename())
}
