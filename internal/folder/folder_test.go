package folder

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corefetch/internal/httpprobe"
	"corefetch/internal/model"
	"corefetch/internal/segment"
)

type fakeProvider struct {
	entries map[string][]Entry
	urls    map[string]string
	headers map[string]string
}

func (p *fakeProvider) List(_ context.Context, folderID string) ([]Entry, error) {
	return p.entries[folderID], nil
}

func (p *fakeProvider) Metadata(_ context.Context, fileID string) (model.FileMeta, error) {
	url, ok := p.urls[fileID]
	if !ok {
		return model.FileMeta{}, fmt.Errorf("fakeProvider: unknown file id %q", fileID)
	}
	return model.FileMeta{URL: url}, nil
}

func (p *fakeProvider) AuthHeaders(context.Context) (map[string]string, error) {
	return p.headers, nil
}

func parseRange(t *testing.T, header string, bodyLen int) (int, int) {
	t.Helper()
	spec := strings.TrimPrefix(header, "bytes=")
	bounds := strings.SplitN(spec, "-", 2)
	start, err := strconv.Atoi(bounds[0])
	require.NoError(t, err)
	end := bodyLen - 1
	if len(bounds) == 2 && bounds[1] != "" {
		end, err = strconv.Atoi(bounds[1])
		require.NoError(t, err)
	}
	if end >= bodyLen {
		end = bodyLen - 1
	}
	return start, end
}

func fileServer(t *testing.T, content map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := content[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		rng := r.Header.Get("Range")
		w.Header().Set("Accept-Ranges", "bytes")
		if rng == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		start, end := parseRange(t, rng, len(body))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(body[start : end+1])
	}))
}

func TestSanitizeName_DropsDisallowedCharacters(t *testing.T) {
	assert.Equal(t, "Weird Name (2024)", sanitizeName("Weird: Name? (2024)*"))
}

func TestFolderAggregator_ScanBuildsSubTasksAndCompletes(t *testing.T) {
	fileA := bytes.Repeat([]byte{0xAA}, 300)
	fileB := bytes.Repeat([]byte{0xBB}, 150)

	srv := fileServer(t, map[string][]byte{
		"/files/a": fileA,
		"/files/b": fileB,
	})
	defer srv.Close()

	provider := &fakeProvider{
		entries: map[string][]Entry{
			"root": {
				{ID: "sub", Name: "sub>dir", IsDir: true},
				{ID: "a", Name: "a.bin"},
			},
			"sub": {
				{ID: "b", Name: "b.bin"},
			},
		},
		urls: map[string]string{
			"a": srv.URL + "/files/a",
			"b": srv.URL + "/files/b",
		},
		headers: map[string]string{"Authorization": "Bearer test"},
	}

	dir := t.TempDir()
	agg := New(Config{
		FolderID:       "root",
		Name:           "MyFolder",
		DownloadDir:    dir,
		MaxConnections: 2,
		Provider:       provider,
		Probe:          httpprobe.New(),
	})

	agg.Start(t.Context())

	require.Equal(t, model.StatusCompleted, agg.Status())

	gotA, err := os.ReadFile(filepath.Join(dir, "MyFolder", "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, fileA, gotA)

	gotB, err := os.ReadFile(filepath.Join(dir, "MyFolder", "subdir", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, fileB, gotB)

	downloaded, total, _ := agg.Progress()
	assert.Equal(t, int64(len(fileA)+len(fileB)), downloaded)
	assert.Equal(t, int64(len(fileA)+len(fileB)), total)

	_, err = os.Stat(agg.statePath())
	require.NoError(t, err)
}

func TestFolderAggregator_SubTaskErrorFailsAggregateAndCancelsSiblings(t *testing.T) {
	goodBody := bytes.Repeat([]byte{1}, 200)
	srv := fileServer(t, map[string][]byte{"/good": goodBody})
	defer srv.Close()

	provider := &fakeProvider{
		entries: map[string][]Entry{
			"root": {
				{ID: "bad", Name: "bad.bin"},
				{ID: "good", Name: "good.bin"},
			},
		},
		urls: map[string]string{
			"bad":  srv.URL + "/missing", // 404s: fileServer only serves /good
			"good": srv.URL + "/good",
		},
	}

	agg := New(Config{
		FolderID:       "root",
		Name:           "F",
		DownloadDir:    t.TempDir(),
		MaxConnections: 1,
		Concurrency:    2,
		Provider:       provider,
	})

	done := make(chan struct{})
	go func() {
		agg.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
	}

	assert.Equal(t, model.StatusError, agg.Status())
}

func TestFolderAggregator_SetSpeedLimitPropagatesToSubTasks(t *testing.T) {
	dir := t.TempDir()
	agg := New(Config{DownloadDir: dir, Name: "f"})
	d1 := segment.New(segment.Config{URL: "https://example.test/1", Filename: "1", DownloadDir: dir})
	d2 := segment.New(segment.Config{URL: "https://example.test/2", Filename: "2", DownloadDir: dir})

	agg.mu.Lock()
	agg.subTasks = []*segment.Download{d1, d2}
	agg.mu.Unlock()

	agg.SetSpeedLimit(8192)

	assert.Equal(t, int64(8192), d1.SpeedLimit())
	assert.Equal(t, int64(8192), d2.SpeedLimit())
	assert.Equal(t, int64(8192), agg.SpeedLimit())
}

func TestFolderAggregator_PauseBlocksResumeUnblocks(t *testing.T) {
	agg := New(Config{DownloadDir: t.TempDir(), Name: "f"})
	agg.mu.Lock()
	agg.status = model.StatusDownloading
	agg.mu.Unlock()

	agg.Pause()
	assert.Equal(t, model.StatusPaused, agg.Status())

	waitDone := make(chan error, 1)
	go func() { waitDone <- agg.pauseGate.Wait(context.Background()) }()

	select {
	case <-waitDone:
		t.Fatal("Wait returned before Resume")
	case <-time.After(20 * time.Millisecond):
	}

	agg.Resume()
	select {
	case err := <-waitDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Resume")
	}
	assert.Equal(t, model.StatusDownloading, agg.Status())
}

func TestFolderAggregator_TerminalStatusIsImmutable(t *testing.T) {
	agg := New(Config{DownloadDir: t.TempDir(), Name: "f"})
	agg.setStatus(model.StatusCompleted)
	agg.setStatus(model.StatusError)
	assert.Equal(t, model.StatusCompleted, agg.Status())
}
