package httpprobe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corefetch/internal/model"
)

func TestProbe_RangeSupportedWithContentDisposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
		w.Header().Set("Content-Disposition", `attachment; filename="archive.zip"`)
		w.Header().Set("Content-Range", "bytes 0-0/2048")
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte{0})
	}))
	defer srv.Close()

	meta, err := New().Probe(t.Context(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "archive.zip", meta.Name)
	assert.Equal(t, int64(2048), meta.Size)
	assert.True(t, meta.AcceptsRanges)
}

func TestProbe_RangeUnsupportedFallsBackToFullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	meta, err := New().Probe(t.Context(), srv.URL, nil)
	require.NoError(t, err)
	assert.False(t, meta.AcceptsRanges)
	assert.Equal(t, int64(10), meta.Size)
}

func TestProbe_AuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New().Probe(t.Context(), srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAuthExpired)
}
