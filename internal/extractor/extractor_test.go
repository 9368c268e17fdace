package extractor

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupports_RecognizesExactExtensionSet(t *testing.T) {
	e := New()
	assert.True(t, e.Supports("archive.zip"))
	assert.True(t, e.Supports("archive.TAR.GZ"))
	assert.True(t, e.Supports("archive.tgz"))
	assert.True(t, e.Supports("archive.7z"))
	assert.True(t, e.Supports("archive.rar"))
	assert.False(t, e.Supports("video.mp4"))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestExtract_ZipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "bundle.zip")
	writeZip(t, archivePath, map[string]string{
		"a.txt":        "hello",
		"nested/b.txt": "world",
	})

	destDir := filepath.Join(dir, "out")
	require.NoError(t, New().Extract(t.Context(), archivePath, destDir))

	got, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got, err = os.ReadFile(filepath.Join(destDir, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
}

func TestExtract_ZipRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	writeZip(t, archivePath, map[string]string{"../escape.txt": "pwned"})

	destDir := filepath.Join(dir, "out")
	err := New().Extract(t.Context(), archivePath, destDir)
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func writeTar(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExtract_TarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "bundle.tar")
	writeTar(t, archivePath, map[string]string{"file.txt": "tar contents"})

	destDir := filepath.Join(dir, "out")
	require.NoError(t, New().Extract(t.Context(), archivePath, destDir))

	got, err := os.ReadFile(filepath.Join(destDir, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "tar contents", string(got))
}

func TestExtract_UnsupportedExtensionReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := New().Extract(t.Context(), path, filepath.Join(dir, "out"))
	assert.Error(t, err)
}
