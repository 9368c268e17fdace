package organizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory_KnownAndUnknownExtensions(t *testing.T) {
	assert.Equal(t, "Videos", Category("movie.MKV"))
	assert.Equal(t, "Archives", Category("bundle.tar.gz"))
	assert.Equal(t, "Others", Category("noextension"))
	assert.Equal(t, "Others", Category("weird.xyz"))
}

func TestMove_RelocatesIntoCategoryFolder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	got, err := Move(dir, src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Images", "photo.png"), got)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(got)
	assert.NoError(t, err)
}

func TestMove_CollisionGetsSuffixed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Documents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Documents", "report.pdf"), []byte("existing"), 0o644))

	src := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))

	got, err := Move(dir, src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Documents", "report (1).pdf"), got)
}
