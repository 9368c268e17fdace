package filesystem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"corefetch/internal/model"
)

func TestCheckDiskSpaceIgnoresUnknownSize(t *testing.T) {
	a := NewAllocator()
	require.NoError(t, a.CheckDiskSpace(t.TempDir()+"/file.bin", 0))
	require.NoError(t, a.CheckDiskSpace(t.TempDir()+"/file.bin", -1))
}

func TestCheckDiskSpaceRejectsImpossibleRequest(t *testing.T) {
	a := NewAllocator()
	err := a.CheckDiskSpace(t.TempDir()+"/file.bin", 1<<62)
	require.Error(t, err)
	require.True(t, errors.Is(err, model.ErrFilesystem))
}
