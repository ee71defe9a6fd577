package diskmanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ImageStore {
	t.Helper()
	s, err := NewImageStore(filepath.Join(t.TempDir(), "images"), time.UTC)
	require.NoError(t, err)
	return s
}

func TestRelPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	ts := time.Date(2025, 3, 14, 9, 5, 7, 123456000, time.UTC)
	assert.Equal(t, "2025-03-14/AB123C/090507_123456.jpg", s.RelPath("AB123C", ts))
	assert.Equal(t, "2025-03-14/AB_1/090507_123456.jpg", s.RelPath("AB/1", ts))
	assert.Equal(t, "2025-03-14/unknown/090507_123456.jpg", s.RelPath("", ts))
}

func TestWriteAndPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	ref := s.RelPath("AB123C", time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	require.NoError(t, s.Write(ref, []byte{0xff, 0xd8, 0xff}))

	path, err := s.Path(ref)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	require.Error(t, s.Write(ref, nil))
	_, err = s.Path("../../etc/passwd")
	require.Error(t, err)
	_, err = s.Path("/etc/passwd")
	require.Error(t, err)
}

func TestCleanupOlderThan(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, day := range []string{"2025-03-01", "2025-03-13", "2025-03-14"} {
		require.NoError(t, s.Write(day+"/AB123C/090000_000000.jpg", []byte{1}))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(s.BaseDir(), "keep-me"), 0o755))

	removed, err := s.CleanupOlderThan(context.Background(), time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := os.ReadDir(s.BaseDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"2025-03-13", "2025-03-14", "keep-me"}, names)
}

func TestUsage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	info, err := s.Usage()
	require.NoError(t, err)
	assert.Positive(t, info.TotalBytes)
}

func TestNewImageStore_RequiresDir(t *testing.T) {
	t.Parallel()
	_, err := NewImageStore("", nil)
	require.Error(t, err)
}
