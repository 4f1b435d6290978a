package cleanup

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string, age time.Duration, size int) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0600))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func remaining(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "upload_old", 3*time.Hour, 2048)
	touch(t, dir, "normalized_old.wav", 3*time.Hour, 1024)
	touch(t, dir, "upload_fresh", time.Minute, 10)
	touch(t, dir, "models.db", 48*time.Hour, 10)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "upload_dir"), 0755))

	s := NewScheduler(dir, time.Hour, 2*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	count, size := s.Sweep(time.Now())

	assert.Equal(t, 2, count)
	assert.Equal(t, int64(3072), size)
	assert.ElementsMatch(t, []string{"upload_fresh", "models.db", "upload_dir"}, remaining(t, dir))
}

func TestSweepMissingDir(t *testing.T) {
	s := NewScheduler(filepath.Join(t.TempDir(), "gone"), time.Hour, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	count, size := s.Sweep(time.Now())
	assert.Zero(t, count)
	assert.Zero(t, size)
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "upload_old", 3*time.Hour, 1)

	s := NewScheduler(dir, time.Hour, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start()
	s.Stop()

	assert.Empty(t, remaining(t, dir), "Start sweeps once before returning")
}
