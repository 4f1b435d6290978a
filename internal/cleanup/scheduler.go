package cleanup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// stagingPrefixes are the file names the audio loader writes
var stagingPrefixes = []string{"upload_", "normalized_"}

// Scheduler removes staging files that outlived their request, e.g. after
// a crash between staging and cleanup
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir string, interval, maxAge time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs one sweep immediately, then one per interval
func (s *Scheduler) Start() {
	s.Sweep(time.Now())

	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case now := <-ticker.C:
				s.Sweep(now)
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.logger.Info("cleanup scheduler started", "interval", s.interval, "max_age", s.maxAge)
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.logger.Info("cleanup scheduler stopped")
}

// Sweep deletes staging files older than maxAge and reports what it freed
func (s *Scheduler) Sweep(now time.Time) (deletedCount int, deletedSize int64) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		s.logger.Warn("cleanup failed to read temp dir", "dir", s.tempDir, "error", err)
		return 0, 0
	}

	for _, entry := range entries {
		if entry.IsDir() || !isStagingFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed since ReadDir
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			continue
		}

		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to delete old staging file", "path", path, "error", err)
			continue
		}
		deletedCount++
		deletedSize += info.Size()
		s.logger.Debug("deleted old staging file",
			"file", entry.Name(),
			"age", age.Round(time.Minute),
			"size_kb", info.Size()/1024)
	}

	if deletedCount > 0 {
		s.logger.Info("cleanup complete",
			"deleted", deletedCount,
			"freed_mb", float64(deletedSize)/(1024*1024))
	}
	return deletedCount, deletedSize
}

func isStagingFile(name string) bool {
	for _, prefix := range stagingPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
