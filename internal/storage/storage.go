// Package storage holds browser-uploaded files on disk as the fallback
// path when a direct peer connection cannot be established. Files are
// named by upload timestamp and reaped after a retention window; the
// store survives nothing — a restart starts the clock from whatever is
// on disk.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultRetention is how long an uploaded file stays available.
	DefaultRetention = 24 * time.Hour

	// sweepInterval is how often expired files are reaped.
	sweepInterval = time.Hour
)

// Store is a directory of timestamp-named uploads.
type Store struct {
	dir       string
	retention time.Duration
}

// New opens (creating if needed) the store directory.
func New(dir string, retention time.Duration) (*Store, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{dir: dir, retention: retention}, nil
}

// Dir returns the backing directory, for static file serving.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes an upload to disk and returns the generated name the
// file is served under. The original filename survives as a suffix so
// downloads keep a meaningful name.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	stored := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitize(name))

	f, err := os.Create(filepath.Join(s.dir, stored))
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	return stored, nil
}

// Sweep deletes files older than the retention window. Returns how
// many were removed.
func (s *Store) Sweep(now time.Time) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Error("storage: sweep failed", "err", err)
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if now.Sub(uploadTime(e)) <= s.retention {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			slog.Warn("storage: remove expired file", "file", e.Name(), "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("storage: swept expired uploads", "removed", removed)
	}
	return removed
}

// RunSweeper reaps expired uploads until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(time.Now())
		}
	}
}

// uploadTime recovers the upload instant from the name prefix, falling
// back to the file's mtime for anything hand-placed in the directory.
func uploadTime(e os.DirEntry) time.Time {
	prefix, _, ok := strings.Cut(e.Name(), "-")
	if ok {
		if ms, err := strconv.ParseInt(prefix, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	if info, err := e.Info(); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

// sanitize strips path separators so an upload name cannot escape the
// store directory.
func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
