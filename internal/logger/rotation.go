package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rotatedTimeFormat keeps millisecond precision so back-to-back rotations
// cannot rename onto each other.
const rotatedTimeFormat = "20060102-150405.000"

// RotatingWriter is an append-only log sink that starts a fresh file once
// the current one grows past a size limit. Rotated files get a timestamp
// suffix, are optionally gzipped, and are pruned after a retention window.
// Safe for concurrent use.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	limit    int64
	retain   time.Duration
	compress bool
	out      *os.File
	written  int64
}

// NewRotatingWriter opens (or creates) the log file at path, creating parent
// directories as needed. maxSizeMB bounds the active file; maxAgeDays bounds
// how long rotated files are kept (0 keeps them forever).
func NewRotatingWriter(path string, maxSizeMB, maxAgeDays int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		limit:    int64(maxSizeMB) * 1024 * 1024,
		retain:   time.Duration(maxAgeDays) * 24 * time.Hour,
		compress: compress,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()

	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.out = f
	w.written = info.Size()
	return nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.out.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.out == nil {
		return nil
	}
	err := w.out.Close()
	w.out = nil
	return err
}

// rotate renames the active file out of the way and reopens a fresh one.
// Callers must hold mu.
func (w *RotatingWriter) rotate() error {
	if err := w.out.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", w.path, time.Now().Format(rotatedTimeFormat))
	if err := os.Rename(w.path, rotated); err != nil {
		return err
	}
	if w.compress {
		go gzipAndRemove(rotated)
	}

	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

// gzipAndRemove replaces a rotated log with its gzipped form. On failure the
// uncompressed file is left in place for prune to age out.
func gzipAndRemove(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// prune deletes rotated files older than the retention window. The active
// file never matches the glob, so it is never touched.
func (w *RotatingWriter) prune() {
	if w.retain <= 0 {
		return
	}

	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-w.retain)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(m)
	}
}
