package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig bounds the live log and the backups kept beside it.
type RotationConfig struct {
	// MaxSize is the live file size in bytes that triggers a rotation.
	// Zero uses the default of 10MB.
	MaxSize int64

	// MaxAge removes backups older than this many days. Zero keeps them.
	MaxAge int

	// MaxBackups caps the number of backups. Zero keeps them all.
	MaxBackups int

	// Daily starts a new file on the first write of each day.
	Daily bool
}

// DefaultRotationConfig returns the rotation used when none is configured.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// backupStamp names backups so that they sort oldest first.
const backupStamp = "20060102T150405.000000000"

// RotatingWriter appends to a log file shared by every implstore process
// using the same path. Each write holds an advisory lock on the file, and
// the rotation decision is made from the file on disk rather than from
// in-process counters, so a short-lived CLI run and a long add in another
// terminal agree on when to rotate.
type RotatingWriter struct {
	path string
	cfg  RotationConfig

	mu   sync.Mutex
	file *os.File
}

// NewRotatingWriter opens path for appending, creating parent directories.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg}
	f, err := w.open()
	if err != nil {
		return nil, err
	}
	w.file = f
	w.prune(time.Now())
	return w, nil
}

func (w *RotatingWriter) open() (*os.File, error) {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// Write appends p as one locked write.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	info, err := w.lockCurrent()
	if err != nil {
		return 0, err
	}

	if now := time.Now(); w.due(info, int64(len(p)), now) {
		if err := w.rotate(now); err != nil {
			unlockFile(w.file)
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}
	defer unlockFile(w.file)

	n, err := w.file.Write(p)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// lockCurrent locks the open file, first reopening it when another process
// has rotated it away, and returns its current state.
func (w *RotatingWriter) lockCurrent() (os.FileInfo, error) {
	for {
		if err := lockFile(w.file); err != nil {
			return nil, fmt.Errorf("acquiring file lock: %w", err)
		}
		held, err := w.file.Stat()
		if err != nil {
			unlockFile(w.file)
			return nil, fmt.Errorf("stat log file: %w", err)
		}
		onDisk, err := os.Stat(w.path)
		if err == nil && os.SameFile(held, onDisk) {
			return held, nil
		}

		unlockFile(w.file)
		f, err := w.open()
		if err != nil {
			return nil, err
		}
		_ = w.file.Close()
		w.file = f
	}
}

// due reports whether writing n more bytes to the file described by info
// should go to a fresh file.
func (w *RotatingWriter) due(info os.FileInfo, n int64, now time.Time) bool {
	if info.Size() == 0 {
		return false
	}
	if info.Size()+n > w.cfg.MaxSize {
		return true
	}
	if w.cfg.Daily {
		y1, m1, d1 := info.ModTime().Date()
		y2, m2, d2 := now.Date()
		return y1 != y2 || m1 != m2 || d1 != d2
	}
	return false
}

// rotate moves the locked live file aside and opens a new one. The new file
// is returned locked.
func (w *RotatingWriter) rotate(now time.Time) error {
	ext := filepath.Ext(w.path)
	backup := strings.TrimSuffix(w.path, ext) + "." + now.Format(backupStamp) + ext
	if err := os.Rename(w.path, backup); err != nil {
		return err
	}

	f, err := w.open()
	if err != nil {
		return err
	}
	unlockFile(w.file)
	_ = w.file.Close()
	w.file = f
	if err := lockFile(w.file); err != nil {
		return fmt.Errorf("acquiring file lock: %w", err)
	}
	w.prune(now)
	return nil
}

// prune deletes backups past MaxBackups or MaxAge. Failures are left for the
// next rotation.
func (w *RotatingWriter) prune(now time.Time) {
	ext := filepath.Ext(w.path)
	pattern := strings.TrimSuffix(w.path, ext) + ".*" + ext
	backups, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	// Newest first; backup names embed a sortable stamp.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	oldest := now.Add(-time.Duration(w.cfg.MaxAge) * 24 * time.Hour)
	kept := 0
	for _, b := range backups {
		if b == w.path {
			continue
		}
		info, err := os.Lstat(b)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		kept++
		if (w.cfg.MaxBackups > 0 && kept > w.cfg.MaxBackups) || (w.cfg.MaxAge > 0 && info.ModTime().Before(oldest)) {
			_ = os.Remove(b)
		}
	}
}

// Close syncs and closes the log file. Closing twice is allowed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing log file: %w", err)
	}
	return f.Close()
}
