package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "20060102-150405.000"

// RotateOptions controls when a log file is rotated and how many backups
// are kept.
type RotateOptions struct {
	MaxSizeMB  int  // rotate once the file would exceed this size; 0 never rotates
	MaxBackups int  // rotated files kept; 0 keeps all
	Compress   bool // gzip rotated files
}

// RotatingFile is an append-only log file that moves itself aside to
// <name>.<timestamp> once it grows past the size limit. It is safe for
// concurrent writers.
type RotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	opts     RotateOptions
	file     *os.File
	size     int64
	now      func() time.Time
}

// OpenRotating opens path for appending, creating its directory.
func OpenRotating(path string, opts RotateOptions) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rf := &RotatingFile{
		path:     path,
		maxBytes: int64(opts.MaxSizeMB) * 1024 * 1024,
		opts:     opts,
		now:      time.Now,
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) open() error {
	file, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rf.file = file
	rf.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past the limit.
// A single write larger than the limit still goes to a fresh file.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.maxBytes > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.maxBytes {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Rotate forces a rotation.
func (rf *RotatingFile) Rotate() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return os.ErrClosed
	}
	return rf.rotate()
}

// Close closes the current file. Further writes fail.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return err
	}
	rf.file = nil

	backup := rf.path + "." + rf.now().Format(backupTimeFormat)
	if err := os.Rename(rf.path, backup); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	if rf.opts.Compress {
		if err := gzipFile(backup); err != nil {
			return fmt.Errorf("failed to compress %s: %w", backup, err)
		}
	}

	if err := rf.open(); err != nil {
		return err
	}
	return rf.prune()
}

// backups lists rotated files oldest first. The timestamp suffix sorts
// chronologically.
func (rf *RotatingFile) backups() ([]string, error) {
	matches, err := filepath.Glob(rf.path + ".*")
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool {
		return strings.TrimSuffix(matches[i], ".gz") < strings.TrimSuffix(matches[j], ".gz")
	})
	return matches, nil
}

func (rf *RotatingFile) prune() error {
	if rf.opts.MaxBackups <= 0 {
		return nil
	}
	backups, err := rf.backups()
	if err != nil {
		return err
	}
	for len(backups) > rf.opts.MaxBackups {
		if err := os.Remove(backups[0]); err != nil && !os.IsNotExist(err) {
			return err
		}
		backups = backups[1:]
	}
	return nil
}

func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
