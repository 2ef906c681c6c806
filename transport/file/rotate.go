package file

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// RotateConfig controls size-based rotation.
type RotateConfig struct {
	// FilePath is the active file (required).
	FilePath string

	// MaxBytes rotates the active file before a write would take it past
	// this size. Zero disables rotation.
	MaxBytes int64

	// MaxBackups is how many rotated files (FilePath.1 … FilePath.N) are
	// kept. Zero keeps all of them.
	MaxBackups int
}

// RotatingFile is an io.WriteCloser that renames the active file to
// FilePath.1 once it is full, shifting older backups up by one. It is safe
// for concurrent use.
type RotatingFile struct {
	mu     sync.Mutex
	cfg    RotateConfig
	file   *os.File
	size   int64
	logger *slog.Logger
}

// NewRotatingFile opens or creates cfg.FilePath, creating parent
// directories as needed.
func NewRotatingFile(cfg RotateConfig, logger *slog.Logger) (*RotatingFile, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("transport/file: rotate: FilePath is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	dir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transport/file: rotate: mkdir %s: %w", dir, err)
	}

	rf := &RotatingFile{cfg: cfg, logger: logger}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write appends p, rotating first when p would overflow MaxBytes. A record
// larger than MaxBytes is still written whole, to a fresh file.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, fs.ErrClosed
	}
	if rf.cfg.MaxBytes > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.cfg.MaxBytes {
		if err := rf.rotate(); err != nil {
			// Keep writing to whatever file is open rather than drop data.
			rf.logger.Error("transport/file: rotate failed", "file", rf.cfg.FilePath, "error", err.Error())
			if rf.file == nil {
				return 0, err
			}
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Rotate forces a rotation regardless of size.
func (rf *RotatingFile) Rotate() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file == nil {
		return fs.ErrClosed
	}
	return rf.rotate()
}

// Close closes the active file. Further writes fail with fs.ErrClosed.
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

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (rf *RotatingFile) backupName(i int) string {
	return fmt.Sprintf("%s.%d", rf.cfg.FilePath, i)
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transport/file: rotate: open %s: %w", rf.cfg.FilePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("transport/file: rotate: stat %s: %w", rf.cfg.FilePath, err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

// rotate shifts backups (.N-1 → .N … .1 → .2), renames the active file to
// .1 and reopens. With MaxBackups set, anything past .MaxBackups is removed.
func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		rf.logger.Warn("transport/file: rotate: close error", "error", err.Error())
	}
	rf.file = nil

	highest := rf.cfg.MaxBackups
	if highest == 0 {
		highest = rf.countBackups()
	}
	for i := highest; i >= 1; i-- {
		if err := os.Rename(rf.backupName(i), rf.backupName(i+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			rf.logger.Warn("transport/file: rotate: shift error", "file", rf.backupName(i), "error", err.Error())
		}
	}
	if err := os.Rename(rf.cfg.FilePath, rf.backupName(1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		rf.logger.Warn("transport/file: rotate: rename error", "error", err.Error())
	}
	if rf.cfg.MaxBackups > 0 {
		rf.prune()
	}

	rf.logger.Info("transport/file: rotated", "file", rf.cfg.FilePath)
	return rf.open()
}

// countBackups returns the highest contiguous backup index on disk.
func (rf *RotatingFile) countBackups() int {
	n := 0
	for {
		if _, err := os.Stat(rf.backupName(n + 1)); err != nil {
			return n
		}
		n++
	}
}

func (rf *RotatingFile) prune() {
	for i := rf.cfg.MaxBackups + 1; ; i++ {
		if err := os.Remove(rf.backupName(i)); err != nil {
			return
		}
		rf.logger.Debug("transport/file: pruned backup", "file", rf.backupName(i))
	}
}
