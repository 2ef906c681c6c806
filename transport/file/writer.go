// Package file writes formatted ANQP events as newline-delimited records to
// stdout or to a size-rotated file.
//
// Pipeline position:
//
//	format/json → transport/file
package file

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Transport interface
// ─────────────────────────────────────────────────────────────────────────────

// Transport delivers one formatted record per Send.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config controls WriterTransport behaviour.
type Config struct {
	// Writer is the destination. nil defaults to os.Stdout.
	Writer io.Writer

	// Newline terminates each record. Default "\n".
	Newline string

	// CloseWriter makes Close close Writer when it implements io.Closer.
	CloseWriter bool
}

// ─────────────────────────────────────────────────────────────────────────────
// WriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// WriterTransport implements Transport on an io.Writer. Each record and its
// terminator reach the writer in a single Write call, so concurrent senders
// never interleave.
type WriterTransport struct {
	mu      sync.Mutex
	w       io.Writer
	nl      []byte
	closer  io.Closer
	closed  bool
	records uint64
	logger  *slog.Logger
}

// New constructs a WriterTransport.
func New(cfg Config, logger *slog.Logger) *WriterTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	nl := cfg.Newline
	if nl == "" {
		nl = "\n"
	}
	t := &WriterTransport{
		w:      w,
		nl:     []byte(nl),
		logger: logger,
	}
	if c, ok := w.(io.Closer); ok && cfg.CloseWriter {
		t.closer = c
	}
	return t
}

// OpenConfig selects stdout or a rotating file.
type OpenConfig struct {
	// Path is the output file. Empty or "-" means stdout.
	Path       string
	MaxBytes   int64
	MaxBackups int
}

// Open returns a transport for cfg. A file-backed transport owns its file and
// closes it on Close.
func Open(cfg OpenConfig, logger *slog.Logger) (*WriterTransport, error) {
	if cfg.Path == "" || cfg.Path == "-" {
		return New(Config{}, logger), nil
	}
	rf, err := NewRotatingFile(RotateConfig{
		FilePath:   cfg.Path,
		MaxBytes:   cfg.MaxBytes,
		MaxBackups: cfg.MaxBackups,
	}, logger)
	if err != nil {
		return nil, err
	}
	return New(Config{Writer: rf, CloseWriter: true}, logger), nil
}

// Send writes data followed by the record terminator.
func (t *WriterTransport) Send(data []byte) error {
	rec := make([]byte, 0, len(data)+len(t.nl))
	rec = append(rec, data...)
	rec = append(rec, t.nl...)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport/file: send on closed transport")
	}
	if _, err := t.w.Write(rec); err != nil {
		t.logger.Error("transport/file: write failed", "error", err.Error(), "bytes", len(data))
		return fmt.Errorf("transport/file: write: %w", err)
	}
	t.records++

	t.logger.Debug("transport/file: sent record", "bytes", len(data))
	return nil
}

// Records returns the number of records written.
func (t *WriterTransport) Records() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records
}

// Close stops further sends and closes the writer when the transport owns
// it. It is safe to call more than once.
func (t *WriterTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
