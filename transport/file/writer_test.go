package file_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vpbank/passpointd/transport/file"
)

func newBuf(t *testing.T) (*bytes.Buffer, *file.WriterTransport) {
	t.Helper()
	var buf bytes.Buffer
	tr := file.New(file.Config{Writer: &buf}, nil)
	return &buf, tr
}

func TestSend_WritesDataAndNewline(t *testing.T) {
	buf, tr := newBuf(t)
	msg := []byte(`{"test":true}`)

	if err := tr.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := buf.String()
	if !strings.HasPrefix(got, `{"test":true}`) {
		t.Errorf("output = %q, want prefix %q", got, `{"test":true}`)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("output should end with newline, got %q", got)
	}
}

func TestSend_MultipleMessages(t *testing.T) {
	buf, tr := newBuf(t)
	msgs := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}

	for _, m := range msgs {
		if err := tr.Send([]byte(m)); err != nil {
			t.Fatalf("Send(%q): %v", m, err)
		}
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	for i, want := range msgs {
		if lines[i] != want {
			t.Errorf("line[%d] = %q, want %q", i, lines[i], want)
		}
	}
}

func TestSend_CustomNewline(t *testing.T) {
	var buf bytes.Buffer
	tr := file.New(file.Config{Writer: &buf, Newline: "\r\n"}, nil)
	_ = tr.Send([]byte(`{"x":1}`))

	if !strings.HasSuffix(buf.String(), "\r\n") {
		t.Errorf("expected CRLF newline, got %q", buf.String())
	}
}

func TestSend_DefaultWriterIsStdout(t *testing.T) {
	// Constructing with zero Config must not panic (defaults to os.Stdout).
	tr := file.New(file.Config{}, nil)
	if tr == nil {
		t.Fatal("expected non-nil transport")
	}
}

func TestClose_ReturnsNil(t *testing.T) {
	_, tr := newBuf(t)
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSend_AfterCloseFails(t *testing.T) {
	buf, tr := newBuf(t)
	_ = tr.Close()
	if err := tr.Send([]byte(`{}`)); err == nil {
		t.Fatal("expected error after Close")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written after Close, got %q", buf.String())
	}
}

func TestRecords_CountsSuccessfulSends(t *testing.T) {
	_, tr := newBuf(t)
	for i := 0; i < 4; i++ {
		_ = tr.Send([]byte(`{}`))
	}
	if got := tr.Records(); got != 4 {
		t.Errorf("Records = %d, want 4", got)
	}

	failing := file.New(file.Config{Writer: &errWriter{}}, nil)
	_ = failing.Send([]byte(`{}`))
	if got := failing.Records(); got != 0 {
		t.Errorf("Records after failed send = %d, want 0", got)
	}
}

// countingWriter records the size of each Write call.
type countingWriter struct {
	mu     sync.Mutex
	writes []int
	closed bool
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.writes = append(c.writes, len(p))
	c.mu.Unlock()
	return len(p), nil
}

func (c *countingWriter) Close() error {
	c.closed = true
	return nil
}

func TestSend_SingleWritePerRecord(t *testing.T) {
	cw := &countingWriter{}
	tr := file.New(file.Config{Writer: cw}, nil)
	_ = tr.Send([]byte(`{"a":1}`))
	if len(cw.writes) != 1 || cw.writes[0] != len(`{"a":1}`)+1 {
		t.Errorf("writes = %v, want one write of %d bytes", cw.writes, len(`{"a":1}`)+1)
	}
}

func TestClose_OwnedWriter(t *testing.T) {
	owned := &countingWriter{}
	_ = file.New(file.Config{Writer: owned, CloseWriter: true}, nil).Close()
	if !owned.closed {
		t.Error("owned writer should be closed")
	}

	borrowed := &countingWriter{}
	_ = file.New(file.Config{Writer: borrowed}, nil).Close()
	if borrowed.closed {
		t.Error("borrowed writer must not be closed")
	}
}

func TestOpen_Stdout(t *testing.T) {
	for _, path := range []string{"", "-"} {
		tr, err := file.Open(file.OpenConfig{Path: path}, nil)
		if err != nil {
			t.Fatalf("Open(%q): %v", path, err)
		}
		if err := tr.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "anqp.json")
	tr, err := file.Open(file.OpenConfig{Path: path, MaxBytes: 1 << 20}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tr.Send([]byte(`{"bssid":"aa:bb:cc:dd:ee:ff"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "{\"bssid\":\"aa:bb:cc:dd:ee:ff\"}\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestSend_ConcurrentSafe(t *testing.T) {
	buf, tr := newBuf(t)
	const n = 100
	msg := []byte(`{"concurrent":true}`)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = tr.Send(msg)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != n {
		t.Errorf("expected %d lines, got %d", n, len(lines))
	}
}

func TestSend_NilLoggerDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	tr := file.New(file.Config{Writer: &buf}, nil)
	if err := tr.Send([]byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Send with nil logger: %v", err)
	}
}

func TestSend_ErrorOnClosedWriter(t *testing.T) {
	// Use a writer that always returns an error.
	tr := file.New(file.Config{Writer: &errWriter{}}, nil)
	err := tr.Send([]byte(`{"x":1}`))
	if err == nil {
		t.Error("expected error from failing writer, got nil")
	}
}

// errWriter always fails.
type errWriter struct{}

func (e *errWriter) Write(_ []byte) (int, error) {
	return 0, &writeError{}
}

type writeError struct{}

func (e *writeError) Error() string { return "simulated write error" }

// Ensure WriterTransport satisfies the Transport interface at compile time.
var _ file.Transport = (*file.WriterTransport)(nil)
