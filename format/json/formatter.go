// Package json serialises ANQP query results for the output transport.
//
// Pipeline position:
//
//	handler [listener] → format/json → transport/file
//
// The json struct tags live on the model types, so serialisation is a single
// json.Marshal call with optional indentation.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vpbank/passpointd/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises a completed ANQP query.
type Formatter interface {
	Format(event *models.AnqpQueryDoneEvent) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented JSON.
	PrettyPrint bool

	// Indent is used when PrettyPrint is set. Default two spaces.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter. It is safe for concurrent use.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. A nil logger discards output.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises event:
//
//	{
//	  "event": "ANQP_QUERY_DONE",
//	  "interface": "wlan0",
//	  "network_key": "…",
//	  "timestamp": "2026-02-26T10:30:00.123Z",
//	  "response": { "bssid": "aa:bb:cc:dd:ee:ff", "domain_names": ["…"], … }
//	}
func (f *JSONFormatter) Format(event *models.AnqpQueryDoneEvent) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("format/json: event must not be nil")
	}

	data, err := f.marshal(event)
	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"bssid", event.Response.BSSID,
			"network_key", event.NetworkKey,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted event",
		"bssid", event.Response.BSSID,
		"network_key", event.NetworkKey,
		"bytes", len(data),
	)
	return data, nil
}

// FormatResponse serialises a bare decoded response.
func (f *JSONFormatter) FormatResponse(resp *models.AnqpResponse) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("format/json: response must not be nil")
	}
	data, err := f.marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}
	return data, nil
}

func (f *JSONFormatter) marshal(v interface{}) ([]byte, error) {
	if f.cfg.PrettyPrint {
		return json.MarshalIndent(v, "", f.cfg.Indent)
	}
	return json.Marshal(v)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
