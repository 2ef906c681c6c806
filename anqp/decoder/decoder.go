// Package decoder implements the ANQP element decoder. It converts the raw
// per-element byte buffers returned by an access point into the typed
// models.AnqpResponse representation consumed by the Passpoint handler.
//
// Every element is decoded independently: a malformed element is dropped
// from the response and reported, and never affects its siblings.
package decoder

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vpbank/passpointd/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrTruncated means a declared length ran past the end of the buffer.
	ErrTruncated = errors.New("truncated element")

	// ErrMalformed means a length, count, version or enum value is invalid.
	ErrMalformed = errors.New("malformed element")

	// ErrUnknownElement means no decoder is registered for the element id.
	ErrUnknownElement = errors.New("unknown element")
)

// ParseError reports why one element was dropped from a response.
type ParseError struct {
	Element models.ElementType
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Element, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseErrors flattens the error returned by Decoder.Decode into its
// per-element parts.
func ParseErrors(err error) []*ParseError {
	if err == nil {
		return nil
	}
	var out []*ParseError
	var pe *ParseError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if errors.As(e, &pe) {
				out = append(out, pe)
			}
		}
		return out
	}
	if errors.As(err, &pe) {
		out = append(out, pe)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Dispatch table
// ─────────────────────────────────────────────────────────────────────────────

// elementDecoder parses one element body and stores the result in resp. It
// must leave resp untouched when it returns an error. logger receives
// non-fatal parse notes.
type elementDecoder func(payload []byte, resp *models.AnqpResponse, logger *slog.Logger) error

var decoders = map[models.ElementType]elementDecoder{
	models.ElementVenueName: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseVenueName(b)
		if err != nil {
			return err
		}
		resp.VenueNames = v
		return nil
	},
	models.ElementRoamingConsortium: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseRoamingConsortium(b)
		if err != nil {
			return err
		}
		resp.RoamingConsortiumOIs = v
		return nil
	},
	models.ElementIPAddrAvailability: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseIPAvailability(b)
		if err != nil {
			return err
		}
		resp.IPAvailability = &v
		return nil
	},
	models.ElementNAIRealm: func(b []byte, resp *models.AnqpResponse, logger *slog.Logger) error {
		v, err := parseNAIRealm(b, logger)
		if err != nil {
			return err
		}
		resp.NAIRealms = v
		return nil
	},
	models.ElementThreeGPPNetwork: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseThreeGPPNetwork(b)
		if err != nil {
			return err
		}
		resp.CellularNetwork = v
		return nil
	},
	models.ElementDomainName: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseDomainName(b)
		if err != nil {
			return err
		}
		resp.DomainNames = v
		return nil
	},
	models.ElementHSFriendlyName: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseFriendlyName(b)
		if err != nil {
			return err
		}
		resp.OperatorFriendlyNames = v
		return nil
	},
	models.ElementHSWANMetrics: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseWANMetrics(b)
		if err != nil {
			return err
		}
		resp.WANMetrics = &v
		return nil
	},
	models.ElementHSConnCapability: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseConnectionCapability(b)
		if err != nil {
			return err
		}
		resp.ConnectionCapabilities = v
		return nil
	},
	models.ElementHSOSUProviders: func(b []byte, resp *models.AnqpResponse, _ *slog.Logger) error {
		v, err := ParseOSUProviders(b)
		if err != nil {
			return err
		}
		resp.OSUProviders = &v
		return nil
	},
}

// Supported reports whether a decoder is registered for t.
func Supported(t models.ElementType) bool {
	_, ok := decoders[t]
	return ok
}

// DecodeElement decodes one element body into resp. On failure resp is left
// unchanged and a *ParseError is returned.
func DecodeElement(t models.ElementType, payload []byte, resp *models.AnqpResponse) error {
	return decodeElement(t, payload, resp, discardLogger())
}

func decodeElement(t models.ElementType, payload []byte, resp *models.AnqpResponse, logger *slog.Logger) error {
	dec, ok := decoders[t]
	if !ok {
		return &ParseError{Element: t, Err: ErrUnknownElement}
	}
	if err := dec(payload, resp, logger); err != nil {
		return &ParseError{Element: t, Err: err}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Decoder
// ─────────────────────────────────────────────────────────────────────────────

// Decoder turns a RawAnqpPayload into an AnqpResponse. It is stateless once
// constructed and safe for concurrent calls to Decode.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder constructs a Decoder. A nil logger discards output.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = discardLogger()
	}
	return &Decoder{logger: logger}
}

// Decode builds a fresh response for bssid from raw. Malformed elements are
// logged and left out; unknown element ids are skipped. The response is
// always usable; the returned error joins one *ParseError per element that
// was not decoded.
func (d *Decoder) Decode(bssid string, raw models.RawAnqpPayload) (models.AnqpResponse, error) {
	resp := models.AnqpResponse{BSSID: bssid}

	ids := make([]models.ElementType, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	decoded := 0
	for _, id := range ids {
		err := decodeElement(id, raw[id], &resp, d.logger.With("bssid", bssid, "element", id.String()))
		switch {
		case err == nil:
			decoded++
		case errors.Is(err, ErrUnknownElement):
			d.logger.Debug("decoder: skipping unknown element",
				"bssid", bssid,
				"element", uint32(id),
			)
			errs = append(errs, err)
		default:
			d.logger.Error("decoder: dropping malformed element",
				"bssid", bssid,
				"element", id.String(),
				"bytes", len(raw[id]),
				"error", err.Error(),
			)
			errs = append(errs, err)
		}
	}

	d.logger.Debug("decoder: completed",
		"bssid", bssid,
		"elements", len(raw),
		"decoded", decoded,
	)

	return resp, errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// noopWriter discards all log output when no logger is provided
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(noopWriter{}, nil))
}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
