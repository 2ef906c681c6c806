// Package handler coordinates ANQP queries for one wireless interface. It
// owns the per-BSSID throttling table and the table of requests awaiting a
// response, and is the only component that asks the supplicant to send a
// query.
//
// Admission follows an exponential backoff per BSSID: the first query is
// always sent; later queries are sent only once MinEscape * 2^exponent has
// elapsed since the previous successful send. Suppressed requests are not
// errors.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vpbank/passpointd/anqp/decoder"
	"github.com/vpbank/passpointd/models"
)

// ErrCommandFailed is returned by RequestAnqp when the supplicant rejects
// the query.
var ErrCommandFailed = errors.New("command failed")

// Defaults applied by New for zero Config fields.
const (
	DefaultMinEscape   = time.Second
	DefaultMaxExponent = 6
)

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators
// ─────────────────────────────────────────────────────────────────────────────

// Supplicant issues the over-the-air ANQP query. Completion is delivered
// later through Handler.NotifyAnqpResponse.
type Supplicant interface {
	SendAnqpRequest(ctx context.Context, bssid net.HardwareAddr, infoElements, hs20Subtypes []uint32) error
}

// Listener receives one event per completed query.
type Listener interface {
	OnAnqpQueryDone(event models.AnqpQueryDoneEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(event models.AnqpQueryDoneEvent)

// OnAnqpQueryDone calls f(event).
func (f ListenerFunc) OnAnqpQueryDone(event models.AnqpQueryDoneEvent) { f(event) }

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config controls a Handler.
type Config struct {
	// Interface is the wireless interface name attached to every event.
	Interface string

	// MinEscape is the base backoff window. Default 1s.
	MinEscape time.Duration

	// MaxExponent caps the backoff exponent. Default 6.
	MaxExponent int

	// PendingTimeout is how long a request may wait for its response before
	// ExpirePending drops it. Zero means never.
	PendingTimeout time.Duration

	// Now is the clock. Default time.Now.
	Now func() time.Time

	// Registerer receives the handler metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

func (c Config) withDefaults() Config {
	if c.MinEscape <= 0 {
		c.MinEscape = DefaultMinEscape
	}
	if c.MaxExponent <= 0 {
		c.MaxExponent = DefaultMaxExponent
	}
	if c.PendingTimeout < 0 {
		c.PendingTimeout = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Handler
// ─────────────────────────────────────────────────────────────────────────────

// pendingRequest is an admitted query awaiting its ANQPQueryDone.
type pendingRequest struct {
	// networkKey is the caller's correlation token, echoed on the event.
	networkKey string

	// issued is when the supplicant accepted the query; ExpirePending
	// measures PendingTimeout from here.
	issued time.Time
}

// Handler is safe for concurrent use.
type Handler struct {
	// cfg is the defaulted configuration; it is read-only after New.
	cfg Config

	// supplicant issues the over-the-air query.
	supplicant Supplicant

	// decoder turns a completed query's buffers into an AnqpResponse.
	decoder *decoder.Decoder

	// metrics counts requests, responses and decoded elements.
	metrics *Metrics

	logger *slog.Logger

	// deliverMu is held shared by NotifyAnqpResponse from the pending lookup
	// until the listener returns, and exclusively by Cleanup. Once Cleanup
	// returns no listener call is running or can start for the cleared
	// state. Lock order: deliverMu before mu.
	deliverMu sync.RWMutex

	// mu guards every field below.
	mu sync.Mutex

	// requestTimes holds the backoff record of each BSSID with at least one
	// successful send, keyed by lowercase colon-separated BSSID.
	requestTimes map[string]*requestTime

	// pending maps a BSSID to the request awaiting its response. An entry is
	// erased when its response is consumed or it expires.
	pending map[string]pendingRequest

	// inFlight marks BSSIDs whose SendAnqpRequest has not yet returned.
	inFlight map[string]struct{}

	// listener receives decoded events; nil drops them.
	listener Listener

	// generation is bumped by Cleanup so sends that straddle it leave no
	// state behind.
	generation uint64
}

// New creates a Handler that sends queries through supplicant.
func New(cfg Config, supplicant Supplicant, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg = cfg.withDefaults()
	return &Handler{
		cfg:          cfg,
		supplicant:   supplicant,
		decoder:      decoder.NewDecoder(logger),
		metrics:      NewMetrics(cfg.Registerer),
		logger:       logger,
		requestTimes: make(map[string]*requestTime),
		pending:      make(map[string]pendingRequest),
		inFlight:     make(map[string]struct{}),
	}
}

// Metrics returns the handler meters.
func (h *Handler) Metrics() *Metrics { return h.metrics }

// SetListener registers l to receive query results, replacing any previous
// listener.
func (h *Handler) SetListener(l Listener) {
	h.mu.Lock()
	h.listener = l
	h.mu.Unlock()
}

// RequestAnqp queries bssid unless it is still inside its backoff window.
// networkKey is returned untouched on the resulting event. A nil error means
// the query was either sent or deliberately suppressed.
func (h *Handler) RequestAnqp(ctx context.Context, networkKey, bssid string, includeRoamingConsortium, supportRelease2 bool) error {
	hw, key, err := parseBSSID(bssid)
	if err != nil {
		return fmt.Errorf("handler: request anqp: %w", err)
	}

	h.mu.Lock()
	if _, busy := h.inFlight[key]; busy {
		h.mu.Unlock()
		h.metrics.Requests.WithLabelValues(outcomeSuppressed).Inc()
		h.logger.Debug("handler: request suppressed, send in progress", "bssid", key)
		return nil
	}
	if rt, ok := h.requestTimes[key]; ok && !rt.readyToRequest(h.cfg.Now(), h.cfg.MinEscape) {
		window := rt.window(h.cfg.MinEscape)
		h.mu.Unlock()
		h.metrics.Requests.WithLabelValues(outcomeSuppressed).Inc()
		h.logger.Debug("handler: request suppressed by backoff",
			"bssid", key,
			"window", window,
		)
		return nil
	}
	h.inFlight[key] = struct{}{}
	gen := h.generation
	h.mu.Unlock()

	infoElements, hs20Subtypes := buildRequestLists(includeRoamingConsortium, supportRelease2)
	sendErr := h.supplicant.SendAnqpRequest(ctx, hw, infoElements, hs20Subtypes)

	h.mu.Lock()
	defer h.mu.Unlock()
	if gen == h.generation {
		delete(h.inFlight, key)
	}

	if sendErr != nil {
		h.metrics.Requests.WithLabelValues(outcomeFailed).Inc()
		h.logger.Warn("handler: anqp request failed",
			"bssid", key,
			"error", sendErr.Error(),
		)
		return fmt.Errorf("handler: send anqp request to %s: %w: %w", key, ErrCommandFailed, sendErr)
	}

	h.metrics.Requests.WithLabelValues(outcomeAdmitted).Inc()
	if gen != h.generation {
		h.logger.Debug("handler: state cleaned up during send, not recording request", "bssid", key)
		return nil
	}

	now := h.cfg.Now()
	if rt, ok := h.requestTimes[key]; ok {
		rt.updateTimeStamp(now, h.cfg.MaxExponent)
	} else {
		h.requestTimes[key] = &requestTime{last: now}
	}

	if prev, ok := h.pending[key]; ok {
		h.logger.Warn("handler: replacing unanswered request",
			"bssid", key,
			"previous_key", prev.networkKey,
			"network_key", networkKey,
		)
	}
	h.pending[key] = pendingRequest{networkKey: networkKey, issued: now}
	h.metrics.Pending.Set(float64(len(h.pending)))

	h.logger.Debug("handler: anqp request sent",
		"bssid", key,
		"network_key", networkKey,
		"info_elements", len(infoElements),
		"hs20_subtypes", len(hs20Subtypes),
	)
	return nil
}

// NotifyAnqpResponse consumes the pending request for bssid, decodes payload
// and delivers the result to the listener. Responses without a matching
// pending request are dropped. Decoding and delivery run outside mu but are
// ordered against Cleanup by deliverMu.
func (h *Handler) NotifyAnqpResponse(bssid string, payload models.RawAnqpPayload) {
	_, key, err := parseBSSID(bssid)
	if err != nil {
		h.metrics.Responses.WithLabelValues(outcomeUnsolicited).Inc()
		h.logger.Warn("handler: dropping response with invalid bssid", "bssid", bssid, "error", err.Error())
		return
	}

	h.deliverMu.RLock()
	defer h.deliverMu.RUnlock()

	h.mu.Lock()
	p, ok := h.pending[key]
	if !ok {
		h.mu.Unlock()
		h.metrics.Responses.WithLabelValues(outcomeUnsolicited).Inc()
		h.logger.Debug("handler: dropping unsolicited response", "bssid", key)
		return
	}
	delete(h.pending, key)
	h.metrics.Pending.Set(float64(len(h.pending)))
	listener := h.listener
	h.mu.Unlock()

	resp, decodeErr := h.decoder.Decode(key, payload)
	h.metrics.observeDecode(payload, decodeErr)

	if listener == nil {
		h.logger.Warn("handler: no listener registered, dropping result", "bssid", key)
		return
	}

	h.metrics.Responses.WithLabelValues(outcomeDelivered).Inc()
	listener.OnAnqpQueryDone(models.AnqpQueryDoneEvent{
		Event:      models.EventAnqpQueryDone,
		Interface:  h.cfg.Interface,
		NetworkKey: p.networkKey,
		Timestamp:  h.cfg.Now(),
		Response:   resp,
	})
}

// ExpirePending drops requests that have waited longer than PendingTimeout
// and returns how many were dropped. It is a no-op when PendingTimeout is 0.
func (h *Handler) ExpirePending() int {
	if h.cfg.PendingTimeout <= 0 {
		return 0
	}
	now := h.cfg.Now()

	h.mu.Lock()
	defer h.mu.Unlock()
	expired := 0
	for key, p := range h.pending {
		if now.Sub(p.issued) <= h.cfg.PendingTimeout {
			continue
		}
		delete(h.pending, key)
		expired++
		h.logger.Info("handler: pending request expired",
			"bssid", key,
			"network_key", p.networkKey,
			"age", now.Sub(p.issued),
		)
	}
	if expired > 0 {
		h.metrics.PendingExpired.Add(float64(expired))
		h.metrics.Pending.Set(float64(len(h.pending)))
	}
	return expired
}

// Cleanup clears all throttling and pending state and detaches the listener.
// It waits for any listener call already in progress, so a Listener must not
// call Cleanup.
func (h *Handler) Cleanup() {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.requestTimes)
	clear(h.pending)
	clear(h.inFlight)
	h.listener = nil
	h.generation++
	h.metrics.Pending.Set(0)
	h.logger.Info("handler: state cleared", "interface", h.cfg.Interface)
}

// Backoff returns the throttling record for bssid.
func (h *Handler) Backoff(bssid string) (exponent int, last time.Time, ok bool) {
	_, key, err := parseBSSID(bssid)
	if err != nil {
		return 0, time.Time{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rt, ok := h.requestTimes[key]
	if !ok {
		return 0, time.Time{}, false
	}
	return rt.exponent, rt.last, true
}

// Pending returns the number of requests awaiting a response.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
