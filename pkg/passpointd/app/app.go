// Package app wires the passpointd stages together and manages their
// lifecycle.
//
// Query path:
//
//	Scheduler → Handler.RequestAnqp → Supplicant (ANQPGet)
//
// Response path:
//
//	Supplicant (ANQPQueryDone) → Handler.NotifyAnqpResponse → decoder →
//	listener → [eventCh] → Formatter → Transport
//
// The listener only enqueues; a single output goroutine formats and writes
// every event so the supplicant's signal loop never waits on disk.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jsonformat "github.com/vpbank/passpointd/format/json"
	"github.com/vpbank/passpointd/models"
	"github.com/vpbank/passpointd/pkg/passpointd/config"
	"github.com/vpbank/passpointd/pkg/passpointd/handler"
	"github.com/vpbank/passpointd/pkg/passpointd/scheduler"
	"github.com/vpbank/passpointd/pkg/passpointd/supplicant"
	filetransport "github.com/vpbank/passpointd/transport/file"
)

// ErrNotRunning is returned by Reload outside a successful Start and Stop.
var ErrNotRunning = errors.New("app: not running")

// Supplicant is the collaborator the app drives. *supplicant.Client
// implements it.
type Supplicant interface {
	handler.Supplicant
	SetResponseFunc(fn supplicant.ResponseFunc)
	Start(ctx context.Context) error
	Stop()
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the app settings. Zero-value fields fall back to defaults.
type Config struct {
	// ConfigPath is the YAML file loaded when Loaded is nil.
	ConfigPath string

	// Loaded bypasses file loading.
	Loaded *config.Config

	// Supplicant replaces the system-bus client.
	Supplicant Supplicant

	// TransportWriter overrides output.path. The app does not close it.
	TransportWriter io.Writer

	// BufferSize is the capacity of the event queue. Default: 1024.
	BufferSize int
}

func (c *Config) withDefaults() {
	if c.ConfigPath == "" {
		c.ConfigPath = config.PathFromEnv()
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App runs one passpointd instance. Create one with New, start it with
// Start, and stop it with Stop.
type App struct {
	cfg    Config
	logger *slog.Logger

	loaded *config.Config

	registry  *prometheus.Registry
	dropped   prometheus.Counter
	written   prometheus.Counter
	handler   *handler.Handler
	sup       Supplicant
	closeBus  func() error
	sched     *scheduler.Scheduler
	formatter *jsonformat.JSONFormatter
	transport filetransport.Transport
	server    *http.Server
	metricsLn net.Listener

	eventMu sync.RWMutex
	eventCh chan models.AnqpQueryDoneEvent
	closed  bool

	// stateMu orders Reload against the end of Start and against Stop.
	stateMu sync.Mutex
	running bool

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	outputWg sync.WaitGroup
	stopOnce sync.Once
}

// New constructs an App. Nothing starts until Start.
func New(cfg Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &App{cfg: cfg, logger: logger}
}

// Start loads configuration, builds every stage and launches the goroutines
// that connect them. On error everything already started is torn down.
func (a *App) Start(ctx context.Context) (err error) {
	// ── 1. Configuration ────────────────────────────────────────────────
	a.loaded = a.cfg.Loaded
	if a.loaded == nil {
		loaded, err := config.Load(a.cfg.ConfigPath, a.logger)
		if err != nil {
			return fmt.Errorf("app: load config: %w", err)
		}
		a.loaded = loaded
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer func() {
		if err != nil {
			a.Stop()
		}
	}()

	// ── 2. Output (transport → formatter) ───────────────────────────────
	if a.cfg.TransportWriter != nil {
		a.transport = filetransport.New(filetransport.Config{Writer: a.cfg.TransportWriter}, a.logger)
	} else {
		tr, err := filetransport.Open(filetransport.OpenConfig{
			Path:       a.loaded.Output.Path,
			MaxBytes:   a.loaded.Output.MaxBytes,
			MaxBackups: a.loaded.Output.MaxBackups,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("app: open output: %w", err)
		}
		a.transport = tr
	}
	a.formatter = jsonformat.New(jsonformat.Config{PrettyPrint: a.loaded.Output.Pretty}, a.logger)

	// ── 3. Metrics registry ─────────────────────────────────────────────
	a.registry = prometheus.NewRegistry()
	a.dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passpointd_events_dropped_total",
		Help: "Events discarded because the output queue was full.",
	})
	a.written = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "passpointd_events_written_total",
		Help: "Events formatted and written to the output.",
	})
	a.registry.MustRegister(a.dropped, a.written)

	// ── 4. Supplicant and handler ───────────────────────────────────────
	a.sup = a.cfg.Supplicant
	if a.sup == nil {
		client, closeBus, err := supplicant.DialSystemBus(supplicant.Config{Interface: a.loaded.Interface}, a.logger)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.sup = client
		a.closeBus = closeBus
	}

	a.handler = handler.New(handler.Config{
		Interface:      a.loaded.Interface,
		MinEscape:      a.loaded.Throttle.MinEscape,
		MaxExponent:    a.loaded.Throttle.MaxExponent,
		PendingTimeout: a.loaded.Pending.Timeout,
		Registerer:     a.registry,
	}, a.sup, a.logger)

	a.eventCh = make(chan models.AnqpQueryDoneEvent, a.cfg.BufferSize)
	a.handler.SetListener(handler.ListenerFunc(a.enqueue))
	a.startOutputStage()

	a.sup.SetResponseFunc(a.handler.NotifyAnqpResponse)
	if err := a.sup.Start(runCtx); err != nil {
		a.sup = nil
		return fmt.Errorf("app: start supplicant: %w", err)
	}

	// ── 5. Metrics endpoint ─────────────────────────────────────────────
	if addr := a.loaded.Metrics.Listen; addr != "" {
		if err := a.serveMetrics(addr); err != nil {
			return err
		}
	}

	// ── 6. Reaper and scheduler ─────────────────────────────────────────
	if a.loaded.Pending.Timeout > 0 {
		reaper := handler.NewReaper(a.handler, a.loaded.Pending.ReapInterval)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			reaper.Run(runCtx)
		}()
	}

	a.sched = scheduler.New(a.loaded.Watch, a.handler, a.logger)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sched.Start(runCtx)
	}()

	a.stateMu.Lock()
	a.running = true
	a.stateMu.Unlock()

	a.logger.Info("app: running",
		"interface", a.loaded.Interface,
		"watch", a.sched.Entries(),
		"output", outputName(a.loaded.Output, a.cfg.TransportWriter),
		"metrics", a.loaded.Metrics.Listen,
	)
	return nil
}

// Stop shuts everything down in reverse order and drains queued events to
// the output. It is safe to call more than once.
//
// Shutdown order:
//  1. Cancel the run context and wait for the scheduler and reaper.
//  2. Stop the supplicant so no more responses arrive.
//  3. Cleanup the handler, detaching the listener.
//  4. Close the event queue and wait for the output goroutine to drain it.
//  5. Close the transport, the metrics server and the bus connection.
func (a *App) Stop() {
	a.stopOnce.Do(a.stop)
}

func (a *App) stop() {
	a.stateMu.Lock()
	a.running = false
	a.stateMu.Unlock()

	a.logger.Info("app: shutting down")

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.sup != nil {
		a.sup.Stop()
	}
	if a.handler != nil {
		a.handler.Cleanup()
	}

	a.eventMu.Lock()
	if a.eventCh != nil && !a.closed {
		a.closed = true
		close(a.eventCh)
	}
	a.eventMu.Unlock()
	a.outputWg.Wait()

	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			a.logger.Error("app: transport close error", "error", err.Error())
		}
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("app: metrics server shutdown error", "error", err.Error())
		}
		cancel()
	}
	if a.closeBus != nil {
		if err := a.closeBus(); err != nil {
			a.logger.Error("app: close system bus", "error", err.Error())
		}
	}

	a.logger.Info("app: shutdown complete")
}

// Reload re-reads the configuration file and replaces the watch list.
// Throttle, output and metrics settings need a restart.
// It returns ErrNotRunning unless Start has succeeded and Stop has not been
// called.
func (a *App) Reload() error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if !a.running {
		return ErrNotRunning
	}

	loaded, err := config.Load(a.cfg.ConfigPath, a.logger)
	if err != nil {
		return fmt.Errorf("app: reload config: %w", err)
	}
	a.sched.Reload(loaded.Watch)
	a.loaded.Watch = loaded.Watch
	a.logger.Info("app: configuration reloaded", "watch", len(loaded.Watch))
	return nil
}

// Handler returns the running handler.
func (a *App) Handler() *handler.Handler { return a.handler }

// Registry returns the metrics registry.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (a *App) MetricsAddr() string {
	if a.metricsLn == nil {
		return ""
	}
	return a.metricsLn.Addr().String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Output stage
// ─────────────────────────────────────────────────────────────────────────────

// enqueue is the handler listener. It never blocks.
func (a *App) enqueue(event models.AnqpQueryDoneEvent) {
	a.eventMu.RLock()
	defer a.eventMu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.eventCh <- event:
	default:
		a.dropped.Inc()
		a.logger.Warn("app: event queue full, dropping event",
			"bssid", event.Response.BSSID,
			"network_key", event.NetworkKey,
		)
	}
}

func (a *App) startOutputStage() {
	a.outputWg.Add(1)
	go func() {
		defer a.outputWg.Done()

		for event := range a.eventCh {
			data, err := a.formatter.Format(&event)
			if err != nil {
				a.logger.Warn("app: format error", "bssid", event.Response.BSSID, "error", err.Error())
				continue
			}
			if err := a.transport.Send(data); err != nil {
				a.logger.Error("app: transport send error", "error", err.Error(), "bytes", len(data))
				continue
			}
			a.written.Inc()
		}
	}()
}

// ─────────────────────────────────────────────────────────────────────────────
// Metrics endpoint
// ─────────────────────────────────────────────────────────────────────────────

func (a *App) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: metrics listen %s: %w", addr, err)
	}
	a.metricsLn = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("app: metrics server listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("app: metrics server error", "error", err.Error())
		}
	}()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

func outputName(o config.OutputConfig, override io.Writer) string {
	switch {
	case override != nil:
		return "writer"
	case o.Stdout():
		return "stdout"
	default:
		return o.Path
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
