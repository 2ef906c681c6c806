// Package supplicant talks to wpa_supplicant over D-Bus. It sends ANQP
// queries through Interface.ANQPGet and, when the supplicant signals
// ANQPQueryDone, reads the BSS "ANQP" property and hands the per-element
// buffers to a ResponseFunc.
//
// Pipeline position:
//
//	handler.RequestAnqp → [Client.SendAnqpRequest] → wpa_supplicant
//	wpa_supplicant → ANQPQueryDone → [Client] → handler.NotifyAnqpResponse
package supplicant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/vpbank/passpointd/models"
)

const (
	busName        = "fi.w1.wpa_supplicant1"
	rootPath       = dbus.ObjectPath("/fi/w1/wpa_supplicant1")
	ifaceInterface = busName + ".Interface"
	bssInterface   = busName + ".BSS"

	signalQueryDone = "ANQPQueryDone"
	resultSuccess   = "SUCCESS"
)

// ErrNotStarted is returned by SendAnqpRequest before Start succeeds.
var ErrNotStarted = errors.New("supplicant: not started")

// Bus is the subset of *dbus.Conn used by Client.
type Bus interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	BusObject() dbus.BusObject
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// ResponseFunc receives the buffers of one completed query. A failed query
// is delivered with an empty payload.
type ResponseFunc func(bssid string, payload models.RawAnqpPayload)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls a Client.
type Config struct {
	// Interface is the wireless interface wpa_supplicant manages (default
	// "wlan0").
	Interface string

	// SignalBufferSize is the capacity of the D-Bus signal channel (default
	// 64).
	SignalBufferSize int

	// OnResponse receives completed queries.
	OnResponse ResponseFunc
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Interface == "" {
		out.Interface = "wlan0"
	}
	if out.SignalBufferSize <= 0 {
		out.SignalBufferSize = 64
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Client
// ─────────────────────────────────────────────────────────────────────────────

// Client is one wpa_supplicant interface.
type Client struct {
	// cfg is the defaulted configuration. Only OnResponse changes after New,
	// and only under mu.
	cfg Config

	// bus is the D-Bus connection; the Client never closes it.
	bus Bus

	logger *slog.Logger

	// mu guards every field below and cfg.OnResponse.
	mu sync.Mutex

	// running is set for the whole of Start through Stop, including while
	// Start is still subscribing.
	running bool

	// ifaceObj is the fi.w1.wpa_supplicant1.Interface object resolved by
	// GetInterface. It is nil when not started.
	ifaceObj dbus.BusObject

	// signals is the channel registered with bus.Signal.
	signals chan *dbus.Signal

	// stopCh is closed by Stop to end the signal loop; doneCh is closed by
	// the loop when it returns.
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Client on bus. It does not touch the bus until Start.
func New(cfg Config, bus Bus, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Client{
		cfg:    cfg.withDefaults(),
		bus:    bus,
		logger: logger,
	}
}

// DialSystemBus connects to the system bus and creates a Client on it. The
// returned close function releases the connection.
func DialSystemBus(cfg Config, logger *slog.Logger) (*Client, func() error, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, nil, fmt.Errorf("supplicant: connect system bus: %w", err)
	}
	return New(cfg, conn, logger), conn.Close, nil
}

// SetResponseFunc replaces the response callback. It must be called before
// Start.
func (c *Client) SetResponseFunc(fn ResponseFunc) {
	c.mu.Lock()
	c.cfg.OnResponse = fn
	c.mu.Unlock()
}

// Start resolves the interface object and subscribes to ANQPQueryDone.
// Signals are processed until Stop is called or ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("supplicant: already running")
	}
	c.running = true
	c.mu.Unlock()

	path, err := c.subscribe(ctx)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	signals := make(chan *dbus.Signal, c.cfg.SignalBufferSize)
	c.bus.Signal(signals)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	c.mu.Lock()
	c.ifaceObj = c.bus.Object(busName, path)
	c.signals = signals
	c.stopCh = stopCh
	c.doneCh = doneCh
	c.mu.Unlock()

	go c.loop(signals, path, stopCh, doneCh)

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-stopCh:
		}
	}()

	c.logger.Info("supplicant: subscribed",
		"interface", c.cfg.Interface,
		"path", string(path),
	)
	return nil
}

// subscribe resolves the interface object path and adds the ANQPQueryDone
// match rule for it.
func (c *Client) subscribe(ctx context.Context) (dbus.ObjectPath, error) {
	root := c.bus.Object(busName, rootPath)
	call := root.CallWithContext(ctx, busName+".GetInterface", 0, c.cfg.Interface)
	if call.Err != nil {
		return "", fmt.Errorf("supplicant: get interface %s: %w", c.cfg.Interface, call.Err)
	}
	var path dbus.ObjectPath
	if err := call.Store(&path); err != nil {
		return "", fmt.Errorf("supplicant: get interface %s: %w", c.cfg.Interface, err)
	}

	match := c.bus.BusObject().AddMatchSignal(ifaceInterface, signalQueryDone, dbus.WithMatchObjectPath(path))
	if match.Err != nil {
		return "", fmt.Errorf("supplicant: add match %s: %w", signalQueryDone, match.Err)
	}
	return path, nil
}

// Stop unsubscribes and waits for the signal loop to exit. It is safe to
// call Stop multiple times.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running || c.ifaceObj == nil {
		c.mu.Unlock()
		return
	}
	c.running = false
	signals, stopCh, doneCh := c.signals, c.stopCh, c.doneCh
	path := c.ifaceObj.Path()
	c.mu.Unlock()

	c.bus.RemoveSignal(signals)
	_ = c.bus.BusObject().RemoveMatchSignal(ifaceInterface, signalQueryDone, dbus.WithMatchObjectPath(path))
	close(stopCh)
	// The loop may be inside a callback; wait outside the lock.
	<-doneCh

	c.mu.Lock()
	c.ifaceObj = nil
	c.mu.Unlock()

	c.logger.Info("supplicant: stopped", "interface", c.cfg.Interface)
}

// SendAnqpRequest asks the supplicant to query bssid for the given element
// ids. It returns once the supplicant has accepted or rejected the request.
func (c *Client) SendAnqpRequest(ctx context.Context, bssid net.HardwareAddr, infoElements, hs20Subtypes []uint32) error {
	c.mu.Lock()
	obj := c.ifaceObj
	c.mu.Unlock()
	if obj == nil {
		return ErrNotStarted
	}

	args, err := anqpGetArgs(bssid, infoElements, hs20Subtypes)
	if err != nil {
		return err
	}
	call := obj.CallWithContext(ctx, ifaceInterface+".ANQPGet", 0, args)
	if call.Err != nil {
		return fmt.Errorf("supplicant: ANQPGet %s: %w", bssid, call.Err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Signal handling
// ─────────────────────────────────────────────────────────────────────────────

func (c *Client) loop(signals <-chan *dbus.Signal, path dbus.ObjectPath, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Path != path || sig.Name != ifaceInterface+"."+signalQueryDone {
				continue
			}
			c.handleQueryDone(sig)
		}
	}
}

func (c *Client) handleQueryDone(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		c.logger.Warn("supplicant: short ANQPQueryDone signal", "args", len(sig.Body))
		return
	}
	addr, ok1 := sig.Body[0].(string)
	result, ok2 := sig.Body[1].(string)
	if !ok1 || !ok2 {
		c.logger.Warn("supplicant: unexpected ANQPQueryDone signature", "signature", sig.Body)
		return
	}

	c.mu.Lock()
	fn := c.cfg.OnResponse
	c.mu.Unlock()
	if fn == nil {
		return
	}

	payload := models.RawAnqpPayload{}
	if result == resultSuccess {
		p, err := c.fetchANQP(addr)
		if err != nil {
			c.logger.Warn("supplicant: read ANQP property failed",
				"bssid", addr,
				"error", err.Error(),
			)
		} else {
			payload = p
		}
	} else {
		c.logger.Info("supplicant: ANQP query did not succeed",
			"bssid", addr,
			"result", result,
		)
	}
	fn(addr, payload)
}

// fetchANQP finds the BSS object for addr and reads its ANQP property.
func (c *Client) fetchANQP(addr string) (models.RawAnqpPayload, error) {
	want, err := net.ParseMAC(addr)
	if err != nil {
		return nil, fmt.Errorf("parse bssid: %w", err)
	}

	c.mu.Lock()
	obj := c.ifaceObj
	c.mu.Unlock()
	if obj == nil {
		return nil, ErrNotStarted
	}

	v, err := obj.GetProperty(ifaceInterface + ".BSSs")
	if err != nil {
		return nil, fmt.Errorf("get BSSs: %w", err)
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("BSSs has type %s", v.Signature())
	}

	for _, p := range paths {
		bss := c.bus.Object(busName, p)
		bv, err := bss.GetProperty(bssInterface + ".BSSID")
		if err != nil {
			continue
		}
		raw, ok := bv.Value().([]byte)
		if !ok || !bytes.Equal(raw, want) {
			continue
		}

		av, err := bss.GetProperty(bssInterface + ".ANQP")
		if err != nil {
			return nil, fmt.Errorf("get ANQP of %s: %w", p, err)
		}
		props, ok := av.Value().(map[string]dbus.Variant)
		if !ok {
			return nil, fmt.Errorf("ANQP of %s has type %s", p, av.Signature())
		}
		return PayloadFromProperties(props), nil
	}
	return nil, fmt.Errorf("no BSS object for %s", addr)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
