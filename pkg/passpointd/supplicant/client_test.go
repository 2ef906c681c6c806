package supplicant_test

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/vpbank/passpointd/models"
	"github.com/vpbank/passpointd/pkg/passpointd/supplicant"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fake bus
// ─────────────────────────────────────────────────────────────────────────────

type recordedCall struct {
	method string
	args   []interface{}
}

// fakeObject overrides the dbus.BusObject methods the client uses; the
// embedded interface is nil and panics if anything else is called.
type fakeObject struct {
	dbus.BusObject
	path dbus.ObjectPath

	mu      sync.Mutex
	calls   []recordedCall
	replies map[string][]interface{}
	errs    map[string]error
	props   map[string]dbus.Variant
}

func newFakeObject(path dbus.ObjectPath) *fakeObject {
	return &fakeObject{
		path:    path,
		replies: map[string][]interface{}{},
		errs:    map[string]error{},
		props:   map[string]dbus.Variant{},
	}
}

func (o *fakeObject) Path() dbus.ObjectPath { return o.path }

func (o *fakeObject) record(method string, args ...interface{}) (reply []interface{}, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{method: method, args: args})
	return o.replies[method], o.errs[method]
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	body, err := o.record(method, args...)
	return &dbus.Call{Method: method, Args: args, Body: body, Err: err}
}

func (o *fakeObject) AddMatchSignal(iface, member string, _ ...dbus.MatchOption) *dbus.Call {
	_, err := o.record("AddMatchSignal", iface, member)
	return &dbus.Call{Err: err}
}

func (o *fakeObject) RemoveMatchSignal(iface, member string, _ ...dbus.MatchOption) *dbus.Call {
	_, err := o.record("RemoveMatchSignal", iface, member)
	return &dbus.Call{Err: err}
}

func (o *fakeObject) GetProperty(p string) (dbus.Variant, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.props[p]
	if !ok {
		return dbus.Variant{}, errors.New("no such property")
	}
	return v, nil
}

func (o *fakeObject) setErr(method string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[method] = err
}

func (o *fakeObject) getCalls(method string) []recordedCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []recordedCall
	for _, c := range o.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

type fakeBus struct {
	mu      sync.Mutex
	objects map[dbus.ObjectPath]*fakeObject
	busObj  *fakeObject
	signals chan<- *dbus.Signal
	removed bool
}

func (b *fakeBus) Object(_ string, path dbus.ObjectPath) dbus.BusObject {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[path]
	if !ok {
		o = newFakeObject(path)
		b.objects[path] = o
	}
	return o
}

func (b *fakeBus) BusObject() dbus.BusObject { return b.busObj }

func (b *fakeBus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals = ch
}

func (b *fakeBus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = true
}

func (b *fakeBus) emit(sig *dbus.Signal) {
	b.mu.Lock()
	ch := b.signals
	b.mu.Unlock()
	ch <- sig
}

const (
	rootPath  = dbus.ObjectPath("/fi/w1/wpa_supplicant1")
	ifacePath = dbus.ObjectPath("/fi/w1/wpa_supplicant1/Interfaces/0")
	bss0Path  = dbus.ObjectPath("/fi/w1/wpa_supplicant1/Interfaces/0/BSSs/0")
	bss1Path  = dbus.ObjectPath("/fi/w1/wpa_supplicant1/Interfaces/0/BSSs/1")

	anqpGet = "fi.w1.wpa_supplicant1.Interface.ANQPGet"
)

// newFakeBus models one interface with two BSS objects; bss1 is
// aa:bb:cc:dd:ee:ff and carries an ANQP property.
func newFakeBus() *fakeBus {
	b := &fakeBus{
		objects: map[dbus.ObjectPath]*fakeObject{},
		busObj:  newFakeObject("/org/freedesktop/DBus"),
	}

	root := newFakeObject(rootPath)
	root.replies["fi.w1.wpa_supplicant1.GetInterface"] = []interface{}{ifacePath}
	b.objects[rootPath] = root

	iface := newFakeObject(ifacePath)
	iface.props["fi.w1.wpa_supplicant1.Interface.BSSs"] = dbus.MakeVariant([]dbus.ObjectPath{bss0Path, bss1Path})
	b.objects[ifacePath] = iface

	bss0 := newFakeObject(bss0Path)
	bss0.props["fi.w1.wpa_supplicant1.BSS.BSSID"] = dbus.MakeVariant([]byte{0x02, 0, 0, 0, 0, 1})
	b.objects[bss0Path] = bss0

	bss1 := newFakeObject(bss1Path)
	bss1.props["fi.w1.wpa_supplicant1.BSS.BSSID"] = dbus.MakeVariant([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	bss1.props["fi.w1.wpa_supplicant1.BSS.ANQP"] = dbus.MakeVariant(map[string]dbus.Variant{
		"DomainName":     dbus.MakeVariant([]byte{0x03, 'a', 'b', 'c'}),
		"HS20WanMetrics": dbus.MakeVariant(make([]byte, 13)),
	})
	b.objects[bss1Path] = bss1

	return b
}

type delivery struct {
	bssid   string
	payload models.RawAnqpPayload
}

func startClient(t *testing.T, bus *fakeBus) (*supplicant.Client, chan delivery) {
	t.Helper()
	got := make(chan delivery, 4)
	c := supplicant.New(supplicant.Config{
		Interface: "wlan0",
		OnResponse: func(bssid string, payload models.RawAnqpPayload) {
			got <- delivery{bssid, payload}
		},
	}, bus, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Stop)
	return c, got
}

func waitDelivery(t *testing.T, ch <-chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no response delivered")
	}
	return delivery{}
}

func queryDone(path dbus.ObjectPath, addr, result string) *dbus.Signal {
	return &dbus.Signal{
		Path: path,
		Name: "fi.w1.wpa_supplicant1.Interface.ANQPQueryDone",
		Body: []interface{}{addr, result},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Property mapping
// ─────────────────────────────────────────────────────────────────────────────

func TestPayloadFromProperties(t *testing.T) {
	venue := []byte{0x00, 0x00}
	props := map[string]dbus.Variant{
		"VenueName":                dbus.MakeVariant(venue),
		"ANQP3GPP":                 dbus.MakeVariant([]byte{0x00, 0x00}),
		"HS20ConnectionCapability": dbus.MakeVariant([]byte{0x06, 0x50, 0x00, 0x01}),
		"CapabilityList":           dbus.MakeVariant([]byte{0x01}),
		"DomainName":               dbus.MakeVariant(uint32(7)),
		"NAIRealm":                 dbus.MakeVariant([]byte{}),
	}

	got := supplicant.PayloadFromProperties(props)
	want := models.RawAnqpPayload{
		models.ElementVenueName:        {0x00, 0x00},
		models.ElementThreeGPPNetwork:  {0x00, 0x00},
		models.ElementHSConnCapability: {0x06, 0x50, 0x00, 0x01},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	venue[0] = 0xFF
	if got[models.ElementVenueName][0] != 0x00 {
		t.Error("payload aliases the property buffer")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ANQPGet
// ─────────────────────────────────────────────────────────────────────────────

func TestSendAnqpRequest_NotStarted(t *testing.T) {
	c := supplicant.New(supplicant.Config{}, newFakeBus(), nil)
	err := c.SendAnqpRequest(context.Background(), net.HardwareAddr{1, 2, 3, 4, 5, 6}, []uint32{258}, nil)
	if !errors.Is(err, supplicant.ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestSendAnqpRequest_Args(t *testing.T) {
	bus := newFakeBus()
	c, _ := startClient(t, bus)

	hw := net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if err := c.SendAnqpRequest(context.Background(), hw, []uint32{258, 262, 263, 264, 268}, []uint32{3, 4, 5, 8}); err != nil {
		t.Fatalf("SendAnqpRequest: %v", err)
	}

	calls := bus.objects[ifacePath].getCalls(anqpGet)
	if len(calls) != 1 {
		t.Fatalf("ANQPGet calls = %d, want 1", len(calls))
	}
	args, ok := calls[0].args[0].(map[string]interface{})
	if !ok {
		t.Fatalf("arg type %T", calls[0].args[0])
	}
	if args["addr"] != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("addr = %v", args["addr"])
	}
	if !reflect.DeepEqual(args["ids"], []uint16{258, 262, 263, 264, 268}) {
		t.Errorf("ids = %#v", args["ids"])
	}
	if !reflect.DeepEqual(args["hs20_ids"], []byte{3, 4, 5, 8}) {
		t.Errorf("hs20_ids = %#v", args["hs20_ids"])
	}
}

func TestSendAnqpRequest_NoHS20(t *testing.T) {
	bus := newFakeBus()
	c, _ := startClient(t, bus)

	_ = c.SendAnqpRequest(context.Background(), net.HardwareAddr{2, 0, 0, 0, 0, 1}, []uint32{258}, []uint32{})
	args := bus.objects[ifacePath].getCalls(anqpGet)[0].args[0].(map[string]interface{})
	if _, ok := args["hs20_ids"]; ok {
		t.Error("hs20_ids sent without subtypes")
	}
}

func TestSendAnqpRequest_Errors(t *testing.T) {
	bus := newFakeBus()
	c, _ := startClient(t, bus)
	hw := net.HardwareAddr{2, 0, 0, 0, 0, 1}

	if err := c.SendAnqpRequest(context.Background(), hw, []uint32{0x10000}, nil); err == nil {
		t.Error("out-of-range info id accepted")
	}
	if err := c.SendAnqpRequest(context.Background(), hw, nil, []uint32{256}); err == nil {
		t.Error("out-of-range hs20 subtype accepted")
	}
	if n := len(bus.objects[ifacePath].getCalls(anqpGet)); n != 0 {
		t.Errorf("ANQPGet called %d times for invalid ids", n)
	}

	rejected := dbus.Error{Name: "fi.w1.wpa_supplicant1.UnknownError", Body: []interface{}{"ANQP request failed"}}
	bus.objects[ifacePath].setErr(anqpGet, rejected)
	err := c.SendAnqpRequest(context.Background(), hw, []uint32{258}, nil)
	var dbusErr dbus.Error
	if !errors.As(err, &dbusErr) || dbusErr.Name != rejected.Name {
		t.Errorf("err = %v, want wrapped D-Bus error", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestStart_GetInterfaceFails(t *testing.T) {
	bus := newFakeBus()
	bus.objects[rootPath].setErr("fi.w1.wpa_supplicant1.GetInterface",
		dbus.Error{Name: "fi.w1.wpa_supplicant1.InterfaceUnknown"})

	c := supplicant.New(supplicant.Config{Interface: "wlan9"}, bus, nil)
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with unknown interface")
	}

	bus.objects[rootPath].setErr("fi.w1.wpa_supplicant1.GetInterface", nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	c.Stop()
}

func TestStart_Twice(t *testing.T) {
	c, _ := startClient(t, newFakeBus())
	if err := c.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}
}

func TestStop_Unsubscribes(t *testing.T) {
	bus := newFakeBus()
	c, _ := startClient(t, bus)

	c.Stop()
	c.Stop()

	if !bus.removed {
		t.Error("signal channel not removed")
	}
	if n := len(bus.busObj.getCalls("RemoveMatchSignal")); n != 1 {
		t.Errorf("RemoveMatchSignal calls = %d, want 1", n)
	}
	err := c.SendAnqpRequest(context.Background(), net.HardwareAddr{2, 0, 0, 0, 0, 1}, nil, nil)
	if !errors.Is(err, supplicant.ErrNotStarted) {
		t.Errorf("err after Stop = %v", err)
	}
}

func TestStart_ContextCancelStops(t *testing.T) {
	bus := newFakeBus()
	c := supplicant.New(supplicant.Config{}, bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := c.SendAnqpRequest(context.Background(), net.HardwareAddr{2, 0, 0, 0, 0, 1}, nil, nil)
		if errors.Is(err, supplicant.ErrNotStarted) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("client still running after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ANQPQueryDone
// ─────────────────────────────────────────────────────────────────────────────

func TestQueryDone_Success(t *testing.T) {
	bus := newFakeBus()
	_, got := startClient(t, bus)

	bus.emit(queryDone(ifacePath, "aa:bb:cc:dd:ee:ff", "SUCCESS"))
	d := waitDelivery(t, got)

	if d.bssid != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("bssid = %q", d.bssid)
	}
	want := models.RawAnqpPayload{
		models.ElementDomainName:   {0x03, 'a', 'b', 'c'},
		models.ElementHSWANMetrics: make([]byte, 13),
	}
	if !reflect.DeepEqual(d.payload, want) {
		t.Errorf("payload = %v, want %v", d.payload, want)
	}
}

func TestQueryDone_FailureDeliversEmptyPayload(t *testing.T) {
	bus := newFakeBus()
	_, got := startClient(t, bus)

	bus.emit(queryDone(ifacePath, "aa:bb:cc:dd:ee:ff", "FAILURE"))
	d := waitDelivery(t, got)
	if d.payload == nil || len(d.payload) != 0 {
		t.Errorf("payload = %v, want empty", d.payload)
	}
}

func TestQueryDone_UnknownBSSDeliversEmptyPayload(t *testing.T) {
	bus := newFakeBus()
	_, got := startClient(t, bus)

	bus.emit(queryDone(ifacePath, "02:00:00:00:00:99", "SUCCESS"))
	d := waitDelivery(t, got)
	if len(d.payload) != 0 {
		t.Errorf("payload = %v, want empty", d.payload)
	}
}

func TestQueryDone_IgnoresOtherSignals(t *testing.T) {
	bus := newFakeBus()
	_, got := startClient(t, bus)

	bus.emit(queryDone("/fi/w1/wpa_supplicant1/Interfaces/7", "02:00:00:00:00:01", "SUCCESS"))
	bus.emit(&dbus.Signal{Path: ifacePath, Name: "fi.w1.wpa_supplicant1.Interface.ScanDone", Body: []interface{}{true}})
	bus.emit(&dbus.Signal{Path: ifacePath, Name: "fi.w1.wpa_supplicant1.Interface.ANQPQueryDone", Body: []interface{}{"x"}})
	bus.emit(queryDone(ifacePath, "aa:bb:cc:dd:ee:ff", "SUCCESS"))

	d := waitDelivery(t, got)
	if d.bssid != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("first delivery = %q, want aa:bb:cc:dd:ee:ff", d.bssid)
	}
	select {
	case extra := <-got:
		t.Errorf("unexpected delivery %+v", extra)
	default:
	}
}
