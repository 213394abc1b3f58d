// Package testutils provides a mock transport with a fluent peripheral
// builder for exercising the SDK without a radio.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/synheart-ai/synheart-wear-go/internal/device"
)

// MockAdvertisement implements device.Advertisement with fixed values.
type MockAdvertisement struct {
	ID          string
	Name        string
	Rssi        int
	ServiceList []string
}

func (a *MockAdvertisement) Addr() string        { return a.ID }
func (a *MockAdvertisement) LocalName() string   { return a.Name }
func (a *MockAdvertisement) RSSI() int           { return a.Rssi }
func (a *MockAdvertisement) Services() []string  { return a.ServiceList }
func (a *MockAdvertisement) Connectable() bool   { return true }

// MockTransport implements device.Transport against an in-memory set of
// peripherals. Configure it with the fluent builder:
//
//	mt := testutils.NewMockTransport()
//	mt.WithPeripheral("AA:BB:CC:DD:EE:FF", "Polar H10").
//	    WithService("180d").
//	    WithCharacteristic("2a37", "notify", nil)
type MockTransport struct {
	mu          sync.Mutex
	peripherals map[string]*MockPeripheral
	adverts     []device.Advertisement
	scanErr     error
	dialErr     error
	dialHang    bool
	dialCount   int
	links       []*MockLink
}

func NewMockTransport() *MockTransport {
	return &MockTransport{peripherals: make(map[string]*MockPeripheral)}
}

// WithPeripheral registers a connectable peripheral and returns its builder.
// Use WithAdvertisement separately to make it visible to scans.
func (t *MockTransport) WithPeripheral(id, name string) *MockPeripheral {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &MockPeripheral{id: id, name: name, services: make(map[string]*MockService)}
	t.peripherals[id] = p
	return p
}

// WithAdvertisement adds a raw discovery event for scans, independent of any
// connectable peripheral.
func (t *MockTransport) WithAdvertisement(id, name string, rssi int, services ...string) *MockTransport {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.adverts = append(t.adverts, &MockAdvertisement{ID: id, Name: name, Rssi: rssi, ServiceList: services})
	return t
}

// FailScan makes every Scan call fail with err before delivering anything.
func (t *MockTransport) FailScan(err error) { t.mu.Lock(); t.scanErr = err; t.mu.Unlock() }

// FailDial makes every Dial call fail with err.
func (t *MockTransport) FailDial(err error) { t.mu.Lock(); t.dialErr = err; t.mu.Unlock() }

// HangDial makes Dial block until the caller's context expires.
func (t *MockTransport) HangDial() { t.mu.Lock(); t.dialHang = true; t.mu.Unlock() }

// DialCount reports how many Dial attempts were made.
func (t *MockTransport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialCount
}

// LatestLink returns the most recently dialed link, or nil.
func (t *MockTransport) LatestLink() *MockLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.links) == 0 {
		return nil
	}
	return t.links[len(t.links)-1]
}

// Scan delivers the configured advertisements once, then blocks until ctx
// ends, mirroring a radio scan window.
func (t *MockTransport) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	t.mu.Lock()
	if t.scanErr != nil {
		err := t.scanErr
		t.mu.Unlock()
		return err
	}
	adverts := make([]device.Advertisement, len(t.adverts))
	copy(adverts, t.adverts)
	t.mu.Unlock()

	for _, adv := range adverts {
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Dial connects to a configured peripheral by identifier.
func (t *MockTransport) Dial(ctx context.Context, deviceID string) (device.Link, error) {
	t.mu.Lock()
	t.dialCount++
	hang := t.dialHang
	dialErr := t.dialErr
	p := t.peripherals[deviceID]
	t.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if dialErr != nil {
		return nil, dialErr
	}
	if p == nil {
		return nil, fmt.Errorf("no peripheral with id %q", deviceID)
	}

	link := &MockLink{
		peripheral:   p,
		disconnected: make(chan struct{}),
	}

	t.mu.Lock()
	t.links = append(t.links, link)
	t.mu.Unlock()
	return link, nil
}

// MockPeripheral is a connectable in-memory GATT server definition.
type MockPeripheral struct {
	id          string
	name        string
	services    map[string]*MockService
	lastService *MockService
	discoverErr error
}

// WithService adds a GATT service; subsequent WithCharacteristic calls
// attach to it.
func (p *MockPeripheral) WithService(uuid string) *MockPeripheral {
	svc := &MockService{uuid: device.NormalizeUUID(uuid), chars: make(map[string]*MockCharacteristic)}
	p.services[svc.uuid] = svc
	p.lastService = svc
	return p
}

// WithCharacteristic adds a characteristic to the most recently added
// service. Properties is a comma-separated list, e.g. "read,notify".
func (p *MockPeripheral) WithCharacteristic(uuid, properties string, value []byte) *MockPeripheral {
	if p.lastService == nil {
		panic("testutils: WithCharacteristic called before WithService")
	}
	c := &MockCharacteristic{
		uuid:   device.NormalizeUUID(uuid),
		notify: strings.Contains(properties, "notify"),
		value:  value,
	}
	p.lastService.chars[c.uuid] = c
	return p
}

// FailDiscovery makes service discovery on future links fail with err.
func (p *MockPeripheral) FailDiscovery(err error) *MockPeripheral {
	p.discoverErr = err
	return p
}

// FailSubscribe makes notification enablement on the given characteristic
// fail with err.
func (p *MockPeripheral) FailSubscribe(charUUID string, err error) *MockPeripheral {
	for _, svc := range p.services {
		if c, ok := svc.chars[device.NormalizeUUID(charUUID)]; ok {
			c.subscribeErr = err
		}
	}
	return p
}

// FailRead makes GATT reads of the given characteristic fail with err.
func (p *MockPeripheral) FailRead(charUUID string, err error) *MockPeripheral {
	for _, svc := range p.services {
		if c, ok := svc.chars[device.NormalizeUUID(charUUID)]; ok {
			c.readErr = err
		}
	}
	return p
}

// MockLink implements device.Link for one dialed session.
type MockLink struct {
	peripheral *MockPeripheral

	mu           sync.Mutex
	closed       bool
	disconnected chan struct{}
	handlers     map[string]func([]byte)
}

func (l *MockLink) DeviceID() string   { return l.peripheral.id }
func (l *MockLink) DeviceName() string { return l.peripheral.name }

func (l *MockLink) Disconnected() <-chan struct{} { return l.disconnected }

func (l *MockLink) DiscoverService(uuid string) (device.Service, error) {
	if l.peripheral.discoverErr != nil {
		return nil, l.peripheral.discoverErr
	}
	svc, ok := l.peripheral.services[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, fmt.Errorf("service %q not found", uuid)
	}
	return &mockServiceHandle{svc: svc, link: l}, nil
}

func (l *MockLink) Close() error {
	l.dropLink()
	return nil
}

// SimulateDisconnect drops the link as if the peripheral went away.
func (l *MockLink) SimulateDisconnect() {
	l.dropLink()
}

func (l *MockLink) dropLink() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.disconnected)
}

// SimulateNotification delivers raw bytes to the subscriber of charUUID,
// if any.
func (l *MockLink) SimulateNotification(charUUID string, data []byte) {
	l.mu.Lock()
	var handler func([]byte)
	if l.handlers != nil {
		handler = l.handlers[device.NormalizeUUID(charUUID)]
	}
	l.mu.Unlock()

	if handler != nil {
		handler(data)
	}
}

// Subscribed reports whether charUUID currently has a notification handler.
func (l *MockLink) Subscribed(charUUID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handlers != nil && l.handlers[device.NormalizeUUID(charUUID)] != nil
}

type mockServiceHandle struct {
	svc  *MockService
	link *MockLink
}

func (s *mockServiceHandle) UUID() string { return s.svc.uuid }

func (s *mockServiceHandle) Characteristic(uuid string) (device.Characteristic, error) {
	c, ok := s.svc.chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, fmt.Errorf("characteristic %q not found in service %q", uuid, s.svc.uuid)
	}
	return &mockCharHandle{char: c, link: s.link}, nil
}

// MockService is a GATT service definition on a MockPeripheral.
type MockService struct {
	uuid  string
	chars map[string]*MockCharacteristic
}

// MockCharacteristic is a GATT characteristic definition on a MockPeripheral.
type MockCharacteristic struct {
	uuid         string
	notify       bool
	value        []byte
	subscribeErr error
	readErr      error
}

type mockCharHandle struct {
	char *MockCharacteristic
	link *MockLink
}

func (c *mockCharHandle) UUID() string         { return c.char.uuid }
func (c *mockCharHandle) SupportsNotify() bool { return c.char.notify }

func (c *mockCharHandle) Subscribe(handler func(data []byte)) error {
	if c.char.subscribeErr != nil {
		return c.char.subscribeErr
	}
	if !c.char.notify {
		return fmt.Errorf("characteristic %q does not support notifications", c.char.uuid)
	}

	c.link.mu.Lock()
	defer c.link.mu.Unlock()
	if c.link.handlers == nil {
		c.link.handlers = make(map[string]func([]byte))
	}
	c.link.handlers[c.char.uuid] = handler
	return nil
}

func (c *mockCharHandle) Unsubscribe() error {
	c.link.mu.Lock()
	defer c.link.mu.Unlock()
	if c.link.handlers != nil {
		delete(c.link.handlers, c.char.uuid)
	}
	return nil
}

func (c *mockCharHandle) Read() ([]byte, error) {
	if c.char.readErr != nil {
		return nil, c.char.readErr
	}
	return c.char.value, nil
}
