package goble

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/synheart-ai/synheart-wear-go/internal/device"
)

// bleLink implements device.Link over a connected ble.Client.
type bleLink struct {
	client   ble.Client
	deviceID string
	logger   *logrus.Logger

	mu     sync.Mutex
	closed bool
}

func newLink(client ble.Client, deviceID string, logger *logrus.Logger) *bleLink {
	return &bleLink{
		client:   client,
		deviceID: deviceID,
		logger:   logger,
	}
}

func (l *bleLink) DeviceID() string { return l.deviceID }

func (l *bleLink) DeviceName() string { return l.client.Name() }

func (l *bleLink) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

// DiscoverService discovers the single requested service and its
// characteristics on the peripheral.
func (l *bleLink) DiscoverService(uuid string) (device.Service, error) {
	target, err := ble.Parse(uuid)
	if err != nil {
		return nil, err
	}

	services, err := l.client.DiscoverServices([]ble.UUID{target})
	if err != nil {
		return nil, NormalizeError(err)
	}

	for _, svc := range services {
		if !svc.UUID.Equal(target) {
			continue
		}
		l.logger.WithField("service_uuid", svc.UUID.String()).Debug("Discovered service")

		chars, err := l.client.DiscoverCharacteristics(nil, svc)
		if err != nil {
			return nil, NormalizeError(err)
		}
		return &bleService{uuid: device.NormalizeUUID(uuid), chars: chars, link: l}, nil
	}

	return nil, device.WrapKind(device.ErrSubscribeFailed, &notFoundError{resource: "service", uuid: uuid})
}

// Close cancels the platform connection. Idempotent; the second and later
// calls are no-ops.
func (l *bleLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if err := l.client.CancelConnection(); err != nil {
		l.logger.WithError(err).Warn("BLE link closed with errors")
		return NormalizeError(err)
	}
	l.logger.WithField("device_id", l.deviceID).Debug("BLE link closed")
	return nil
}

// bleService implements device.Service for a discovered GATT service.
type bleService struct {
	uuid  string
	chars []*ble.Characteristic
	link  *bleLink
}

func (s *bleService) UUID() string { return s.uuid }

func (s *bleService) Characteristic(uuid string) (device.Characteristic, error) {
	for _, c := range s.chars {
		if device.UUIDEqual(c.UUID.String(), uuid) {
			return &bleCharacteristic{char: c, link: s.link}, nil
		}
	}
	return nil, device.WrapKind(device.ErrSubscribeFailed, &notFoundError{resource: "characteristic", uuid: uuid})
}

// bleCharacteristic implements device.Characteristic on a live link.
type bleCharacteristic struct {
	char *ble.Characteristic
	link *bleLink
}

func (c *bleCharacteristic) UUID() string {
	return device.NormalizeUUID(c.char.UUID.String())
}

func (c *bleCharacteristic) SupportsNotify() bool {
	return c.char.Property&ble.CharNotify != 0 || c.char.Property&ble.CharIndicate != 0
}

func (c *bleCharacteristic) Subscribe(handler func(data []byte)) error {
	if err := c.link.client.Subscribe(c.char, false, handler); err != nil {
		return device.WrapKind(device.ErrSubscribeFailed, err)
	}
	return nil
}

func (c *bleCharacteristic) Unsubscribe() error {
	if err := c.link.client.Unsubscribe(c.char, false); err != nil {
		return NormalizeError(err)
	}
	return nil
}

func (c *bleCharacteristic) Read() ([]byte, error) {
	data, err := c.link.client.ReadCharacteristic(c.char)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

// notFoundError reports a missing GATT resource on a connected peripheral.
type notFoundError struct {
	resource string
	uuid     string
}

func (e *notFoundError) Error() string {
	return e.resource + " \"" + e.uuid + "\" not found"
}
