// Package device defines the transport boundary between the SDK and the
// platform Bluetooth stack: scanning, dialing, GATT discovery, and
// notification enablement. Implementations own the opaque platform handles;
// everything above this package works with string identifiers only.
package device

import "context"

// Advertisement is a single discovery event as seen during a scan window.
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
	Services() []string
	Connectable() bool
}

// Transport owns the radio. A single Transport may serve any number of
// sequential scans and dials; it holds no per-connection state itself.
type Transport interface {
	// Scan activates radio scanning and invokes handler for every
	// advertisement until ctx is cancelled or its deadline elapses.
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error

	// Dial resolves deviceID to a visible peripheral and establishes the
	// platform link. The returned Link is radio-connected but has no
	// discovered services yet.
	Dial(ctx context.Context, deviceID string) (Link, error)
}

// Link is an established platform connection to one peripheral.
type Link interface {
	DeviceID() string
	DeviceName() string

	// DiscoverService discovers the service with the given UUID on the
	// peripheral, including its characteristics.
	DiscoverService(uuid string) (Service, error)

	// Disconnected returns a channel that is closed when the platform link
	// drops, whether expected or not.
	Disconnected() <-chan struct{}

	// Close tears down the platform link. Idempotent.
	Close() error
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string
	Characteristic(uuid string) (Characteristic, error)
}

// Characteristic is a discovered GATT characteristic on a live link.
type Characteristic interface {
	UUID() string
	SupportsNotify() bool

	// Subscribe enables notifications and invokes handler with the raw value
	// bytes of every notification. The handler is called from the transport's
	// serial callback context; it must not block.
	Subscribe(handler func(data []byte)) error

	// Unsubscribe disables notifications. Safe to call when not subscribed.
	Unsubscribe() error

	// Read performs a GATT read of the current value.
	Read() ([]byte, error)
}
