//go:build darwin

package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/synheart-ai/synheart-wear-go/internal/device"
)

// bleTransport implements device.Transport over a single ble.Device radio.
type bleTransport struct {
	dev    ble.Device
	logger *logrus.Logger
}

// NewTransport initializes the platform radio and returns a device.Transport.
// Fails with the bluetooth_off or permission_denied kind when the radio is
// unusable.
func NewTransport(logger *logrus.Logger) (device.Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	return &bleTransport{dev: dev, logger: logger}, nil
}

// Scan wraps the raw ble.Device.Scan, converting each ble.Advertisement to a
// device.Advertisement. Context cancellation and deadline expiry are normal
// scan termination, not errors; the caller decides when the window closes.
func (t *bleTransport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewAdvertisement(adv))
	}
	err := t.dev.Scan(ctx, allowDup, bleHandler)
	if err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Dial connects to the peripheral with the given identifier and returns the
// live link. The caller bounds the attempt through ctx.
func (t *bleTransport) Dial(ctx context.Context, deviceID string) (device.Link, error) {
	t.logger.WithField("device_id", deviceID).Info("Connecting to BLE device...")

	client, err := ble.Dial(ctx, ble.NewAddr(deviceID))
	if err != nil {
		return nil, NormalizeError(err)
	}

	t.logger.WithField("device_id", deviceID).Debug("Platform link established")
	return newLink(client, deviceID, t.logger), nil
}
