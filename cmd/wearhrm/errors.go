//go:build darwin

package main

import (
	"errors"

	"github.com/synheart-ai/synheart-wear-go/internal/device"
	"github.com/synheart-ai/synheart-wear-go/pkg/provider"
)

// FormatUserError turns SDK errors into actionable one-line messages for the
// terminal. Anything unrecognized falls through verbatim.
func FormatUserError(err error) string {
	if errors.Is(err, provider.ErrBusy) {
		return "another scan or connection is already running; wait for it to finish and retry"
	}

	kind, ok := device.KindOf(err)
	if !ok {
		return err.Error()
	}

	switch kind {
	case device.KindPermissionDenied:
		return "Bluetooth permission denied. Grant Bluetooth access to this application and retry"
	case device.KindBluetoothOff:
		return "Bluetooth is turned off. Enable Bluetooth and retry"
	case device.KindDeviceNotFound:
		return "heart rate monitor not found. Check that it is powered on, worn, and in range"
	case device.KindSubscribeFailed:
		return "could not enable heart rate notifications. The device may not be a standard heart rate monitor"
	case device.KindDisconnected:
		return "connection to the heart rate monitor was lost"
	default:
		return err.Error()
	}
}
