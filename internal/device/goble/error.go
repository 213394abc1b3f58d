package goble

import (
	"strings"

	"github.com/synheart-ai/synheart-wear-go/internal/device"
)

// NormalizeError maps known go-ble error strings to the closed device error
// set. It ensures consistent handling even if the upstream library changes
// messages slightly. Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return device.WrapKind(device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return device.WrapKind(device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is not ready"):
		return device.WrapKind(device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "not authorized"):
		return device.WrapKind(device.ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "permission"):
		return device.WrapKind(device.ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "device not connected"):
		return device.WrapKind(device.ErrDisconnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return device.WrapKind(device.ErrDisconnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
