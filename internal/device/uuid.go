package device

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb with dashes stripped).
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to a canonical comparison form:
// lowercase, no dashes, no 0x prefix. Full 128-bit UUIDs in the Bluetooth SIG
// base range are collapsed to their 16-bit short form so that "180d",
// "180D" and "0000180d-0000-1000-8000-00805f9b34fb" all compare equal.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	u = strings.TrimPrefix(u, "0x")
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// UUIDEqual compares two UUID strings in any accepted format.
func UUIDEqual(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}
