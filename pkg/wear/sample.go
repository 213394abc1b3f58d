// Package wear holds the data model shared across the SDK: the normalized
// biometric sample produced by the heart-rate core and the boundary
// interfaces of the collaborating subsystems.
package wear

// ScannedDevice is an ephemeral discovery result. It is only valid for the
// scan window that produced it; callers keep the ID to connect later.
type ScannedDevice struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	RSSI int    `json:"rssi"`
}

// HeartRateSample is one decoded heart-rate notification. Immutable once
// built; BPM is always > 0, degenerate payloads never become samples.
type HeartRateSample struct {
	TimestampMs   int64     `json:"timestamp_ms"`
	BPM           int       `json:"bpm"`
	DeviceID      string    `json:"device_id"`
	DeviceName    string    `json:"device_name,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	RRIntervalsMs []float64 `json:"rr_intervals_ms,omitempty"`
}
