// Package metric defines the SDK's normalized biometric record and the
// mappings from source-specific samples into it. Downstream caching and
// upload logic keys on the metric and metadata names, so they are part of
// the public contract and must not change.
package metric

import (
	"github.com/synheart-ai/synheart-wear-go/pkg/wear"
)

// Metric keys.
const (
	MetricHeartRate = "hr"
)

// Metadata keys.
const (
	MetaDeviceName = "device_name"
	MetaSessionID  = "session_id"
)

// Record is the normalized shape every wearable source converges on.
type Record struct {
	Metric         string            `json:"metric"`
	Value          float64           `json:"value"`
	TimestampMs    int64             `json:"timestamp_ms"`
	DeviceID       string            `json:"device_id,omitempty"`
	RawIntervalsMs []float64         `json:"raw_intervals_ms,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// FromHeartRateSample maps a heart rate sample onto the generic record:
// bpm becomes the "hr" metric value, RR intervals carry over verbatim as the
// raw interval list, and device name and session id become string metadata.
func FromHeartRateSample(s wear.HeartRateSample) Record {
	r := Record{
		Metric:      MetricHeartRate,
		Value:       float64(s.BPM),
		TimestampMs: s.TimestampMs,
		DeviceID:    s.DeviceID,
	}
	if len(s.RRIntervalsMs) > 0 {
		r.RawIntervalsMs = append([]float64(nil), s.RRIntervalsMs...)
	}

	meta := make(map[string]string, 2)
	if s.DeviceName != "" {
		meta[MetaDeviceName] = s.DeviceName
	}
	if s.SessionID != "" {
		meta[MetaSessionID] = s.SessionID
	}
	if len(meta) > 0 {
		r.Metadata = meta
	}
	return r
}
