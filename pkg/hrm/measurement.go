// Package hrm implements decoding of the standard Bluetooth SIG Heart Rate
// Measurement characteristic (0x2A37).
package hrm

import "encoding/binary"

// Standard Bluetooth SIG identifiers for the heart-rate profile.
const (
	ServiceUUID     = "180d"
	MeasurementUUID = "2a37"
)

// Flags byte layout of a Heart Rate Measurement value.
// https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/
const (
	flagFormat16       = 1 << 0 // BPM is uint16 little-endian instead of uint8
	flagEnergyExpended = 1 << 3 // 2-byte Energy Expended field follows BPM
	flagRRPresent      = 1 << 4 // remaining bytes are 2-byte RR intervals
)

// Measurement is one decoded heart-rate notification. A zero BPM marks a
// degenerate payload; such measurements are dropped before publication.
type Measurement struct {
	BPM           int
	RRIntervalsMs []float64
}

// Valid reports whether the measurement carries a usable heart rate.
func (m Measurement) Valid() bool { return m.BPM > 0 }

// Decode parses raw characteristic bytes into a Measurement. It is pure and
// total: malformed or truncated input yields the degenerate zero result, it
// never panics. Sensor Contact Status bits are not interpreted.
func Decode(data []byte) Measurement {
	if len(data) < 2 {
		return Measurement{}
	}

	flags := data[0]
	offset := 1

	var bpm int
	if flags&flagFormat16 != 0 {
		if len(data) < offset+2 {
			return Measurement{}
		}
		bpm = int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	} else {
		bpm = int(data[offset])
		offset++
	}

	if flags&flagEnergyExpended != 0 {
		// Energy Expended is not surfaced; skip its two bytes so RR
		// intervals start at the right offset.
		if len(data) < offset+2 {
			return Measurement{}
		}
		offset += 2
	}

	var rr []float64
	if flags&flagRRPresent != 0 {
		// Zero or more uint16 values in units of 1/1024 s; sensors batch
		// intervals accumulated since the previous notification.
		rest := data[offset:]
		for i := 0; i+1 < len(rest); i += 2 {
			v := binary.LittleEndian.Uint16(rest[i:])
			rr = append(rr, float64(v)/1024.0*1000.0)
		}
	}

	return Measurement{BPM: bpm, RRIntervalsMs: rr}
}
