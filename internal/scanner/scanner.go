// Package scanner implements timed BLE discovery filtered to the heart-rate
// profile.
package scanner

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/synheart-ai/synheart-wear-go/internal/device"
	"github.com/synheart-ai/synheart-wear-go/pkg/hrm"
	"github.com/synheart-ai/synheart-wear-go/pkg/wear"
)

// ScanOptions configures a single scan window.
type ScanOptions struct {
	Timeout         time.Duration
	NamePrefix      string
	ServiceUUIDs    []string
	DuplicateFilter bool
}

// DefaultScanOptions returns a 10 s window filtered to the standard Heart
// Rate Service.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Timeout:         10 * time.Second,
		ServiceUUIDs:    []string{hrm.ServiceUUID},
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery over a Transport.
type Scanner struct {
	transport device.Transport
	logger    *logrus.Logger
}

// NewScanner creates a new BLE scanner.
func NewScanner(transport device.Transport, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{transport: transport, logger: logger}
}

// Scan performs discovery with the provided options and resolves with
// whatever was found when the window closes, possibly nothing. Results are
// ordered strongest signal first. Radio unavailability surfaces as a
// bluetooth_off or permission_denied error before scanning starts.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) ([]wear.ScannedDevice, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}

	scanCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s.logger.WithFields(logrus.Fields{
		"timeout":     opts.Timeout,
		"name_prefix": opts.NamePrefix,
	}).Info("Starting BLE scan...")

	devices := hashmap.New[string, wear.ScannedDevice]()

	handler := func(adv device.Advertisement) {
		if !s.shouldIncludeDevice(adv, opts) {
			return
		}

		id := adv.Addr()
		found := wear.ScannedDevice{
			ID:   id,
			Name: adv.LocalName(),
			RSSI: adv.RSSI(),
		}

		if prev, existing := devices.Get(id); existing {
			// Refresh RSSI, keep the first non-empty name we saw.
			if found.Name == "" {
				found.Name = prev.Name
			}
			devices.Set(id, found)
			return
		}

		devices.Set(id, found)
		s.logger.WithFields(logrus.Fields{
			"device": found.Name,
			"id":     found.ID,
			"rssi":   found.RSSI,
		}).Info("Discovered new device")
	}

	err := s.transport.Scan(scanCtx, !opts.DuplicateFilter, handler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	result := make([]wear.ScannedDevice, 0, devices.Len())
	devices.Range(func(_ string, d wear.ScannedDevice) bool {
		result = append(result, d)
		return true
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].RSSI != result[j].RSSI {
			return result[i].RSSI > result[j].RSSI
		}
		return result[i].ID < result[j].ID
	})

	s.logger.WithField("device_count", len(result)).Info("BLE scan completed")
	return result, nil
}

// shouldIncludeDevice applies the service and name-prefix filters
func (s *Scanner) shouldIncludeDevice(adv device.Advertisement, opts *ScanOptions) bool {
	if opts.NamePrefix != "" && !strings.HasPrefix(adv.LocalName(), opts.NamePrefix) {
		return false
	}

	if len(opts.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range opts.ServiceUUIDs {
			for _, advUUID := range adv.Services() {
				if device.UUIDEqual(required, advUUID) {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}
