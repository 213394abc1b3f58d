package wear

import (
	"context"
	"time"
)

// The interfaces below are the SDK-side contracts of subsystems that live
// outside the heart-rate core: request/response and file I/O glue with no
// protocol decoding or connection state of their own. The core neither
// implements nor calls them; they consume its output (samples mapped to
// metric records) through the stable mapper contract.

// HealthStore is the platform health-store adapter: querying the OS-managed
// record database for historical biometric entries.
type HealthStore interface {
	// Query returns stored records for a metric key within [from, to).
	Query(ctx context.Context, metricKey string, from, to time.Time) ([]HeartRateSample, error)
}

// VendorClient is a cloud OAuth vendor integration (token exchange,
// pagination, per-vendor field mapping).
type VendorClient interface {
	// Vendor returns the stable vendor identifier, e.g. "fitbit".
	Vendor() string
	// RefreshToken exchanges the stored refresh token for a fresh access token.
	RefreshToken(ctx context.Context) error
	// FetchLatest pulls the most recent sample the vendor exposes.
	FetchLatest(ctx context.Context) (HeartRateSample, error)
}

// Cache is the encrypted local record cache.
type Cache interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// ConsentStore tracks per-source user consent. Sources must not be read
// without a positive consent record.
type ConsentStore interface {
	HasConsent(source string) bool
	SetConsent(source string, granted bool) error
}
