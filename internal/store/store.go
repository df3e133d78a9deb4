package store

import (
	"context"
	"errors"
	"time"

	"github.com/intelli-123/observability-copilot/internal/domain"
)

// ErrUnavailable indicates the backing store could not be reached. It is fatal
// to the calling request; nothing partial is preserved.
var ErrUnavailable = errors.New("store: unavailable")

// SettingsStore persists the single vendor-configuration document.
type SettingsStore interface {
	// Load returns the saved settings, or a settings value with empty Configs
	// when no document has ever been written.
	Load(ctx context.Context) (domain.Settings, error)
	// Save overwrites the settings document wholesale (last writer wins) and
	// invalidates every cached log payload as a side effect.
	Save(ctx context.Context, settings domain.Settings) error
}

// LogCache stores the last aggregated fetch result per vendor.
type LogCache interface {
	// Get returns the cached payload for a vendor; ok is false on a miss.
	Get(ctx context.Context, vendor string) (payload []byte, ok bool, err error)
	// Set overwrites the vendor's entry with the given expiry.
	Set(ctx context.Context, vendor string, payload []byte, ttl time.Duration) error
	// InvalidateAll deletes every cache entry, discovered by prefix scan so
	// vendors added later are covered without enumeration.
	InvalidateAll(ctx context.Context) error
}
