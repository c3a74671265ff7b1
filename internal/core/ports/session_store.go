package ports

import (
	"context"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
)

// RememberedSessionStore persists the single "last employee on this device"
// record. It is a pure key-value contract: Save overwrites any prior value,
// Load returns (nil, nil) when the record is absent or corrupt (corrupt
// payloads are purged, never surfaced as errors), Clear removes it.
// Auto-sign-in policy lives entirely in the session state machine.
type RememberedSessionStore interface {
	Save(ctx context.Context, deviceID string, emp domain.RememberedEmployee) error
	Load(ctx context.Context, deviceID string) (*domain.RememberedEmployee, error)
	Clear(ctx context.Context, deviceID string) error
}
