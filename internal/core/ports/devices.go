package ports

import (
	"context"
	"time"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
)

// CameraDevice is the raw camera handle owned by the media capture
// controller. At most one consumer may hold an open device at a time.
type CameraDevice interface {
	// Open acquires the stream at the target resolution.
	Open(ctx context.Context, width, height int) error
	// Frame returns the current frame as an encoded image.
	Frame(ctx context.Context) ([]byte, string, error)
	// Close releases the stream. Implementations must tolerate Close
	// without a prior successful Open.
	Close() error
}

// Locator acquires the terminal's current coordinates. Implementations
// honor the context deadline; the resolver bounds acquisition at 10s.
type Locator interface {
	Locate(ctx context.Context) (domain.Coordinates, error)
}

// ReverseGeocoder annotates coordinates with a human place name. Strictly
// best-effort; callers ignore failures.
type ReverseGeocoder interface {
	PlaceName(ctx context.Context, c domain.Coordinates) (string, error)
}

// BadgePrinter opens a print surface for a committed sign-in. Failure never
// fails the flow.
type BadgePrinter interface {
	PrintBadge(ctx context.Context, rec domain.SignInRecord, visitorName string) error
}

// Ticker abstracts the one-second training countdown so tests can drive it
// without wall-clock time.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}
