package device

import (
	"context"
	"sync"
	"time"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

// maxFixAge bounds how stale a reported fix may be before Locate waits for
// a fresh one.
const maxFixAge = 5 * time.Minute

// ReportedLocator implements ports.Locator from GPS fixes the terminal
// pushes over HTTP. Locate blocks until a sufficiently fresh fix is present
// or the caller's deadline expires; a denial report surfaces as
// PermissionDenied so the resolver can fall back to manual selection.
type ReportedLocator struct {
	mu      sync.Mutex
	fix     *domain.Coordinates
	fixedAt time.Time
	denied  bool
	waiters []chan struct{}
}

var _ ports.Locator = (*ReportedLocator)(nil)

func NewReportedLocator() *ReportedLocator {
	return &ReportedLocator{}
}

// Report records a fix pushed by the terminal and wakes pending Locate calls.
func (l *ReportedLocator) Report(c domain.Coordinates) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fix := c
	l.fix = &fix
	l.fixedAt = time.Now()
	l.denied = false
	l.wakeLocked()
}

// ReportDenied records that the terminal's geolocation permission was
// refused.
func (l *ReportedLocator) ReportDenied() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.denied = true
	l.wakeLocked()
}

func (l *ReportedLocator) wakeLocked() {
	for _, w := range l.waiters {
		close(w)
	}
	l.waiters = nil
}

func (l *ReportedLocator) Locate(ctx context.Context) (domain.Coordinates, error) {
	for {
		l.mu.Lock()
		if l.denied {
			l.mu.Unlock()
			return domain.Coordinates{}, domain.Errf(domain.PermissionDenied,
				"locator", "geolocation permission denied by terminal")
		}
		if l.fix != nil && time.Since(l.fixedAt) <= maxFixAge {
			fix := *l.fix
			l.mu.Unlock()
			return fix, nil
		}
		wait := make(chan struct{})
		l.waiters = append(l.waiters, wait)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Coordinates{}, ctx.Err()
		case <-wait:
		}
	}
}
