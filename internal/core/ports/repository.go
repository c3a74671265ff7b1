package ports

import (
	"context"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
)

// DirectoryRepository serves the read-only site/category/host directory.
// Kiosk-scale lists, no pagination.
type DirectoryRepository interface {
	ListSites(ctx context.Context) ([]domain.Site, error)
	ListCategories(ctx context.Context, siteID string) ([]domain.Category, error)
	ListHosts(ctx context.Context, siteID string) ([]domain.Host, error)
	FindHost(ctx context.Context, hostID string) (*domain.Host, error)
}

// VisitorRepository upserts visitors idempotently, keyed by email.
type VisitorRepository interface {
	Upsert(ctx context.Context, draft domain.VisitorDraft) (*domain.Visitor, error)
}

// TrainingRepository looks up and records durable training completions.
// The lookup is keyed by email because the gate runs before the visitor row
// exists; it returns (nil, nil) when no completion is on file.
type TrainingRepository interface {
	FindCompletionByEmail(ctx context.Context, email, categoryID string) (*domain.TrainingCompletion, error)
	RecordCompletion(ctx context.Context, completion domain.TrainingCompletion) error
}

// SignInRepository creates append-only sign-in/out records with a
// server-assigned timestamp. Create writes the record together with the
// host-notice outbox payload in one transaction. CloseLatest resolves the
// most recent open record at the site by key: a visitor email, or the
// employee id for presence records that have no visitors row.
type SignInRepository interface {
	Create(ctx context.Context, rec domain.SignInRecord, outboxPayload []byte) (*domain.SignInRecord, error)
	CloseLatest(ctx context.Context, key, siteID string) (*domain.SignInRecord, error)
}

// BookingRepository queries pending bookings and guards status transitions.
type BookingRepository interface {
	FindPendingByEmail(ctx context.Context, email string) ([]domain.Booking, error)
	UpdateStatus(ctx context.Context, bookingID string, from, to domain.BookingStatus) error
}

// EmployeeRepository resolves portal employees for kiosk sign-in.
type EmployeeRepository interface {
	FindEmployeeByEmail(ctx context.Context, email string) (*domain.Employee, error)
}

// OperatorRepository resolves receptionists allowed to unlock a terminal.
// The second return value is the stored access-code hash.
type OperatorRepository interface {
	FindOperatorByEmail(ctx context.Context, email string) (*domain.Operator, string, error)
}
