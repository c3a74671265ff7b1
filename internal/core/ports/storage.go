package ports

import (
	"context"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
)

// PhotoStorage accepts an encoded still image and returns a durable
// retrievable URL.
type PhotoStorage interface {
	StorePhoto(ctx context.Context, visitorID string, photo domain.CapturedPhoto) (string, error)
}
