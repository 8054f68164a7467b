package view

import (
	"context"
	"errors"
	"time"

	domain "cardrec/internal/domain/view"
)

// ErrNotFound is returned when no live view exists for an ID.
var ErrNotFound = errors.New("view not found")

// Store persists per-browser view state. Get and Save work on copies:
// mutating a returned state never changes what is stored.
type Store interface {
	Get(ctx context.Context, id string) (domain.State, error)
	Save(ctx context.Context, s domain.State) error
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes views idle longer than ttl and reports how many went.
	DeleteExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}
