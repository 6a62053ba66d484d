// Package repository holds the storage backends for users and activity events.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/isdelr/userdir-be/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepository is the storage capability the user service depends on.
type UserRepository interface {
	// Create inserts the user. A username or email collision yields ErrDuplicate.
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	// List returns every user, newest first.
	List(ctx context.Context) ([]models.User, error)
}

// EventRepository persists the activity log.
type EventRepository interface {
	Create(ctx context.Context, event models.Event) error
	// Recent returns at most limit events, newest first.
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}

// Optimizer is implemented by backends that support periodic maintenance.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// timeLayout is fixed-width so that text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

type scanner interface {
	Scan(dest ...any) error
}
