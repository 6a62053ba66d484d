package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/isdelr/userdir-be/internal/models"
)

// MemoryUserRepository keeps users in process memory. It enforces the same
// uniqueness rules as the SQL backends and is safe for concurrent use.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users []models.User // insertion order
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{}
}

func (r *MemoryUserRepository) Create(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == user.ID || u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("insert user %s: %w", user.Username, ErrDuplicate)
		}
	}
	r.users = append(r.users, cloneUser(user))
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r *MemoryUserRepository) FindByUsernameOrEmail(_ context.Context, username, email string) (models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email || u.Username == username })
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

// List returns users ordered by CreatedAt descending; equal timestamps keep
// reverse insertion order.
func (r *MemoryUserRepository) List(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.User, 0, len(r.users))
	for i := len(r.users) - 1; i >= 0; i-- {
		out = append(out, cloneUser(r.users[i]))
	}
	sortNewestFirst(out, func(u models.User) int64 { return u.CreatedAt.UnixNano() })
	return out, nil
}

func (r *MemoryUserRepository) find(match func(models.User) bool) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return models.User{}, ErrNotFound
}

// MemoryEventRepository keeps activity events in process memory.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events []models.Event
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{}
}

func (r *MemoryEventRepository) Create(_ context.Context, event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, cloneEvent(event))
	return nil
}

func (r *MemoryEventRepository) Recent(_ context.Context, limit int) ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Event, 0, len(r.events))
	for i := len(r.events) - 1; i >= 0; i-- {
		out = append(out, cloneEvent(r.events[i]))
	}
	sortNewestFirst(out, func(e models.Event) int64 { return e.CreatedAt.UnixNano() })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cloneUser detaches u from caller-owned pointers so stored rows cannot be
// modified from outside.
func cloneUser(u models.User) models.User {
	u.SponsorID = cloneString(u.SponsorID)
	return u
}

func cloneEvent(e models.Event) models.Event {
	e.UserID = cloneString(e.UserID)
	return e
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// sortNewestFirst is a stable descending sort by key.
func sortNewestFirst[T any](items []T, key func(T) int64) {
	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Compare(key(b), key(a))
	})
}
