package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/isdelr/userdir-be/internal/models"
	"github.com/isdelr/userdir-be/internal/repository"
)

// MaxEventLimit caps how many events a single query may return.
const MaxEventLimit = 200

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// EventService provides business logic for the activity log.
type EventService struct {
	events repository.EventRepository
}

// NewEventService creates a new EventService.
func NewEventService(events repository.EventRepository) *EventService {
	return &EventService{events: events}
}

// CreateEvent records a new event.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Level:     level,
		Message:   message,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	return s.events.Create(ctx, event)
}

// GetRecentEvents retrieves the most recent events; limit is clamped to [1, MaxEventLimit].
func (s *EventService) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	return s.events.Recent(ctx, limit)
}
