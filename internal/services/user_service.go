package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/isdelr/userdir-be/internal/models"
	"github.com/isdelr/userdir-be/internal/repository"
)

var (
	// ErrMissingFields is returned when a required registration field is empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrUserExists is returned when the username or email is already taken.
	ErrUserExists = errors.New("user already exists")
)

// ActionUserRegistered is the notification sent for each new registration.
const ActionUserRegistered = "user.registered"

// Notifier fans out registration notifications, e.g. to websocket clients.
type Notifier interface {
	Publish(action string, payload any)
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Password string
	// SponsorCode is the username of the referring user, if any.
	SponsorCode string
}

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Register(ctx context.Context, input RegisterInput) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// UserService provides business logic for user management.
type UserService struct {
	users    repository.UserRepository
	events   EventServiceProvider
	notifier Notifier
	hashCost int
	now      func() time.Time
}

// NewUserService creates a new UserService. events and notifier may be nil.
func NewUserService(users repository.UserRepository, events EventServiceProvider, notifier Notifier, hashCost int) *UserService {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &UserService{
		users:    users,
		events:   events,
		notifier: notifier,
		hashCost: hashCost,
		now:      time.Now,
	}
}

// Register creates a new user, resolving the optional sponsor code to the
// sponsor's ID. An unknown sponsor code is not an error; the user is created
// without a sponsor.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	if input.Name == "" || input.Username == "" || input.Email == "" || input.Password == "" {
		return models.User{}, ErrMissingFields
	}

	_, err := s.users.FindByUsernameOrEmail(ctx, input.Username, input.Email)
	switch {
	case err == nil:
		return models.User{}, ErrUserExists
	case !errors.Is(err, repository.ErrNotFound):
		return models.User{}, fmt.Errorf("failed to check existing user: %w", err)
	}

	var sponsorID *string
	if input.SponsorCode != "" {
		sponsor, err := s.users.FindByUsername(ctx, input.SponsorCode)
		switch {
		case err == nil:
			sponsorID = &sponsor.ID
		case errors.Is(err, repository.ErrNotFound):
			log.Debug().Str("sponsor_code", input.SponsorCode).Msg("Sponsor code did not match any user")
		default:
			return models.User{}, fmt.Errorf("failed to resolve sponsor: %w", err)
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword(bcryptInput(input.Password), s.hashCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Name:         input.Name,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		IsActive:     false,
		IsSuspended:  false,
		SponsorID:    sponsorID,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can slip past the lookup above; the
		// storage constraint is authoritative.
		if errors.Is(err, repository.ErrDuplicate) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	created, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to reload user %s: %w", user.ID, err)
	}
	created = created.Sanitized()

	if s.events != nil {
		msg := fmt.Sprintf("User '%s' registered.", created.Username)
		if err := s.events.CreateEvent(ctx, models.EventUserRegister, models.LevelInfo, msg, &created.ID); err != nil {
			log.Warn().Err(err).Str("user_id", created.ID).Msg("Failed to record registration event")
		}
	}
	if s.notifier != nil {
		s.notifier.Publish(ActionUserRegistered, created)
	}

	log.Info().Str("user_id", created.ID).Str("username", created.Username).Bool("sponsored", sponsorID != nil).Msg("User registered")
	return created, nil
}

// maxBcryptInput is the longest input bcrypt accepts.
const maxBcryptInput = 72

// bcryptInput returns the bytes fed to bcrypt for password. Passwords longer
// than bcrypt accepts are reduced to a base64 SHA-256 digest (44 bytes) so that
// every byte still contributes to the hash.
func bcryptInput(password string) []byte {
	if len(password) <= maxBcryptInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// ListUsers returns every user, newest first, without password hashes.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for i := range users {
		users[i] = users[i].Sanitized()
	}
	return users, nil
}
