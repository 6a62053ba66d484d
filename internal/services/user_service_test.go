package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/isdelr/userdir-be/internal/models"
	"github.com/isdelr/userdir-be/internal/repository"
)

type recordingNotifier struct {
	mu      sync.Mutex
	actions []string
	users   []models.User
}

func (n *recordingNotifier) Publish(action string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, action)
	if u, ok := payload.(models.User); ok {
		n.users = append(n.users, u)
	}
}

// racyRepo hides existing rows from the pre-insert lookup, as if every
// caller checked before anyone inserted.
type racyRepo struct {
	*repository.MemoryUserRepository
}

func (r racyRepo) FindByUsernameOrEmail(context.Context, string, string) (models.User, error) {
	return models.User{}, repository.ErrNotFound
}

type failingRepo struct {
	*repository.MemoryUserRepository
	findErr   error
	createErr error
}

func (r failingRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	if r.findErr != nil {
		return models.User{}, r.findErr
	}
	return r.MemoryUserRepository.FindByUsernameOrEmail(ctx, username, email)
}

func (r failingRepo) Create(ctx context.Context, user models.User) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryUserRepository.Create(ctx, user)
}

func newTestService(t *testing.T) (*UserService, *repository.MemoryUserRepository, *EventService, *recordingNotifier) {
	t.Helper()
	users := repository.NewMemoryUserRepository()
	events := NewEventService(repository.NewMemoryEventRepository())
	notifier := &recordingNotifier{}
	return NewUserService(users, events, notifier, bcrypt.MinCost), users, events, notifier
}

func validInput() RegisterInput {
	return RegisterInput{Name: "Ana", Username: "ana1", Email: "ana@x.com", Password: "pw"}
}

func TestRegister_Success(t *testing.T) {
	svc, users, events, notifier := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, "ana1", user.Username)
	assert.Equal(t, "ana@x.com", user.Email)
	assert.False(t, user.IsActive)
	assert.False(t, user.IsSuspended)
	assert.Nil(t, user.SponsorID)
	assert.Empty(t, user.PasswordHash, "returned user must not carry the password hash")
	assert.WithinDuration(t, time.Now(), user.CreatedAt, 5*time.Second)

	stored, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "pw", stored.PasswordHash, "password must be hashed before storage")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw")))

	recent, err := events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, models.EventUserRegister, recent[0].Type)
	require.NotNil(t, recent[0].UserID)
	assert.Equal(t, user.ID, *recent[0].UserID)

	require.Equal(t, []string{ActionUserRegistered}, notifier.actions)
	assert.Equal(t, user.ID, notifier.users[0].ID)
	assert.Empty(t, notifier.users[0].PasswordHash)
}

func TestRegister_LongPassword(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()

	long := strings.Repeat("p", 100)
	in := validInput()
	in.Password = long
	user, err := svc.Register(ctx, in)
	require.NoError(t, err)

	stored, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), bcryptInput(long)))
	// Passwords that share a 72-byte prefix must not collide.
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), bcryptInput(long[:72]+"q")))
}

func TestBcryptInput(t *testing.T) {
	exact := strings.Repeat("a", maxBcryptInput)
	assert.Equal(t, []byte(exact), bcryptInput(exact))
	assert.Equal(t, []byte("pw"), bcryptInput("pw"))

	hashed := bcryptInput(exact + "b")
	assert.Len(t, hashed, 44)
	assert.NotEqual(t, hashed, bcryptInput(exact+"c"))
}

func TestRegister_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"name", func(in *RegisterInput) { in.Name = "" }},
		{"username", func(in *RegisterInput) { in.Username = "" }},
		{"email", func(in *RegisterInput) { in.Email = "" }},
		{"password", func(in *RegisterInput) { in.Password = "" }},
		{"all", func(in *RegisterInput) { *in = RegisterInput{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users, _, _ := newTestService(t)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, ErrMissingFields)

			all, err := users.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestRegister_DuplicateEmailOrUsername(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	sameEmail := validInput()
	sameEmail.Username = "ana2"
	_, err = svc.Register(ctx, sameEmail)
	assert.ErrorIs(t, err, ErrUserExists)

	sameUsername := validInput()
	sameUsername.Email = "other@x.com"
	_, err = svc.Register(ctx, sameUsername)
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestRegister_Sponsor(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	sponsor, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	t.Run("known sponsor", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterInput{Name: "Bo", Username: "bo", Email: "bo@x.com", Password: "pw", SponsorCode: "ana1"})
		require.NoError(t, err)
		require.NotNil(t, user.SponsorID)
		assert.Equal(t, sponsor.ID, *user.SponsorID)
	})

	t.Run("unknown sponsor is ignored", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterInput{Name: "Cy", Username: "cy", Email: "cy@x.com", Password: "pw", SponsorCode: "nobody"})
		require.NoError(t, err)
		assert.Nil(t, user.SponsorID)
	})
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	users := repository.NewMemoryUserRepository()
	svc := NewUserService(racyRepo{users}, nil, nil, bcrypt.MinCost)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(context.Background(), RegisterInput{
				Name: "Ana", Username: "ana1", Email: fmt.Sprintf("ana%d@x.com", i), Password: "pw",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrUserExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)

	all, err := users.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRegister_StorageFailures(t *testing.T) {
	boom := errors.New("disk on fire")

	t.Run("lookup", func(t *testing.T) {
		svc := NewUserService(failingRepo{MemoryUserRepository: repository.NewMemoryUserRepository(), findErr: boom}, nil, nil, bcrypt.MinCost)
		_, err := svc.Register(context.Background(), validInput())
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrUserExists)
	})

	t.Run("insert", func(t *testing.T) {
		svc := NewUserService(failingRepo{MemoryUserRepository: repository.NewMemoryUserRepository(), createErr: boom}, nil, nil, bcrypt.MinCost)
		_, err := svc.Register(context.Background(), validInput())
		assert.ErrorIs(t, err, boom)
	})
}

func TestListUsers_NewestFirstWithoutPasswords(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.Register(ctx, RegisterInput{Name: name, Username: name, Email: name + "@x.com", Password: "pw"})
		require.NoError(t, err)
	}

	list, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Username)
	assert.Equal(t, "b", list[1].Username)
	assert.Equal(t, "a", list[2].Username)
	for _, u := range list {
		assert.Empty(t, u.PasswordHash)
	}
}
