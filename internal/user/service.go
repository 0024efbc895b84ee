package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 50
	maxPasswordBytes  = 72
	DefaultBcryptCost = 12
)

var (
	ErrUsernameRequired   = errors.New("username is required")
	ErrUsernameLength     = fmt.Errorf("username is too long, max length: %d", maxUsernameLength)
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordLength     = fmt.Errorf("password is too long, max length: %d bytes", maxPasswordBytes)
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternalError      = errors.New("internal Server Error")
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller. It is derived from a stored user
// and carries nothing a client could forge.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}

type Service interface {
	Register(ctx context.Context, username, password string) (*User, error)
	Verify(ctx context.Context, username, password string) (Identity, error)
	ResolveIdentity(ctx context.Context, username string) (Identity, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

type service struct {
	repo       Repository
	bcryptCost int
	dummyHash  []byte
	log        zerolog.Logger
}

func NewUserService(repo Repository, bcryptCost int, log zerolog.Logger) Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = DefaultBcryptCost
	}
	// Compared against when the username is unknown so that both login
	// failure paths spend the same bcrypt work.
	dummyHash, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	return &service{
		repo:       repo,
		bcryptCost: bcryptCost,
		dummyHash:  dummyHash,
		log:        log,
	}
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func validateCredentials(username, password string) error {
	if username == "" {
		return ErrUsernameRequired
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return ErrUsernameLength
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordLength
	}
	return nil
}

func (s *service) hashPassword(password string) (string, error) {
	hashedPasswordBytes, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	return string(hashedPasswordBytes), err
}

func doPasswordsMatch(hashedPassword, currPassword string) bool {
	err := bcrypt.CompareHashAndPassword(
		[]byte(hashedPassword), []byte(currPassword))
	return err == nil
}

func (s *service) Register(ctx context.Context, username, password string) (*User, error) {
	username = normalizeUsername(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	_, err := s.repo.getUserByUsername(ctx, username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, ErrUserNotFound) {
		s.log.Error().Err(err).Msg("Error with database request")
		return nil, ErrInternalError
	}

	passwordHash, err := s.hashPassword(password)
	if err != nil {
		s.log.Error().Err(err).Msg("Error during hashing the password")
		return nil, ErrInternalError
	}

	user := &User{
		Username:     username,
		PasswordHash: passwordHash,
	}

	// The pre-check above is advisory; the store decides races.
	if err := s.repo.createUser(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		s.log.Error().Err(err).Msg("Error during creating the user")
		return nil, ErrInternalError
	}

	s.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, nil
}

func (s *service) Verify(ctx context.Context, username, password string) (Identity, error) {
	username = normalizeUsername(username)
	user, err := s.repo.getUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return Identity{}, ErrInvalidCredentials
		}
		s.log.Error().Err(err).Msg("Error with database request")
		return Identity{}, ErrInternalError
	}

	if !doPasswordsMatch(user.PasswordHash, password) {
		return Identity{}, ErrInvalidCredentials
	}
	return user.Identity(), nil
}

func (s *service) ResolveIdentity(ctx context.Context, username string) (Identity, error) {
	user, err := s.repo.getUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	return user.Identity(), nil
}

func (s *service) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.getUserByID(ctx, id)
}
