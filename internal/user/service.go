package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/user/entity"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Repository is the credential store used by UserService.
type Repository interface {
	Insert(ctx context.Context, username, passwordHash string) (int64, error)
	FindByUsername(ctx context.Context, username string) ([]entity.User, error)
	FindByID(ctx context.Context, id int64) (*entity.User, error)
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrBadCredentials = errors.New("invalid credentials")
)

// UserService orchestrates signup and password authentication.
type UserService struct {
	repo   Repository
	hasher PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(r Repository, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher}
}

// Signup hashes password and inserts a new row. Duplicate usernames are accepted.
func (s *UserService) Signup(ctx context.Context, username, password string) (int64, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.repo.Insert(ctx, username, hash)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// Authenticate returns the first user named username whose password matches.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*entity.User, error) {
	users, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if len(users) == 0 {
		// keep the unknown-user path as slow as a real comparison
		s.hasher.Verify(s.dummy(), password)
		return nil, ErrBadCredentials
	}
	for i := range users {
		if s.hasher.Verify(users[i].PasswordHash, password) {
			return &users[i], nil
		}
	}
	return nil, ErrBadCredentials
}

// AuthenticateID verifies password against the row with the given id. Signup
// uses it so a duplicate username logs in as the row it just inserted.
func (s *UserService) AuthenticateID(ctx context.Context, id int64, password string) (*entity.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// LoadPrincipal resolves a session's user id into the request principal.
func (s *UserService) LoadPrincipal(ctx context.Context, id int64) (*session.Principal, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &session.Principal{ID: u.ID, Username: u.Username}, nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("statehub-dummy-password")
	})
	return s.dummyHash
}
