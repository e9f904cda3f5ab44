package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	directory "fieldwatch/internal/directory/domain"
)

// ErrBadCredentials is returned for unknown usernames and wrong passwords
// alike.
var ErrBadCredentials = errors.New("auth: bad credentials")

// UserLookup loads users by username.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*directory.User, error)
}

// Service issues tokens for valid credentials.
type Service struct {
	users  UserLookup
	secret []byte
	ttl    time.Duration
}

// NewService constructs a Service.
func NewService(users UserLookup, secret []byte, ttl time.Duration) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth service: nil user lookup")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth service: empty secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{users: users, secret: secret, ttl: ttl}, nil
}

// Login verifies credentials and returns a signed token plus the user.
func (s *Service) Login(ctx context.Context, username, password string) (string, *directory.User, error) {
	if s == nil {
		return "", nil, errors.New("auth service: nil service")
	}
	if username == "" || password == "" {
		return "", nil, ErrBadCredentials
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrBadCredentials
	}
	role, ok := NormalizeRole(user.Role)
	if !ok {
		role = RoleViewer
	}
	token, err := IssueJWT(user.ID, role, s.secret, s.ttl)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
