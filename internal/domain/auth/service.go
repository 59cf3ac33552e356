package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("eka-gifts-dummy"), bcrypt.DefaultCost)

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Admin     *Admin
}

// Service authenticates admins.
type Service struct {
	admins Repository
	tokens *Tokens
}

// NewService creates an auth Service.
func NewService(admins Repository, tokens *Tokens) *Service {
	return &Service{admins: admins, tokens: tokens}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword returns the bcrypt hash of a password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}

// Login checks the credentials and issues a token. Unknown email, inactive
// account and wrong password all return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	lg := zctx.From(ctx)
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	a, err := s.admins.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, errors.Wrap(err, "find admin")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil || !a.Active {
		lg.Info("Admin login rejected", zap.String("admin_id", a.ID))
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(a)
	if err != nil {
		return nil, err
	}
	lg.Info("Admin logged in", zap.String("admin_id", a.ID))
	return &Session{Token: token, ExpiresAt: exp, Admin: a}, nil
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(token string) (*Principal, error) {
	return s.tokens.Verify(token)
}
