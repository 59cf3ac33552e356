package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidCredentials is returned when the email or password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotFound is returned when no admin has the requested email.
	ErrNotFound = errors.New("admin not found")
)

// Admin is a back-office account.
type Admin struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// Repository provides lookup and provisioning of admin accounts.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	// Upsert creates the admin or replaces its name and password hash.
	Upsert(ctx context.Context, a *Admin) error
}
