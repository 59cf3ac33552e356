package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekagifts/storefront/internal/domain/auth"
)

const (
	findAdminByEmailSQL = `SELECT id, email, name, password_hash, active, created_at
		FROM admins WHERE email = $1`

	upsertAdminSQL = `INSERT INTO admins (id, email, name, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			password_hash = EXCLUDED.password_hash,
			active = EXCLUDED.active
		RETURNING id, created_at`
)

var _ auth.Repository = (*AdminRepository)(nil)

// AdminRepository provides admin account lookups backed by PostgreSQL.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository returns an AdminRepository that uses the given pool.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// FindByEmail looks up an admin by normalized email.
func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*auth.Admin, error) {
	var a auth.Admin
	err := r.pool.QueryRow(ctx, findAdminByEmailSQL, email).Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Active, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("finding admin by email: %w", err)
	}
	return &a, nil
}

// Upsert creates the admin or updates the account with the same email. The
// stored id and creation time are written back to a.
func (r *AdminRepository) Upsert(ctx context.Context, a *auth.Admin) error {
	err := r.pool.QueryRow(ctx, upsertAdminSQL,
		a.ID, a.Email, a.Name, a.PasswordHash, a.Active, a.CreatedAt,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting admin %q: %w", a.Email, err)
	}
	return nil
}
