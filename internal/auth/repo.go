package auth

import (
	"context"
	"errors"

	"github.com/ariefcatur/storefront-pos/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserStore is the persistence the Service needs.
type UserStore interface {
	Create(ctx context.Context, email, hash string, role Role) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, email, hash string, role Role) (User, error) {
	u := User{ID: uuid.NewString(), Email: email, PasswordHash: hash, Role: role}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO users(id, email, password_hash, role) VALUES ($1, $2, $3, $4)
		RETURNING created_at`, u.ID, u.Email, u.PasswordHash, string(u.Role)).Scan(&u.CreatedAt)
	if postgres.IsUniqueViolation(err, "users_email_key") {
		return User{}, ErrEmailTaken
	}
	return u, err
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (User, error) {
	var (
		u    User
		role string
	)
	err := r.DB.QueryRow(ctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE email=$1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	u.Role = Role(role)
	return u, err
}

// SetRole promotes or demotes an existing user.
func (r *Repo) SetRole(ctx context.Context, email string, role Role) error {
	ct, err := r.DB.Exec(ctx, `UPDATE users SET role=$2 WHERE email=$1`, email, string(role))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
