package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// CachedUser is a local projection of a user, kept fresh by consuming user
// events. It lets ledger listings resolve actor names without calling the
// user service.
type CachedUser struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	RoleName  string    `db:"role_name" json:"role_name"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the user's display name
func (u *CachedUser) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UserCacheRepository maintains the local user projection
type UserCacheRepository struct {
	db *database.DB
}

// NewUserCacheRepository creates a new user cache repository
func NewUserCacheRepository(db *database.DB) *UserCacheRepository {
	return &UserCacheRepository{db: db}
}

// Upsert inserts or refreshes a cached user
func (r *UserCacheRepository) Upsert(ctx context.Context, user *CachedUser) error {
	query := `
		INSERT INTO user_cache (id, email, first_name, last_name, role_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			role_name = EXCLUDED.role_name,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, user.RoleName,
	)
	return err
}

// GetByID gets a cached user by ID
func (r *UserCacheRepository) GetByID(ctx context.Context, id string) (*CachedUser, error) {
	var user CachedUser
	query := `SELECT * FROM user_cache WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("user")
		}
		return nil, err
	}
	return &user, nil
}

// Delete removes a cached user
func (r *UserCacheRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_cache WHERE id = $1`, id)
	return err
}
