package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/model"
	"github.com/and161185/drivepass/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRecordRepository over the database-of-record.
type UserRepo struct{ db *DB }

var _ repository.UserRecordRepository = (*UserRepo)(nil)

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// LookupByID selects the identity row by exact id match.
func (r *UserRepo) LookupByID(ctx context.Context, id uuid.UUID) (*model.IdentityRow, error) {
	const q = `
SELECT id, email, status, email_verified
FROM users WHERE id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)
	var (
		u      model.IdentityRow
		status string
	)
	if err := row.Scan(&u.ID, &u.Email, &status, &u.EmailVerified); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup user %s: %w: %v", id, errs.ErrNetwork, err)
	}
	u.Status = model.AccountStatus(status)
	return &u, nil
}

// UpdateProfile writes the set fields; unset fields keep their column value.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) error {
	const q = `
UPDATE users
SET full_name = COALESCE($2, full_name),
    phone = COALESCE($3, phone),
    profile_photo_url = COALESCE($4, profile_photo_url),
    updated_at = now()
WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, upd.FullName, upd.Phone, upd.PhotoURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("update user %s: %w: %v", id, errs.ErrNetwork, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
