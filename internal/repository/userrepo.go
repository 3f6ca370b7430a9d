// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/drivepass/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRecordRepository reads and updates the database-of-record users table.
type UserRecordRepository interface {
	// LookupByID loads the identity row for id; errs.ErrNotFound when absent.
	LookupByID(ctx context.Context, id uuid.UUID) (*model.IdentityRow, error)
	// UpdateProfile applies the non-nil fields of upd to the user row.
	UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) error
}
