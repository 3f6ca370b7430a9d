// Package oracle is the Remote Identity Oracle: the REST auth API and the
// database-of-record behind one contract.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/model"
	"github.com/and161185/drivepass/internal/repository"
)

// AuthAPI is the token issuer and verification authority.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (model.LoginResult, error)
	SignUp(ctx context.Context, req model.SignUpRequest) error
	VerifyEmail(ctx context.Context, token string) (model.VerificationResult, error)
	ResendVerification(ctx context.Context, email string) (model.VerificationResult, error)
	CheckVerification(ctx context.Context, email string) (bool, error)
}

// ErrNoDatabase is returned by record operations when no database-of-record is configured.
var ErrNoDatabase = fmt.Errorf("%w: database-of-record is not configured", errs.ErrValidation)

// Remote composes the auth API and the users table.
type Remote struct {
	api   AuthAPI
	users repository.UserRecordRepository
	log   *zap.Logger
}

// New returns a Remote. users may be nil for commands that only talk to the auth API.
func New(api AuthAPI, users repository.UserRecordRepository, log *zap.Logger) *Remote {
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{api: api, users: users, log: log}
}

// NormalizeEmail trims and lower-cases an address the way the auth API stores it.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (r *Remote) Login(ctx context.Context, email, password string) (model.LoginResult, error) {
	return r.api.Login(ctx, NormalizeEmail(email), password)
}

func (r *Remote) SignUp(ctx context.Context, req model.SignUpRequest) error {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = NormalizeEmail(req.Email)
	return r.api.SignUp(ctx, req)
}

func (r *Remote) VerifyEmail(ctx context.Context, token string) (model.VerificationResult, error) {
	return r.api.VerifyEmail(ctx, strings.TrimSpace(token))
}

func (r *Remote) ResendVerification(ctx context.Context, email string) (model.VerificationResult, error) {
	return r.api.ResendVerification(ctx, NormalizeEmail(email))
}

func (r *Remote) CheckVerification(ctx context.Context, email string) (bool, error) {
	return r.api.CheckVerification(ctx, NormalizeEmail(email))
}

// LookupUserRecord reads the identity row for id from the database-of-record.
func (r *Remote) LookupUserRecord(ctx context.Context, id uuid.UUID) (*model.IdentityRow, error) {
	if r.users == nil {
		return nil, ErrNoDatabase
	}
	row, err := r.users.LookupByID(ctx, id)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			r.log.Warn("user record lookup failed", zap.String("user_id", id.String()), zap.Error(err))
		}
		return nil, err
	}
	return row, nil
}

// UpdateProfile writes profile fields to the database-of-record.
func (r *Remote) UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) error {
	if r.users == nil {
		return ErrNoDatabase
	}
	return r.users.UpdateProfile(ctx, id, upd)
}
