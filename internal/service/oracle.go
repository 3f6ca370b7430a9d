// Package service contains the Session Manager: sign-in, sign-up, validation
// of cached sessions and email-verification polling.
package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/drivepass/internal/model"
)

// IdentityOracle is the source of truth for identity and verification state.
type IdentityOracle interface {
	// Login exchanges credentials for a token and user.
	Login(ctx context.Context, email, password string) (model.LoginResult, error)
	// SignUp registers an account; the email must be verified before Login succeeds.
	SignUp(ctx context.Context, req model.SignUpRequest) error
	VerifyEmail(ctx context.Context, token string) (model.VerificationResult, error)
	ResendVerification(ctx context.Context, email string) (model.VerificationResult, error)
	CheckVerification(ctx context.Context, email string) (bool, error)
	// LookupUserRecord queries the database-of-record; errs.ErrNotFound when no row exists.
	LookupUserRecord(ctx context.Context, id uuid.UUID) (*model.IdentityRow, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) error
}

// Notice is a user-visible interrupt raised outside a call's result.
type Notice int

const (
	// NoticeSessionExpired follows a forced logout.
	NoticeSessionExpired Notice = iota + 1
	// NoticeEmailVerified is raised when polling sees the pending address verified.
	NoticeEmailVerified
	// NoticeAutoLoginFailed is raised when sign-in after verification did not succeed.
	NoticeAutoLoginFailed
)

func (n Notice) String() string {
	switch n {
	case NoticeSessionExpired:
		return "Your session has expired. Please sign in again."
	case NoticeEmailVerified:
		return "Email verified."
	case NoticeAutoLoginFailed:
		return "Email verified. Please sign in."
	default:
		return ""
	}
}
