// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// AccountStatus is the account state reported by the database-of-record.
type AccountStatus string

// StatusActive is the only status that allows a session.
const StatusActive AccountStatus = "active"

// UserRecord is the cached projection of the remote user.
type UserRecord struct {
	ID            uuid.UUID     `json:"id"`
	FullName      string        `json:"full_name"`
	Email         string        `json:"email"`
	EmailVerified bool          `json:"email_verified"`
	Status        AccountStatus `json:"status"`
	Phone         string        `json:"phone,omitempty"`
	PhotoURL      string        `json:"profile_photo_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Active reports whether the cached status is active.
func (u UserRecord) Active() bool { return u.Status == StatusActive }

// IdentityRow is a row of the database-of-record users table.
type IdentityRow struct {
	ID            uuid.UUID
	Email         string
	Status        AccountStatus
	EmailVerified bool
}

// LoginResult is what the token issuer returns for accepted credentials.
type LoginResult struct {
	Token string
	User  UserRecord
}

// VerificationResult is the outcome of verify/resend/check calls.
type VerificationResult struct {
	Verified bool
	Sent     bool
	Message  string
}

// SignUpRequest holds registration input.
type SignUpRequest struct {
	FullName    string `validate:"required"`
	Email       string `validate:"required,email"`
	Password    string `validate:"required"`
	TermsAgreed bool   `validate:"required"`
}

// ProfileUpdate carries optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	FullName *string
	Phone    *string
	PhotoURL *string
}

// Empty reports whether no field is set.
func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Phone == nil && p.PhotoURL == nil
}

// PendingVerification marks an email confirmation outstanding for a just-registered account.
// Password is kept only to sign in automatically once the address is verified.
type PendingVerification struct {
	Email    string
	Password string
}

// State is a Session Manager state.
type State int

// Session Manager states. A manager starts Uninitialized, moves to Validating
// while a cached session is checked and settles in Authenticated or Unauthenticated.
const (
	StateUninitialized State = iota
	StateValidating
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValidating:
		return "validating"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// LoadingState tells readers whether startup validation has settled.
type LoadingState int

// Loading states. LoadingReady is set once the first startup validation settles.
const (
	LoadingInitializing LoadingState = iota
	LoadingReady
)

func (l LoadingState) String() string {
	if l == LoadingReady {
		return "ready"
	}
	return "initializing"
}

// Session is the published snapshot of who is logged in.
// Token and User are both set or both empty.
type Session struct {
	Token   string
	User    *UserRecord
	Loading LoadingState
	State   State
}

// Authenticated reports whether the snapshot carries a session.
func (s Session) Authenticated() bool { return s.Token != "" && s.User != nil }

// Clone returns a copy that shares no memory with s.
func (s Session) Clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
