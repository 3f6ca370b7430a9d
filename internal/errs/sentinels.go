// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials indicates the auth authority rejected email/password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountUnavailable indicates the token issuer accepted the login but the
	// database-of-record has no active row for the user.
	ErrAccountUnavailable = errors.New("account unavailable")

	// ErrNetwork indicates a transport-level failure: no response was received.
	ErrNetwork = errors.New("network error")

	// ErrRemote indicates the authority responded but rejected the operation.
	ErrRemote = errors.New("remote error")

	// ErrStorage indicates a credential store read/write failure.
	ErrStorage = errors.New("storage error")

	// ErrValidation indicates malformed client input.
	ErrValidation = errors.New("validation")

	// ErrUnauthorized indicates an operation that needs an authenticated session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the operation is temporarily blocked by a cooldown.
	ErrRateLimited = errors.New("rate limited")
)

// RemoteError carries the authority's status and message for a rejected operation.
// errors.Is(err, ErrRemote) holds for every RemoteError; Err optionally narrows the kind.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error (status %d)", e.Status)
	}
	return e.Message
}

// Is matches ErrRemote in addition to the wrapped kind.
func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

func (e *RemoteError) Unwrap() error { return e.Err }

// NeedsVerification reports whether err is a remote rejection whose message points
// at an unverified email address.
func NeedsVerification(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return strings.Contains(strings.ToLower(re.Message), "verif")
}

// User-facing messages for errors whose details are not shown.
const (
	MsgAccountUnavailable = "Account not found or deactivated. Please contact support."
	MsgNetwork            = "Unable to reach the server. Check your connection and try again."
	MsgStorage            = "Could not access local storage."
	MsgUnexpected         = "Something went wrong. Please try again."
)

// UserMessage renders err for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	switch {
	case errors.Is(err, ErrAccountUnavailable):
		return MsgAccountUnavailable
	case errors.As(err, &re):
		if re.Message != "" {
			return re.Message
		}
		return MsgUnexpected
	case errors.Is(err, ErrNetwork):
		return MsgNetwork
	case errors.Is(err, ErrStorage):
		return MsgStorage
	case errors.Is(err, ErrValidation), errors.Is(err, ErrRateLimited), errors.Is(err, ErrUnauthorized):
		return err.Error()
	default:
		return MsgUnexpected
	}
}
