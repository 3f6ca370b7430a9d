package repository

import "context"

// Credential store keys.
const (
	KeyToken           = "token"
	KeyUser            = "user"
	KeyPendingEmail    = "pending_verification_email"
	KeyPendingPassword = "pending_verification_password"
)

// SessionKeys are the entries ClearAll removes.
var SessionKeys = []string{KeyToken, KeyUser, KeyPendingEmail, KeyPendingPassword}

// CredentialStore is durable key-value persistence for session data.
type CredentialStore interface {
	// Get returns the value for key, or (nil, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// SetSession stores token and user together, or neither of them.
	SetSession(ctx context.Context, token, user []byte) error
	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// ClearAll removes every SessionKeys entry or none of them.
	ClearAll(ctx context.Context) error
}
