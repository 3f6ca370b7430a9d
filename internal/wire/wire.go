// Package wire declares JSON bodies exchanged with the REST auth API.
package wire

import "encoding/json"

// Envelope wraps every auth API response.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	// Detail is set by framework-level errors (validation, 404, 500) instead of Message.
	Detail json.RawMessage `json:"detail,omitempty"`
}

// User is the user object returned by the auth API.
type User struct {
	ID              string  `json:"id"`
	FullName        string  `json:"full_name"`
	Email           string  `json:"email"`
	EmailVerified   bool    `json:"email_verified"`
	Status          string  `json:"status"`
	Phone           *string `json:"phone,omitempty"`
	ProfilePhotoURL *string `json:"profile_photo_url,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginData is Envelope.Data of a successful login.
type LoginData struct {
	Token       string `json:"token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	User        User   `json:"user"`
}

// SignUpRequest is the body of POST /auth/signup.
type SignUpRequest struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	TermsAgreed bool   `json:"terms_agreed"`
}

// VerifyEmailRequest is the body of POST /auth/verify-email.
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// ResendRequest is the body of POST /auth/resend-verification.
type ResendRequest struct {
	Email string `json:"email"`
}

// VerificationData is Envelope.Data of verification endpoints.
type VerificationData struct {
	Verified      *bool `json:"verified,omitempty"`
	EmailVerified *bool `json:"email_verified,omitempty"`
}
