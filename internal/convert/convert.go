// Package convert maps auth API wire bodies to domain models.
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/drivepass/internal/model"
	"github.com/and161185/drivepass/internal/wire"
	"github.com/gofrs/uuid/v5"
)

// --- helpers ---

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// --- User ---

// UserFromWire converts an API user into a UserRecord.
func UserFromWire(in wire.User) (model.UserRecord, error) {
	var id uuid.UUID
	if err := id.UnmarshalText([]byte(in.ID)); err != nil {
		return model.UserRecord{}, fmt.Errorf("invalid user id: %w", err)
	}
	created, err := parseTime(in.CreatedAt)
	if err != nil {
		return model.UserRecord{}, err
	}
	return model.UserRecord{
		ID:            id,
		FullName:      in.FullName,
		Email:         strings.TrimSpace(in.Email),
		EmailVerified: in.EmailVerified,
		Status:        model.AccountStatus(in.Status),
		Phone:         deref(in.Phone),
		PhotoURL:      deref(in.ProfilePhotoURL),
		CreatedAt:     created,
	}, nil
}

// --- Login ---

// LoginFromWire converts login data into a LoginResult.
func LoginFromWire(in wire.LoginData) (model.LoginResult, error) {
	tok := in.Token
	if tok == "" {
		tok = in.AccessToken
	}
	if tok == "" {
		return model.LoginResult{}, errors.New("login response without token")
	}
	u, err := UserFromWire(in.User)
	if err != nil {
		return model.LoginResult{}, err
	}
	return model.LoginResult{Token: tok, User: u}, nil
}

// --- Verification ---

// VerifiedFromWire reads the verified flag; either field name is accepted.
func VerifiedFromWire(in wire.VerificationData) bool {
	if in.Verified != nil {
		return *in.Verified
	}
	if in.EmailVerified != nil {
		return *in.EmailVerified
	}
	return false
}

// DetailMessage extracts a human message from a framework "detail" field,
// which is either a string or a list of {msg} objects.
func DetailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// --- Identity merge ---

// MergeIdentity overlays fresh database-of-record fields onto a cached user.
func MergeIdentity(u model.UserRecord, row model.IdentityRow) model.UserRecord {
	u.Status = row.Status
	u.EmailVerified = row.EmailVerified
	if row.Email != "" {
		u.Email = row.Email
	}
	return u
}

// ApplyProfile overlays the set fields of upd onto u.
func ApplyProfile(u model.UserRecord, upd model.ProfileUpdate) model.UserRecord {
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.PhotoURL != nil {
		u.PhotoURL = *upd.PhotoURL
	}
	return u
}
