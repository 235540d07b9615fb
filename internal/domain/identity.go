package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the credential record of one customer.
// Email is stored normalized (trimmed, lower-cased).
type Identity struct {
	ID                 uuid.UUID
	Email              string
	Name               string
	PasswordHash       string
	ResetCodeHash      *string
	ResetCodeExpiresAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasActiveResetChallenge reports whether a reset code is still redeemable at now.
func (i Identity) HasActiveResetChallenge(now time.Time) bool {
	return i.ResetCodeHash != nil && i.ResetCodeExpiresAt != nil && i.ResetCodeExpiresAt.After(now)
}

// SessionState is derived from a refresh record, never stored. A revoked
// session has no record, so it has no state.
type SessionState string

const (
	SessionIssued  SessionState = "ISSUED"
	SessionRotated SessionState = "ROTATED"
	SessionExpired SessionState = "EXPIRED"
)

// RefreshSession is one live login chain in the refresh token registry.
// TokenHash is the fingerprint of the currently valid refresh token.
type RefreshSession struct {
	ID            uuid.UUID
	TokenHash     string
	IdentityID    uuid.UUID
	CreatedAt     time.Time
	RotatedAt     *time.Time
	RotationCount int
	ExpiresAt     time.Time
}

func (s RefreshSession) State(now time.Time) SessionState {
	if !now.Before(s.ExpiresAt) {
		return SessionExpired
	}
	if s.RotationCount > 0 {
		return SessionRotated
	}
	return SessionIssued
}
