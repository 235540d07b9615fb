package application

import (
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/google/uuid"
)

type Config struct {
	ResetCodeTTL               time.Duration
	FailedLoginThreshold       int
	LockoutDuration            time.Duration
	RegisterRateLimitThreshold int
	RegisterRateLimitWindow    time.Duration
	ResetRateLimitThreshold    int
	ResetRateLimitWindow       time.Duration

	// ResetSubmit* limits code submissions per client IP.
	ResetSubmitRateLimitThreshold int
	ResetSubmitRateLimitWindow    time.Duration

	// ResetWrongCode* counts wrong codes across all clients; reaching the
	// threshold rejects every submission until the window passes.
	ResetWrongCodeThreshold int
	ResetWrongCodeWindow    time.Duration

	MailTimeout time.Duration
}

// RequestMeta carries transport details used for rate limiting and audit logs.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetSubmit redeems a reset code. Token holds the 6-digit code.
type PasswordResetSubmit struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

// PublicUser is the only identity view that leaves the service.
type PublicUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SessionResult is the outcome of register, login and refresh.
// The refresh token is delivered out of band and never serialized.
type SessionResult struct {
	User             *PublicUser `json:"user,omitempty"`
	AccessToken      string      `json:"accessToken"`
	RefreshToken     string      `json:"-"`
	RefreshExpiresAt time.Time   `json:"-"`
}

type SessionItem struct {
	SessionID     uuid.UUID  `json:"session_id"`
	State         string     `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
	RotatedAt     *time.Time `json:"rotated_at,omitempty"`
	RotationCount int        `json:"rotation_count"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// Principal is the identity resolved from a verified access token.
type Principal struct {
	IdentityID uuid.UUID
	ExpiresAt  time.Time
}

func toPublicUser(identity domain.Identity) PublicUser {
	return PublicUser{Email: identity.Email, Name: identity.Name}
}

func toSessionItem(s domain.RefreshSession, now time.Time) SessionItem {
	return SessionItem{
		SessionID:     s.ID,
		State:         string(s.State(now)),
		CreatedAt:     s.CreatedAt,
		RotatedAt:     s.RotatedAt,
		RotationCount: s.RotationCount,
		ExpiresAt:     s.ExpiresAt,
	}
}
