package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PasswordHasher hashes and verifies passwords.
// Both calls may block waiting for a hashing slot and honour ctx while waiting.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Compare(ctx context.Context, hash, password string) error
}

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

type TokenClaims struct {
	IdentityID uuid.UUID
	Kind       TokenKind
	ID         string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// TokenIssuer mints and verifies the two token kinds.
// Access and refresh tokens are signed with distinct secrets.
type TokenIssuer interface {
	IssueAccess(identityID uuid.UUID, now time.Time) (IssuedToken, error)
	IssueRefresh(identityID uuid.UUID, now time.Time) (IssuedToken, error)
	Verify(token string, kind TokenKind) (TokenClaims, error)
	RefreshTTL() time.Duration
}
