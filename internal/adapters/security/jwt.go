package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTIssuer implements HS256 token issuing/verification for both token kinds.
// Secrets are held at adapter level so application layer stays crypto-library agnostic.
type JWTIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	nowFn         func() time.Time
}

// NewJWTIssuer builds an issuer from the two configured secrets.
// Both are required and must differ.
func NewJWTIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*JWTIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("jwt access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("jwt access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("jwt token ttls must be positive")
	}
	return &JWTIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		nowFn:         time.Now,
	}, nil
}

type sessionJWTClaims struct {
	UserID string `json:"user_id"`
	Kind   string `json:"typ"`
	jwt.RegisteredClaims
}

func (i *JWTIssuer) IssueAccess(identityID uuid.UUID, now time.Time) (ports.IssuedToken, error) {
	return i.issue(identityID, ports.TokenKindAccess, now)
}

func (i *JWTIssuer) IssueRefresh(identityID uuid.UUID, now time.Time) (ports.IssuedToken, error) {
	return i.issue(identityID, ports.TokenKindRefresh, now)
}

func (i *JWTIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *JWTIssuer) issue(identityID uuid.UUID, kind ports.TokenKind, now time.Time) (ports.IssuedToken, error) {
	if identityID == uuid.Nil {
		return ports.IssuedToken{}, errors.New("identity id is required")
	}
	secret, ttl := i.keyFor(kind)
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionJWTClaims{
		UserID: identityID.String(),
		Kind:   string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return ports.IssuedToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	// NumericDate truncates to seconds; report what the token actually says.
	return ports.IssuedToken{Token: signed, ExpiresAt: expiresAt.Truncate(time.Second).UTC()}, nil
}

// Verify checks signature and expiry with the secret of the given kind.
// Failures are domain.ErrTokenExpired or domain.ErrInvalidSignature.
func (i *JWTIssuer) Verify(raw string, kind ports.TokenKind) (ports.TokenClaims, error) {
	secret, _ := i.keyFor(kind)
	parsed, err := jwt.ParseWithClaims(raw, &sessionJWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.nowFn),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ports.TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
		}
		return ports.TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	claims, ok := parsed.Claims.(*sessionJWTClaims)
	if !ok || !parsed.Valid {
		return ports.TokenClaims{}, fmt.Errorf("%w: invalid token claims", domain.ErrInvalidSignature)
	}
	if claims.Kind != string(kind) {
		return ports.TokenClaims{}, fmt.Errorf("%w: unexpected token type %q", domain.ErrInvalidSignature, claims.Kind)
	}
	identityID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return ports.TokenClaims{}, fmt.Errorf("%w: parse user_id: %v", domain.ErrInvalidSignature, err)
	}

	out := ports.TokenClaims{
		IdentityID: identityID,
		Kind:       kind,
		ID:         claims.ID,
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

func (i *JWTIssuer) keyFor(kind ports.TokenKind) ([]byte, time.Duration) {
	if kind == ports.TokenKindRefresh {
		return i.refreshSecret, i.refreshTTL
	}
	return i.accessSecret, i.accessTTL
}
