package application

import (
	"context"
	"strings"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
)

// Authorize resolves an Authorization header to a principal. It does no I/O.
func (s *Service) Authorize(ctx context.Context, header string) (Principal, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Principal{}, domain.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return Principal{}, domain.ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, domain.ErrMalformedHeader
	}
	return s.ValidateAccessToken(ctx, token)
}

// ValidateAccessToken checks a bare access token.
func (s *Service) ValidateAccessToken(_ context.Context, token string) (Principal, error) {
	if strings.TrimSpace(token) == "" {
		return Principal{}, domain.ErrMissingToken
	}
	claims, err := s.tokens.Verify(token, ports.TokenKindAccess)
	if err != nil {
		return Principal{}, domain.ErrInvalidToken
	}
	return Principal{IdentityID: claims.IdentityID, ExpiresAt: claims.ExpiresAt}, nil
}
