package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"github.com/google/uuid"
)

func (s *Service) GetProfile(ctx context.Context, identityID uuid.UUID) (PublicUser, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return PublicUser{}, err
	}
	return toPublicUser(identity), nil
}

// UpdateProfile applies the non-nil fields. A new password is hashed before it
// reaches storage; existing sessions stay valid.
func (s *Service) UpdateProfile(ctx context.Context, identityID uuid.UUID, req UpdateProfileRequest) (PublicUser, error) {
	req.Name = trimmed(req.Name)
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		req.Email = &email
	}
	if err := req.Validate(); err != nil {
		return PublicUser{}, asValidationError(err)
	}

	update := ports.ProfileUpdate{Email: req.Email, Name: req.Name}
	if req.Password != nil {
		passwordHash, err := s.hasher.Hash(ctx, *req.Password)
		if err != nil {
			return PublicUser{}, fmt.Errorf("hash password: %w", err)
		}
		update.PasswordHash = &passwordHash
	}
	if update.Email == nil && update.Name == nil && update.PasswordHash == nil {
		return s.GetProfile(ctx, identityID)
	}

	identity, err := s.identities.UpdateProfile(ctx, identityID, update, s.nowFn())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return PublicUser{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
		return PublicUser{}, err
	}

	changed := make([]string, 0, 3)
	if update.Email != nil {
		changed = append(changed, "email")
	}
	if update.Name != nil {
		changed = append(changed, "name")
	}
	if update.PasswordHash != nil {
		changed = append(changed, "password")
	}
	s.enqueueEvent(ctx, eventTypeProfileUpdated, identity.ID, map[string]any{
		"changed_fields": changed,
	})
	return toPublicUser(identity), nil
}
