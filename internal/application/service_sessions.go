package application

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ListSessions returns the live refresh sessions of an identity, newest first.
func (s *Service) ListSessions(ctx context.Context, identityID uuid.UUID) ([]SessionItem, error) {
	sessions, err := s.registry.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	result := make([]SessionItem, 0, len(sessions))
	for _, it := range sessions {
		result = append(result, toSessionItem(it, now))
	}
	return result, nil
}

// LogoutAll revokes every refresh session of the identity.
func (s *Service) LogoutAll(ctx context.Context, identityID uuid.UUID) (int, error) {
	revoked, err := s.registry.RevokeAllForIdentity(ctx, identityID)
	if err != nil {
		return 0, err
	}
	logAt(ctx, slog.LevelInfo, "sessions revoked", "logout_all", "success", "user_id", identityID, "revoked_sessions", revoked)
	return revoked, nil
}

// PruneExpiredSessions deletes up to batchSize records that expired before now.
func (s *Service) PruneExpiredSessions(ctx context.Context, batchSize int) (int, error) {
	return s.registry.DeleteExpired(ctx, s.nowFn(), batchSize)
}
