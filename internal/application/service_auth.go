package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"github.com/google/uuid"
)

// Register creates an identity and opens its first session.
// The email is normalized first, so Ann@Example.com and ann@example.com collide.
func (s *Service) Register(ctx context.Context, req RegisterRequest, meta RequestMeta) (SessionResult, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return SessionResult{}, asValidationError(err)
	}

	if err := s.enforceRateLimit(ctx, "register:ip:"+meta.IPAddress, s.cfg.RegisterRateLimitThreshold, s.cfg.RegisterRateLimitWindow); err != nil {
		return SessionResult{}, err
	}

	passwordHash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return SessionResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"user_id":       nil,
		"email":         req.Email,
		"name":          req.Name,
		"registered_at": now,
	})
	identity, err := s.identities.CreateWithOutboxTx(ctx, ports.CreateIdentityParams{
		Email:           req.Email,
		Name:            req.Name,
		PasswordHash:    passwordHash,
		RegisteredAtUTC: now,
	}, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeIdentityRegistered,
		PartitionKey: req.Email,
		Payload:      payload,
		OccurredAt:   now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return SessionResult{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
		return SessionResult{}, fmt.Errorf("create identity: %w", err)
	}

	result, err := s.openSession(ctx, identity)
	if err != nil {
		return SessionResult{}, err
	}
	logAt(ctx, slog.LevelInfo, "identity registered", "register", "success", "user_id", identity.ID)
	return result, nil
}

// Login verifies credentials. Unknown email and wrong password both return
// ErrInvalidCredentials after the same amount of hashing work.
func (s *Service) Login(ctx context.Context, req LoginRequest, meta RequestMeta) (SessionResult, error) {
	req.Email = normalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		return SessionResult{}, asValidationError(err)
	}

	lockKey := "login:" + req.Email
	lockState, err := s.lockouts.Get(ctx, lockKey)
	if err == nil && lockState.LockedUntil != nil && lockState.LockedUntil.After(s.nowFn()) {
		return SessionResult{}, domain.ErrAccountLocked
	}

	identity, err := s.identities.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return SessionResult{}, fmt.Errorf("load identity: %w", err)
		}
		s.burnPasswordCheck(ctx, req.Password)
		s.recordLoginFailure(ctx, lockKey, meta, "UNKNOWN_EMAIL")
		return SessionResult{}, domain.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(ctx, identity.PasswordHash, req.Password); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return SessionResult{}, ctxErr
		}
		s.recordLoginFailure(ctx, lockKey, meta, "INVALID_PASSWORD")
		return SessionResult{}, domain.ErrInvalidCredentials
	}

	_ = s.lockouts.Clear(ctx, lockKey)
	return s.openSession(ctx, identity)
}

// Refresh rotates a refresh token. The presented value stops working as soon
// as this returns; of two concurrent calls with the same value one fails.
func (s *Service) Refresh(ctx context.Context, presented string) (SessionResult, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return SessionResult{}, domain.ErrMissingToken
	}

	claims, err := s.tokens.Verify(presented, ports.TokenKindRefresh)
	if err != nil {
		logAt(ctx, slog.LevelDebug, "refresh token rejected", "refresh", "failure", "reason", err.Error())
		return SessionResult{}, domain.ErrInvalidToken
	}

	oldHash := hashToken(presented)
	record, err := s.registry.FindByToken(ctx, oldHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SessionResult{}, domain.ErrInvalidToken
		}
		return SessionResult{}, fmt.Errorf("find refresh token: %w", err)
	}
	now := s.nowFn()
	if record.IdentityID != claims.IdentityID || record.State(now) == domain.SessionExpired {
		return SessionResult{}, domain.ErrInvalidToken
	}

	access, err := s.tokens.IssueAccess(record.IdentityID, now)
	if err != nil {
		return SessionResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(record.IdentityID, now)
	if err != nil {
		return SessionResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.registry.Rotate(ctx, oldHash, hashToken(refresh.Token), refresh.ExpiresAt, now); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SessionResult{}, domain.ErrInvalidToken
		}
		return SessionResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return SessionResult{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Logout revokes the presented refresh token if the registry knows it.
// It always succeeds so callers learn nothing about the token.
func (s *Service) Logout(ctx context.Context, presented string) error {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil
	}
	if err := s.registry.Revoke(ctx, hashToken(presented)); err != nil {
		logAt(ctx, slog.LevelError, "refresh token revoke failed", "logout", "failure", "error", err)
	}
	return nil
}

// openSession issues an access/refresh pair and records the refresh token.
func (s *Service) openSession(ctx context.Context, identity domain.Identity) (SessionResult, error) {
	now := s.nowFn()
	access, err := s.tokens.IssueAccess(identity.ID, now)
	if err != nil {
		return SessionResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(identity.ID, now)
	if err != nil {
		return SessionResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.registry.Persist(ctx, domain.RefreshSession{
		ID:         uuid.New(),
		TokenHash:  hashToken(refresh.Token),
		IdentityID: identity.ID,
		CreatedAt:  now,
		ExpiresAt:  refresh.ExpiresAt,
	}); err != nil {
		return SessionResult{}, fmt.Errorf("persist refresh token: %w", err)
	}

	user := toPublicUser(identity)
	return SessionResult{
		User:             &user,
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, lockKey string, meta RequestMeta, reason string) {
	state, err := s.lockouts.RecordFailure(ctx, lockKey, s.nowFn(), s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
	if err != nil {
		logWarn(ctx, "lockout state unavailable", "record_login_failure", "error", err)
		return
	}
	logAt(ctx, slog.LevelWarn, "login failed", "login", "failure",
		"reason", reason,
		"ip_address", meta.IPAddress,
		"user_agent", meta.UserAgent,
		"failed_count", state.FailedCount,
		"locked", state.LockedUntil != nil,
	)
}
