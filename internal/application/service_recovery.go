package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
)

const (
	resetCodeDigits   = 6
	resetCodeAttempts = 5
	// resetWrongCodeKey counts wrong codes from every client together.
	resetWrongCodeKey = "reset_submit:wrong_code"
)

// RequestPasswordReset issues a reset code when the email belongs to an identity.
// Only a malformed email is reported; every other outcome looks like success.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, meta RequestMeta) error {
	req := PasswordResetRequest{Email: normalizeEmail(email)}
	if err := req.Validate(); err != nil {
		return asValidationError(err)
	}

	if err := s.enforceRateLimit(ctx, "reset:ip:"+meta.IPAddress, s.cfg.ResetRateLimitThreshold, s.cfg.ResetRateLimitWindow); err != nil {
		logAt(ctx, slog.LevelWarn, "password reset request skipped", "request_password_reset", "rate_limited", "ip_address", meta.IPAddress)
		return nil
	}

	identity, err := s.identities.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logAt(ctx, slog.LevelError, "identity lookup failed", "request_password_reset", "failure", "error", err)
		}
		return nil
	}

	now := s.nowFn()
	replacing := identity.HasActiveResetChallenge(now)
	expiresAt := now.Add(s.cfg.ResetCodeTTL)
	var code string
	for attempt := 0; attempt < resetCodeAttempts; attempt++ {
		code, err = randomDigits(resetCodeDigits)
		if err != nil {
			break
		}
		err = s.identities.SetResetChallenge(ctx, identity.ID, hashToken(code), expiresAt, now)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
	}
	if err != nil {
		logAt(ctx, slog.LevelError, "reset challenge not stored", "request_password_reset", "failure", "user_id", identity.ID, "error", err)
		return nil
	}

	s.enqueueEvent(ctx, eventTypePasswordResetRequested, identity.ID, map[string]any{
		"expires_at": expiresAt,
	})

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()
	if err := s.mailer.Send(sendCtx, resetMail(identity, code, s.cfg)); err != nil {
		logAt(ctx, slog.LevelError, "reset code delivery failed", "request_password_reset", "failure", "user_id", identity.ID, "error", err)
		return nil
	}
	logAt(ctx, slog.LevelInfo, "reset code sent", "request_password_reset", "success",
		"user_id", identity.ID,
		"replaced_active_code", replacing,
	)
	return nil
}

// ResetPassword redeems a reset code, replaces the password and ends every
// refresh session of the identity. Submissions are limited per client IP, and
// wrong codes are counted across all clients so a six-digit code cannot be
// enumerated within its lifetime.
func (s *Service) ResetPassword(ctx context.Context, req PasswordResetSubmit, meta RequestMeta) error {
	req.Token = strings.TrimSpace(req.Token)
	if err := req.Validate(); err != nil {
		return asValidationError(err)
	}

	if err := s.enforceRateLimit(ctx, "reset_submit:ip:"+meta.IPAddress, s.cfg.ResetSubmitRateLimitThreshold, s.cfg.ResetSubmitRateLimitWindow); err != nil {
		logAt(ctx, slog.LevelWarn, "password reset submission throttled", "reset_password", "rate_limited",
			"ip_address", meta.IPAddress,
			"user_agent", meta.UserAgent,
		)
		return err
	}
	if s.resetGuessingLocked(ctx) {
		logAt(ctx, slog.LevelWarn, "password reset submission throttled", "reset_password", "rate_limited",
			"reason", "WRONG_CODE_LIMIT",
			"ip_address", meta.IPAddress,
		)
		return domain.ErrRateLimited
	}

	passwordHash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	identityID, err := s.identities.ConsumeResetChallenge(ctx, hashToken(req.Token), passwordHash, s.nowFn())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.recordWrongResetCode(ctx, meta)
			return domain.ErrInvalidOrExpiredCode
		}
		return fmt.Errorf("consume reset challenge: %w", err)
	}

	revoked, err := s.registry.RevokeAllForIdentity(ctx, identityID)
	if err != nil {
		logAt(ctx, slog.LevelError, "sessions not revoked after reset", "reset_password", "failure", "user_id", identityID, "error", err)
	}
	s.enqueueEvent(ctx, eventTypePasswordReset, identityID, map[string]any{
		"revoked_sessions": revoked,
	})
	logAt(ctx, slog.LevelInfo, "password reset", "reset_password", "success", "user_id", identityID, "revoked_sessions", revoked)
	return nil
}

func (s *Service) resetGuessingLocked(ctx context.Context) bool {
	state, err := s.lockouts.Get(ctx, resetWrongCodeKey)
	if err != nil {
		logWarn(ctx, "reset guess counter unavailable", "reset_password", "error", err)
		return false
	}
	return state.LockedUntil != nil && state.LockedUntil.After(s.nowFn())
}

func (s *Service) recordWrongResetCode(ctx context.Context, meta RequestMeta) {
	state, err := s.lockouts.RecordFailure(ctx, resetWrongCodeKey, s.nowFn(), s.cfg.ResetWrongCodeThreshold, s.cfg.ResetWrongCodeWindow)
	if err != nil {
		logWarn(ctx, "reset guess counter unavailable", "reset_password", "error", err)
		return
	}
	logAt(ctx, slog.LevelWarn, "password reset code rejected", "reset_password", "failure",
		"ip_address", meta.IPAddress,
		"user_agent", meta.UserAgent,
		"failed_count", state.FailedCount,
		"locked", state.LockedUntil != nil,
	)
}

func resetMail(identity domain.Identity, code string, cfg Config) ports.MailMessage {
	minutes := int(cfg.ResetCodeTTL.Minutes())
	return ports.MailMessage{
		To:      identity.Email,
		Subject: "Burgerverse password reset",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour password reset code is %s.\nIt expires in %d minutes.\n\nIf you did not ask for a reset you can ignore this email.\n",
			identity.Name, code, minutes,
		),
	}
}
