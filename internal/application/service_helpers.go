package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"github.com/google/uuid"
)

const serviceName = "burgerverse-auth"

// normalizeEmail canonicalizes email before persistence/comparison.
// Uniqueness is case-insensitive because every read and write goes through here.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// hashToken stores one-way token fingerprints instead of raw secrets.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// randomDigits returns a zero-padded, uniformly distributed numeric code.
func randomDigits(size int) (string, error) {
	if size <= 0 {
		size = 6
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(size)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", size, n.Int64()), nil
}

func (s *Service) enforceRateLimit(ctx context.Context, key string, threshold int, window time.Duration) error {
	if s.lockouts == nil || threshold <= 0 || window <= 0 {
		return nil
	}
	if strings.TrimSpace(key) == "" {
		return nil
	}

	state, err := s.lockouts.Get(ctx, key)
	if err == nil && state.LockedUntil != nil && state.LockedUntil.After(s.nowFn()) {
		return domain.ErrRateLimited
	}

	now := s.nowFn()
	updated, err := s.lockouts.RecordFailure(ctx, key, now, threshold, window)
	if err != nil {
		logWarn(ctx, "rate-limit state unavailable", "rate_limit", "key", key, "error", err)
		return nil
	}
	if updated.LockedUntil != nil && updated.LockedUntil.After(now) {
		return domain.ErrRateLimited
	}
	return nil
}

// enqueueEvent writes a standalone outbox event. Failures are logged; the
// user-facing operation has already committed.
func (s *Service) enqueueEvent(ctx context.Context, eventType string, identityID uuid.UUID, payload map[string]any) {
	if s.outbox == nil {
		return
	}
	now := s.nowFn()
	payload["user_id"] = identityID.String()
	raw, err := json.Marshal(payload)
	if err != nil {
		logWarn(ctx, "event payload marshal failed", "enqueue_event", "event_type", eventType, "error", err)
		return
	}
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: identityID.String(),
		Payload:      raw,
		OccurredAt:   now,
	}); err != nil {
		logWarn(ctx, "outbox enqueue failed", "enqueue_event", "event_type", eventType, "error", err)
	}
}

func logWarn(ctx context.Context, msg, operation string, attrs ...any) {
	logAt(ctx, slog.LevelWarn, msg, operation, "warning", attrs...)
}

func logAt(ctx context.Context, level slog.Level, msg, operation, outcome string, attrs ...any) {
	base := []any{
		"service", serviceName,
		"module", "application",
		"layer", "application",
		"operation", operation,
		"outcome", outcome,
	}
	slog.Default().Log(ctx, level, msg, append(base, attrs...)...)
}
