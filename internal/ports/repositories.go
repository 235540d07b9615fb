package ports

import (
	"context"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/google/uuid"
)

// CreateIdentityParams captures atomic identity-creation inputs.
type CreateIdentityParams struct {
	Email           string
	Name            string
	PasswordHash    string
	RegisteredAtUTC time.Time
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Email        *string
	Name         *string
	PasswordHash *string
}

// IdentityRepository is the credential store.
// The transactional create method exists to enforce identity+outbox consistency.
type IdentityRepository interface {
	CreateWithOutboxTx(ctx context.Context, params CreateIdentityParams, outboxEvent OutboxEvent) (domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (domain.Identity, error)
	GetByID(ctx context.Context, identityID uuid.UUID) (domain.Identity, error)
	UpdateProfile(ctx context.Context, identityID uuid.UUID, update ProfileUpdate, at time.Time) (domain.Identity, error)
	SetResetChallenge(ctx context.Context, identityID uuid.UUID, codeHash string, expiresAt, at time.Time) error
	// ConsumeResetChallenge swaps the password of the identity holding an
	// unexpired codeHash and clears the challenge. No match is ErrNotFound.
	ConsumeResetChallenge(ctx context.Context, codeHash, newPasswordHash string, at time.Time) (uuid.UUID, error)
}

// RefreshTokenRegistry is the server-side allow-list of refresh tokens.
// Only token fingerprints are stored.
type RefreshTokenRegistry interface {
	Persist(ctx context.Context, session domain.RefreshSession) error
	FindByToken(ctx context.Context, tokenHash string) (domain.RefreshSession, error)
	// Rotate replaces oldHash with newHash on the same record. Zero matches
	// is ErrNotFound and nothing is inserted.
	Rotate(ctx context.Context, oldHash, newHash string, newExpiresAt, at time.Time) error
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID) (int, error)
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.RefreshSession, error)
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls publish-retry workflow for domain events.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
