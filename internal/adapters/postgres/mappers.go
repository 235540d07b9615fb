package postgres

import (
	"errors"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"gorm.io/gorm"
)

func toDomainIdentity(row identityModel) domain.Identity {
	return domain.Identity{
		ID:                 row.ID,
		Email:              row.Email,
		Name:               row.Name,
		PasswordHash:       row.PasswordHash,
		ResetCodeHash:      row.ResetCodeHash,
		ResetCodeExpiresAt: row.ResetCodeExpiresAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toDomainRefreshSession(row refreshTokenModel) domain.RefreshSession {
	return domain.RefreshSession{
		ID:            row.ID,
		TokenHash:     row.TokenHash,
		IdentityID:    row.IdentityID,
		CreatedAt:     row.CreatedAt,
		RotatedAt:     row.RotatedAt,
		RotationCount: row.RotationCount,
		ExpiresAt:     row.ExpiresAt,
	}
}

func toOutboxRecord(row authOutboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID:       row.OutboxID,
		EventType:      row.EventType,
		PartitionKey:   row.PartitionKey,
		Payload:        []byte(row.Payload),
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		LastErrorAt:    row.LastErrorAt,
		FirstSeenAt:    row.FirstSeenAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
