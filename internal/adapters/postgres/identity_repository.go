package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type identityRepository struct {
	db *gorm.DB
}

func (r *identityRepository) CreateWithOutboxTx(ctx context.Context, params ports.CreateIdentityParams, outboxEvent ports.OutboxEvent) (domain.Identity, error) {
	var result domain.Identity
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := identityModel{
			Email:        params.Email,
			Name:         params.Name,
			PasswordHash: params.PasswordHash,
			CreatedAt:    params.RegisteredAtUTC,
			UpdatedAt:    params.RegisteredAtUTC,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}

		// The id is only known after insert; stamp it into the event.
		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["user_id"] = rec.ID.String()
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}

		outbox := authOutboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: rec.ID.String(),
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
			FirstSeenAt:  outboxEvent.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainIdentity(rec)
		return nil
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return result, nil
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (domain.Identity, error) {
	var rec identityModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		return domain.Identity{}, notFoundOr(err)
	}
	return toDomainIdentity(rec), nil
}

func (r *identityRepository) GetByID(ctx context.Context, identityID uuid.UUID) (domain.Identity, error) {
	var rec identityModel
	if err := r.db.WithContext(ctx).Where("id = ?", identityID).Take(&rec).Error; err != nil {
		return domain.Identity{}, notFoundOr(err)
	}
	return toDomainIdentity(rec), nil
}

func (r *identityRepository) UpdateProfile(ctx context.Context, identityID uuid.UUID, update ports.ProfileUpdate, at time.Time) (domain.Identity, error) {
	changes := map[string]any{"updated_at": at}
	if update.Email != nil {
		changes["email"] = *update.Email
	}
	if update.Name != nil {
		changes["name"] = *update.Name
	}
	if update.PasswordHash != nil {
		changes["password_hash"] = *update.PasswordHash
	}

	var rec identityModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&identityModel{}).Where("id = ?", identityID).Updates(changes)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return domain.ErrConflict
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return notFoundOr(tx.Where("id = ?", identityID).Take(&rec).Error)
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return toDomainIdentity(rec), nil
}

// SetResetChallenge stores a new reset code for the identity, replacing any
// previous one. Expired codes held by other identities are released first so
// only an active collision reports ErrConflict.
func (r *identityRepository) SetResetChallenge(ctx context.Context, identityID uuid.UUID, codeHash string, expiresAt, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&identityModel{}).
			Where("reset_code_hash = ?", codeHash).
			Where("reset_code_expires_at <= ?", at).
			Updates(map[string]any{
				"reset_code_hash":       nil,
				"reset_code_expires_at": nil,
			}).Error; err != nil {
			return err
		}

		res := tx.Model(&identityModel{}).
			Where("id = ?", identityID).
			Updates(map[string]any{
				"reset_code_hash":       codeHash,
				"reset_code_expires_at": expiresAt,
				"updated_at":            at,
			})
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return domain.ErrConflict
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *identityRepository) ConsumeResetChallenge(ctx context.Context, codeHash, newPasswordHash string, at time.Time) (uuid.UUID, error) {
	var rec identityModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reset_code_hash = ?", codeHash).
			Where("reset_code_expires_at > ?", at).
			Take(&rec).Error; err != nil {
			return notFoundOr(err)
		}
		res := tx.Model(&identityModel{}).
			Where("id = ?", rec.ID).
			Where("reset_code_hash = ?", codeHash).
			Updates(map[string]any{
				"password_hash":         newPasswordHash,
				"reset_code_hash":       nil,
				"reset_code_expires_at": nil,
				"updated_at":            at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: reset challenge consumed concurrently", domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}
