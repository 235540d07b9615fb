package postgres

import (
	"context"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type refreshTokenRepository struct {
	db *gorm.DB
}

func (r *refreshTokenRepository) Persist(ctx context.Context, session domain.RefreshSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	rec := refreshTokenModel{
		ID:            session.ID,
		TokenHash:     session.TokenHash,
		IdentityID:    session.IdentityID,
		CreatedAt:     session.CreatedAt,
		RotatedAt:     session.RotatedAt,
		RotationCount: session.RotationCount,
		ExpiresAt:     session.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateToken
		}
		return err
	}
	return nil
}

func (r *refreshTokenRepository) FindByToken(ctx context.Context, tokenHash string) (domain.RefreshSession, error) {
	var rec refreshTokenModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&rec).Error; err != nil {
		return domain.RefreshSession{}, notFoundOr(err)
	}
	return toDomainRefreshSession(rec), nil
}

// Rotate is a compare-and-swap on token_hash. Of two concurrent rotations of
// the same token exactly one matches the row; the other sees zero rows.
func (r *refreshTokenRepository) Rotate(ctx context.Context, oldHash, newHash string, newExpiresAt, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&refreshTokenModel{}).
		Where("token_hash = ?", oldHash).
		Where("expires_at > ?", at).
		Updates(map[string]any{
			"token_hash":     newHash,
			"expires_at":     newExpiresAt,
			"rotated_at":     at,
			"rotation_count": gorm.Expr("rotation_count + 1"),
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return domain.ErrDuplicateToken
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		Delete(&refreshTokenModel{}).Error
}

func (r *refreshTokenRepository) RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID) (int, error) {
	res := r.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Delete(&refreshTokenModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *refreshTokenRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]domain.RefreshSession, error) {
	var rows []refreshTokenModel
	if err := r.db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.RefreshSession, 0, len(rows))
	for _, item := range rows {
		result = append(result, toDomainRefreshSession(item))
	}
	return result, nil
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	db := r.db.WithContext(ctx)
	expired := db.Model(&refreshTokenModel{}).
		Select("id").
		Where("expires_at <= ?", before).
		Order("expires_at ASC").
		Limit(limit)
	res := db.Where("id IN (?)", expired).Delete(&refreshTokenModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
