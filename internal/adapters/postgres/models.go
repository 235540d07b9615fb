package postgres

import (
	"time"

	"github.com/google/uuid"
)

type identityModel struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email              string     `gorm:"column:email"`
	Name               string     `gorm:"column:name"`
	PasswordHash       string     `gorm:"column:password_hash"`
	ResetCodeHash      *string    `gorm:"column:reset_code_hash"`
	ResetCodeExpiresAt *time.Time `gorm:"column:reset_code_expires_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (identityModel) TableName() string { return "identities" }

type refreshTokenModel struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TokenHash     string     `gorm:"column:token_hash"`
	IdentityID    uuid.UUID  `gorm:"column:identity_id"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	RotatedAt     *time.Time `gorm:"column:rotated_at"`
	RotationCount int        `gorm:"column:rotation_count"`
	ExpiresAt     time.Time  `gorm:"column:expires_at"`
}

func (refreshTokenModel) TableName() string { return "refresh_tokens" }

type authOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (authOutboxModel) TableName() string { return "auth_outbox" }
