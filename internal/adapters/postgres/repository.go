package postgres

import (
	"github.com/GertsDev/burgerverse-backend/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Identities    ports.IdentityRepository
	RefreshTokens ports.RefreshTokenRegistry
	Outbox        ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Identities:    &identityRepository{db: db},
		RefreshTokens: &refreshTokenRepository{db: db},
		Outbox:        &outboxRepository{db: db},
	}
}
