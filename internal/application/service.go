package application

import (
	"context"
	"sync"
	"time"

	"github.com/GertsDev/burgerverse-backend/internal/ports"
)

// Service is the session manager. Every credential and refresh-token
// mutation goes through it.
type Service struct {
	cfg        Config
	identities ports.IdentityRepository
	registry   ports.RefreshTokenRegistry
	outbox     ports.OutboxRepository
	lockouts   ports.LockoutStore
	hasher     ports.PasswordHasher
	tokens     ports.TokenIssuer
	mailer     ports.Mailer
	nowFn      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type Dependencies struct {
	Config     Config
	Identities ports.IdentityRepository
	Registry   ports.RefreshTokenRegistry
	Outbox     ports.OutboxRepository
	Lockouts   ports.LockoutStore
	Hasher     ports.PasswordHasher
	Tokens     ports.TokenIssuer
	Mailer     ports.Mailer
	// Now overrides the clock; defaults to UTC wall time.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ResetCodeTTL <= 0 {
		cfg.ResetCodeTTL = time.Hour
	}
	if cfg.ResetSubmitRateLimitThreshold <= 0 || cfg.ResetSubmitRateLimitWindow <= 0 {
		cfg.ResetSubmitRateLimitThreshold = 10
		cfg.ResetSubmitRateLimitWindow = 15 * time.Minute
	}
	if cfg.ResetWrongCodeThreshold <= 0 || cfg.ResetWrongCodeWindow <= 0 {
		cfg.ResetWrongCodeThreshold = 100
		cfg.ResetWrongCodeWindow = time.Hour
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:        cfg,
		identities: deps.Identities,
		registry:   deps.Registry,
		outbox:     deps.Outbox,
		lockouts:   deps.Lockouts,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		mailer:     deps.Mailer,
		nowFn:      nowFn,
	}
}

// burnPasswordCheck runs one comparison against a throwaway hash so that
// unknown emails cost the same as wrong passwords.
func (s *Service) burnPasswordCheck(ctx context.Context, password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(ctx, "burgerverse-timing-equalizer")
		if err == nil {
			s.dummyHash = hash
		}
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(ctx, s.dummyHash, password)
	}
}
