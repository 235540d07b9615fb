package security

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const minBcryptCost = 10

// BcryptHasher implements password hashing via bcrypt on a bounded pool.
// At most `concurrency` hashes run at once so login bursts cannot starve the process.
type BcryptHasher struct {
	cost  int
	slots *semaphore.Weighted
}

// NewBcryptHasher creates a bcrypt-based hasher. Cost is clamped to at least 10.
func NewBcryptHasher(cost, concurrency int) *BcryptHasher {
	if cost < minBcryptCost {
		cost = minBcryptCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BcryptHasher{cost: cost, slots: semaphore.NewWeighted(int64(concurrency))}
}

func (h *BcryptHasher) Cost() int { return h.cost }

func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hashing slot: %w", err)
	}
	defer h.slots.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Compare(ctx context.Context, hash, password string) error {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire hashing slot: %w", err)
	}
	defer h.slots.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
