package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasherClampsCost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, NewBcryptHasher(4, 1).Cost())
	assert.Equal(t, 12, NewBcryptHasher(12, 1).Cost())
}

func TestBcryptHasherHashAndCompare(t *testing.T) {
	t.Parallel()

	hasher := NewBcryptHasher(10, 2)
	hash, err := hasher.Hash(context.Background(), "burger-lover")
	require.NoError(t, err)
	assert.NotEqual(t, "burger-lover", hash)

	require.NoError(t, hasher.Compare(context.Background(), hash, "burger-lover"))
	require.Error(t, hasher.Compare(context.Background(), hash, "wrong"))
}

func TestBcryptHasherHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	hasher := NewBcryptHasher(10, 1)
	require.NoError(t, hasher.slots.Acquire(context.Background(), 1))
	defer hasher.slots.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := hasher.Hash(ctx, "burger-lover")
	require.ErrorIs(t, err, context.Canceled)
}
