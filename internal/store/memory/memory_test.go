package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/storetest"
)

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository { return New() })
}

func TestNewSeeded(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	admin, err := s.FindUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(DefaultAdminPassword)))

	batches, err := s.BatchesForDrug(ctx, "drg_paracetamol")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 240, batches[0].Quantity)

	threshold, err := s.Settings().Get(ctx, "low_stock_threshold")
	require.NoError(t, err)
	assert.Equal(t, "10", threshold.Value)
}

func TestSeedPasswordFromEnv(t *testing.T) {
	t.Setenv("SEED_CASHIER_PASSWORD", "counter-pass-1")
	s := NewSeeded()

	cashier, err := s.FindUserByUsername(context.Background(), "cashier")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(cashier.PasswordHash), []byte("counter-pass-1")))
}
