package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/storetest"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "pharmapos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestSQLiteRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository { return openSQLite(t) })
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := openSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestForeignKeysEnforced(t *testing.T) {
	s := openSQLite(t)
	storetest.Seed(t, s)

	_, err := s.CommitSale(context.Background(), storetest.Sale("sale_ok", storetest.BatchPlenty, 1))
	require.NoError(t, err)

	sale := storetest.Sale("sale_ghost_user", storetest.BatchPlenty, 1)
	sale.UserID = "usr_ghost"
	_, err = s.CommitSale(context.Background(), sale)
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := s.Batches().Get(context.Background(), storetest.BatchPlenty)
	require.NoError(t, err)
	assert.Equal(t, 99, got.Quantity)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}

// Runs against a disposable PostgreSQL database when one is provided.
func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("PHARMAPOS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PHARMAPOS_TEST_DATABASE_URL is not set")
	}

	storetest.Run(t, func(t *testing.T) store.Repository {
		ctx := context.Background()
		s, err := OpenPostgres(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		for _, table := range []string{"purchase_items", "purchases", "sale_items", "sales", "drug_batches", "drugs", "categories", "suppliers", "customers", "settings", "users"} {
			_, _ = s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		}
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}
