package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *catalog.Repository {
	// Use in-memory database for tests
	repo, err := catalog.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test repository: %v", err)
	}

	// Run migrations
	if err := repo.RunMigrations("./migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestGetAllProducts_ReturnsSeededProducts(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.GetAllProducts(context.Background())

	require.NoError(t, err)
	require.Len(t, products, 5) // seed migration inserts 5 products
	assert.Equal(t, "P1", products[0].ID)
}

func TestGetProduct_Found(t *testing.T) {
	repo := setupTestDB(t)

	p, err := repo.GetProduct(context.Background(), "P1")

	require.NoError(t, err)
	assert.Equal(t, int64(150000), p.Price)
	assert.True(t, p.Available)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestGetProduct_Unavailable(t *testing.T) {
	repo := setupTestDB(t)

	p, err := repo.GetProduct(context.Background(), "P5")

	require.NoError(t, err)
	assert.False(t, p.Available)
}

func TestGetProduct_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetProduct(context.Background(), "nope")

	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestGetAllProducts_CancelledContext(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetAllProducts(ctx)
	assert.Error(t, err)
}

func TestGetAllProducts_WithTimeout(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	products, err := repo.GetAllProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 5)
}
