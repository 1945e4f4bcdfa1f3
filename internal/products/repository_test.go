package products

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/dbtest"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
)

func seedProduct(t *testing.T, repo *Repository, stock int64) models.Product {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		SellerID:   uuid.New(),
		Title:      "Cà phê sữa đá",
		CategoryID: "drinks",
		Price:      45000,
		Stock:      stock,
		IsActive:   true,
	}
	require.NoError(t, repo.db.Create(&product).Error)
	return product
}

func TestFindByIDsSkipsMissingAndInactive(t *testing.T) {
	t.Parallel()

	repo := NewRepository(dbtest.Open(t))
	active := seedProduct(t, repo, 3)
	inactive := seedProduct(t, repo, 3)
	require.NoError(t, repo.db.Model(&models.Product{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

	found, err := repo.FindByIDs(context.Background(), []uuid.UUID{active.ID, inactive.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, active.Title, found[active.ID].Title)
}

func TestDecrementStockIsConditional(t *testing.T) {
	t.Parallel()

	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	product := seedProduct(t, repo, 5)

	ok, err := repo.DecrementStock(ctx, product.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementStock(ctx, product.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok, "second decrement must be refused")

	var stored models.Product
	require.NoError(t, repo.db.First(&stored, "id = ?", product.ID).Error)
	assert.Equal(t, int64(2), stored.Stock)

	require.NoError(t, repo.IncrementStock(ctx, product.ID, 3))
	require.NoError(t, repo.db.First(&stored, "id = ?", product.ID).Error)
	assert.Equal(t, int64(5), stored.Stock)
}

func TestDecrementStockNeverGoesNegativeUnderContention(t *testing.T) {
	t.Parallel()

	repo := NewRepository(dbtest.Open(t))
	product := seedProduct(t, repo, 10)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.DecrementStock(context.Background(), product.ID, 3)
			if err == nil && ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	var stored models.Product
	require.NoError(t, repo.db.First(&stored, "id = ?", product.ID).Error)
	assert.Equal(t, int64(3), wins)
	assert.Equal(t, int64(1), stored.Stock)
}

func TestIncrementStockUnknownProduct(t *testing.T) {
	t.Parallel()

	repo := NewRepository(dbtest.Open(t))
	assert.Error(t, repo.IncrementStock(context.Background(), uuid.New(), 1))
}
