package reservation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/internal/products"
	"github.com/angelmondragon/cartsplit-backend/pkg/db"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/dbtest"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
)

var (
	productA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	productB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	productRepo := products.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		DB:     db.NewFromConn(conn),
		Stock:  func(tx *gorm.DB) StockStore { return productRepo.WithTx(tx) },
		Repo:   NewRepository(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	return svc, conn
}

func seedProduct(t *testing.T, conn *gorm.DB, id uuid.UUID, stock int64) {
	t.Helper()
	require.NoError(t, conn.Create(&models.Product{
		ID: id, SellerID: uuid.New(), Title: id.String(), CategoryID: "tea", Price: 1000, Stock: stock, IsActive: true,
	}).Error)
}

func stockOf(t *testing.T, conn *gorm.DB, id uuid.UUID) int64 {
	t.Helper()
	var p models.Product
	require.NoError(t, conn.First(&p, "id = ?", id).Error)
	return p.Stock
}

func TestMergeSumsAndSorts(t *testing.T) {
	t.Parallel()
	merged := Merge([]Request{
		{ProductID: productB, Quantity: 1},
		{ProductID: productA, Quantity: 2},
		{ProductID: productB, Quantity: 3},
	})
	require.Len(t, merged, 2)
	assert.Equal(t, Request{ProductID: productA, Quantity: 2}, merged[0])
	assert.Equal(t, Request{ProductID: productB, Quantity: 4}, merged[1])
}

func TestReserveAndCommit(t *testing.T) {
	ctx := context.Background()
	svc, conn := newTestService(t)
	seedProduct(t, conn, productA, 5)
	seedProduct(t, conn, productB, 2)
	checkoutID := uuid.New()

	rows, err := svc.Reserve(ctx, checkoutID, []Request{{ProductID: productA, Quantity: 3}, {ProductID: productB, Quantity: 2}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), stockOf(t, conn, productA))
	assert.Equal(t, int64(0), stockOf(t, conn, productB))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.Commit(ctx, tx, checkoutID)
	}))
	committed, err := svc.repo.ListByCheckout(ctx, checkoutID, enums.ReservationStatusCommitted)
	require.NoError(t, err)
	assert.Len(t, committed, 2)

	released, err := svc.Compensate(ctx, checkoutID, uuid.New(), "late failure")
	require.NoError(t, err)
	assert.Empty(t, released, "committed reservations are never compensated")
	assert.Equal(t, int64(2), stockOf(t, conn, productA))
}

func TestReserveConflictThenCompensate(t *testing.T) {
	ctx := context.Background()
	svc, conn := newTestService(t)
	seedProduct(t, conn, productA, 5)
	seedProduct(t, conn, productB, 1)
	checkoutID := uuid.New()
	buyerID := uuid.New()

	rows, err := svc.Reserve(ctx, checkoutID, []Request{{ProductID: productA, Quantity: 3}, {ProductID: productB, Quantity: 2}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, ReasonStockConflict, pkgerrors.ReasonOf(err))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), stockOf(t, conn, productA))
	assert.Equal(t, int64(1), stockOf(t, conn, productB))

	released, err := svc.Compensate(ctx, checkoutID, buyerID, ReasonStockConflict)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, productA, released[0].ProductID)
	assert.Equal(t, int64(5), stockOf(t, conn, productA))

	var stored models.InventoryReservation
	require.NoError(t, conn.First(&stored, "id = ?", released[0].ID).Error)
	assert.Equal(t, enums.ReservationStatusReleased, stored.Status)
	require.NotNil(t, stored.ReleasedReason)
	assert.Equal(t, ReasonStockConflict, *stored.ReleasedReason)

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventInventoryCompensated).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, checkoutID, events[0].AggregateID)

	again, err := svc.Compensate(ctx, checkoutID, buyerID, ReasonStockConflict)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, int64(5), stockOf(t, conn, productA))
}
