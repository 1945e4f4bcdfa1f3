package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/products"
	"github.com/angelmondragon/cartsplit-backend/pkg/db"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/dbtest"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

var sweepTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type deadlineHarness struct {
	conn   *gorm.DB
	orders orders.Repository
	job    *paymentDeadlineJob
}

func newDeadlineHarness(t *testing.T) *deadlineHarness {
	t.Helper()
	conn := dbtest.Open(t)
	repo := orders.NewRepository(conn)
	catalog := products.NewRepository(conn)
	jobIface, err := NewPaymentDeadlineJob(PaymentDeadlineJobParams{
		Logger: logger.Nop(),
		DB:     db.NewFromConn(conn),
		Orders: repo,
		Stock:  func(tx *gorm.DB) StockRestorer { return catalog.WithTx(tx) },
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
	})
	require.NoError(t, err)
	job := jobIface.(*paymentDeadlineJob)
	job.now = func() time.Time { return sweepTime }
	return &deadlineHarness{conn: conn, orders: repo, job: job}
}

func (h *deadlineHarness) product(t *testing.T, stock int64) uuid.UUID {
	t.Helper()
	p := models.Product{
		ID: uuid.New(), SellerID: uuid.New(), Title: "Tea", CategoryID: "drinks", Price: 30000, Stock: stock, IsActive: true,
	}
	require.NoError(t, h.conn.Create(&p).Error)
	return p.ID
}

func (h *deadlineHarness) order(t *testing.T, productID uuid.UUID, qty int64, mutate func(*models.Order)) *models.Order {
	t.Helper()
	ctx := context.Background()
	number, err := h.orders.NextOrderNumber(ctx)
	require.NoError(t, err)
	deadline := sweepTime.Add(-time.Minute)
	id := uuid.New()
	o := &models.Order{
		ID:              id,
		OrderNumber:     number,
		CheckoutID:      uuid.New(),
		Version:         1,
		UserID:          uuid.New(),
		SellerID:        uuid.New(),
		Subtotal:        30000 * qty,
		TotalAmount:     30000 * qty,
		Status:          enums.OrderStatusPending,
		PaymentMethod:   enums.PaymentMethodBankTransfer,
		PaymentBucket:   enums.PaymentBucketFailure,
		PaymentDeadline: &deadline,
		ShippingMethod:  enums.ShippingMethodStandard,
		ShippingScope:   enums.ShippingScopeInRegion,
		ShippingStatus:  enums.ShippingStatusUnassigned,
		ShippingAddress: types.Address{Province: "Hà Nội", District: "Ba Đình", Ward: "Kim Mã", Detail: "12 Kim Mã"},
		Items: []models.OrderLineItem{{
			ID: uuid.New(), OrderID: id, ProductID: productID, Title: "Tea", Quantity: qty, UnitPrice: 30000, LineTotal: 30000 * qty,
		}},
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, h.orders.CreateOrder(ctx, o))
	return o
}

func (h *deadlineHarness) stock(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	var p models.Product
	require.NoError(t, h.conn.First(&p, "id = ?", id).Error)
	return p.Stock
}

func TestPaymentDeadlineJobExpiresAndRestocks(t *testing.T) {
	h := newDeadlineHarness(t)
	ctx := context.Background()
	productID := h.product(t, 5)

	lapsed := h.order(t, productID, 2, nil)
	future := sweepTime.Add(time.Hour)
	waiting := h.order(t, productID, 1, func(o *models.Order) { o.PaymentDeadline = &future })
	paid := h.order(t, productID, 1, func(o *models.Order) { o.PaymentBucket = enums.PaymentBucketSuccess })

	require.NoError(t, h.job.Run(ctx))

	got, err := h.orders.FindByID(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.True(t, got.PaymentExpired)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, int64(7), h.stock(t, productID))

	for _, id := range []uuid.UUID{waiting.ID, paid.ID} {
		untouched, err := h.orders.FindByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, untouched.PaymentExpired)
		assert.Equal(t, enums.OrderStatusPending, untouched.Status)
	}

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Where("event_type = ?", enums.EventOrderPaymentExpired).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, lapsed.ID, events[0].AggregateID)
	assert.Contains(t, string(events[0].Payload), `"restocked_units":2`)

	// a second sweep finds nothing left to expire
	require.NoError(t, h.job.Run(ctx))
	assert.Equal(t, int64(7), h.stock(t, productID))
}

func TestPaymentDeadlineJobIsolatesFailures(t *testing.T) {
	h := newDeadlineHarness(t)
	ctx := context.Background()
	productID := h.product(t, 0)

	broken := h.order(t, uuid.New(), 1, nil)
	healthy := h.order(t, productID, 3, nil)

	err := h.job.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken.ID.String())

	rolledBack, err := h.orders.FindByID(ctx, broken.ID)
	require.NoError(t, err)
	assert.False(t, rolledBack.PaymentExpired)
	assert.Equal(t, int64(1), rolledBack.Version)

	expired, err := h.orders.FindByID(ctx, healthy.ID)
	require.NoError(t, err)
	assert.True(t, expired.PaymentExpired)
	assert.Equal(t, int64(3), h.stock(t, productID))
}

func TestNewPaymentDeadlineJobRequiresDeps(t *testing.T) {
	_, err := NewPaymentDeadlineJob(PaymentDeadlineJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
