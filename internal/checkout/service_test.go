package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/internal/cart"
	"github.com/angelmondragon/cartsplit-backend/internal/checkout/helpers"
	"github.com/angelmondragon/cartsplit-backend/internal/checkout/reservation"
	"github.com/angelmondragon/cartsplit-backend/internal/discounts"
	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/products"
	"github.com/angelmondragon/cartsplit-backend/internal/shipping"
	"github.com/angelmondragon/cartsplit-backend/internal/shops"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/db"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/dbtest"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

var (
	sellerA   = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	sellerB   = uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
	productA  = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	productB  = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	fixedTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
)

type staleReader struct {
	inner productReader
}

// FindByIDs reports plenty of stock so only the conditional decrement can fail.
func (s staleReader) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	rows, err := s.inner.FindByIDs(ctx, ids)
	for id, p := range rows {
		p.Stock = 1000
		rows[id] = p
	}
	return rows, err
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	vouchers *discounts.Repository
	carts    *cart.Repository
}

func newFixture(t *testing.T, wrap func(productReader) productReader) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)
	productRepo := products.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	voucherRepo := discounts.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	inventory, err := reservation.NewService(reservation.ServiceParams{
		DB:     client,
		Stock:  func(tx *gorm.DB) reservation.StockStore { return productRepo.WithTx(tx) },
		Repo:   reservation.NewRepository(conn),
		Outbox: emitter,
	})
	require.NoError(t, err)

	var reader productReader = productRepo
	if wrap != nil {
		reader = wrap(reader)
	}
	svc, err := NewService(ServiceParams{
		DB:        client,
		Products:  reader,
		Cart:      func(tx *gorm.DB) CartStore { return cartRepo.WithTx(tx) },
		Vouchers:  func(tx *gorm.DB) VoucherStore { return voucherRepo.WithTx(tx) },
		Shops:     shops.NewRepository(conn),
		Shipping:  shipping.NewCalculator(testShippingConfig()),
		Inventory: inventory,
		Orders:    orders.NewRepository(conn),
		Outbox:    emitter,
		Now:       func() time.Time { return fixedTime },
	})
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, vouchers: voucherRepo, carts: cartRepo}
}

func testShippingConfig() config.ShippingConfig {
	return config.ShippingConfig{
		StandardInRegion:  20000,
		StandardOutRegion: 35000,
		ExpressInRegion:   35000,
		ExpressOutRegion:  55000,
		RegionThresholdKm: 30,
		RushBase:          25000,
		RushIncludedKm:    2,
		RushPerKm:         5000,
		RushMinKm:         1,
		RushMaxKm:         30,
		RushFallbackKm:    5,
	}
}

func hanoi() types.Address {
	return types.Address{Province: "Hà Nội", District: "Ba Đình", Ward: "Kim Mã", Detail: "1 Kim Mã"}
}

func (f *fixture) seedSeller(t *testing.T, sellerID uuid.UUID) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.Shop{
		ID: uuid.New(), SellerID: sellerID, Name: "shop", Address: hanoi(),
	}).Error)
}

func (f *fixture) seedProduct(t *testing.T, id, sellerID uuid.UUID, price, stock int64) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.Product{
		ID: id, SellerID: sellerID, Title: "p-" + id.String()[len(id.String())-2:], CategoryID: "tea",
		Price: price, Stock: stock, IsActive: true,
	}).Error)
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.First(&p, "id = ?", id).Error)
	return p.Stock
}

func (f *fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func twoSellerFixture(t *testing.T, wrap func(productReader) productReader) *fixture {
	f := newFixture(t, wrap)
	f.seedSeller(t, sellerA)
	f.seedSeller(t, sellerB)
	f.seedProduct(t, productA, sellerA, 100000, 5)
	f.seedProduct(t, productB, sellerB, 50000, 4)
	return f
}

func baseInput(buyer uuid.UUID) Input {
	return Input{
		BuyerID:        buyer,
		Lines:          []helpers.Line{{ProductID: productA, Quantity: 1}, {ProductID: productB, Quantity: 2}},
		PaymentMethod:  enums.PaymentMethodBankTransfer,
		ShippingMethod: enums.ShippingMethodStandard,
		Address:        hanoi(),
	}
}

func TestExecuteSetsDeadlineForCashOnDelivery(t *testing.T) {
	ctx := context.Background()
	f := twoSellerFixture(t, nil)
	input := baseInput(uuid.New())
	input.PaymentMethod = enums.PaymentMethodCOD

	result, err := f.svc.Execute(ctx, input)
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
	for _, order := range result.Orders {
		require.NotNil(t, order.PaymentDeadline)
		assert.True(t, order.PaymentDeadline.Equal(fixedTime.Add(24*time.Hour)))
	}
}

func TestExecuteSplitsCartPerSeller(t *testing.T) {
	ctx := context.Background()
	f := twoSellerFixture(t, nil)
	buyer := uuid.New()
	require.NoError(t, f.carts.Upsert(ctx, buyer, productA, 1))
	require.NoError(t, f.carts.Upsert(ctx, buyer, productB, 2))

	input := baseInput(buyer)
	input.Lines = nil
	input.FromCart = true
	result, err := f.svc.Execute(ctx, input)
	require.NoError(t, err)

	require.Len(t, result.Orders, 2)
	for _, order := range result.Orders {
		assert.Equal(t, int64(100000), order.Subtotal)
		assert.Equal(t, int64(20000), order.ShippingFee)
		assert.Equal(t, int64(120000), order.TotalAmount)
		assert.Equal(t, enums.ShippingScopeInRegion, order.ShippingScope)
		assert.Equal(t, enums.OrderStatusPending, order.Status)
		assert.Equal(t, enums.ShippingStatusUnassigned, order.ShippingStatus)
		require.NotNil(t, order.PaymentDeadline)
		assert.True(t, order.PaymentDeadline.Equal(fixedTime.Add(24*time.Hour)))
		assert.Equal(t, result.CheckoutID, order.CheckoutID)
	}
	assert.Equal(t, int64(40000), result.Shipping.TotalFee)
	assert.Nil(t, result.Discount)

	assert.Equal(t, int64(4), f.stock(t, productA))
	assert.Equal(t, int64(2), f.stock(t, productB))
	assert.Equal(t, int64(2), f.countEvents(t, enums.EventOrderCreated))

	remaining, err := f.carts.ListByUser(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	var committed int64
	require.NoError(t, f.conn.Model(&models.InventoryReservation{}).
		Where("checkout_id = ? AND status = ?", result.CheckoutID, enums.ReservationStatusCommitted).
		Count(&committed).Error)
	assert.Equal(t, int64(2), committed)
}

func TestExecuteBuyNowLeavesCartAlone(t *testing.T) {
	ctx := context.Background()
	f := twoSellerFixture(t, nil)
	buyer := uuid.New()
	require.NoError(t, f.carts.Upsert(ctx, buyer, productA, 3))

	_, err := f.svc.Execute(ctx, baseInput(buyer))
	require.NoError(t, err)

	remaining, err := f.carts.ListByUser(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestExecuteAllocatesVoucherAndConservesMoney(t *testing.T) {
	ctx := context.Background()
	f := twoSellerFixture(t, nil)
	limit := int64(5)
	capAmount := int64(20000)
	require.NoError(t, f.vouchers.Create(ctx, &models.Voucher{
		Code: "tet10", Kind: enums.VoucherKindPercentage, Value: decimal.NewFromInt(10),
		Cap: &capAmount, MinEligibleTotal: 50000, Scope: enums.VoucherScopeGlobal,
		Target: enums.VoucherTargetAll, UsageLimit: &limit, Active: true,
	}))

	input := baseInput(uuid.New())
	input.DiscountCode = " tet10 "
	result, err := f.svc.Execute(ctx, input)
	require.NoError(t, err)

	require.NotNil(t, result.Discount)
	assert.Equal(t, int64(20000), result.Discount.Total)
	assert.Equal(t, "TET10", result.Discount.Code)

	var totals, discountsSum, subtotals, fees int64
	for _, order := range result.Orders {
		totals += order.TotalAmount
		discountsSum += order.DiscountAmount
		subtotals += order.Subtotal
		fees += order.ShippingFee
		require.NotNil(t, order.DiscountCode)
		assert.LessOrEqual(t, order.DiscountAmount, order.Subtotal+order.ShippingFee)
	}
	assert.Equal(t, int64(20000), discountsSum)
	assert.Equal(t, subtotals+fees, totals+discountsSum)

	voucher, err := f.vouchers.FindByCode(ctx, "TET10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), voucher.UsedCount)
}

func TestExecuteRejectsVoucherBeforeTouchingStock(t *testing.T) {
	ctx := context.Background()
	f := twoSellerFixture(t, nil)
	require.NoError(t, f.vouchers.Create(ctx, &models.Voucher{
		Code: "BIG", Kind: enums.VoucherKindFixed, Value: decimal.NewFromInt(10000),
		MinEligibleTotal: 1000000, Scope: enums.VoucherScopeGlobal, Target: enums.VoucherTargetAll, Active: true,
	}))

	input := baseInput(uuid.New())
	input.DiscountCode = "big"
	_, err := f.svc.Execute(ctx, input)
	require.Error(t, err)
	assert.Equal(t, discounts.ReasonBelowMinimum, pkgerrors.ReasonOf(err))
	assert.Equal(t, int64(5), f.stock(t, productA))
	assert.Equal(t, int64(4), f.stock(t, productB))
}

func TestExecuteCompensatesOnStockConflict(t *testing.T) {
	ctx := context.Background()
	f := twoSellerFixture(t, func(inner productReader) productReader { return staleReader{inner: inner} })

	input := baseInput(uuid.New())
	input.Lines = []helpers.Line{{ProductID: productA, Quantity: 2}, {ProductID: productB, Quantity: 9}}
	_, err := f.svc.Execute(ctx, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, reservation.ReasonStockConflict, pkgerrors.ReasonOf(err))

	assert.Equal(t, int64(5), f.stock(t, productA), "product A decrement must be returned")
	assert.Equal(t, int64(4), f.stock(t, productB))
	assert.Equal(t, int64(1), f.countEvents(t, enums.EventInventoryCompensated))
	assert.Equal(t, int64(0), f.countEvents(t, enums.EventOrderCreated))

	var orderCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)
}

func TestExecuteCompensatesWhenSellerHasNoShop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedSeller(t, sellerA)
	f.seedProduct(t, productA, sellerA, 100000, 5)
	f.seedProduct(t, productB, sellerB, 50000, 4)

	_, err := f.svc.Execute(ctx, baseInput(uuid.New()))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, int64(5), f.stock(t, productA))
	assert.Equal(t, int64(4), f.stock(t, productB))
}

func TestExecuteValidatesInput(t *testing.T) {
	ctx := context.Background()
	f := twoSellerFixture(t, nil)

	cases := map[string]func(*Input){
		"payment method":  func(in *Input) { in.PaymentMethod = "crypto" },
		"shipping method": func(in *Input) { in.ShippingMethod = "drone" },
		"address":         func(in *Input) { in.Address.Ward = "" },
		"empty":           func(in *Input) { in.Lines = nil },
		"quantity":        func(in *Input) { in.Lines[0].Quantity = 0 },
		"insufficient":    func(in *Input) { in.Lines[1].Quantity = 5 },
	}
	for name, mutate := range cases {
		input := baseInput(uuid.New())
		mutate(&input)
		_, err := f.svc.Execute(ctx, input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), name)
	}

	input := baseInput(uuid.New())
	input.Lines = []helpers.Line{{ProductID: uuid.New(), Quantity: 1}}
	_, err := f.svc.Execute(ctx, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPreviewDiscountDoesNotConsumeUsage(t *testing.T) {
	ctx := context.Background()
	f := twoSellerFixture(t, nil)
	require.NoError(t, f.vouchers.Create(ctx, &models.Voucher{
		Code: "SELLERA", Kind: enums.VoucherKindFixed, Value: decimal.NewFromInt(15000),
		Scope: enums.VoucherScopeSeller, SellerID: &sellerA, Target: enums.VoucherTargetAll, Active: true,
	}))

	summary, err := f.svc.PreviewDiscount(ctx, uuid.New(), baseInput(uuid.New()).Lines, "sellera")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), summary.Total)
	assert.Equal(t, int64(100000), summary.EligibleTotal)
	assert.Equal(t, int64(15000), summary.BySeller[sellerA])
	assert.Zero(t, summary.BySeller[sellerB])

	voucher, err := f.vouchers.FindByCode(ctx, "SELLERA")
	require.NoError(t, err)
	assert.Zero(t, voucher.UsedCount)
	assert.Equal(t, int64(5), f.stock(t, productA))
}
