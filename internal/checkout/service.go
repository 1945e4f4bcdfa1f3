package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/internal/checkout/helpers"
	"github.com/angelmondragon/cartsplit-backend/internal/checkout/reservation"
	"github.com/angelmondragon/cartsplit-backend/internal/discounts"
	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/shipping"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/metrics"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

const defaultPaymentDeadline = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type CartStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	RemoveProducts(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error
}

type VoucherStore interface {
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

type originResolver interface {
	ResolveOrigin(ctx context.Context, sellerID uuid.UUID, shopID *uuid.UUID) (*models.Shop, error)
}

type shippingQuoter interface {
	Quote(req shipping.Request) shipping.Quote
}

type inventoryReserver interface {
	Reserve(ctx context.Context, checkoutID uuid.UUID, requests []reservation.Request) ([]models.InventoryReservation, error)
	Commit(ctx context.Context, tx *gorm.DB, checkoutID uuid.UUID) error
	Compensate(ctx context.Context, checkoutID, buyerID uuid.UUID, reason string) ([]models.InventoryReservation, error)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
	PreviewDiscount(ctx context.Context, buyerID uuid.UUID, lines []helpers.Line, code string) (*DiscountSummary, error)
}

// Input is a validated checkout request.
type Input struct {
	BuyerID uuid.UUID
	// Lines may be empty when FromCart is set; the saved cart is used then.
	Lines          []helpers.Line
	FromCart       bool
	PaymentMethod  enums.PaymentMethod
	ShippingMethod enums.ShippingMethod
	RushDistanceKm *float64
	Address        types.Address
	DiscountCode   string
}

// Result lists the orders a checkout produced with its pricing summaries.
type Result struct {
	CheckoutID uuid.UUID        `json:"checkout_id"`
	Orders     []models.Order   `json:"orders"`
	Shipping   ShippingSummary  `json:"shipping"`
	Discount   *DiscountSummary `json:"discount,omitempty"`
}

type ShippingSummary struct {
	TotalFee int64            `json:"total_fee"`
	Sellers  []SellerShipping `json:"sellers"`
}

type SellerShipping struct {
	SellerID             uuid.UUID           `json:"seller_id"`
	Fee                  int64               `json:"fee"`
	Scope                enums.ShippingScope `json:"scope"`
	DistanceKm           *float64            `json:"distance_km,omitempty"`
	UsedFallbackDistance bool                `json:"used_fallback_distance"`
}

type DiscountSummary struct {
	Code          string              `json:"code"`
	EligibleTotal int64               `json:"eligible_total"`
	Total         int64               `json:"total"`
	BySeller      map[uuid.UUID]int64 `json:"by_seller"`
}

type ServiceParams struct {
	DB          txRunner
	Products    productReader
	Cart        func(tx *gorm.DB) CartStore
	Vouchers    func(tx *gorm.DB) VoucherStore
	Shops       originResolver
	Shipping    shippingQuoter
	Inventory   inventoryReserver
	Orders      orders.Repository
	Outbox      outbox.Emitter
	Metrics     *metrics.FulfillmentMetrics
	Logger      *logger.Logger
	PaymentTerm time.Duration
	Now         func() time.Time
}

type service struct {
	db          txRunner
	products    productReader
	cart        func(tx *gorm.DB) CartStore
	vouchers    func(tx *gorm.DB) VoucherStore
	shops       originResolver
	shipping    shippingQuoter
	inventory   inventoryReserver
	orders      orders.Repository
	outbox      outbox.Emitter
	metrics     *metrics.FulfillmentMetrics
	logg        *logger.Logger
	paymentTerm time.Duration
	now         func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, errors.New("tx runner required")
	case params.Products == nil:
		return nil, errors.New("product reader required")
	case params.Cart == nil:
		return nil, errors.New("cart store factory required")
	case params.Vouchers == nil:
		return nil, errors.New("voucher store factory required")
	case params.Shops == nil:
		return nil, errors.New("shop directory required")
	case params.Shipping == nil:
		return nil, errors.New("shipping calculator required")
	case params.Inventory == nil:
		return nil, errors.New("inventory reserver required")
	case params.Orders == nil:
		return nil, errors.New("orders repository required")
	case params.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	term := params.PaymentTerm
	if term <= 0 {
		term = defaultPaymentDeadline
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:          params.DB,
		products:    params.Products,
		cart:        params.Cart,
		vouchers:    params.Vouchers,
		shops:       params.Shops,
		shipping:    params.Shipping,
		inventory:   params.Inventory,
		orders:      params.Orders,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        logg,
		paymentTerm: term,
		now:         now,
	}, nil
}

func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if err := validateInput(input); err != nil {
		s.metrics.IncCheckout("rejected")
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, input.BuyerID.String())

	lines := input.Lines
	if len(lines) == 0 && input.FromCart {
		saved, err := s.cart(nil).ListByUser(ctx, input.BuyerID)
		if err != nil {
			return nil, err
		}
		for _, item := range saved {
			lines = append(lines, helpers.Line{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	}
	lines, err := helpers.NormalizeLines(lines)
	if err != nil {
		s.metrics.IncCheckout("rejected")
		return nil, err
	}

	groups, evaluation, voucher, err := s.price(ctx, input.BuyerID, lines, input.DiscountCode)
	if err != nil {
		s.metrics.IncCheckout("rejected")
		return nil, err
	}

	checkoutID := uuid.New()
	ctx = s.logg.WithField(ctx, "checkout_id", checkoutID.String())
	requests := make([]reservation.Request, len(lines))
	for i, line := range lines {
		requests[i] = reservation.Request{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	if _, err := s.inventory.Reserve(ctx, checkoutID, requests); err != nil {
		return nil, s.abort(ctx, checkoutID, input.BuyerID, err)
	}

	quotes, err := s.quoteShipping(ctx, groups, input)
	if err != nil {
		return nil, s.abort(ctx, checkoutID, input.BuyerID, err)
	}

	result, err := s.persist(ctx, checkoutID, input, lines, groups, quotes, evaluation, voucher)
	if err != nil {
		return nil, s.abort(ctx, checkoutID, input.BuyerID, err)
	}

	s.metrics.IncCheckout("success")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"orders":         len(result.Orders),
		"shipping_total": result.Shipping.TotalFee,
		"discount_code":  input.DiscountCode,
	})
	s.logg.Info(logCtx, "checkout committed")
	return result, nil
}

// PreviewDiscount evaluates a voucher against the lines without reserving
// stock or consuming a use.
func (s *service) PreviewDiscount(ctx context.Context, buyerID uuid.UUID, lines []helpers.Line, code string) (*DiscountSummary, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer required")
	}
	if discounts.NormalizeCode(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher code required")
	}
	lines, err := helpers.NormalizeLines(lines)
	if err != nil {
		return nil, err
	}
	_, evaluation, _, err := s.price(ctx, buyerID, lines, code)
	if err != nil {
		return nil, err
	}
	return summarizeDiscount(evaluation), nil
}

// price loads the catalog, prechecks stock, groups by seller and evaluates
// the voucher if one was supplied.
func (s *service) price(ctx context.Context, buyerID uuid.UUID, lines []helpers.Line, code string) ([]helpers.SellerGroup, *discounts.Evaluation, *models.Voucher, error) {
	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := helpers.PrecheckStock(lines, catalog); err != nil {
		return nil, nil, nil, err
	}
	groups := helpers.GroupBySeller(lines, catalog)

	if discounts.NormalizeCode(code) == "" {
		return groups, nil, nil, nil
	}
	voucher, err := s.vouchers(nil).FindByCode(ctx, code)
	if err != nil {
		return nil, nil, nil, err
	}
	evaluation, err := discounts.Evaluate(voucher, buyerID, helpers.DiscountLines(groups), helpers.SellerOrder(groups), s.now())
	if err != nil {
		return nil, nil, nil, err
	}
	return groups, evaluation, voucher, nil
}

func (s *service) quoteShipping(ctx context.Context, groups []helpers.SellerGroup, input Input) ([]shipping.Quote, error) {
	quotes := make([]shipping.Quote, len(groups))
	for i, group := range groups {
		shop, err := s.shops.ResolveOrigin(ctx, group.SellerID, group.ShopID)
		if err != nil {
			return nil, err
		}
		origin := shop.Address
		if origin.Location == nil {
			origin.Location = shop.Location
		}
		quotes[i] = s.shipping.Quote(shipping.Request{
			Origin:         origin,
			Destination:    input.Address,
			Method:         input.ShippingMethod,
			RushDistanceKm: input.RushDistanceKm,
		})
		if quotes[i].UsedFallbackDistance {
			s.logg.Warn(s.logg.WithField(ctx, "seller_id", group.SellerID.String()), "rush fee priced from fallback distance")
		}
	}
	return quotes, nil
}

func (s *service) persist(
	ctx context.Context,
	checkoutID uuid.UUID,
	input Input,
	lines []helpers.Line,
	groups []helpers.SellerGroup,
	quotes []shipping.Quote,
	evaluation *discounts.Evaluation,
	voucher *models.Voucher,
) (*Result, error) {
	now := s.now().UTC()
	deadline := now.Add(s.paymentTerm)
	result := &Result{CheckoutID: checkoutID}
	if evaluation != nil {
		result.Discount = summarizeDiscount(evaluation)
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		created := make([]models.Order, 0, len(groups))
		for i, group := range groups {
			number, err := repo.NextOrderNumber(ctx)
			if err != nil {
				return err
			}
			order := buildOrder(checkoutID, number, input, group, quotes[i], evaluation, deadline)
			if err := repo.CreateOrder(ctx, order); err != nil {
				return err
			}
			if err := s.emitOrderCreated(ctx, tx, order); err != nil {
				return err
			}
			created = append(created, *order)
		}

		if err := s.inventory.Commit(ctx, tx, checkoutID); err != nil {
			return err
		}
		if input.FromCart {
			ids := make([]uuid.UUID, len(lines))
			for i, line := range lines {
				ids[i] = line.ProductID
			}
			if err := s.cart(tx).RemoveProducts(ctx, input.BuyerID, ids); err != nil {
				return err
			}
		}
		if voucher != nil && len(created) > 0 {
			if err := s.vouchers(tx).IncrementUsage(ctx, voucher.ID); err != nil {
				return err
			}
		}
		result.Orders = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, group := range groups {
		result.Shipping.TotalFee += quotes[i].Fee
		result.Shipping.Sellers = append(result.Shipping.Sellers, SellerShipping{
			SellerID:             group.SellerID,
			Fee:                  quotes[i].Fee,
			Scope:                quotes[i].Scope,
			DistanceKm:           quotes[i].DistanceKm,
			UsedFallbackDistance: quotes[i].UsedFallbackDistance,
		})
	}
	return result, nil
}

// abort returns reserved stock and reports the original failure. A failed
// compensation is logged and attached so the caller sees both.
func (s *service) abort(ctx context.Context, checkoutID, buyerID uuid.UUID, cause error) error {
	outcome := "failed"
	reason := pkgerrors.ReasonOf(cause)
	if reason == reservation.ReasonStockConflict {
		outcome = reservation.ReasonStockConflict
	}
	if reason == "" {
		reason = "checkout_failed"
	}
	s.metrics.IncCheckout(outcome)

	released, err := s.inventory.Compensate(ctx, checkoutID, buyerID, reason)
	if err != nil {
		s.logg.Error(ctx, "inventory compensation failed", err)
		return multierr.Append(cause, err)
	}
	if len(released) > 0 {
		s.metrics.IncCompensation()
	}
	return cause
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: string(enums.RoleBuyer)},
		Data: payloads.OrderCreatedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CheckoutID:     order.CheckoutID,
			BuyerID:        order.UserID,
			SellerID:       order.SellerID,
			Subtotal:       order.Subtotal,
			ShippingFee:    order.ShippingFee,
			DiscountAmount: order.DiscountAmount,
			TotalAmount:    order.TotalAmount,
			PaymentMethod:  order.PaymentMethod,
			ShippingMethod: order.ShippingMethod,
			ShippingScope:  order.ShippingScope,
		},
	})
}

func buildOrder(
	checkoutID uuid.UUID,
	number int64,
	input Input,
	group helpers.SellerGroup,
	quote shipping.Quote,
	evaluation *discounts.Evaluation,
	deadline time.Time,
) *models.Order {
	orderID := uuid.New()
	var share int64
	var code *string
	if evaluation != nil {
		share = evaluation.BySeller[group.SellerID]
		c := evaluation.Code
		code = &c
	}
	if ceiling := group.Subtotal + quote.Fee; share > ceiling {
		share = ceiling
	}
	total := group.Subtotal + quote.Fee - share
	if total < 0 {
		total = 0
	}

	items := make([]models.OrderLineItem, len(group.Items))
	for i, item := range group.Items {
		items[i] = models.OrderLineItem{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: item.ProductID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		}
	}

	return &models.Order{
		ID:                   orderID,
		OrderNumber:          number,
		CheckoutID:           checkoutID,
		Version:              1,
		UserID:               input.BuyerID,
		SellerID:             group.SellerID,
		ShopID:               group.ShopID,
		Subtotal:             group.Subtotal,
		ShippingFee:          quote.Fee,
		DiscountCode:         code,
		DiscountAmount:       share,
		TotalAmount:          total,
		Status:               enums.OrderStatusPending,
		PaymentMethod:        input.PaymentMethod,
		PaymentBucket:        enums.PaymentBucketPending,
		PaymentDeadline:      &deadline,
		ShippingMethod:       input.ShippingMethod,
		ShippingScope:        quote.Scope,
		ShippingDistanceKm:   quote.DistanceKm,
		ShippingUsedFallback: quote.UsedFallbackDistance,
		ShippingAddress:      input.Address,
		ShippingStatus:       enums.ShippingStatusUnassigned,
		Items:                items,
	}
}

func summarizeDiscount(evaluation *discounts.Evaluation) *DiscountSummary {
	if evaluation == nil {
		return nil
	}
	return &DiscountSummary{
		Code:          evaluation.Code,
		EligibleTotal: evaluation.EligibleTotal,
		Total:         evaluation.Total,
		BySeller:      evaluation.BySeller,
	}
}

func validateInput(input Input) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"reason": "invalid_payment_method", "payment_method": input.PaymentMethod})
	}
	if !input.ShippingMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported shipping method").
			WithDetails(map[string]any{"reason": "invalid_shipping_method", "shipping_method": input.ShippingMethod})
	}
	if !input.Address.Complete() {
		return pkgerrors.New(pkgerrors.CodeValidation, "address must include province, district, ward and detail").
			WithDetails(map[string]any{"reason": helpers.ReasonIncompleteAddress})
	}
	if len(input.Lines) == 0 && !input.FromCart {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items").
			WithDetails(map[string]any{"reason": helpers.ReasonEmptyCart})
	}
	return nil
}
