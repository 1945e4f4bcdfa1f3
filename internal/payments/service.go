package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/realtime"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/metrics"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/payloads"
)

const (
	ReasonAttemptsExhausted = "payment_attempts_exhausted"
	ReasonOfflineMethod     = "payment_method_offline"
	ReasonAlreadyPaid       = "already_paid"
	ReasonPaymentExpired    = "payment_expired"

	maxVersionRetries = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, event realtime.Event, recipients ...uuid.UUID)
}

// ReplayGuard remembers processed webhook event ids.
type ReplayGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(gateway, eventID string) string
}

// Service issues payment links and reconciles gateway statuses onto orders.
type Service interface {
	CreateLink(ctx context.Context, buyerID, orderID uuid.UUID, input LinkInput) (*LinkResult, error)
	Reconcile(ctx context.Context, orderID uuid.UUID, gatewayStatus string) (*models.Order, error)
	Sync(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	SyncPending(ctx context.Context) (*SyncSummary, error)
	HandleWebhook(ctx context.Context, gateway enums.PaymentGateway, headers http.Header, body []byte) (*WebhookAck, error)
}

type LinkInput struct {
	// SourceID is the tokenized card for card payments.
	SourceID string
}

type LinkResult struct {
	Link     *models.PaymentLink `json:"link"`
	Reused   bool                `json:"reused"`
	Attempts int                 `json:"attempts"`
}

type SyncSummary struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type WebhookAck struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
}

type ServiceParams struct {
	DB       txRunner
	Orders   orders.Repository
	Outbox   outbox.Emitter
	Gateways []Gateway
	Guard    ReplayGuard
	Realtime notifier
	Metrics  *metrics.FulfillmentMetrics
	Logger   *logger.Logger
	Config   config.PaymentsConfig
	// WebhookTTL bounds how long processed event ids are remembered.
	WebhookTTL time.Duration
	Now        func() time.Time
}

type service struct {
	db         txRunner
	orders     orders.Repository
	outbox     outbox.Emitter
	gateways   map[enums.PaymentGateway]Gateway
	guard      ReplayGuard
	realtime   notifier
	metrics    *metrics.FulfillmentMetrics
	logg       *logger.Logger
	cfg        config.PaymentsConfig
	webhookTTL time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter required")
	}
	cfg := params.Config
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 10 * time.Hour
	}
	if cfg.MaxLinkAttempts <= 0 {
		cfg.MaxLinkAttempts = 3
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 15 * time.Minute
	}
	if cfg.SyncLookback <= 0 {
		cfg.SyncLookback = cfg.RetryWindow
	}
	if cfg.SyncBatchSize <= 0 {
		cfg.SyncBatchSize = 100
	}
	gateways := make(map[enums.PaymentGateway]Gateway, len(params.Gateways))
	for _, gw := range params.Gateways {
		if gw != nil {
			gateways[gw.Name()] = gw
		}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	ttl := params.WebhookTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &service{
		db:         params.DB,
		orders:     params.Orders,
		outbox:     params.Outbox,
		gateways:   gateways,
		guard:      params.Guard,
		realtime:   params.Realtime,
		metrics:    params.Metrics,
		logg:       logg,
		cfg:        cfg,
		webhookTTL: ttl,
		now:        now,
	}, nil
}

func (s *service) CreateLink(ctx context.Context, buyerID, orderID uuid.UUID, input LinkInput) (*LinkResult, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}
	gwName, online := order.PaymentMethod.Gateway()
	if !online {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method does not use payment links").
			WithDetails(map[string]any{"reason": ReasonOfflineMethod, "payment_method": order.PaymentMethod})
	}
	if order.PaymentBucket == enums.PaymentBucketSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid").
			WithDetails(map[string]any{"reason": ReasonAlreadyPaid})
	}
	if order.PaymentExpired || order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment window closed").
			WithDetails(map[string]any{"reason": ReasonPaymentExpired})
	}

	now := s.now().UTC()
	latest, err := s.orders.LatestPaymentLink(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Gateway == gwName && latest.Reusable(now) {
		s.logg.Info(ctx, "payment link reused")
		return &LinkResult{Link: latest, Reused: true, Attempts: order.PaymentAttempts}, nil
	}
	if order.PaymentAttempts >= s.cfg.MaxLinkAttempts {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment link attempts exhausted").
			WithDetails(map[string]any{
				"reason":   ReasonAttemptsExhausted,
				"attempts": order.PaymentAttempts,
				"max":      s.cfg.MaxLinkAttempts,
			})
	}
	gw, ok := s.gateways[gwName]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unavailable").
			WithDetails(map[string]any{"gateway": gwName})
	}

	attempt := order.PaymentAttempts + 1
	code := ExternalCode(order.OrderNumber, attempt)
	expiresAt := now.Add(s.cfg.LinkTTL)
	if order.PaymentDeadline != nil && order.PaymentDeadline.After(now) && order.PaymentDeadline.Before(expiresAt) {
		expiresAt = *order.PaymentDeadline
	}
	created, err := gw.CreateLink(ctx, LinkRequest{
		OrderID:      order.ID.String(),
		OrderNumber:  order.OrderNumber,
		Attempt:      attempt,
		ExternalCode: code,
		Amount:       order.TotalAmount,
		Description:  fmt.Sprintf("CS%d", order.OrderNumber),
		ReturnURL:    s.cfg.ReturnURL,
		CancelURL:    s.cfg.CancelURL,
		ExpiresAt:    expiresAt,
		SourceID:     input.SourceID,
	})
	if err != nil {
		s.logg.Error(ctx, "payment link creation failed", err)
		return nil, err
	}

	bucket, _ := BucketFor(gwName, created.Status)
	link := &models.PaymentLink{
		ID:                uuid.New(),
		OrderID:           order.ID,
		Gateway:           gwName,
		Attempt:           attempt,
		ExternalOrderCode: code,
		LinkID:            created.LinkID,
		CheckoutURL:       created.CheckoutURL,
		Status:            created.Status,
		Bucket:            enums.PaymentBucketPending,
		Amount:            order.TotalAmount,
		ExpiresAt:         created.ExpiresAt,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		updates := map[string]any{"payment_attempts": attempt}
		if order.PaymentBucket != enums.PaymentBucketPending {
			updates["payment_bucket"] = enums.PaymentBucketPending
		}
		if err := repo.UpdateVersioned(ctx, order.ID, order.Version, updates); err != nil {
			return err
		}
		return repo.CreatePaymentLink(ctx, link)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"gateway": gwName, "attempt": attempt, "external_code": code})
	s.logg.Info(logCtx, "payment link created")

	if bucket != enums.PaymentBucketPending {
		if _, err := s.apply(ctx, order.ID, link, StatusReport{Status: created.Status}); err != nil {
			s.logg.Error(logCtx, "reconcile new payment failed", err)
		}
	}
	return &LinkResult{Link: link, Attempts: attempt}, nil
}

// Reconcile applies a gateway status reported out of band to an order.
func (s *service) Reconcile(ctx context.Context, orderID uuid.UUID, gatewayStatus string) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	latest, err := s.orders.LatestPaymentLink(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, orderID, latest, StatusReport{Status: gatewayStatus})
}

// Sync pulls the latest link's status from its gateway on the buyer's behalf.
func (s *service) Sync(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}
	link, err := s.orders.LatestPaymentLink(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no payment link").
			WithDetails(map[string]any{"reason": "no_payment_link"})
	}
	return s.syncLink(ctx, *link)
}

// SyncPending polls gateways for links still awaiting funds.
func (s *service) SyncPending(ctx context.Context) (*SyncSummary, error) {
	since := s.now().UTC().Add(-s.cfg.SyncLookback)
	links, err := s.orders.ListPendingPaymentLinks(ctx, since, s.cfg.SyncBatchSize)
	if err != nil {
		return nil, err
	}
	summary := &SyncSummary{}
	var errs error
	for _, link := range links {
		summary.Checked++
		linkCtx := s.logg.WithOrderID(ctx, link.OrderID.String())
		before := link.Bucket
		order, err := s.syncLink(linkCtx, link)
		if err != nil && !pkgerrors.Retryable(err) {
			summary.Skipped++
			s.logg.Warn(s.logg.WithField(linkCtx, "reason", err.Error()), "payment link sync skipped")
			continue
		}
		if err != nil {
			summary.Failed++
			errs = multierr.Append(errs, fmt.Errorf("link %s: %w", link.ID, err))
			continue
		}
		if order != nil && order.PaymentBucket != before {
			summary.Changed++
		}
	}
	return summary, errs
}

func (s *service) HandleWebhook(ctx context.Context, gateway enums.PaymentGateway, headers http.Header, body []byte) (*WebhookAck, error) {
	gw, ok := s.gateways[gateway]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment gateway").
			WithDetails(map[string]any{"gateway": gateway})
	}
	notice, err := gw.ParseWebhook(headers, body)
	if err != nil {
		return nil, err
	}
	ack := &WebhookAck{EventID: notice.EventID}
	ctx = s.logg.WithFields(ctx, map[string]any{"gateway": gateway, "event_id": notice.EventID})
	if notice.Ignore {
		ack.Ignored = true
		return ack, nil
	}

	var key string
	if s.guard != nil && notice.EventID != "" {
		key = s.guard.WebhookEventKey(string(gateway), notice.EventID)
		fresh, err := s.guard.SetNX(ctx, key, s.now().UTC().Format(time.RFC3339), s.webhookTTL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook replay")
		}
		if !fresh {
			ack.Duplicate = true
			s.logg.Info(ctx, "payment webhook replay skipped")
			return ack, nil
		}
	}

	link, err := s.resolveLink(ctx, gateway, notice)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logg.Warn(ctx, "payment webhook for unknown link")
		ack.Ignored = true
		return ack, nil
	}
	if err == nil {
		ctx = s.logg.WithOrderID(ctx, link.OrderID.String())
		_, err = s.apply(ctx, link.OrderID, link, notice.Report)
	}
	if err != nil {
		if key != "" {
			if delErr := s.guard.Del(ctx, key); delErr != nil {
				s.logg.Warn(ctx, "release webhook replay key failed")
			}
		}
		return nil, err
	}
	return ack, nil
}

func (s *service) resolveLink(ctx context.Context, gateway enums.PaymentGateway, notice *WebhookNotice) (*models.PaymentLink, error) {
	if notice.LinkID != "" {
		link, err := s.orders.FindPaymentLinkByLinkID(ctx, gateway, notice.LinkID)
		if err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || notice.ExternalCode == "" {
			return link, err
		}
	}
	if notice.ExternalCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment link not found")
	}
	return s.orders.FindPaymentLinkByExternalCode(ctx, gateway, notice.ExternalCode)
}

func (s *service) syncLink(ctx context.Context, link models.PaymentLink) (*models.Order, error) {
	gw, ok := s.gateways[link.Gateway]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway unavailable").
			WithDetails(map[string]any{"gateway": link.Gateway})
	}
	report, err := gw.FetchStatus(ctx, link)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, link.OrderID, &link, *report)
}

// apply reconciles one status report, retrying when a concurrent writer bumps
// the order version first.
func (s *service) apply(ctx context.Context, orderID uuid.UUID, link *models.PaymentLink, report StatusReport) (*models.Order, error) {
	var (
		order    *models.Order
		decision Decision
		err      error
	)
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		order, decision, err = s.applyOnce(ctx, orderID, link, report)
		if pkgerrors.ReasonOf(err) != "version_mismatch" {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	gateway := s.gatewayFor(order, link)
	if decision.Previous != decision.Next {
		s.metrics.IncReconciled(string(gateway), string(decision.Next))
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"gateway":        gateway,
			"gateway_status": report.Status,
			"from":           decision.Previous,
			"to":             decision.Next,
			"lifecycle":      order.Status,
		})
		s.logg.Info(logCtx, "payment bucket changed")
	}
	if decision.Confirmed && order.PaymentExpired {
		s.logg.Warn(ctx, "payment confirmed after order expired")
	}
	s.notify(ctx, order, decision)
	return order, nil
}

func (s *service) applyOnce(ctx context.Context, orderID uuid.UUID, link *models.PaymentLink, report StatusReport) (*models.Order, Decision, error) {
	var (
		order    *models.Order
		decision Decision
	)
	now := s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		var err error
		order, err = repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		gateway := s.gatewayFor(order, link)
		bucket, known := BucketFor(gateway, report.Status)
		if !known {
			s.logg.Warn(s.logg.WithField(ctx, "gateway_status", report.Status), "unknown gateway status treated as pending")
		}

		superseded, err := supersededLink(ctx, repo, order.ID, link, bucket)
		if err != nil {
			return err
		}
		if superseded {
			// a newer attempt owns the order's payment state
			decision = Decision{
				Previous:  order.PaymentBucket,
				Next:      order.PaymentBucket,
				Lifecycle: order.Status,
				Deadline:  order.PaymentDeadline,
				Updates:   map[string]any{},
			}
		} else {
			decision = Decide(order, bucket, report.Status, now, s.cfg.RetryWindow)
		}
		if decision.Changed() {
			if err := repo.UpdateVersioned(ctx, order.ID, order.Version, decision.Updates); err != nil {
				return err
			}
			order.Version++
			order.PaymentBucket = decision.Next
			order.PaymentStatus = &report.Status
			order.PaymentDeadline = decision.Deadline
			order.Status = decision.Lifecycle
			if decision.Confirmed {
				order.PaidAt = &now
			}
		}

		if link != nil {
			linkUpdates := map[string]any{
				"status":         report.Status,
				"bucket":         bucket,
				"last_synced_at": now,
			}
			if len(report.Transactions) > 0 {
				linkUpdates["transactions"] = transactionsJSON(report.Transactions)
			}
			if err := repo.UpdatePaymentLink(ctx, link.ID, linkUpdates); err != nil {
				return err
			}
		}

		switch {
		case decision.Confirmed:
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentConfirmed,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				OccurredAt:    now,
				Data: payloads.PaymentConfirmedEvent{
					OrderID:       order.ID,
					BuyerID:       order.UserID,
					SellerID:      order.SellerID,
					Gateway:       gateway,
					GatewayStatus: report.Status,
					Amount:        order.TotalAmount,
					PaidAt:        now,
				},
			})
		case decision.Failed:
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentFailed,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				OccurredAt:    now,
				Data: payloads.PaymentFailedEvent{
					OrderID:       order.ID,
					BuyerID:       order.UserID,
					SellerID:      order.SellerID,
					Gateway:       gateway,
					GatewayStatus: report.Status,
					Attempts:      order.PaymentAttempts,
					RetryDeadline: decision.Deadline,
				},
			})
		}
		return nil
	})
	return order, decision, err
}

// supersededLink reports whether a non-success report comes from a link that
// is no longer the order's latest attempt. Success on any link still counts.
func supersededLink(ctx context.Context, repo orders.Repository, orderID uuid.UUID, link *models.PaymentLink, bucket enums.PaymentBucket) (bool, error) {
	if link == nil || bucket == enums.PaymentBucketSuccess {
		return false, nil
	}
	latest, err := repo.LatestPaymentLink(ctx, orderID)
	if err != nil {
		return false, err
	}
	return latest != nil && latest.ID != link.ID, nil
}

func (s *service) gatewayFor(order *models.Order, link *models.PaymentLink) enums.PaymentGateway {
	if link != nil && link.Gateway != "" {
		return link.Gateway
	}
	gw, _ := order.PaymentMethod.Gateway()
	return gw
}

func (s *service) notify(ctx context.Context, order *models.Order, decision Decision) {
	if s.realtime == nil {
		return
	}
	data := map[string]any{
		"payment_bucket":   order.PaymentBucket,
		"status":           order.Status,
		"payment_deadline": order.PaymentDeadline,
		"payment_attempts": order.PaymentAttempts,
	}
	switch {
	case decision.Confirmed:
		s.realtime.Notify(ctx, realtime.Event{Type: realtime.EventPaymentConfirmed, OrderID: order.ID, Data: data}, order.UserID, order.SellerID)
	case decision.Failed:
		s.realtime.Notify(ctx, realtime.Event{Type: realtime.EventPaymentFailed, OrderID: order.ID, Data: data}, order.UserID)
	}
}
