package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/db"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/pagination"
)

// ErrDuplicateClientRequest is returned by AppendTimeline when the
// (order, client_request_id) pair was already recorded.
var ErrDuplicateClientRequest = errors.New("client request already recorded")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// NextOrderNumber draws from order_number_seq on postgres. SQLite has no
// sequences, so tests fall back to MAX+1.
func (r *repository) NextOrderNumber(ctx context.Context) (int64, error) {
	conn := r.db.WithContext(ctx)
	var next int64
	if conn.Dialector.Name() == "postgres" {
		if err := conn.Raw("SELECT nextval('order_number_seq')").Scan(&next).Error; err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}
		return next, nil
	}
	if err := conn.Model(&models.Order{}).Select("COALESCE(MAX(order_number), 100000) + 1").Scan(&next).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
	}
	return next, nil
}

// CreateOrder inserts the order together with its line items.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit("Timeline", "PaymentLinks").Create(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order", map[string]any{"order_id": id})
	}
	return &order, nil
}

// FindDetail loads the order with line items, timeline and payment links.
func (r *repository) FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Timeline", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("occurred_at ASC, created_at ASC")
		}).
		Preload("PaymentLinks", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("attempt ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order detail", map[string]any{"order_id": id})
	}
	return &order, nil
}

// ListForParticipant pages through orders newest first, filtered on the
// column that matches the caller's role.
func (r *repository) ListForParticipant(ctx context.Context, userID uuid.UUID, role enums.Role, params pagination.Params) (*OrderList, error) {
	column := "user_id"
	switch role {
	case enums.RoleSeller:
		column = "seller_id"
	case enums.RoleCourier:
		column = "shipper_id"
	}

	after, err := pagination.DecodeKeyset(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.Limit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Order{}).Where(column+" = ?", userID)
	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var rows []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	list := &OrderList{}
	list.Orders, list.NextCursor = pagination.Split(rows, limit, func(o models.Order) pagination.Keyset {
		return pagination.Keyset{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return list, nil
}

// UpdateVersioned applies updates only if the row still carries version and
// bumps it. A lost race surfaces as a conflict.
func (r *repository) UpdateVersioned(ctx context.Context, id uuid.UUID, version int64, updates map[string]any) error {
	payload := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		payload[k] = v
	}
	payload["version"] = version + 1
	payload["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, version).
		Updates(payload)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "order modified concurrently").
			WithDetails(map[string]any{"reason": "version_mismatch", "order_id": id, "version": version})
	}
	return nil
}

// FindExpiredUnpaid returns online-payment orders still pending after their
// payment deadline.
func (r *repository) FindExpiredUnpaid(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_method IN ?", []enums.PaymentMethod{enums.PaymentMethodBankTransfer, enums.PaymentMethodCard}).
		Where("payment_bucket <> ?", enums.PaymentBucketSuccess).
		Where("payment_deadline IS NOT NULL AND payment_deadline < ?", now).
		Where("payment_expired = ?", false).
		Where("status = ?", enums.OrderStatusPending).
		Order("payment_deadline ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired unpaid orders")
	}
	return rows, nil
}

func (r *repository) AppendTimeline(ctx context.Context, event *models.ShippingTimelineEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if event.ClientRequestID != nil && db.IsUniqueViolation(err, "idx_timeline_client_request") {
			return ErrDuplicateClientRequest
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append timeline event")
	}
	return nil
}

func (r *repository) FindTimelineByClientRequest(ctx context.Context, orderID uuid.UUID, clientRequestID string) (*models.ShippingTimelineEvent, error) {
	var event models.ShippingTimelineEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND client_request_id = ?", orderID, clientRequestID).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find timeline event")
	}
	return &event, nil
}

// LatestStatusEventAt returns when the most recent status event occurred.
func (r *repository) LatestStatusEventAt(ctx context.Context, orderID uuid.UUID) (*time.Time, error) {
	var event models.ShippingTimelineEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND kind = ?", orderID, enums.TimelineKindStatus).
		Order("occurred_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find latest status event")
	}
	return &event.OccurredAt, nil
}

func (r *repository) InsertTrackingSample(ctx context.Context, sample *models.TrackingSample) error {
	if sample.ID == uuid.Nil {
		sample.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(sample).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert tracking sample")
	}
	return nil
}

func (r *repository) CreatePaymentLink(ctx context.Context, link *models.PaymentLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment link")
	}
	return nil
}

func (r *repository) LatestPaymentLink(ctx context.Context, orderID uuid.UUID) (*models.PaymentLink, error) {
	var link models.PaymentLink
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("attempt DESC").
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment link")
	}
	return &link, nil
}

func (r *repository) FindPaymentLinkByExternalCode(ctx context.Context, gateway enums.PaymentGateway, code string) (*models.PaymentLink, error) {
	var link models.PaymentLink
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND external_order_code = ?", gateway, code).
		First(&link).Error
	if err != nil {
		return nil, notFoundOr(err, "payment link not found", "load payment link", map[string]any{"external_order_code": code})
	}
	return &link, nil
}

func (r *repository) FindPaymentLinkByLinkID(ctx context.Context, gateway enums.PaymentGateway, linkID string) (*models.PaymentLink, error) {
	var link models.PaymentLink
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND link_id = ?", gateway, linkID).
		First(&link).Error
	if err != nil {
		return nil, notFoundOr(err, "payment link not found", "load payment link", map[string]any{"link_id": linkID})
	}
	return &link, nil
}

func (r *repository) UpdatePaymentLink(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if err := r.db.WithContext(ctx).Model(&models.PaymentLink{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment link")
	}
	return nil
}

// ListPendingPaymentLinks returns links still awaiting funds created since
// the cutoff, oldest sync first.
func (r *repository) ListPendingPaymentLinks(ctx context.Context, since time.Time, limit int) ([]models.PaymentLink, error) {
	var rows []models.PaymentLink
	err := r.db.WithContext(ctx).
		Where("bucket = ? AND created_at >= ?", enums.PaymentBucketPending, since).
		Order("last_synced_at ASC NULLS FIRST, created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending payment links")
	}
	return rows, nil
}

func notFoundOr(err error, notFoundMsg, op string, details map[string]any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
