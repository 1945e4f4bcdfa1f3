package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	"github.com/angelmondragon/cartsplit-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their child rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextOrderNumber(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListForParticipant(ctx context.Context, userID uuid.UUID, role enums.Role, params pagination.Params) (*OrderList, error)
	UpdateVersioned(ctx context.Context, id uuid.UUID, version int64, updates map[string]any) error
	FindExpiredUnpaid(ctx context.Context, now time.Time, limit int) ([]models.Order, error)

	AppendTimeline(ctx context.Context, event *models.ShippingTimelineEvent) error
	FindTimelineByClientRequest(ctx context.Context, orderID uuid.UUID, clientRequestID string) (*models.ShippingTimelineEvent, error)
	LatestStatusEventAt(ctx context.Context, orderID uuid.UUID) (*time.Time, error)
	InsertTrackingSample(ctx context.Context, sample *models.TrackingSample) error

	CreatePaymentLink(ctx context.Context, link *models.PaymentLink) error
	LatestPaymentLink(ctx context.Context, orderID uuid.UUID) (*models.PaymentLink, error)
	FindPaymentLinkByExternalCode(ctx context.Context, gateway enums.PaymentGateway, code string) (*models.PaymentLink, error)
	FindPaymentLinkByLinkID(ctx context.Context, gateway enums.PaymentGateway, linkID string) (*models.PaymentLink, error)
	UpdatePaymentLink(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListPendingPaymentLinks(ctx context.Context, since time.Time, limit int) ([]models.PaymentLink, error)
}

// OrderList is one cursor page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
