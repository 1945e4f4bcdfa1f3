package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/pagination"
)

// Service exposes read access to orders for their participants.
type Service interface {
	GetOrder(ctx context.Context, requesterID uuid.UUID, role enums.Role, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, requesterID uuid.UUID, role enums.Role, params pagination.Params) (*OrderList, error)
}

type service struct {
	repo Repository
}

// NewService builds an orders read service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("orders repository required")
	}
	return &service{repo: repo}, nil
}

// GetOrder returns the order with items, timeline and payment links when the
// requester is its buyer, seller, assigned courier or an admin.
func (s *service) GetOrder(ctx context.Context, requesterID uuid.UUID, role enums.Role, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanView(order, requesterID, role) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order access denied")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, requesterID uuid.UUID, role enums.Role, params pagination.Params) (*OrderList, error) {
	if requesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "requester required")
	}
	return s.repo.ListForParticipant(ctx, requesterID, role, params)
}

// CanView reports whether the requester participates in the order.
func CanView(order *models.Order, requesterID uuid.UUID, role enums.Role) bool {
	if order == nil || requesterID == uuid.Nil {
		return false
	}
	switch role {
	case enums.RoleAdmin:
		return true
	case enums.RoleBuyer:
		return order.UserID == requesterID
	case enums.RoleSeller:
		return order.SellerID == requesterID
	case enums.RoleCourier:
		return order.ShipperID != nil && *order.ShipperID == requesterID
	default:
		return false
	}
}
