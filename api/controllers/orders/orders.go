package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/api/middleware"
	"github.com/angelmondragon/cartsplit-backend/api/responses"
	"github.com/angelmondragon/cartsplit-backend/api/validators"
	internalorders "github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/payments"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

// PaymentService is the slice of payments used by buyer order routes.
type PaymentService interface {
	CreateLink(ctx context.Context, buyerID, orderID uuid.UUID, input payments.LinkInput) (*payments.LinkResult, error)
	Sync(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
}

// caller is the authenticated actor plus the {orderId} path parameter.
type caller struct {
	userID  uuid.UUID
	role    enums.Role
	orderID uuid.UUID
}

func resolveCaller(r *http.Request, withOrder bool) (caller, error) {
	userID, role, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		return caller{}, err
	}
	c := caller{userID: userID, role: role}
	if withOrder {
		if c.orderID, err = validators.ParseUUIDParam(r, "orderId"); err != nil {
			return caller{}, err
		}
	}
	return c, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable")
}

// List returns a page of orders the caller participates in.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("orders"))
			return
		}
		c, err := resolveCaller(r, false)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		list, err := svc.ListOrders(ctx, c.userID, c.role, page)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order with its items, timeline and payment links.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("orders"))
			return
		}
		c, err := resolveCaller(r, true)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := svc.GetOrder(ctx, c.userID, c.role, c.orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type paymentLinkRequest struct {
	SourceID string `json:"source_id,omitempty" validate:"omitempty,max=255"`
}

// PaymentLink issues a gateway link for an unpaid online order, or returns
// the live one. A fresh link answers 201, a reused one 200.
func PaymentLink(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("payments"))
			return
		}
		c, err := resolveCaller(r, true)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body paymentLinkRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		result, err := svc.CreateLink(ctx, c.userID, c.orderID, payments.LinkInput{SourceID: strings.TrimSpace(body.SourceID)})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Reused {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// PaymentSync asks the gateway for the order's latest payment state.
func PaymentSync(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, unavailable("payments"))
			return
		}
		c, err := resolveCaller(r, true)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := svc.Sync(ctx, c.userID, c.orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
