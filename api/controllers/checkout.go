package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/cartsplit-backend/api/middleware"
	"github.com/angelmondragon/cartsplit-backend/api/responses"
	"github.com/angelmondragon/cartsplit-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/cartsplit-backend/internal/checkout"
	"github.com/angelmondragon/cartsplit-backend/internal/checkout/helpers"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

type checkoutRequest struct {
	Lines          []helpers.Line `json:"lines" validate:"omitempty,dive"`
	FromCart       bool           `json:"from_cart"`
	PaymentMethod  string         `json:"payment_method" validate:"required,payment_method"`
	ShippingMethod string         `json:"shipping_method" validate:"required,shipping_method"`
	RushDistanceKm *float64       `json:"rush_distance_km,omitempty" validate:"omitempty,gt=0"`
	Address        types.Address  `json:"address" validate:"required"`
	DiscountCode   string         `json:"discount_code,omitempty" validate:"omitempty,max=64"`
}

// Checkout splits the buyer's lines into per-seller orders.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(payload.Lines) == 0 && !payload.FromCart {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "lines required").
				WithDetails(map[string]any{"reason": "empty_lines"}))
			return
		}

		result, err := svc.Execute(r.Context(), checkoutsvc.Input{
			BuyerID:        buyerID,
			Lines:          payload.Lines,
			FromCart:       payload.FromCart,
			PaymentMethod:  enums.PaymentMethod(payload.PaymentMethod),
			ShippingMethod: enums.ShippingMethod(payload.ShippingMethod),
			RushDistanceKm: payload.RushDistanceKm,
			Address:        payload.Address,
			DiscountCode:   strings.TrimSpace(payload.DiscountCode),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type voucherPreviewRequest struct {
	Code  string         `json:"code" validate:"required,max=64"`
	Lines []helpers.Line `json:"lines" validate:"required,min=1,dive"`
}

// VoucherPreview prices a discount code against the lines without redeeming it.
func VoucherPreview(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload voucherPreviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.PreviewDiscount(r.Context(), buyerID, payload.Lines, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
