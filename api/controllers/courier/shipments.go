package courier

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/api/middleware"
	"github.com/angelmondragon/cartsplit-backend/api/responses"
	"github.com/angelmondragon/cartsplit-backend/api/validators"
	"github.com/angelmondragon/cartsplit-backend/internal/shipments"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

const maxSyncBatch = 200

type statusRequest struct {
	Status          string                `json:"status" validate:"required,shipping_status"`
	Note            *string               `json:"note,omitempty" validate:"omitempty,max=500"`
	Location        *types.LocationSample `json:"location,omitempty"`
	ClientRequestID *string               `json:"client_request_id,omitempty" validate:"omitempty,max=128"`
	OccurredAt      *time.Time            `json:"occurred_at,omitempty"`
}

type checkpointRequest struct {
	Location        types.LocationSample `json:"location" validate:"required"`
	Note            *string              `json:"note,omitempty" validate:"omitempty,max=500"`
	ClientRequestID *string              `json:"client_request_id,omitempty" validate:"omitempty,max=128"`
	OccurredAt      *time.Time           `json:"occurred_at,omitempty"`
}

// syncItem fields are checked per item by the service so one bad entry
// cannot sink the batch.
type syncItem struct {
	OrderID         uuid.UUID             `json:"order_id"`
	Kind            string                `json:"kind"`
	Status          string                `json:"status,omitempty"`
	Note            *string               `json:"note,omitempty"`
	Location        *types.LocationSample `json:"location,omitempty"`
	ClientRequestID *string               `json:"client_request_id,omitempty"`
	OccurredAt      time.Time             `json:"occurred_at"`
}

type syncRequest struct {
	Updates []syncItem `json:"updates" validate:"required,min=1"`
}

type syncResponse struct {
	Results   []shipments.SyncResult `json:"results"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
}

// UpdateStatus moves the order's shipment to a new status.
func UpdateStatus(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipments service unavailable"))
			return
		}
		courierID, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.UpdateStatus(r.Context(), courierID, orderID, shipments.StatusInput{
			Status:          enums.ShippingStatus(payload.Status),
			Note:            payload.Note,
			Location:        payload.Location,
			ClientRequestID: payload.ClientRequestID,
			OccurredAt:      payload.OccurredAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// AddCheckpoint records a location ping without changing status.
func AddCheckpoint(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipments service unavailable"))
			return
		}
		courierID, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkpointRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.AddCheckpoint(r.Context(), courierID, orderID, shipments.CheckpointInput{
			Location:        payload.Location,
			Note:            payload.Note,
			ClientRequestID: payload.ClientRequestID,
			OccurredAt:      payload.OccurredAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if out.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}

// Sync replays a batch of updates queued while the courier was offline.
// Items fail independently, so the response is always 200 with per-item results.
func Sync(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipments service unavailable"))
			return
		}
		courierID, _, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload syncRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if len(payload.Updates) > maxSyncBatch {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "too many updates").
				WithDetails(map[string]any{"max": maxSyncBatch}))
			return
		}

		updates := make([]shipments.OfflineUpdate, 0, len(payload.Updates))
		for _, item := range payload.Updates {
			updates = append(updates, shipments.OfflineUpdate{
				OrderID:         item.OrderID,
				Kind:            enums.TimelineKind(item.Kind),
				Status:          enums.ShippingStatus(item.Status),
				Note:            item.Note,
				Location:        item.Location,
				ClientRequestID: item.ClientRequestID,
				OccurredAt:      item.OccurredAt,
			})
		}

		results := svc.SyncOfflineUpdates(r.Context(), courierID, updates)
		resp := syncResponse{Results: results}
		for _, res := range results {
			if res.Success {
				resp.Succeeded++
			} else {
				resp.Failed++
			}
		}
		responses.WriteSuccess(w, resp)
	}
}

func actorAndOrder(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	courierID, _, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return courierID, orderID, nil
}
