package shipments

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/internal/orders"
	"github.com/angelmondragon/cartsplit-backend/internal/realtime"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/metrics"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox"
	"github.com/angelmondragon/cartsplit-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/cartsplit-backend/pkg/types"
)

// Reasons attached to rejected courier updates.
const (
	ReasonStaleUpdate    = "stale_update"
	ReasonNotAssigned    = "not_assigned_courier"
	ReasonOrderCancelled = "order_cancelled"
)

// Limits on courier-supplied free text.
const (
	MaxNoteLen            = 500
	MaxClientRequestIDLen = 128
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Notify(ctx context.Context, event realtime.Event, recipients ...uuid.UUID)
}

// Service applies courier-driven shipment changes.
type Service interface {
	UpdateStatus(ctx context.Context, courierID, orderID uuid.UUID, input StatusInput) (*Outcome, error)
	AddCheckpoint(ctx context.Context, courierID, orderID uuid.UUID, input CheckpointInput) (*Outcome, error)
	SyncOfflineUpdates(ctx context.Context, courierID uuid.UUID, updates []OfflineUpdate) []SyncResult
}

type StatusInput struct {
	Status          enums.ShippingStatus
	Note            *string
	Location        *types.LocationSample
	ClientRequestID *string
	OccurredAt      *time.Time
	Offline         bool
}

type CheckpointInput struct {
	Location        types.LocationSample
	Note            *string
	ClientRequestID *string
	OccurredAt      *time.Time
	Offline         bool
}

// Outcome is the order after an applied or replayed update.
type Outcome struct {
	Order     *models.Order                 `json:"order"`
	Event     *models.ShippingTimelineEvent `json:"event"`
	Duplicate bool                          `json:"duplicate"`
}

// OfflineUpdate is one queued courier action. Status is required for status
// updates, Location for checkpoints.
type OfflineUpdate struct {
	OrderID         uuid.UUID
	Kind            enums.TimelineKind
	Status          enums.ShippingStatus
	Note            *string
	Location        *types.LocationSample
	ClientRequestID *string
	OccurredAt      time.Time
}

// SyncResult reports one replayed update. Index points into the submitted batch.
type SyncResult struct {
	Index           int        `json:"index"`
	OrderID         uuid.UUID  `json:"order_id"`
	ClientRequestID *string    `json:"client_request_id,omitempty"`
	Success         bool       `json:"success"`
	Duplicate       bool       `json:"duplicate"`
	Error           *SyncError `json:"error,omitempty"`
}

type SyncError struct {
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
	Reason  string         `json:"reason,omitempty"`
}

type ServiceParams struct {
	DB       txRunner
	Orders   orders.Repository
	Outbox   outbox.Emitter
	Realtime notifier
	Metrics  *metrics.FulfillmentMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	db       txRunner
	orders   orders.Repository
	outbox   outbox.Emitter
	realtime notifier
	metrics  *metrics.FulfillmentMetrics
	logg     *logger.Logger
	now      func() time.Time
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
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:       params.DB,
		orders:   params.Orders,
		outbox:   params.Outbox,
		realtime: params.Realtime,
		metrics:  params.Metrics,
		logg:     logg,
		now:      now,
	}, nil
}

func (s *service) UpdateStatus(ctx context.Context, courierID, orderID uuid.UUID, input StatusInput) (*Outcome, error) {
	if err := validateCommon(courierID, input.Note, input.Location, input.ClientRequestID); err != nil {
		return nil, err
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping status").
			WithDetails(map[string]any{"reason": "invalid_status", "to": input.Status})
	}
	occurredAt := s.occurredAt(input.OccurredAt)
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var (
		outcome *Outcome
		from    enums.ShippingStatus
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.ShippingStatus

		claim := order.ShipperID == nil && from == enums.ShippingStatusUnassigned && input.Status == enums.ShippingStatusAssigned
		if !claim {
			if err := requireCourier(order, courierID); err != nil {
				return err
			}
		}
		if dup, err := findReplay(ctx, repo, order, input.ClientRequestID); err != nil || dup != nil {
			outcome = dup
			return err
		}
		if err := ValidateTransition(from, input.Status); err != nil {
			return err
		}
		if from != input.Status && order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled").
				WithDetails(map[string]any{"reason": ReasonOrderCancelled, "from": from, "to": input.Status})
		}
		if input.Offline {
			if err := rejectStale(ctx, repo, order.ID, occurredAt); err != nil {
				return err
			}
		}

		lifecycle := order.Status
		if from != input.Status {
			lifecycle = DeriveLifecycle(input.Status, order.Status)
		}
		updates := map[string]any{
			"shipping_status": input.Status,
			"status":          lifecycle,
		}
		if claim {
			updates["shipper_id"] = courierID
		}
		location := stampLocation(input.Location, occurredAt)
		if location != nil {
			updates["last_location"] = location
		}
		if err := repo.UpdateVersioned(ctx, order.ID, order.Version, updates); err != nil {
			return err
		}

		event := &models.ShippingTimelineEvent{
			OrderID:         order.ID,
			Kind:            enums.TimelineKindStatus,
			Status:          input.Status,
			Code:            string(input.Status),
			Label:           Label(input.Status),
			Note:            trimNote(input.Note),
			Source:          enums.TimelineSourceCourier,
			ActorID:         &courierID,
			ClientRequestID: input.ClientRequestID,
			Offline:         input.Offline,
			Location:        location,
			OccurredAt:      occurredAt,
		}
		if err := repo.AppendTimeline(ctx, event); err != nil {
			return err
		}
		if location != nil {
			if err := repo.InsertTrackingSample(ctx, trackingSample(order.ID, courierID, *location)); err != nil {
				return err
			}
		}

		order.Version++
		order.ShippingStatus = input.Status
		order.Status = lifecycle
		if claim {
			order.ShipperID = &courierID
		}
		if location != nil {
			order.LastLocation = location
		}
		if from != input.Status {
			if err := s.emitStatusChanged(ctx, tx, order, courierID, from, occurredAt, input.Offline); err != nil {
				return err
			}
		}
		outcome = &Outcome{Order: order, Event: event}
		return nil
	})
	if errors.Is(err, orders.ErrDuplicateClientRequest) {
		return s.loadReplay(ctx, orderID, input.ClientRequestID)
	}
	if err != nil {
		return nil, err
	}
	if outcome.Duplicate {
		return outcome, nil
	}

	if from != input.Status {
		s.metrics.IncTransition(string(input.Status))
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"courier_id": courierID.String(),
		"from":       from,
		"to":         input.Status,
		"lifecycle":  outcome.Order.Status,
		"offline":    input.Offline,
	})
	s.logg.Info(logCtx, "shipment status applied")
	s.notify(ctx, realtime.EventShipmentStatus, outcome)
	return outcome, nil
}

func (s *service) AddCheckpoint(ctx context.Context, courierID, orderID uuid.UUID, input CheckpointInput) (*Outcome, error) {
	if err := validateCommon(courierID, input.Note, &input.Location, input.ClientRequestID); err != nil {
		return nil, err
	}
	occurredAt := s.occurredAt(input.OccurredAt)
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var outcome *Outcome
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireCourier(order, courierID); err != nil {
			return err
		}
		if dup, err := findReplay(ctx, repo, order, input.ClientRequestID); err != nil || dup != nil {
			outcome = dup
			return err
		}

		location := stampLocation(&input.Location, occurredAt)
		if err := repo.UpdateVersioned(ctx, order.ID, order.Version, map[string]any{"last_location": location}); err != nil {
			return err
		}
		event := &models.ShippingTimelineEvent{
			OrderID:         order.ID,
			Kind:            enums.TimelineKindCheckpoint,
			Status:          order.ShippingStatus,
			Code:            "checkpoint",
			Label:           "Location update",
			Note:            trimNote(input.Note),
			Source:          enums.TimelineSourceCourier,
			ActorID:         &courierID,
			ClientRequestID: input.ClientRequestID,
			Offline:         input.Offline,
			Location:        location,
			OccurredAt:      occurredAt,
		}
		if err := repo.AppendTimeline(ctx, event); err != nil {
			return err
		}
		if err := repo.InsertTrackingSample(ctx, trackingSample(order.ID, courierID, *location)); err != nil {
			return err
		}
		order.Version++
		order.LastLocation = location
		outcome = &Outcome{Order: order, Event: event}
		return nil
	})
	if errors.Is(err, orders.ErrDuplicateClientRequest) {
		return s.loadReplay(ctx, orderID, input.ClientRequestID)
	}
	if err != nil {
		return nil, err
	}
	if !outcome.Duplicate {
		s.notify(ctx, realtime.EventShipmentCheckpoint, outcome)
	}
	return outcome, nil
}

// SyncOfflineUpdates replays a queued batch. Items are applied oldest first
// (ties keep submission order) and each succeeds or fails on its own.
func (s *service) SyncOfflineUpdates(ctx context.Context, courierID uuid.UUID, updates []OfflineUpdate) []SyncResult {
	order := make([]int, len(updates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return updates[order[a]].OccurredAt.Before(updates[order[b]].OccurredAt)
	})

	results := make([]SyncResult, len(updates))
	for _, idx := range order {
		update := updates[idx]
		result := SyncResult{Index: idx, OrderID: update.OrderID, ClientRequestID: update.ClientRequestID}
		outcome, err := s.replay(ctx, courierID, update)
		if err != nil {
			result.Error = toSyncError(err)
		} else {
			result.Success = true
			result.Duplicate = outcome.Duplicate
		}
		results[idx] = result
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"courier_id": courierID.String(),
		"items":      len(updates),
		"failed":     failed,
	})
	s.logg.Info(logCtx, "offline batch replayed")
	return results
}

func (s *service) replay(ctx context.Context, courierID uuid.UUID, update OfflineUpdate) (*Outcome, error) {
	if update.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required").
			WithDetails(map[string]any{"reason": "missing_order_id"})
	}
	if update.OccurredAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "occurred_at required for offline updates").
			WithDetails(map[string]any{"reason": "missing_occurred_at"})
	}
	occurredAt := &update.OccurredAt
	switch update.Kind {
	case enums.TimelineKindStatus:
		return s.UpdateStatus(ctx, courierID, update.OrderID, StatusInput{
			Status:          update.Status,
			Note:            update.Note,
			Location:        update.Location,
			ClientRequestID: update.ClientRequestID,
			OccurredAt:      occurredAt,
			Offline:         true,
		})
	case enums.TimelineKindCheckpoint:
		if update.Location == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkpoint requires a location")
		}
		return s.AddCheckpoint(ctx, courierID, update.OrderID, CheckpointInput{
			Location:        *update.Location,
			Note:            update.Note,
			ClientRequestID: update.ClientRequestID,
			OccurredAt:      occurredAt,
			Offline:         true,
		})
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown update kind").
			WithDetails(map[string]any{"reason": "invalid_kind", "kind": update.Kind})
	}
}

func (s *service) loadReplay(ctx context.Context, orderID uuid.UUID, clientRequestID *string) (*Outcome, error) {
	if clientRequestID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "duplicate timeline event")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	event, err := s.orders.FindTimelineByClientRequest(ctx, orderID, *clientRequestID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Order: order, Event: event, Duplicate: true}, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, courierID uuid.UUID, from enums.ShippingStatus, at time.Time, offline bool) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventShipmentStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: courierID, Role: string(enums.RoleCourier)},
		OccurredAt:    at,
		Data: payloads.ShipmentStatusChangedEvent{
			OrderID:    order.ID,
			BuyerID:    order.UserID,
			SellerID:   order.SellerID,
			CourierID:  courierID,
			From:       from,
			To:         order.ShippingStatus,
			Lifecycle:  order.Status,
			Offline:    offline,
			OccurredAt: at,
		},
	})
}

func (s *service) notify(ctx context.Context, eventType string, outcome *Outcome) {
	if s.realtime == nil || outcome == nil || outcome.Order == nil {
		return
	}
	order := outcome.Order
	recipients := []uuid.UUID{order.UserID, order.SellerID}
	if order.ShipperID != nil {
		recipients = append(recipients, *order.ShipperID)
	}
	s.realtime.Notify(ctx, realtime.Event{
		Type:    eventType,
		OrderID: order.ID,
		Data: map[string]any{
			"shipping_status": order.ShippingStatus,
			"status":          order.Status,
			"event":           outcome.Event,
		},
	}, recipients...)
}

func (s *service) occurredAt(in *time.Time) time.Time {
	if in == nil || in.IsZero() {
		return s.now().UTC()
	}
	return in.UTC()
}

// findReplay short-circuits an update whose client request id is already on
// the order's timeline.
func findReplay(ctx context.Context, repo orders.Repository, order *models.Order, clientRequestID *string) (*Outcome, error) {
	if clientRequestID == nil {
		return nil, nil
	}
	existing, err := repo.FindTimelineByClientRequest(ctx, order.ID, *clientRequestID)
	if err != nil || existing == nil {
		return nil, err
	}
	return &Outcome{Order: order, Event: existing, Duplicate: true}, nil
}

func rejectStale(ctx context.Context, repo orders.Repository, orderID uuid.UUID, occurredAt time.Time) error {
	latest, err := repo.LatestStatusEventAt(ctx, orderID)
	if err != nil || latest == nil {
		return err
	}
	if occurredAt.Before(*latest) {
		return pkgerrors.New(pkgerrors.CodeConflict, "update is older than the latest applied status").
			WithDetails(map[string]any{"reason": ReasonStaleUpdate, "occurred_at": occurredAt, "latest": *latest})
	}
	return nil
}

func requireCourier(order *models.Order, courierID uuid.UUID) error {
	if order.ShipperID == nil || *order.ShipperID != courierID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to this courier").
			WithDetails(map[string]any{"reason": ReasonNotAssigned})
	}
	return nil
}

func validateCommon(courierID uuid.UUID, note *string, location *types.LocationSample, clientRequestID *string) error {
	if courierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "courier required")
	}
	if clientRequestID != nil {
		if strings.TrimSpace(*clientRequestID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "client request id must not be blank")
		}
		if len(*clientRequestID) > MaxClientRequestIDLen {
			return pkgerrors.New(pkgerrors.CodeValidation, "client request id too long").
				WithDetails(map[string]any{"reason": "client_request_id_too_long", "max": MaxClientRequestIDLen})
		}
	}
	if note != nil && utf8.RuneCountInString(*note) > MaxNoteLen {
		return pkgerrors.New(pkgerrors.CodeValidation, "note too long").
			WithDetails(map[string]any{"reason": "note_too_long", "max": MaxNoteLen})
	}
	if location != nil {
		if location.Lat < -90 || location.Lat > 90 || location.Lng < -180 || location.Lng > 180 {
			return pkgerrors.New(pkgerrors.CodeValidation, "location out of range").
				WithDetails(map[string]any{"reason": "invalid_location"})
		}
		if location.Accuracy != nil && *location.Accuracy < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "accuracy must not be negative").
				WithDetails(map[string]any{"reason": "invalid_location"})
		}
	}
	return nil
}

func stampLocation(location *types.LocationSample, at time.Time) *types.LocationSample {
	if location == nil {
		return nil
	}
	out := *location
	if out.At.IsZero() {
		out.At = at
	}
	return &out
}

func trackingSample(orderID, courierID uuid.UUID, location types.LocationSample) *models.TrackingSample {
	return &models.TrackingSample{
		OrderID:    orderID,
		CourierID:  courierID,
		Lat:        location.Lat,
		Lng:        location.Lng,
		Accuracy:   location.Accuracy,
		OccurredAt: location.At,
	}
}

func trimNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func toSyncError(err error) *SyncError {
	if typed := pkgerrors.As(err); typed != nil {
		return &SyncError{Code: typed.Code(), Message: typed.Message(), Reason: typed.Reason()}
	}
	return &SyncError{Code: pkgerrors.CodeInternal, Message: err.Error()}
}
