package reservation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

// Repository persists inventory_reservations rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, row *models.InventoryReservation) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = enums.ReservationStatusReserved
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reservation")
	}
	return nil
}

// ListByCheckout returns the checkout's reservations in the given status,
// oldest first.
func (r *Repository) ListByCheckout(ctx context.Context, checkoutID uuid.UUID, status enums.ReservationStatus) ([]models.InventoryReservation, error) {
	var rows []models.InventoryReservation
	err := r.db.WithContext(ctx).
		Where("checkout_id = ? AND status = ?", checkoutID, status).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}
	return rows, nil
}

// Transition moves every reservation of the checkout from one status to another.
func (r *Repository) Transition(ctx context.Context, checkoutID uuid.UUID, from, to enums.ReservationStatus, reason *string) (int64, error) {
	updates := map[string]any{"status": to}
	if reason != nil {
		updates["released_reason"] = *reason
	}
	res := r.db.WithContext(ctx).
		Model(&models.InventoryReservation{}).
		Where("checkout_id = ? AND status = ?", checkoutID, from).
		Updates(updates)
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update reservations")
	}
	return res.RowsAffected, nil
}
