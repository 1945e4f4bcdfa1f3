package shops

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

// Repository is the seller directory: pickup addresses and payout accounts.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.WithContext(ctx).First(&shop, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found").
			WithDetails(map[string]any{"shop_id": id})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	return &shop, nil
}

// ResolveOrigin returns the shop a seller group ships from: the explicit
// shop when the products carry one, otherwise the seller's oldest shop.
func (r *Repository) ResolveOrigin(ctx context.Context, sellerID uuid.UUID, shopID *uuid.UUID) (*models.Shop, error) {
	if shopID != nil {
		return r.FindByID(ctx, *shopID)
	}
	var shop models.Shop
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at ASC").
		First(&shop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller has no registered shop").
			WithDetails(map[string]any{"seller_id": sellerID})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller shop")
	}
	return &shop, nil
}
