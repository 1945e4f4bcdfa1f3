package discounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

// Repository persists vouchers.
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

// FindByCode loads a voucher by its normalized code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found").
			WithDetails(map[string]any{"code": NormalizeCode(code)})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	return &voucher, nil
}

// IncrementUsage bumps used_count once, refusing when the limit is reached
// so two concurrent checkouts cannot both take the final use.
func (r *Repository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", id).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment voucher usage")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "voucher usage limit reached").
			WithDetails(map[string]any{"reason": ReasonUsageExhausted, "voucher_id": id})
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, voucher *models.Voucher) error {
	if voucher.ID == uuid.Nil {
		voucher.ID = uuid.New()
	}
	voucher.Code = NormalizeCode(voucher.Code)
	return r.db.WithContext(ctx).Create(voucher).Error
}
