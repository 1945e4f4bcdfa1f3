package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

// Reasons attached to checkout validation failures.
const (
	ReasonEmptyCart         = "empty_cart"
	ReasonInvalidQuantity   = "invalid_quantity"
	ReasonIncompleteAddress = "incomplete_address"
	ReasonProductNotFound   = "product_not_found"
	ReasonInsufficientStock = "insufficient_stock"
)

// Line is one requested product and quantity.
type Line struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"required,gt=0"`
}

// NormalizeLines rejects empty input and non-positive quantities and folds
// repeated products into one line, keeping first-seen order.
func NormalizeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items").
			WithDetails(map[string]any{"reason": ReasonEmptyCart})
	}
	index := make(map[uuid.UUID]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil || line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer").
				WithDetails(map[string]any{"reason": ReasonInvalidQuantity, "product_id": line.ProductID})
		}
		if pos, ok := index[line.ProductID]; ok {
			out[pos].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out, nil
}

// PrecheckStock fails on the first missing product or line whose quantity
// exceeds the last read stock. It is advisory; the conditional decrement is
// the authoritative guard.
func PrecheckStock(lines []Line, catalog map[uuid.UUID]models.Product) error {
	for _, line := range lines {
		product, ok := catalog[line.ProductID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"reason": ReasonProductNotFound, "product_id": line.ProductID})
		}
		if product.Stock < line.Quantity {
			return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
				WithDetails(map[string]any{
					"reason":     ReasonInsufficientStock,
					"product_id": line.ProductID,
					"requested":  line.Quantity,
					"available":  product.Stock,
				})
		}
	}
	return nil
}
