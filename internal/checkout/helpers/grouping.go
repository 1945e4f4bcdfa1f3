package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/internal/discounts"
	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
)

// GroupItem is one priced cart line inside a seller group.
type GroupItem struct {
	ProductID  uuid.UUID
	Title      string
	CategoryID string
	ShopID     *uuid.UUID
	Quantity   int64
	UnitPrice  int64
	LineTotal  int64
}

// SellerGroup is the slice of a cart owned by one seller.
type SellerGroup struct {
	SellerID uuid.UUID
	ShopID   *uuid.UUID
	Items    []GroupItem
	Subtotal int64
}

// GroupBySeller partitions lines by owning seller. Groups keep the order in
// which their seller first appears in lines, which also fixes the seller that
// absorbs discount rounding. The group's shop is the first shop seen for it.
func GroupBySeller(lines []Line, catalog map[uuid.UUID]models.Product) []SellerGroup {
	index := make(map[uuid.UUID]int)
	groups := make([]SellerGroup, 0)
	for _, line := range lines {
		product, ok := catalog[line.ProductID]
		if !ok {
			continue
		}
		pos, seen := index[product.SellerID]
		if !seen {
			pos = len(groups)
			index[product.SellerID] = pos
			groups = append(groups, SellerGroup{SellerID: product.SellerID, ShopID: product.ShopID})
		}
		item := GroupItem{
			ProductID:  product.ID,
			Title:      product.Title,
			CategoryID: product.CategoryID,
			ShopID:     product.ShopID,
			Quantity:   line.Quantity,
			UnitPrice:  product.Price,
			LineTotal:  product.Price * line.Quantity,
		}
		group := &groups[pos]
		if group.ShopID == nil {
			group.ShopID = product.ShopID
		}
		group.Items = append(group.Items, item)
		group.Subtotal += item.LineTotal
	}
	return groups
}

// SellerOrder lists seller ids in group order.
func SellerOrder(groups []SellerGroup) []uuid.UUID {
	out := make([]uuid.UUID, len(groups))
	for i, g := range groups {
		out[i] = g.SellerID
	}
	return out
}

// DiscountLines flattens groups into discount engine input.
func DiscountLines(groups []SellerGroup) []discounts.Line {
	out := make([]discounts.Line, 0)
	for _, g := range groups {
		for _, item := range g.Items {
			out = append(out, discounts.Line{
				ProductID:  item.ProductID,
				SellerID:   g.SellerID,
				ShopID:     item.ShopID,
				CategoryID: item.CategoryID,
				LineTotal:  item.LineTotal,
			})
		}
	}
	return out
}
