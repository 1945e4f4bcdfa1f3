package discounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

// Rejection reasons surfaced in error details.
const (
	ReasonInactive       = "voucher_inactive"
	ReasonExpired        = "voucher_expired"
	ReasonUsageExhausted = "voucher_usage_exhausted"
	ReasonNotOwner       = "voucher_not_owned"
	ReasonBelowMinimum   = "voucher_below_minimum"
	ReasonNotApplicable  = "voucher_not_applicable"
)

// Line is the part of a cart line the engine needs.
type Line struct {
	ProductID  uuid.UUID
	SellerID   uuid.UUID
	ShopID     *uuid.UUID
	CategoryID string
	LineTotal  int64
}

// Evaluation is the outcome of applying a voucher to a cart.
type Evaluation struct {
	Code             string
	EligibleTotal    int64
	EligibleBySeller map[uuid.UUID]int64
	Total            int64
	// BySeller holds each seller's share; it always sums to Total.
	BySeller map[uuid.UUID]int64
}

// NormalizeCode canonicalizes user-entered voucher codes.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Evaluate validates the voucher for this buyer and cart and allocates the
// resulting discount across sellers. sellerOrder fixes which seller is last.
func Evaluate(v *models.Voucher, buyerID uuid.UUID, lines []Line, sellerOrder []uuid.UUID, now time.Time) (*Evaluation, error) {
	if err := checkUsable(v, buyerID, now); err != nil {
		return nil, err
	}

	bySeller := make(map[uuid.UUID]int64)
	var eligible int64
	for _, line := range lines {
		if !matchesScope(v, line) || !matchesTarget(v, line) {
			continue
		}
		bySeller[line.SellerID] += line.LineTotal
		eligible += line.LineTotal
	}
	if eligible == 0 {
		return nil, rejection(ReasonNotApplicable, "voucher does not apply to any item in the cart", v.Code)
	}
	if eligible < v.MinEligibleTotal {
		return nil, rejection(ReasonBelowMinimum, "order does not meet the voucher minimum", v.Code).
			WithDetails(map[string]any{
				"reason":         ReasonBelowMinimum,
				"code":           v.Code,
				"minimum":        v.MinEligibleTotal,
				"eligible_total": eligible,
			})
	}

	total := ComputeDiscount(eligible, v)
	weights := make([]int64, len(sellerOrder))
	for i, sellerID := range sellerOrder {
		weights[i] = bySeller[sellerID]
	}
	shares := Allocate(total, weights)
	allocations := make(map[uuid.UUID]int64, len(sellerOrder))
	for i, sellerID := range sellerOrder {
		allocations[sellerID] = shares[i]
	}

	return &Evaluation{
		Code:             v.Code,
		EligibleTotal:    eligible,
		EligibleBySeller: bySeller,
		Total:            total,
		BySeller:         allocations,
	}, nil
}

func checkUsable(v *models.Voucher, buyerID uuid.UUID, now time.Time) error {
	if v == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
	}
	if !v.Active {
		return rejection(ReasonInactive, "voucher is not active", v.Code)
	}
	if v.ExpiresAt != nil && !now.Before(*v.ExpiresAt) {
		return rejection(ReasonExpired, "voucher has expired", v.Code)
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return rejection(ReasonUsageExhausted, "voucher usage limit reached", v.Code)
	}
	if v.UserID != nil && *v.UserID != buyerID {
		return rejection(ReasonNotOwner, "voucher belongs to another user", v.Code)
	}
	return nil
}

func matchesScope(v *models.Voucher, line Line) bool {
	switch v.Scope {
	case enums.VoucherScopeSeller:
		return v.SellerID != nil && *v.SellerID == line.SellerID
	case enums.VoucherScopeShop:
		return v.ShopID != nil && line.ShopID != nil && *v.ShopID == *line.ShopID
	default:
		return true
	}
}

func matchesTarget(v *models.Voucher, line Line) bool {
	switch v.Target {
	case enums.VoucherTargetCategory:
		for _, id := range v.CategoryIDs {
			if id == line.CategoryID {
				return true
			}
		}
		return false
	case enums.VoucherTargetProduct:
		for _, id := range v.ProductIDs {
			if id == line.ProductID {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// ComputeDiscount returns the discount a voucher grants on an eligible
// subtotal. The result never exceeds the subtotal.
func ComputeDiscount(eligibleTotal int64, v *models.Voucher) int64 {
	if eligibleTotal <= 0 || v == nil {
		return 0
	}
	var discount int64
	switch v.Kind {
	case enums.VoucherKindPercentage:
		discount = decimal.NewFromInt(eligibleTotal).
			Mul(v.Value).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		if v.Cap != nil && discount > *v.Cap {
			discount = *v.Cap
		}
	default:
		discount = v.Value.Round(0).IntPart()
	}
	if discount < 0 {
		return 0
	}
	if discount > eligibleTotal {
		return eligibleTotal
	}
	return discount
}

// Allocate splits total across weights proportionally. Every share but the
// last weighted one is rounded down; that last one absorbs the remainder so
// the shares sum to total exactly. Zero weights receive nothing and, when
// total does not exceed the weight sum, no share exceeds its weight.
func Allocate(total int64, weights []int64) []int64 {
	shares := make([]int64, len(weights))
	if total <= 0 {
		return shares
	}

	var sum int64
	last := -1
	for i, w := range weights {
		if w > 0 {
			sum += w
			last = i
		}
	}
	if last < 0 {
		return shares
	}

	totalDec := decimal.NewFromInt(total)
	sumDec := decimal.NewFromInt(sum)
	var assigned int64
	for i, w := range weights {
		if w <= 0 || i == last {
			continue
		}
		q, _ := totalDec.Mul(decimal.NewFromInt(w)).QuoRem(sumDec, 0)
		shares[i] = q.IntPart()
		assigned += shares[i]
	}
	shares[last] = total - assigned

	// With tiny weights the remainder can exceed the last seller's own
	// eligible amount; push the overflow back onto earlier sellers.
	if overflow := shares[last] - weights[last]; overflow > 0 && total <= sum {
		shares[last] = weights[last]
		for i := last - 1; i >= 0 && overflow > 0; i-- {
			room := weights[i] - shares[i]
			if room <= 0 {
				continue
			}
			if room > overflow {
				room = overflow
			}
			shares[i] += room
			overflow -= room
		}
	}
	return shares
}

func rejection(reason, message, code string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{
		"reason": reason,
		"code":   code,
	})
}
