package discounts

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cartsplit-backend/pkg/db/models"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

func int64Ptr(v int64) *int64 { return &v }

func percentVoucher(value int64, cap *int64, minimum int64) *models.Voucher {
	return &models.Voucher{
		ID:               uuid.New(),
		Code:             "SAVE10",
		Kind:             enums.VoucherKindPercentage,
		Value:            decimal.NewFromInt(value),
		Cap:              cap,
		MinEligibleTotal: minimum,
		Scope:            enums.VoucherScopeGlobal,
		Target:           enums.VoucherTargetAll,
		Active:           true,
	}
}

func TestComputeDiscountPercentageCap(t *testing.T) {
	t.Parallel()

	v := percentVoucher(10, int64Ptr(20000), 50000)
	if got := ComputeDiscount(300000, v); got != 20000 {
		t.Fatalf("ComputeDiscount = %d, want 20000", got)
	}
	if got := ComputeDiscount(150000, v); got != 15000 {
		t.Fatalf("ComputeDiscount under cap = %d, want 15000", got)
	}
}

func TestComputeDiscountNeverExceedsEligible(t *testing.T) {
	t.Parallel()

	fixed := &models.Voucher{Kind: enums.VoucherKindFixed, Value: decimal.NewFromInt(500000)}
	if got := ComputeDiscount(120000, fixed); got != 120000 {
		t.Fatalf("fixed discount = %d, want 120000", got)
	}
	huge := &models.Voucher{Kind: enums.VoucherKindPercentage, Value: decimal.NewFromInt(250)}
	if got := ComputeDiscount(80000, huge); got != 80000 {
		t.Fatalf("percentage discount = %d, want 80000", got)
	}
	rounding := &models.Voucher{Kind: enums.VoucherKindPercentage, Value: decimal.RequireFromString("12.5")}
	if got := ComputeDiscount(99999, rounding); got != 12500 {
		t.Fatalf("rounded discount = %d, want 12500", got)
	}
}

func TestAllocateSumsToTotal(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		weights := make([]int64, n)
		var sum int64
		for j := range weights {
			weights[j] = 1 + rng.Int63n(1_000_000)
			sum += weights[j]
		}
		total := rng.Int63n(sum + 1)
		shares := Allocate(total, weights)

		var got int64
		for j, share := range shares {
			if share < 0 {
				t.Fatalf("negative share %d for weights %v total %d", share, weights, total)
			}
			if share > weights[j] {
				t.Fatalf("share %d exceeds weight %d", share, weights[j])
			}
			got += share
		}
		if got != total {
			t.Fatalf("shares %v sum to %d, want %d", shares, got, total)
		}
	}
}

func TestAllocateLastSellerTakesRemainder(t *testing.T) {
	t.Parallel()

	shares := Allocate(100, []int64{1, 1, 1})
	if shares[0] != 33 || shares[1] != 33 || shares[2] != 34 {
		t.Fatalf("shares = %v", shares)
	}

	skipped := Allocate(10, []int64{3, 0, 0})
	if skipped[0] != 10 || skipped[1] != 0 || skipped[2] != 0 {
		t.Fatalf("zero-weight sellers must get nothing: %v", skipped)
	}
}

func TestEvaluateAllocatesByEligibleContribution(t *testing.T) {
	t.Parallel()

	sellerA, sellerB := uuid.New(), uuid.New()
	productA, productB := uuid.New(), uuid.New()
	v := percentVoucher(10, nil, 0)
	v.Target = enums.VoucherTargetProduct
	v.ProductIDs = []uuid.UUID{productA}

	lines := []Line{
		{ProductID: productA, SellerID: sellerA, LineTotal: 200000},
		{ProductID: productB, SellerID: sellerB, LineTotal: 100000},
	}
	eval, err := Evaluate(v, uuid.New(), lines, []uuid.UUID{sellerA, sellerB}, time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.EligibleTotal != 200000 || eval.Total != 20000 {
		t.Fatalf("evaluation = %+v", eval)
	}
	if eval.BySeller[sellerA] != 20000 || eval.BySeller[sellerB] != 0 {
		t.Fatalf("allocation = %v", eval.BySeller)
	}
}

func TestEvaluateScopes(t *testing.T) {
	t.Parallel()

	sellerA, sellerB := uuid.New(), uuid.New()
	shop := uuid.New()
	lines := []Line{
		{ProductID: uuid.New(), SellerID: sellerA, ShopID: &shop, CategoryID: "drinks", LineTotal: 50000},
		{ProductID: uuid.New(), SellerID: sellerB, CategoryID: "snacks", LineTotal: 70000},
	}
	order := []uuid.UUID{sellerA, sellerB}

	sellerScoped := &models.Voucher{Code: "B", Kind: enums.VoucherKindFixed, Value: decimal.NewFromInt(10000), Scope: enums.VoucherScopeSeller, SellerID: &sellerB, Target: enums.VoucherTargetAll, Active: true}
	eval, err := Evaluate(sellerScoped, uuid.New(), lines, order, time.Now())
	if err != nil || eval.EligibleTotal != 70000 || eval.BySeller[sellerB] != 10000 {
		t.Fatalf("seller scope: %+v %v", eval, err)
	}

	shopScoped := &models.Voucher{Code: "S", Kind: enums.VoucherKindFixed, Value: decimal.NewFromInt(5000), Scope: enums.VoucherScopeShop, ShopID: &shop, Target: enums.VoucherTargetAll, Active: true}
	eval, err = Evaluate(shopScoped, uuid.New(), lines, order, time.Now())
	if err != nil || eval.EligibleTotal != 50000 || eval.BySeller[sellerA] != 5000 {
		t.Fatalf("shop scope: %+v %v", eval, err)
	}

	category := &models.Voucher{Code: "C", Kind: enums.VoucherKindFixed, Value: decimal.NewFromInt(1000), Scope: enums.VoucherScopeGlobal, Target: enums.VoucherTargetCategory, CategoryIDs: []string{"snacks"}, Active: true}
	eval, err = Evaluate(category, uuid.New(), lines, order, time.Now())
	if err != nil || eval.EligibleTotal != 70000 {
		t.Fatalf("category target: %+v %v", eval, err)
	}
}

func TestEvaluateRejections(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	owner := uuid.New()
	seller := uuid.New()
	lines := []Line{{ProductID: uuid.New(), SellerID: seller, LineTotal: 40000}}

	cases := map[string]struct {
		mutate func(v *models.Voucher)
		reason string
	}{
		"inactive":        {func(v *models.Voucher) { v.Active = false }, ReasonInactive},
		"expired":         {func(v *models.Voucher) { v.ExpiresAt = &past }, ReasonExpired},
		"usage exhausted": {func(v *models.Voucher) { v.UsageLimit = int64Ptr(5); v.UsedCount = 5 }, ReasonUsageExhausted},
		"other user":      {func(v *models.Voucher) { v.UserID = &owner }, ReasonNotOwner},
		"below minimum":   {func(v *models.Voucher) { v.MinEligibleTotal = 50000 }, ReasonBelowMinimum},
		"not applicable": {func(v *models.Voucher) {
			v.Target = enums.VoucherTargetCategory
			v.CategoryIDs = []string{"none"}
		}, ReasonNotApplicable},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			v := percentVoucher(10, nil, 0)
			tc.mutate(v)
			_, err := Evaluate(v, uuid.New(), lines, []uuid.UUID{seller}, now)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := pkgerrors.ReasonOf(err); got != tc.reason {
				t.Fatalf("reason = %q, want %q", got, tc.reason)
			}
		})
	}
}

func TestAllocateSpillsOverflowFromTinyLastWeight(t *testing.T) {
	t.Parallel()

	shares := Allocate(2, []int64{1, 1, 1})
	if shares[0]+shares[1]+shares[2] != 2 {
		t.Fatalf("shares = %v", shares)
	}
	if shares[2] != 1 || shares[1] != 1 {
		t.Fatalf("expected overflow moved to previous seller, got %v", shares)
	}
}
