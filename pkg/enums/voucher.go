package enums

import "fmt"

// VoucherKind selects how a voucher's value is interpreted.
type VoucherKind string

const (
	VoucherKindFixed      VoucherKind = "fixed"
	VoucherKindPercentage VoucherKind = "percentage"
)

var validVoucherKinds = []VoucherKind{VoucherKindFixed, VoucherKindPercentage}

func (k VoucherKind) IsValid() bool {
	for _, candidate := range validVoucherKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseVoucherKind converts raw input into a VoucherKind.
func ParseVoucherKind(value string) (VoucherKind, error) {
	for _, candidate := range validVoucherKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid voucher kind %q", value)
}

// VoucherScope restricts which sellers a voucher applies to.
type VoucherScope string

const (
	VoucherScopeGlobal VoucherScope = "global"
	VoucherScopeSeller VoucherScope = "seller"
	VoucherScopeShop   VoucherScope = "shop"
)

var validVoucherScopes = []VoucherScope{VoucherScopeGlobal, VoucherScopeSeller, VoucherScopeShop}

func (s VoucherScope) IsValid() bool {
	for _, candidate := range validVoucherScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// VoucherTarget restricts which products contribute to the eligible subtotal.
type VoucherTarget string

const (
	VoucherTargetAll      VoucherTarget = "all"
	VoucherTargetCategory VoucherTarget = "category"
	VoucherTargetProduct  VoucherTarget = "product"
)

var validVoucherTargets = []VoucherTarget{VoucherTargetAll, VoucherTargetCategory, VoucherTargetProduct}

func (t VoucherTarget) IsValid() bool {
	for _, candidate := range validVoucherTargets {
		if candidate == t {
			return true
		}
	}
	return false
}
