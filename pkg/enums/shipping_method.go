package enums

import "fmt"

// ShippingMethod is the delivery speed selected at checkout.
type ShippingMethod string

const (
	ShippingMethodStandard ShippingMethod = "standard"
	ShippingMethodExpress  ShippingMethod = "express"
	ShippingMethodRush     ShippingMethod = "rush"
)

var validShippingMethods = []ShippingMethod{
	ShippingMethodStandard,
	ShippingMethodExpress,
	ShippingMethodRush,
}

func (m ShippingMethod) String() string {
	return string(m)
}

func (m ShippingMethod) IsValid() bool {
	for _, candidate := range validShippingMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseShippingMethod converts raw input into a ShippingMethod.
func ParseShippingMethod(value string) (ShippingMethod, error) {
	for _, candidate := range validShippingMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipping method %q", value)
}

// ShippingScope explains which pricing rule produced a shipping fee.
type ShippingScope string

const (
	ShippingScopeInRegion       ShippingScope = "in_region"
	ShippingScopeOutOfRegion    ShippingScope = "out_of_region"
	ShippingScopeDistanceTiered ShippingScope = "distance_tiered"
	ShippingScopeUnknown        ShippingScope = "unknown"
)

func (s ShippingScope) String() string {
	return string(s)
}
