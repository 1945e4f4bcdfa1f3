package enums

import "fmt"

// PaymentGateway identifies the external processor behind a payment link.
type PaymentGateway string

const (
	PaymentGatewayPayOS  PaymentGateway = "payos"
	PaymentGatewaySquare PaymentGateway = "square"
)

var validPaymentGateways = []PaymentGateway{
	PaymentGatewayPayOS,
	PaymentGatewaySquare,
}

func (g PaymentGateway) String() string {
	return string(g)
}

func (g PaymentGateway) IsValid() bool {
	for _, candidate := range validPaymentGateways {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParsePaymentGateway converts raw input into a PaymentGateway.
func ParsePaymentGateway(value string) (PaymentGateway, error) {
	for _, candidate := range validPaymentGateways {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment gateway %q", value)
}
