package payments

import (
	"context"
	"fmt"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
	"github.com/angelmondragon/cartsplit-backend/pkg/payos"
	"github.com/angelmondragon/cartsplit-backend/pkg/square"
)

// BuildGateways constructs every gateway whose credentials are configured.
func BuildGateways(ctx context.Context, cfg *config.Config, logg *logger.Logger) ([]Gateway, error) {
	var gateways []Gateway
	if cfg.PayOS.Enabled() {
		client, err := payos.NewClient(cfg.PayOS, logg)
		if err != nil {
			return nil, fmt.Errorf("payos client: %w", err)
		}
		gateways = append(gateways, NewPayOSGateway(client))
	} else {
		logg.Warn(ctx, "payos credentials missing; bank transfer links disabled")
	}
	if cfg.Square.Enabled() {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		gateways = append(gateways, NewSquareGateway(client))
	} else {
		logg.Warn(ctx, "square credentials missing; card payments disabled")
	}
	return gateways, nil
}
