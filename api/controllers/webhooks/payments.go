package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cartsplit-backend/api/responses"
	"github.com/angelmondragon/cartsplit-backend/internal/payments"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type webhookHandler interface {
	HandleWebhook(ctx context.Context, gateway enums.PaymentGateway, headers http.Header, body []byte) (*payments.WebhookAck, error)
}

// PaymentWebhook receives gateway callbacks. Signature checks and replay
// protection happen in the payments service.
func PaymentWebhook(svc webhookHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		gateway, err := enums.ParsePaymentGateway(chi.URLParam(r, "gateway"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown payment gateway"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		ack, err := svc.HandleWebhook(ctx, gateway, r.Header, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"gateway":   gateway,
				"event_id":  ack.EventID,
				"duplicate": ack.Duplicate,
				"ignored":   ack.Ignored,
			}), "payment webhook handled")
		}
		responses.WriteSuccess(w, ack)
	}
}
