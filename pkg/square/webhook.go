package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

// SignatureHeader carries the webhook HMAC.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// WebhookEvent is the subset of a payment.* notification the reconciler reads.
type WebhookEvent struct {
	MerchantID string `json:"merchant_id"`
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	CreatedAt  string `json:"created_at"`
	Data       struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Payment *WebhookPayment `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

type WebhookPayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id"`
	UpdatedAt   string `json:"updated_at"`
	AmountMoney struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"amount_money"`
}

type webhookKey struct {
	secret          string
	notificationURL string
}

// sign is base64(HMAC-SHA256(secret, notificationURL || body)).
func (k webhookKey) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(k.secret))
	mac.Write([]byte(k.notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook authenticates a notification and decodes it.
func (c *Client) VerifyWebhook(signature string, body []byte) (*WebhookEvent, error) {
	if c.webhook.secret == "" || c.webhook.notificationURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square webhook verification not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" || !hmac.Equal([]byte(c.webhook.sign(body)), []byte(signature)) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature").With("reason", "bad_signature")
	}
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square webhook")
	}
	return &event, nil
}
